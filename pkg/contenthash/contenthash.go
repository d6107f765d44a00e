// Package contenthash computes and inspects content identifiers for
// certified content. The registry itself treats hashes as opaque keys; this
// package gives clients a canonical way to produce one.
package contenthash

import (
	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"

	id "custodia/pkg/domain"
)

// Compute returns the CIDv1 (raw codec, sha2-256 multihash) of data as a
// content hash. The base32 string form is 59 characters and always passes
// id.ParseContentHash.
func Compute(data []byte) (id.ContentHash, error) {
	sum, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", err
	}
	return id.ContentHash(cid.NewCidV1(cid.Raw, sum).String()), nil
}

// Describe reports how a content hash decodes when it is a CID. ok is false
// for hashes in any other format.
func Describe(h id.ContentHash) (info Info, ok bool) {
	c, err := cid.Decode(h.String())
	if err != nil {
		return Info{}, false
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return Info{}, false
	}
	return Info{
		Version:   c.Version(),
		Codec:     c.Type(),
		HashName:  decoded.Name,
		DigestLen: decoded.Length,
	}, true
}

// Info summarizes a decoded CID.
type Info struct {
	Version   uint64 `json:"version"`
	Codec     uint64 `json:"codec"`
	HashName  string `json:"hash"`
	DigestLen int    `json:"digest_length"`
}

// Verify reports whether data hashes to h under the CID's own multihash.
func Verify(h id.ContentHash, data []byte) bool {
	c, err := cid.Decode(h.String())
	if err != nil {
		return false
	}
	decoded, err := multihash.Decode(c.Hash())
	if err != nil {
		return false
	}
	sum, err := multihash.Sum(data, decoded.Code, decoded.Length)
	if err != nil {
		return false
	}
	return cid.NewCidV1(c.Type(), sum).Equals(cid.NewCidV1(c.Type(), c.Hash()))
}
