package domain

import (
	"encoding/base32"
	"strings"

	"golang.org/x/crypto/blake2b"

	dErrors "custodia/pkg/domain-errors"
)

// AddressKeySize is the byte length of the key behind every address.
const AddressKeySize = 32

// addressEncoding renders address keys as 52 upper-case base32 characters.
var addressEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Address identifies an account on the ledger: either a caller identity
// authenticated by the environment or a custodial account owned by a state
// machine. Addresses compare by value.
type Address [AddressKeySize]byte

// ParseAddress validates and decodes the textual form of an address.
func ParseAddress(s string) (Address, error) {
	var a Address
	if s == "" {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address is required")
	}
	if s != strings.TrimSpace(s) {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must not contain whitespace")
	}
	raw, err := addressEncoding.DecodeString(s)
	if err != nil {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address is not valid base32")
	}
	if len(raw) != AddressKeySize {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must encode 32 bytes")
	}
	copy(a[:], raw)
	if a.IsNil() {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must not be zero")
	}
	return a, nil
}

// AddressFromBytes builds an address from a 32-byte key.
func AddressFromBytes(b []byte) (Address, error) {
	var a Address
	if len(b) != AddressKeySize {
		return a, dErrors.New(dErrors.CodeInvalidInput, "address must encode 32 bytes")
	}
	copy(a[:], b)
	return a, nil
}

// DeriveAddress returns the deterministic address for a labelled account,
// BLAKE2b-256 over "custodia:" + label joined with the parts. Used for
// custodial accounts that no external key controls.
func DeriveAddress(label string, parts ...string) Address {
	h, _ := blake2b.New256(nil)
	h.Write([]byte("custodia:" + label))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(p))
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

func (a Address) String() string {
	return addressEncoding.EncodeToString(a[:])
}

func (a Address) Bytes() []byte {
	return append([]byte(nil), a[:]...)
}

// IsNil reports whether the address is the zero value.
func (a Address) IsNil() bool {
	return a == Address{}
}

// MarshalText renders the zero address as an empty string so optional
// address fields round-trip.
func (a Address) MarshalText() ([]byte, error) {
	if a.IsNil() {
		return []byte{}, nil
	}
	return []byte(a.String()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*a = Address{}
		return nil
	}
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
