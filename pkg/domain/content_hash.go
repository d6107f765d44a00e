package domain

import (
	dErrors "custodia/pkg/domain-errors"
)

// MaxContentHashSize bounds the registry key. The registry charges storage
// for a full slot of this size regardless of the actual length.
const MaxContentHashSize = 64

// ContentHash is an externally computed identifier for certified content,
// typically a CID. It is opaque to the registry beyond its character set.
type ContentHash string

// ParseContentHash validates a content hash at a trust boundary. Allowed
// characters are ASCII letters, digits and "-_.=" so the hash is usable as a
// URL path segment and a store key without escaping.
func ParseContentHash(s string) (ContentHash, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content hash is required")
	}
	if len(s) > MaxContentHashSize {
		return "", dErrors.New(dErrors.CodeInvalidInput, "content hash must be 64 bytes or less")
	}
	for i := 0; i < len(s); i++ {
		if !contentHashChar(s[i]) {
			return "", dErrors.New(dErrors.CodeInvalidInput, "content hash contains invalid characters")
		}
	}
	return ContentHash(s), nil
}

func contentHashChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	case c == '-' || c == '_' || c == '.' || c == '=':
		return true
	}
	return false
}

func (h ContentHash) String() string {
	return string(h)
}

func (h ContentHash) IsNil() bool {
	return h == ""
}
