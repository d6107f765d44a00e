package domain

import (
	"strconv"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// AssetID identifies a minted unit on the ledger. Zero is never assigned.
type AssetID uint64

// ParseAssetID parses the decimal form of an asset identifier.
func ParseAssetID(s string) (AssetID, error) {
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "asset id is required")
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "asset id must be a positive integer")
	}
	if v == 0 {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "asset id must be a positive integer")
	}
	return AssetID(v), nil
}

func (id AssetID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// EscrowID identifies one escrow instance.
type EscrowID uuid.UUID

// NewEscrowID returns a fresh random escrow identifier.
func NewEscrowID() EscrowID {
	return EscrowID(uuid.New())
}

// ParseEscrowID validates an escrow identifier at a trust boundary.
func ParseEscrowID(s string) (EscrowID, error) {
	if s == "" {
		return EscrowID{}, dErrors.New(dErrors.CodeInvalidInput, "escrow id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return EscrowID{}, dErrors.New(dErrors.CodeInvalidInput, "escrow id must be a uuid")
	}
	if parsed == uuid.Nil {
		return EscrowID{}, dErrors.New(dErrors.CodeInvalidInput, "escrow id must not be nil")
	}
	return EscrowID(parsed), nil
}

func (id EscrowID) String() string {
	return uuid.UUID(id).String()
}

func (id EscrowID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

func (id EscrowID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *EscrowID) UnmarshalText(text []byte) error {
	parsed, err := ParseEscrowID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
