package models

import (
	"encoding/json"
	"fmt"
	"time"

	id "custodia/pkg/domain"
)

// Status is the escrow lifecycle state. Funding moves to released exactly
// once; released is terminal.
type Status string

const (
	StatusFunding  Status = "funding"
	StatusReleased Status = "released"
)

// RecordKeyPrefix namespaces escrow records in the ledger store.
const RecordKeyPrefix = "escrow/"

// RecordKey is the ledger key of an escrow.
func RecordKey(escrowID id.EscrowID) string {
	return RecordKeyPrefix + escrowID.String()
}

// CustodyAddress is the custodial account that pools contributions for
// escrowID. It is derived, so no key controls it.
func CustodyAddress(escrowID id.EscrowID) id.Address {
	return id.DeriveAddress("escrow", escrowID.String())
}

// EscrowState is one escrow instance. The pooled balance is not stored here;
// it lives on the custodial account.
type EscrowState struct {
	ID             id.EscrowID `json:"id"`
	Beneficiary    id.Address  `json:"beneficiary"`
	TargetAmount   uint64      `json:"target_amount"`
	Creator        id.Address  `json:"creator"`
	Custody        id.Address  `json:"custody"`
	Status         Status      `json:"status"`
	CreatedAt      time.Time   `json:"created_at"`
	ReleasedAt     *time.Time  `json:"released_at,omitempty"`
	ReleasedAmount uint64      `json:"released_amount,omitempty"`
}

func (s *EscrowState) IsReleased() bool {
	return s.Status == StatusReleased
}

// MarkReleased applies the funding → released transition.
func (s *EscrowState) MarkReleased(amount uint64, at time.Time) error {
	if s.Status != StatusFunding {
		return fmt.Errorf("escrow %s: cannot release from status %q", s.ID, s.Status)
	}
	s.Status = StatusReleased
	s.ReleasedAmount = amount
	s.ReleasedAt = &at
	return nil
}

func Encode(s *EscrowState) ([]byte, error) {
	return json.Marshal(s)
}

func Decode(value []byte) (*EscrowState, error) {
	var s EscrowState
	if err := json.Unmarshal(value, &s); err != nil {
		return nil, err
	}
	if s.Status != StatusFunding && s.Status != StatusReleased {
		return nil, fmt.Errorf("escrow %s: unknown status %q", s.ID, s.Status)
	}
	return &s, nil
}

// Settlement is the payout computed at release: the whole custodial balance,
// closed out to the beneficiary.
type Settlement struct {
	EscrowID id.EscrowID `json:"escrow_id"`
	From     id.Address  `json:"from"`
	CloseTo  id.Address  `json:"close_to"`
	Amount   uint64      `json:"amount"`
}

// View is an escrow with its live custodial balance.
type View struct {
	EscrowState
	Balance   uint64 `json:"balance"`
	TargetMet bool   `json:"target_met"`
}
