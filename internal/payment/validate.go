// Package payment checks an inbound payment against what an operation
// requires. It holds no state.
package payment

import (
	"fmt"

	"custodia/internal/ledger"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

// Expectation is what an operation requires of its accompanying payment.
type Expectation struct {
	MinAmount uint64
	Recipient id.Address
	Sender    id.Address
}

// Validate checks amount, then recipient, then sender. The first violation is
// returned.
func Validate(p ledger.Payment, exp Expectation) error {
	if p.Amount < exp.MinAmount {
		return dErrors.New(dErrors.CodeInsufficientPayment,
			fmt.Sprintf("payment of %d is below the required %d", p.Amount, exp.MinAmount))
	}
	if p.Recipient != exp.Recipient {
		return dErrors.New(dErrors.CodeValidation, "payment recipient must be "+exp.Recipient.String())
	}
	if p.Sender != exp.Sender {
		return dErrors.New(dErrors.CodeUnauthorized, "payment sender must be the caller")
	}
	return nil
}
