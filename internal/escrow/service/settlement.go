package service

import (
	"context"
	"fmt"

	"custodia/internal/escrow/models"
	"custodia/internal/ledger"
	dErrors "custodia/pkg/domain-errors"
)

// PlanSettlement computes the release payout for an escrow holding balance.
// The payout is always the whole balance, including any excess over target.
func PlanSettlement(state *models.EscrowState, balance uint64) (models.Settlement, error) {
	if balance < state.TargetAmount {
		return models.Settlement{}, dErrors.New(dErrors.CodeInsufficientFunds,
			fmt.Sprintf("escrow holds %d of target %d", balance, state.TargetAmount))
	}
	return models.Settlement{
		EscrowID: state.ID,
		From:     state.Custody,
		CloseTo:  state.Beneficiary,
		Amount:   balance,
	}, nil
}

// executeSettlement closes the custodial account out to the beneficiary.
func executeSettlement(ctx context.Context, tx ledger.Tx, plan models.Settlement) error {
	swept, err := tx.CloseAccount(ctx, plan.From, plan.CloseTo)
	if err != nil {
		return ledger.DomainError(err, "failed to settle escrow")
	}
	if swept != plan.Amount {
		return dErrors.New(dErrors.CodeInvariantViolation,
			fmt.Sprintf("settlement swept %d, planned %d", swept, plan.Amount))
	}
	return nil
}
