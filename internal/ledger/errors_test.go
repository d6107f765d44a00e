package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

func TestDomainError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code dErrors.Code
	}{
		{"insufficient funds", ErrInsufficientFunds, dErrors.CodeInsufficientFunds},
		{"not registered", ErrNotRegistered, dErrors.CodePreconditionFailed},
		{"insufficient units", fmt.Errorf("transfer: %w", ErrInsufficientUnits), dErrors.CodePreconditionFailed},
		{"account closed", ErrAccountClosed, dErrors.CodePreconditionFailed},
		{"overflow", ErrAmountOverflow, dErrors.CodeValidation},
		{"not found", sentinel.ErrNotFound, dErrors.CodeNotFound},
		{"conflict", sentinel.ErrConflict, dErrors.CodeConflict},
		{"deadline", context.DeadlineExceeded, dErrors.CodeTimeout},
		{"unknown", errors.New("disk on fire"), dErrors.CodeInternal},
		{"already coded", dErrors.New(dErrors.CodeUnauthorized, "nope"), dErrors.CodeUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DomainError(tc.err, "op failed")
			assert.Equal(t, tc.code, dErrors.CodeOf(got))
			assert.ErrorIs(t, got, tc.err)
		})
	}

	assert.NoError(t, DomainError(nil, "unused"))
}

func TestAddAmount(t *testing.T) {
	sum, err := AddAmount(MaxAmount-2, 2)
	assert.NoError(t, err)
	assert.Equal(t, MaxAmount, sum)

	for _, tc := range [][2]uint64{{MaxAmount, 1}, {1, MaxAmount}, {0, MaxAmount + 1}, {math.MaxUint64, 2}} {
		_, err := AddAmount(tc[0], tc[1])
		assert.ErrorIs(t, err, ErrAmountOverflow, "%d + %d", tc[0], tc[1])
	}
}
