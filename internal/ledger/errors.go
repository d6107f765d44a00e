package ledger

import (
	"context"
	"errors"

	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// DomainError translates ledger and infrastructure failures into coded domain
// errors. Errors that already carry a code pass through unchanged.
func DomainError(err error, msg string) error {
	if err == nil {
		return nil
	}
	var de *dErrors.Error
	if errors.As(err, &de) {
		return err
	}
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return dErrors.Wrap(err, dErrors.CodeInsufficientFunds, msg)
	case errors.Is(err, ErrAmountOverflow):
		return dErrors.Wrap(err, dErrors.CodeValidation, msg)
	case errors.Is(err, ErrNotRegistered),
		errors.Is(err, ErrInsufficientUnits),
		errors.Is(err, ErrAccountClosed),
		errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(err, dErrors.CodePreconditionFailed, msg)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, msg)
	case errors.Is(err, sentinel.ErrConflict), errors.Is(err, sentinel.ErrAlreadyUsed):
		return dErrors.Wrap(err, dErrors.CodeConflict, msg)
	case errors.Is(err, sentinel.ErrUnavailable):
		return dErrors.Wrap(err, dErrors.CodeUnavailable, msg)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return dErrors.Wrap(err, dErrors.CodeTimeout, msg)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, msg)
	}
}
