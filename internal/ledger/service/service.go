// Package service exposes the environment primitives callers drive directly:
// account views, plain payments and asset opt-in.
package service

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel/attribute"

	"custodia/internal/audit"
	"custodia/internal/ledger"
	"custodia/internal/platform/tracing"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	ledger         ledger.Ledger
	auditPublisher AuditPublisher
	logger         *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAuditPublisher(p AuditPublisher) Option {
	return func(s *Service) { s.auditPublisher = p }
}

func New(l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger: l,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Account returns the balance, closed flag and holdings of addr.
func (s *Service) Account(ctx context.Context, addr id.Address) (*ledger.Account, error) {
	var out *ledger.Account
	err := s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		var err error
		out, err = tx.Account(txCtx, addr)
		return err
	})
	if err != nil {
		return nil, ledger.DomainError(err, "failed to read account")
	}
	return out, nil
}

// Pay moves amount from the caller to recipient.
func (s *Service) Pay(ctx context.Context, recipient id.Address, amount uint64) (err error) {
	ctx, span := tracing.Start(ctx, "ledger.pay", attribute.String("custodia.recipient", recipient.String()))
	defer func() { tracing.End(span, err) }()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if recipient.IsNil() {
		return dErrors.New(dErrors.CodeBadRequest, "recipient is required")
	}
	if amount == 0 {
		return dErrors.New(dErrors.CodeBadRequest, "amount must be positive")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		if err := tx.SendPayment(txCtx, ledger.Payment{Sender: caller, Recipient: recipient, Amount: amount}); err != nil {
			return ledger.DomainError(err, "payment refused")
		}
		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      recipient.String(),
			Action:       string(audit.EventPaymentSent),
			Amount:       amount,
			Counterparty: recipient,
		})
	})
	if err != nil {
		return ledger.DomainError(err, "failed to send payment")
	}

	s.logger.InfoContext(ctx, "payment sent",
		"sender", caller.String(),
		"recipient", recipient.String(),
		"amount", amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

// Register opts the caller in to holding asset. Registering twice is a no-op.
func (s *Service) Register(ctx context.Context, asset id.AssetID) (err error) {
	ctx, span := tracing.Start(ctx, "ledger.register", attribute.String("custodia.asset_id", asset.String()))
	defer func() { tracing.End(span, err) }()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		if err := tx.Register(txCtx, caller, asset); err != nil {
			return ledger.DomainError(err, "failed to register for asset")
		}
		return s.emit(txCtx, audit.Event{
			Actor:   caller,
			Subject: caller.String(),
			Action:  string(audit.EventAssetRegistered),
			AssetID: asset,
		})
	})
	if err != nil {
		return ledger.DomainError(err, "failed to register for asset")
	}

	s.logger.InfoContext(ctx, "asset registered",
		"account", caller.String(),
		"asset_id", asset.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return nil
}

func (s *Service) emit(ctx context.Context, event audit.Event) error {
	if s.auditPublisher == nil {
		return nil
	}
	if err := s.auditPublisher.Emit(ctx, event); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to record audit event")
	}
	return nil
}
