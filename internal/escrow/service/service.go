// Package service implements threshold-gated escrow: contributions pool on a
// derived custodial account and the creator releases the whole balance to the
// beneficiary once the target is met.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"custodia/internal/audit"
	"custodia/internal/escrow/metrics"
	"custodia/internal/escrow/models"
	"custodia/internal/ledger"
	"custodia/internal/payment"
	"custodia/internal/platform/tracing"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// AuditPublisher records committed escrow operations inside the ledger
// transaction.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

type Service struct {
	ledger         ledger.Ledger
	auditPublisher AuditPublisher
	logger         *slog.Logger
	metrics        *metrics.Metrics
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
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

// CreateApplication opens an escrow for beneficiary with the given target.
// The caller becomes the creator, the only identity allowed to release.
func (s *Service) CreateApplication(ctx context.Context, escrowID id.EscrowID, beneficiary id.Address, target uint64) (state *models.EscrowState, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "escrow.create", attribute.String("custodia.escrow_id", escrowID.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("create", outcome(err), time.Since(start))
	}()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if escrowID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "escrow id is required")
	}
	if beneficiary.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "beneficiary is required")
	}
	if beneficiary == models.CustodyAddress(escrowID) {
		return nil, dErrors.New(dErrors.CodeValidation, "beneficiary cannot be the escrow's own custodial account")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		exists, err := tx.KeyExists(txCtx, models.RecordKey(escrowID))
		if err != nil {
			return ledger.DomainError(err, "failed to check escrow")
		}
		if exists {
			return dErrors.New(dErrors.CodeConflict, "escrow already exists")
		}

		state = &models.EscrowState{
			ID:           escrowID,
			Beneficiary:  beneficiary,
			TargetAmount: target,
			Creator:      caller,
			Custody:      models.CustodyAddress(escrowID),
			Status:       models.StatusFunding,
			CreatedAt:    requestcontext.Now(txCtx).UTC(),
		}
		if err := s.save(txCtx, tx, state); err != nil {
			return err
		}

		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      escrowID.String(),
			Action:       string(audit.EventEscrowCreated),
			Amount:       target,
			Counterparty: beneficiary,
		})
	})
	if err != nil {
		return nil, ledger.DomainError(err, "failed to create escrow")
	}

	s.metrics.IncCreated()
	s.logger.InfoContext(ctx, "escrow created",
		"escrow_id", escrowID.String(),
		"creator", caller.String(),
		"beneficiary", beneficiary.String(),
		"target", target,
		"request_id", requestcontext.RequestID(ctx),
	)
	return state, nil
}

// Contribute moves a validated payment from the caller into the escrow's
// custodial account and returns the new pooled balance.
func (s *Service) Contribute(ctx context.Context, escrowID id.EscrowID, p ledger.Payment) (balance uint64, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "escrow.contribute", attribute.String("custodia.escrow_id", escrowID.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("contribute", outcome(err), time.Since(start))
	}()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		state, err := s.load(txCtx, tx, escrowID)
		if err != nil {
			return err
		}
		if state.IsReleased() {
			return dErrors.New(dErrors.CodePreconditionFailed, "escrow has been released")
		}

		if err := payment.Validate(p, payment.Expectation{
			MinAmount: 1,
			Recipient: state.Custody,
			Sender:    caller,
		}); err != nil {
			return err
		}
		if err := tx.SendPayment(txCtx, p); err != nil {
			return ledger.DomainError(err, "failed to collect contribution")
		}

		balance, err = tx.FundsOf(txCtx, state.Custody)
		if err != nil {
			return ledger.DomainError(err, "failed to read escrow balance")
		}

		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      escrowID.String(),
			Action:       string(audit.EventEscrowContribution),
			Amount:       p.Amount,
			Counterparty: state.Custody,
		})
	})
	if err != nil {
		return 0, ledger.DomainError(err, "failed to contribute to escrow")
	}

	s.metrics.ObserveContribution(p.Amount)
	s.logger.InfoContext(ctx, "escrow contribution",
		"escrow_id", escrowID.String(),
		"contributor", caller.String(),
		"amount", p.Amount,
		"balance", balance,
		"request_id", requestcontext.RequestID(ctx),
	)
	return balance, nil
}

// Release sweeps the entire custodial balance to the beneficiary. Only the
// creator may release, only once, and only when the balance meets the target.
func (s *Service) Release(ctx context.Context, escrowID id.EscrowID) (settlement models.Settlement, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "escrow.release", attribute.String("custodia.escrow_id", escrowID.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("release", outcome(err), time.Since(start))
		if err != nil {
			s.metrics.IncReleaseRejected(outcome(err))
		}
	}()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return models.Settlement{}, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		state, err := s.load(txCtx, tx, escrowID)
		if err != nil {
			return err
		}
		if state.Creator != caller {
			return dErrors.New(dErrors.CodeUnauthorized, "only the escrow creator may release it")
		}
		if state.IsReleased() {
			return dErrors.New(dErrors.CodePreconditionFailed, "escrow has already been released")
		}

		held, err := tx.FundsOf(txCtx, state.Custody)
		if err != nil {
			return ledger.DomainError(err, "failed to read escrow balance")
		}
		plan, err := PlanSettlement(state, held)
		if err != nil {
			return err
		}
		if err := executeSettlement(txCtx, tx, plan); err != nil {
			return err
		}

		if err := state.MarkReleased(plan.Amount, requestcontext.Now(txCtx).UTC()); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInvariantViolation, "invalid escrow transition")
		}
		if err := s.save(txCtx, tx, state); err != nil {
			return err
		}

		settlement = plan
		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      escrowID.String(),
			Action:       string(audit.EventEscrowReleased),
			Amount:       plan.Amount,
			Counterparty: plan.CloseTo,
		})
	})
	if err != nil {
		return models.Settlement{}, ledger.DomainError(err, "failed to release escrow")
	}

	s.metrics.ObserveRelease(settlement.Amount)
	s.logger.InfoContext(ctx, "escrow released",
		"escrow_id", escrowID.String(),
		"beneficiary", settlement.CloseTo.String(),
		"amount", settlement.Amount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return settlement, nil
}

// Get returns the escrow with its live custodial balance.
func (s *Service) Get(ctx context.Context, escrowID id.EscrowID) (*models.View, error) {
	var view *models.View
	err := s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		state, err := s.load(txCtx, tx, escrowID)
		if err != nil {
			return err
		}
		balance, err := tx.FundsOf(txCtx, state.Custody)
		if err != nil {
			return ledger.DomainError(err, "failed to read escrow balance")
		}
		view = &models.View{
			EscrowState: *state,
			Balance:     balance,
			TargetMet:   !state.IsReleased() && balance >= state.TargetAmount,
		}
		return nil
	})
	if err != nil {
		return nil, ledger.DomainError(err, "failed to read escrow")
	}
	return view, nil
}

func (s *Service) load(ctx context.Context, tx ledger.Tx, escrowID id.EscrowID) (*models.EscrowState, error) {
	value, err := tx.ReadRecord(ctx, models.RecordKey(escrowID))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "escrow not found")
		}
		return nil, ledger.DomainError(err, "failed to read escrow")
	}
	state, err := models.Decode(value)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "corrupt escrow record")
	}
	return state, nil
}

func (s *Service) save(ctx context.Context, tx ledger.Tx, state *models.EscrowState) error {
	value, err := models.Encode(state)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to encode escrow")
	}
	if err := tx.WriteRecord(ctx, models.RecordKey(state.ID), value); err != nil {
		return ledger.DomainError(err, "failed to store escrow")
	}
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

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(dErrors.CodeOf(err))
}
