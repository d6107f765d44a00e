// Package service implements the certificate registry: one custodial asset per
// content hash, minted on paid request and later delivered to the requester.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"custodia/internal/audit"
	"custodia/internal/ledger"
	"custodia/internal/payment"
	"custodia/internal/platform/tracing"
	"custodia/internal/registry/metrics"
	"custodia/internal/registry/models"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// AuditPublisher records committed registry operations. Emit runs inside the
// ledger transaction; an error aborts the operation.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// CertificateCache is a read-through cache for immutable certificate records.
// Get returns sentinel.ErrNotFound on a miss.
type CertificateCache interface {
	Get(ctx context.Context, hash id.ContentHash) (*models.CertificateRecord, error)
	Set(ctx context.Context, record *models.CertificateRecord) error
}

// CustodyAddress is the registry's custodial account. It receives certificate
// payments and holds minted units until they are claimed.
func CustodyAddress() id.Address {
	return id.DeriveAddress("registry")
}

const recordKeyPrefix = "certificate/"

func recordKey(hash id.ContentHash) string {
	return recordKeyPrefix + hash.String()
}

type Service struct {
	ledger         ledger.Ledger
	custody        id.Address
	fees           models.FeeSchedule
	auditPublisher AuditPublisher
	cache          CertificateCache
	group          singleflight.Group
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

func WithCache(c CertificateCache) Option {
	return func(s *Service) { s.cache = c }
}

func WithFees(f models.FeeSchedule) Option {
	return func(s *Service) { s.fees = f }
}

func WithCustody(addr id.Address) Option {
	return func(s *Service) {
		if !addr.IsNil() {
			s.custody = addr
		}
	}
}

func New(l ledger.Ledger, opts ...Option) *Service {
	s := &Service{
		ledger:  l,
		custody: CustodyAddress(),
		fees:    models.DefaultFees(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Custody returns the custodial account address.
func (s *Service) Custody() id.Address {
	return s.custody
}

// Quote returns the fee breakdown and the exact payment target.
func (s *Service) Quote() models.Quote {
	return models.Quote{
		Fees:        s.fees,
		StorageCost: s.fees.StorageCost(),
		TotalCost:   s.fees.TotalCost(),
		Custody:     s.custody,
	}
}

// CreateCertificate mints the certificate for hash into custody, paid for by
// p. Preconditions are checked in order and the first failure aborts:
// the hash is unregistered, the amount covers the fee, the recipient is the
// custodial account, and the sender is the caller.
func (s *Service) CreateCertificate(ctx context.Context, hash id.ContentHash, p ledger.Payment) (assetID id.AssetID, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "registry.create_certificate", attribute.String("custodia.content_hash", hash.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("create", outcome(err), time.Since(start))
	}()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return 0, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}
	if hash.IsNil() {
		return 0, dErrors.New(dErrors.CodeBadRequest, "content hash is required")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		exists, err := tx.KeyExists(txCtx, recordKey(hash))
		if err != nil {
			return ledger.DomainError(err, "failed to check certificate")
		}
		if exists {
			return dErrors.New(dErrors.CodeConflict, "certificate already exists for content hash")
		}

		if err := payment.Validate(p, payment.Expectation{
			MinAmount: s.fees.TotalCost(),
			Recipient: s.custody,
			Sender:    caller,
		}); err != nil {
			return err
		}

		if err := tx.SendPayment(txCtx, p); err != nil {
			return ledger.DomainError(err, "failed to collect certificate payment")
		}

		assetID, err = tx.MintUnit(txCtx, s.custody, models.UnitParams(hash))
		if err != nil {
			return ledger.DomainError(err, "failed to mint certificate")
		}

		record := models.CertificateRecord{ContentHash: hash, AssetID: assetID, Owner: caller}
		if err := tx.WriteRecord(txCtx, recordKey(hash), models.EncodeRecord(record)); err != nil {
			return ledger.DomainError(err, "failed to store certificate")
		}

		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      hash.String(),
			Action:       string(audit.EventCertificateCreated),
			AssetID:      assetID,
			Amount:       p.Amount,
			Counterparty: s.custody,
		})
	})
	if err != nil {
		return 0, ledger.DomainError(err, "failed to create certificate")
	}

	s.metrics.IncCreated()
	s.logger.InfoContext(ctx, "certificate created",
		"content_hash", hash.String(),
		"asset_id", assetID.String(),
		"owner", caller.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return assetID, nil
}

// ClaimCertificate delivers the custodial unit for hash to its owner. The
// caller must be the owner, must have registered for the asset, and the unit
// must still be in custody.
func (s *Service) ClaimCertificate(ctx context.Context, hash id.ContentHash) (record *models.CertificateRecord, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "registry.claim_certificate", attribute.String("custodia.content_hash", hash.String()))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("claim", outcome(err), time.Since(start))
	}()

	caller := requestcontext.Caller(ctx)
	if caller.IsNil() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "caller identity required")
	}

	err = s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
		rec, err := s.readRecord(txCtx, tx, hash)
		if err != nil {
			return err
		}
		if rec.Owner != caller {
			return dErrors.New(dErrors.CodeUnauthorized, "only the certificate owner may claim it")
		}

		registered, err := tx.IsRegisteredFor(txCtx, caller, rec.AssetID)
		if err != nil {
			return ledger.DomainError(err, "failed to check asset registration")
		}
		if !registered {
			return dErrors.New(dErrors.CodePreconditionFailed,
				fmt.Sprintf("caller must register for asset %s before claiming", rec.AssetID))
		}

		held, err := tx.BalanceOf(txCtx, s.custody, rec.AssetID)
		if err != nil {
			return ledger.DomainError(err, "failed to read custody balance")
		}
		if held != 1 {
			return dErrors.New(dErrors.CodePreconditionFailed, "certificate is no longer in custody")
		}

		if err := tx.TransferUnit(txCtx, rec.AssetID, s.custody, caller, 1); err != nil {
			return ledger.DomainError(err, "failed to deliver certificate")
		}

		record = rec
		return s.emit(txCtx, audit.Event{
			Actor:        caller,
			Subject:      hash.String(),
			Action:       string(audit.EventCertificateClaimed),
			AssetID:      rec.AssetID,
			Amount:       1,
			Counterparty: s.custody,
		})
	})
	if err != nil {
		return nil, ledger.DomainError(err, "failed to claim certificate")
	}

	s.metrics.IncClaimed()
	s.logger.InfoContext(ctx, "certificate claimed",
		"content_hash", hash.String(),
		"asset_id", record.AssetID.String(),
		"owner", caller.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return record, nil
}

// GetCertificate looks up the record for hash. Records are immutable, so hits
// are served from the cache and concurrent misses share one ledger read.
func (s *Service) GetCertificate(ctx context.Context, hash id.ContentHash) (*models.CertificateRecord, error) {
	if s.cache != nil {
		rec, err := s.cache.Get(ctx, hash)
		switch {
		case err == nil:
			s.metrics.IncCacheLookup("hit")
			return rec, nil
		case errors.Is(err, sentinel.ErrNotFound):
			s.metrics.IncCacheLookup("miss")
		default:
			s.metrics.IncCacheLookup("error")
			s.logger.WarnContext(ctx, "certificate cache read failed",
				"content_hash", hash.String(),
				"error", err,
			)
		}
	}

	v, err, _ := s.group.Do(hash.String(), func() (any, error) {
		var rec *models.CertificateRecord
		err := s.ledger.RunInTx(ctx, func(txCtx context.Context, tx ledger.Tx) error {
			var err error
			rec, err = s.readRecord(txCtx, tx, hash)
			return err
		})
		if err != nil {
			return nil, ledger.DomainError(err, "failed to read certificate")
		}
		if s.cache != nil {
			if err := s.cache.Set(ctx, rec); err != nil {
				s.logger.WarnContext(ctx, "certificate cache write failed",
					"content_hash", hash.String(),
					"error", err,
				)
			}
		}
		return rec, nil
	})
	if err != nil {
		return nil, err
	}
	rec := *v.(*models.CertificateRecord)
	return &rec, nil
}

func (s *Service) readRecord(ctx context.Context, tx ledger.Tx, hash id.ContentHash) (*models.CertificateRecord, error) {
	value, err := tx.ReadRecord(ctx, recordKey(hash))
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
		}
		return nil, ledger.DomainError(err, "failed to read certificate")
	}
	rec, err := models.DecodeRecord(hash, value)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvariantViolation, "corrupt certificate record")
	}
	return &rec, nil
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
