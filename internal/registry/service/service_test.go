package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks AuditPublisher,CertificateCache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"custodia/internal/audit"
	auditmemory "custodia/internal/audit/store/memory"
	"custodia/internal/ledger"
	"custodia/internal/ledger/memory"
	"custodia/internal/registry/models"
	"custodia/internal/registry/service/mocks"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
	"custodia/pkg/testutil"
)

type ServiceSuite struct {
	suite.Suite
	ctrl       *gomock.Controller
	ledger     *memory.Ledger
	auditStore *auditmemory.InMemoryStore
	service    *Service
	alice      id.Address
	bob        id.Address
	fee        uint64
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.ledger = memory.New()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.ledger, WithAuditPublisher(audit.NewPublisher(s.auditStore)))
	s.alice = testutil.Address("alice")
	s.bob = testutil.Address("bob")
	s.fee = models.DefaultFees().TotalCost()

	ctx := context.Background()
	s.Require().NoError(s.ledger.Deposit(ctx, s.alice, 10*s.fee))
	s.Require().NoError(s.ledger.Deposit(ctx, s.bob, 10*s.fee))
}

func (s *ServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *ServiceSuite) payment(from id.Address, amount uint64) ledger.Payment {
	return ledger.Payment{Sender: from, Recipient: s.service.Custody(), Amount: amount}
}

func (s *ServiceSuite) funds(addr id.Address) uint64 {
	var out uint64
	s.Require().NoError(s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = tx.FundsOf(ctx, addr)
		return err
	}))
	return out
}

func (s *ServiceSuite) balance(addr id.Address, asset id.AssetID) uint64 {
	var out uint64
	s.Require().NoError(s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = tx.BalanceOf(ctx, addr, asset)
		return err
	}))
	return out
}

func (s *ServiceSuite) register(addr id.Address, asset id.AssetID) {
	s.Require().NoError(s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.Register(ctx, addr, asset)
	}))
}

func (s *ServiceSuite) TestCertificateLifecycle() {
	alice := testutil.CallerContext("alice")
	bob := testutil.CallerContext("bob")

	assetID, err := s.service.CreateCertificate(alice, "abc", s.payment(s.alice, s.fee))
	s.Require().NoError(err)
	s.NotZero(assetID)
	s.Equal(uint64(1), s.balance(s.service.Custody(), assetID))
	s.Equal(s.fee, s.funds(s.service.Custody()))

	_, err = s.service.CreateCertificate(bob, "abc", s.payment(s.bob, s.fee))
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	_, err = s.service.ClaimCertificate(bob, "abc")
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))

	_, err = s.service.ClaimCertificate(alice, "abc")
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
	s.Equal(uint64(1), s.balance(s.service.Custody(), assetID))

	s.register(s.alice, assetID)
	rec, err := s.service.ClaimCertificate(alice, "abc")
	s.Require().NoError(err)
	s.Equal(assetID, rec.AssetID)
	s.Equal(s.alice, rec.Owner)
	s.Equal(uint64(1), s.balance(s.alice, assetID))
	s.Equal(uint64(0), s.balance(s.service.Custody(), assetID))

	_, err = s.service.ClaimCertificate(alice, "abc")
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	events, err := s.auditStore.ListByActor(context.Background(), s.alice, 10)
	s.Require().NoError(err)
	s.Require().Len(events, 2)
	s.Equal(string(audit.EventCertificateClaimed), events[0].Action)
	s.Equal(string(audit.EventCertificateCreated), events[1].Action)
}

func (s *ServiceSuite) TestCreateCertificatePreconditions() {
	alice := testutil.CallerContext("alice")

	s.Run("underpayment leaves no trace", func() {
		_, err := s.service.CreateCertificate(alice, "under", s.payment(s.alice, s.fee-1))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
		s.Equal(10*s.fee, s.funds(s.alice))
		_, err = s.service.GetCertificate(context.Background(), "under")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("overpayment is accepted", func() {
		_, err := s.service.CreateCertificate(alice, "over", s.payment(s.alice, s.fee+5))
		s.Require().NoError(err)
		s.Equal(9*s.fee-5, s.funds(s.alice))
	})

	s.Run("payment to another account is rejected", func() {
		p := ledger.Payment{Sender: s.alice, Recipient: s.bob, Amount: s.fee}
		_, err := s.service.CreateCertificate(alice, "elsewhere", p)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("payment from someone else is rejected", func() {
		_, err := s.service.CreateCertificate(alice, "borrowed", s.payment(s.bob, s.fee))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("existence is checked before payment", func() {
		_, err := s.service.CreateCertificate(alice, "first", s.payment(s.alice, s.fee))
		s.Require().NoError(err)
		_, err = s.service.CreateCertificate(alice, "first", s.payment(s.alice, 1))
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("insufficient funds", func() {
		poor := testutil.Address("carol")
		s.Require().NoError(s.ledger.Deposit(context.Background(), poor, 10))
		_, err := s.service.CreateCertificate(testutil.CallerContext("carol"), "poor", s.payment(poor, s.fee))
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("anonymous caller", func() {
		_, err := s.service.CreateCertificate(context.Background(), "anon", s.payment(s.alice, s.fee))
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})
}

func (s *ServiceSuite) TestClaimUnknownCertificate() {
	_, err := s.service.ClaimCertificate(testutil.CallerContext("alice"), "missing")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestAuditFailureRollsBack() {
	publisher := mocks.NewMockAuditPublisher(s.ctrl)
	publisher.EXPECT().Emit(gomock.Any(), gomock.Any()).Return(errors.New("store down"))
	svc := New(s.ledger, WithAuditPublisher(publisher))

	_, err := svc.CreateCertificate(testutil.CallerContext("alice"), "abc", s.payment(s.alice, s.fee))
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(10*s.fee, s.funds(s.alice))
	s.Equal(uint64(0), s.funds(svc.Custody()))

	_, err = svc.GetCertificate(context.Background(), "abc")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *ServiceSuite) TestConcurrentCreateForSameHash() {
	const callers = 50
	addrs := make([]id.Address, callers)
	for i := range addrs {
		addrs[i] = testutil.Address(fmt.Sprintf("racer-%d", i))
		s.Require().NoError(s.ledger.Deposit(context.Background(), addrs[i], s.fee))
	}

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		conflicts atomic.Int32
	)
	for _, addr := range addrs {
		wg.Add(1)
		go func(addr id.Address) {
			defer wg.Done()
			ctx := requestcontext.WithCaller(context.Background(), addr)
			_, err := s.service.CreateCertificate(ctx, "contested", s.payment(addr, s.fee))
			switch {
			case err == nil:
				succeeded.Add(1)
			case dErrors.HasCode(err, dErrors.CodeConflict):
				conflicts.Add(1)
			}
		}(addr)
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(int32(callers-1), conflicts.Load())
	s.Equal(s.fee, s.funds(s.service.Custody()))
}

func (s *ServiceSuite) TestGetCertificateUsesCache() {
	cache := mocks.NewMockCertificateCache(s.ctrl)
	svc := New(s.ledger, WithCache(cache))

	_, err := svc.CreateCertificate(testutil.CallerContext("alice"), "cached", s.payment(s.alice, s.fee))
	s.Require().NoError(err)

	s.Run("miss reads the ledger and fills the cache", func() {
		cache.EXPECT().Get(gomock.Any(), id.ContentHash("cached")).Return(nil, sentinel.ErrNotFound)
		cache.EXPECT().Set(gomock.Any(), gomock.Any()).DoAndReturn(
			func(_ context.Context, rec *models.CertificateRecord) error {
				s.Equal(s.alice, rec.Owner)
				return nil
			})
		rec, err := svc.GetCertificate(context.Background(), "cached")
		s.Require().NoError(err)
		s.Equal(s.alice, rec.Owner)
	})

	s.Run("hit skips the ledger", func() {
		want := &models.CertificateRecord{ContentHash: "cached", AssetID: 99, Owner: s.bob}
		cache.EXPECT().Get(gomock.Any(), id.ContentHash("cached")).Return(want, nil)
		rec, err := svc.GetCertificate(context.Background(), "cached")
		s.Require().NoError(err)
		s.Equal(want, rec)
	})

	s.Run("cache errors fall back to the ledger", func() {
		cache.EXPECT().Get(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))
		cache.EXPECT().Set(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))
		rec, err := svc.GetCertificate(context.Background(), "cached")
		s.Require().NoError(err)
		s.Equal(s.alice, rec.Owner)
	})

	s.Run("not found is not cached", func() {
		cache.EXPECT().Get(gomock.Any(), id.ContentHash("absent")).Return(nil, sentinel.ErrNotFound)
		_, err := svc.GetCertificate(context.Background(), "absent")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *ServiceSuite) TestQuote() {
	q := s.service.Quote()
	s.Equal(uint64(153_700), q.TotalCost)
	s.Equal(uint64(53_700), q.StorageCost)
	s.Equal(s.service.Custody(), q.Custody)
}
