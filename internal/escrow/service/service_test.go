package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"custodia/internal/audit"
	auditmemory "custodia/internal/audit/store/memory"
	"custodia/internal/escrow/models"
	"custodia/internal/ledger"
	"custodia/internal/ledger/memory"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
	"custodia/pkg/testutil"
)

type EscrowSuite struct {
	suite.Suite
	ledger     *memory.Ledger
	auditStore *auditmemory.InMemoryStore
	service    *Service
	creator    id.Address
	funder     id.Address
	benefit    id.Address
}

func TestEscrowSuite(t *testing.T) {
	suite.Run(t, new(EscrowSuite))
}

func (s *EscrowSuite) SetupTest() {
	s.ledger = memory.New()
	s.auditStore = auditmemory.NewInMemoryStore()
	s.service = New(s.ledger, WithAuditPublisher(audit.NewPublisher(s.auditStore)))
	s.creator = testutil.Address("creator")
	s.funder = testutil.Address("funder")
	s.benefit = testutil.Address("beneficiary")
	s.Require().NoError(s.ledger.Deposit(context.Background(), s.funder, 50_000_000))
}

func (s *EscrowSuite) funds(addr id.Address) uint64 {
	var out uint64
	s.Require().NoError(s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		var err error
		out, err = tx.FundsOf(ctx, addr)
		return err
	}))
	return out
}

func (s *EscrowSuite) create(target uint64) *models.EscrowState {
	state, err := s.service.CreateApplication(testutil.CallerContext("creator"), id.NewEscrowID(), s.benefit, target)
	s.Require().NoError(err)
	return state
}

func (s *EscrowSuite) contribute(state *models.EscrowState, amount uint64) (uint64, error) {
	return s.service.Contribute(testutil.CallerContext("funder"), state.ID, ledger.Payment{
		Sender:    s.funder,
		Recipient: state.Custody,
		Amount:    amount,
	})
}

func (s *EscrowSuite) TestReleaseAfterTargetMet() {
	state := s.create(10_000_000)
	creator := testutil.CallerContext("creator")

	balance, err := s.contribute(state, 5_000_000)
	s.Require().NoError(err)
	s.Equal(uint64(5_000_000), balance)

	_, err = s.service.Release(creator, state.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	s.Equal(uint64(5_000_000), s.funds(state.Custody))

	balance, err = s.contribute(state, 5_000_000)
	s.Require().NoError(err)
	s.Equal(uint64(10_000_000), balance)

	settlement, err := s.service.Release(creator, state.ID)
	s.Require().NoError(err)
	s.Equal(uint64(10_000_000), settlement.Amount)
	s.Equal(s.benefit, settlement.CloseTo)
	s.Equal(uint64(10_000_000), s.funds(s.benefit))
	s.Equal(uint64(0), s.funds(state.Custody))

	view, err := s.service.Get(context.Background(), state.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusReleased, view.Status)
	s.Equal(uint64(10_000_000), view.ReleasedAmount)
	s.NotNil(view.ReleasedAt)
	s.False(view.TargetMet)

	_, err = s.service.Release(creator, state.ID)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))

	_, err = s.contribute(state, 1)
	s.True(dErrors.HasCode(err, dErrors.CodePreconditionFailed))
}

func (s *EscrowSuite) TestReleaseSweepsExcessAndRawPayments() {
	state := s.create(100)

	_, err := s.contribute(state, 80)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.SendPayment(ctx, ledger.Payment{Sender: s.funder, Recipient: state.Custody, Amount: 70})
	}))

	view, err := s.service.Get(context.Background(), state.ID)
	s.Require().NoError(err)
	s.Equal(uint64(150), view.Balance)
	s.True(view.TargetMet)

	settlement, err := s.service.Release(testutil.CallerContext("creator"), state.ID)
	s.Require().NoError(err)
	s.Equal(uint64(150), settlement.Amount)
	s.Equal(uint64(150), s.funds(s.benefit))

	err = s.ledger.RunInTx(context.Background(), func(ctx context.Context, tx ledger.Tx) error {
		return tx.SendPayment(ctx, ledger.Payment{Sender: s.funder, Recipient: state.Custody, Amount: 1})
	})
	s.ErrorIs(err, ledger.ErrAccountClosed)
}

func (s *EscrowSuite) TestReleasePreconditions() {
	state := s.create(10)
	_, err := s.contribute(state, 10)
	s.Require().NoError(err)

	s.Run("unknown escrow", func() {
		_, err := s.service.Release(testutil.CallerContext("creator"), id.NewEscrowID())
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("non-creator", func() {
		_, err := s.service.Release(testutil.CallerContext("funder"), state.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(uint64(10), s.funds(state.Custody))
	})

	s.Run("beneficiary is not the creator either", func() {
		_, err := s.service.Release(testutil.CallerContext("beneficiary"), state.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("non-creator below target", func() {
		short := s.create(1_000)
		_, err := s.contribute(short, 10)
		s.Require().NoError(err)

		_, err = s.service.Release(testutil.CallerContext("funder"), short.ID)
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
		s.Equal(uint64(10), s.funds(short.Custody))
	})
}

func (s *EscrowSuite) TestBeneficiaryCannotBeOwnCustody() {
	escrowID := id.NewEscrowID()
	_, err := s.service.CreateApplication(testutil.CallerContext("creator"), escrowID, models.CustodyAddress(escrowID), 10)
	s.True(dErrors.HasCode(err, dErrors.CodeValidation))

	_, err = s.service.Get(context.Background(), escrowID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *EscrowSuite) TestReleaseToReleasedEscrowCustody() {
	first := s.create(10)
	second, err := s.service.CreateApplication(testutil.CallerContext("creator"), id.NewEscrowID(), first.Custody, 10)
	s.Require().NoError(err)

	_, err = s.contribute(first, 10)
	s.Require().NoError(err)
	_, err = s.contribute(second, 10)
	s.Require().NoError(err)

	_, err = s.service.Release(testutil.CallerContext("creator"), first.ID)
	s.Require().NoError(err)

	settlement, err := s.service.Release(testutil.CallerContext("creator"), second.ID)
	s.Require().NoError(err)
	s.Equal(uint64(10), settlement.Amount)
	s.Equal(uint64(10), s.funds(first.Custody))
	s.Equal(uint64(0), s.funds(second.Custody))
}

func (s *EscrowSuite) TestZeroTargetReleasesImmediately() {
	state := s.create(0)
	settlement, err := s.service.Release(testutil.CallerContext("creator"), state.ID)
	s.Require().NoError(err)
	s.Equal(uint64(0), settlement.Amount)
}

func (s *EscrowSuite) TestCreateApplication() {
	escrowID := id.NewEscrowID()
	ctx := testutil.CallerContext("creator")

	state, err := s.service.CreateApplication(ctx, escrowID, s.benefit, 500)
	s.Require().NoError(err)
	s.Equal(s.creator, state.Creator)
	s.Equal(models.CustodyAddress(escrowID), state.Custody)
	s.Equal(models.StatusFunding, state.Status)

	_, err = s.service.CreateApplication(ctx, escrowID, s.benefit, 900)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	view, err := s.service.Get(context.Background(), escrowID)
	s.Require().NoError(err)
	s.Equal(uint64(500), view.TargetAmount)

	_, err = s.service.CreateApplication(ctx, id.NewEscrowID(), id.Address{}, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeBadRequest))

	_, err = s.service.CreateApplication(context.Background(), id.NewEscrowID(), s.benefit, 1)
	s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func (s *EscrowSuite) TestCreatedAtUsesRequestTime() {
	fixed := time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
	ctx := requestcontext.WithTime(testutil.CallerContext("creator"), fixed)
	state, err := s.service.CreateApplication(ctx, id.NewEscrowID(), s.benefit, 1)
	s.Require().NoError(err)
	s.Equal(fixed, state.CreatedAt)
}

func (s *EscrowSuite) TestContributionValidation() {
	state := s.create(1_000)

	s.Run("zero amount", func() {
		_, err := s.contribute(state, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientPayment))
	})

	s.Run("wrong recipient", func() {
		_, err := s.service.Contribute(testutil.CallerContext("funder"), state.ID, ledger.Payment{
			Sender: s.funder, Recipient: s.benefit, Amount: 10,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
		s.Equal(uint64(0), s.funds(s.benefit))
	})

	s.Run("sender is not the caller", func() {
		_, err := s.service.Contribute(testutil.CallerContext("creator"), state.ID, ledger.Payment{
			Sender: s.funder, Recipient: state.Custody, Amount: 10,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("insufficient funds", func() {
		_, err := s.service.Contribute(testutil.CallerContext("creator"), state.ID, ledger.Payment{
			Sender: s.creator, Recipient: state.Custody, Amount: 10,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeInsufficientFunds))
	})

	s.Run("unknown escrow", func() {
		_, err := s.service.Contribute(testutil.CallerContext("funder"), id.NewEscrowID(), ledger.Payment{
			Sender: s.funder, Recipient: state.Custody, Amount: 10,
		})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *EscrowSuite) TestConcurrentReleaseSweepsOnce() {
	state := s.create(100)
	_, err := s.contribute(state, 100)
	s.Require().NoError(err)

	const callers = 20
	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.service.Release(testutil.CallerContext("creator"), state.ID); err == nil {
				succeeded.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), succeeded.Load())
	s.Equal(uint64(100), s.funds(s.benefit))
}

type failingPublisher struct{}

func (failingPublisher) Emit(context.Context, audit.Event) error {
	return errors.New("audit store down")
}

func (s *EscrowSuite) TestAuditFailureRollsBackRelease() {
	state := s.create(10)
	_, err := s.contribute(state, 10)
	s.Require().NoError(err)

	svc := New(s.ledger, WithAuditPublisher(failingPublisher{}))
	_, err = svc.Release(testutil.CallerContext("creator"), state.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))
	s.Equal(uint64(10), s.funds(state.Custody))
	s.Equal(uint64(0), s.funds(s.benefit))

	view, err := s.service.Get(context.Background(), state.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusFunding, view.Status)
}

func TestPlanSettlement(t *testing.T) {
	state := &models.EscrowState{
		ID:           id.NewEscrowID(),
		TargetAmount: 10,
		Custody:      testutil.Address("custody"),
		Beneficiary:  testutil.Address("b"),
	}

	_, err := PlanSettlement(state, 9)
	if !dErrors.HasCode(err, dErrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	plan, err := PlanSettlement(state, 12)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if plan.Amount != 12 || plan.From != state.Custody || plan.CloseTo != state.Beneficiary {
		t.Fatalf("unexpected plan: %+v", plan)
	}
}
