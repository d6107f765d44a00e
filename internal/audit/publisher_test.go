package audit_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodia/internal/audit"
	auditmemory "custodia/internal/audit/store/memory"
	id "custodia/pkg/domain"
	"custodia/pkg/requestcontext"
	"custodia/pkg/testutil"
)

type failingStore struct{ auditmemory.InMemoryStore }

func (f *failingStore) Append(context.Context, audit.Event) error {
	return errors.New("outbox unavailable")
}

func TestPublisherEmitEnrichesEvent(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	publisher := audit.NewPublisher(store)
	alice := testutil.Address("alice")
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ctx := requestcontext.WithRequestID(context.Background(), "req-1")
	ctx = requestcontext.WithClientInfo(ctx, requestcontext.ClientInfo{IP: "10.0.0.1", UserAgent: "curl/8.0", Descriptor: "curl"})
	ctx = requestcontext.WithTime(ctx, now)

	err := publisher.Emit(ctx, audit.Event{
		Actor:   alice,
		Subject: "abc",
		Action:  string(audit.EventCertificateCreated),
		AssetID: id.AssetID(7),
		Amount:  153_700,
	})
	require.NoError(t, err)

	events, err := publisher.List(context.Background(), alice, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	got := events[0]
	assert.Equal(t, audit.CategoryCompliance, got.Category)
	assert.Equal(t, now, got.Timestamp)
	assert.Equal(t, "req-1", got.RequestID)
	assert.Equal(t, "10.0.0.1", got.ClientIP)
	assert.Equal(t, "curl", got.Client)
}

func TestPublisherEmitValidation(t *testing.T) {
	publisher := audit.NewPublisher(auditmemory.NewInMemoryStore())

	err := publisher.Emit(context.Background(), audit.Event{Actor: testutil.Address("alice")})
	assert.Error(t, err, "action is required")

	err = publisher.Emit(context.Background(), audit.Event{Action: string(audit.EventPaymentSent)})
	assert.Error(t, err, "actor is required")
}

func TestPublisherEmitFailsClosed(t *testing.T) {
	publisher := audit.NewPublisher(&failingStore{})
	err := publisher.Emit(context.Background(), audit.Event{
		Actor:  testutil.Address("alice"),
		Action: string(audit.EventEscrowReleased),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit persistence failed")
}

func TestCategory(t *testing.T) {
	assert.Equal(t, audit.CategoryCompliance, audit.EventEscrowReleased.Category())
	assert.Equal(t, audit.CategoryOperations, audit.EventAssetRegistered.Category())
	assert.Equal(t, audit.CategoryOperations, audit.AuditEvent("unknown").Category())
}

func TestInMemoryStoreListByActorLimit(t *testing.T) {
	store := auditmemory.NewInMemoryStore()
	alice, bob := testutil.Address("alice"), testutil.Address("bob")
	for _, action := range []audit.AuditEvent{audit.EventEscrowCreated, audit.EventEscrowContribution, audit.EventEscrowReleased} {
		require.NoError(t, store.Append(context.Background(), audit.Event{Actor: alice, Action: string(action)}))
		require.NoError(t, store.Append(context.Background(), audit.Event{Actor: bob, Action: string(action)}))
	}
	recent, err := store.ListByActor(context.Background(), alice, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, string(audit.EventEscrowReleased), recent[0].Action)
	assert.Equal(t, string(audit.EventEscrowContribution), recent[1].Action)
	for _, e := range recent {
		assert.Equal(t, alice, e.Actor)
	}
}
