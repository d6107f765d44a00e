//go:build integration

package outbox_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/suite"
	"github.com/twmb/franz-go/pkg/kgo"

	"custodia/internal/audit"
	"custodia/internal/audit/outbox"
	auditpg "custodia/internal/audit/store/postgres"
	"custodia/pkg/testutil"
	"custodia/pkg/testutil/containers"
)

const topic = "custodia.audit.test"

type RelaySuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	redpanda *containers.RedpandaContainer
	pool     *pgxpool.Pool
	sink     *outbox.KafkaSink
}

func TestRelaySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RelaySuite))
}

func (s *RelaySuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.redpanda = mgr.GetRedpanda(s.T())

	pool, err := pgxpool.New(context.Background(), s.postgres.DSN)
	s.Require().NoError(err)
	s.pool = pool

	sink, err := outbox.NewKafkaSink(s.redpanda.Brokers, topic)
	s.Require().NoError(err)
	s.Require().NoError(sink.EnsureTopic(context.Background(), 1, 1))
	s.sink = sink
}

func (s *RelaySuite) TearDownSuite() {
	s.sink.Close()
	s.pool.Close()
}

func (s *RelaySuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "outbox"))
}

func (s *RelaySuite) TestRelayPublishesAndMarksEntries() {
	ctx := context.Background()
	store := auditpg.New(s.postgres.DB)
	alice := testutil.Address("alice")
	s.Require().NoError(store.Append(ctx, audit.Event{
		Actor:     alice,
		Subject:   "abc",
		Action:    string(audit.EventCertificateCreated),
		Timestamp: time.Now(),
	}))

	listed, err := store.ListByActor(ctx, alice, 10)
	s.Require().NoError(err)
	s.Require().Len(listed, 1)
	s.Equal(audit.CategoryCompliance, listed[0].Category)

	worker := outbox.NewWorker(outbox.NewPostgresSource(s.pool), s.sink)
	n, err := worker.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(1, n)

	n, err = worker.RunOnce(ctx)
	s.Require().NoError(err)
	s.Equal(0, n, "published entries are not relayed twice")

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(s.redpanda.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	s.Require().NoError(err)
	defer consumer.Close()

	pollCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	fetches := consumer.PollFetches(pollCtx)
	s.Require().NoError(fetches.Err())

	var records []*kgo.Record
	fetches.EachRecord(func(r *kgo.Record) { records = append(records, r) })
	s.Require().Len(records, 1)
	s.Equal(alice.String(), string(records[0].Key))

	var event audit.Event
	s.Require().NoError(json.Unmarshal(records[0].Value, &event))
	s.Equal(alice, event.Actor)
	s.Equal("abc", event.Subject)
}
