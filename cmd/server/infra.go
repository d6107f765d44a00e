package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"custodia/internal/audit"
	"custodia/internal/audit/outbox"
	auditmemory "custodia/internal/audit/store/memory"
	auditpostgres "custodia/internal/audit/store/postgres"
	"custodia/internal/ledger"
	ledgermemory "custodia/internal/ledger/memory"
	ledgerpostgres "custodia/internal/ledger/postgres"
	"custodia/internal/platform/config"
	"custodia/internal/platform/redis"
	"custodia/internal/ratelimit"
	ratelimitstore "custodia/internal/ratelimit/store"
	"custodia/internal/registry/service"
	"custodia/internal/registry/store"
	dErrors "custodia/pkg/domain-errors"
)

const (
	auditTopicPartitions  = 3
	auditTopicReplication = 1
)

// infra holds the backends chosen by configuration.
type infra struct {
	ledger     ledger.Ledger
	auditStore audit.Store
	certCache  service.CertificateCache
	rateStore  ratelimit.Store
	relay      *outbox.Worker

	db     *sql.DB
	pool   *pgxpool.Pool
	redis  *redis.Client
	kafka  *outbox.KafkaSink
	logger *slog.Logger
	audit  *audit.Metrics
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger, auditMetrics *audit.Metrics) (*infra, error) {
	in := &infra{logger: log, audit: auditMetrics}

	switch cfg.Ledger {
	case config.LedgerPostgres:
		if err := in.openPostgres(ctx, cfg); err != nil {
			in.Close()
			return nil, err
		}
	default:
		mem := ledgermemory.New(ledgermemory.WithTimeout(cfg.TxTimeout))
		for _, g := range cfg.Genesis {
			if err := mem.Deposit(ctx, g.Address, g.Amount); err != nil {
				return nil, fmt.Errorf("seed genesis balance for %s: %w", g.Address, err)
			}
			log.Info("genesis balance", "address", g.Address.String(), "amount", g.Amount)
		}
		in.ledger = mem
		in.auditStore = auditmemory.NewInMemoryStore()
		if len(cfg.Kafka.Brokers) > 0 {
			log.Warn("KAFKA_BROKERS ignored: the audit relay requires the postgres ledger")
		}
	}

	client, err := redis.Connect(ctx, cfg.Redis)
	if err != nil {
		in.Close()
		return nil, err
	}
	in.rateStore = ratelimitstore.NewInMemoryStore()
	if client != nil {
		in.redis = client
		in.rateStore = ratelimitstore.NewRedisStore(client.Raw())
		if cfg.CertCacheEnabled() {
			in.certCache = store.NewRedisCache(client.Raw(), store.WithTTL(cfg.CertCacheTTL))
			log.Info("redis enabled", "cert_cache_ttl", cfg.CertCacheTTL.String())
		} else {
			log.Info("redis enabled for rate limiting only: the certificate cache requires the postgres ledger")
		}
	}
	return in, nil
}

func (in *infra) openPostgres(ctx context.Context, cfg config.Server) error {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open postgres: %w", err)
	}
	in.db = db
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping postgres: %w", err)
	}
	if err := ledgerpostgres.Migrate(ctx, db); err != nil {
		return err
	}
	in.ledger = ledgerpostgres.New(db, ledgerpostgres.WithTimeout(cfg.TxTimeout))
	in.auditStore = auditpostgres.New(db)
	if len(cfg.Genesis) > 0 {
		in.logger.Warn("CUSTODIA_GENESIS ignored: balances persist in postgres")
	}

	if len(cfg.Kafka.Brokers) == 0 {
		return nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("open outbox pool: %w", err)
	}
	in.pool = pool
	sink, err := outbox.NewKafkaSink(cfg.Kafka.Brokers, cfg.Kafka.AuditTopic)
	if err != nil {
		return err
	}
	in.kafka = sink
	if err := sink.EnsureTopic(ctx, auditTopicPartitions, auditTopicReplication); err != nil {
		return err
	}
	in.relay = outbox.NewWorker(outbox.NewPostgresSource(pool), sink,
		outbox.WithLogger(in.logger),
		outbox.WithMetrics(in.audit),
		outbox.WithPollInterval(cfg.Kafka.RelayInterval),
		outbox.WithBatchSize(cfg.Kafka.RelayBatch),
	)
	return nil
}

// Health reports whether the configured backends are reachable.
func (in *infra) Health(ctx context.Context) error {
	if in.db != nil {
		if err := in.db.PingContext(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "database unreachable")
		}
	}
	if in.redis != nil {
		if err := in.redis.Health(ctx); err != nil {
			return dErrors.Wrap(err, dErrors.CodeUnavailable, "cache unreachable")
		}
	}
	return nil
}

func (in *infra) Close() {
	if in.kafka != nil {
		in.kafka.Close()
	}
	if in.pool != nil {
		in.pool.Close()
	}
	if in.redis != nil {
		if err := in.redis.Close(); err != nil {
			in.logger.Warn("failed to close redis", "error", err)
		}
	}
	if in.db != nil {
		if err := in.db.Close(); err != nil {
			in.logger.Warn("failed to close database", "error", err)
		}
	}
}
