// Command server runs the custodia HTTP API. Backends are chosen from the
// environment; see internal/platform/config.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"custodia/internal/audit"
	audithandler "custodia/internal/audit/handler"
	escrowhandler "custodia/internal/escrow/handler"
	escrowmetrics "custodia/internal/escrow/metrics"
	escrowservice "custodia/internal/escrow/service"
	jwttoken "custodia/internal/jwt_token"
	ledgerhandler "custodia/internal/ledger/handler"
	ledgerservice "custodia/internal/ledger/service"
	"custodia/internal/platform/config"
	"custodia/internal/platform/httpserver"
	"custodia/internal/platform/logger"
	"custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/ratelimit"
	registryhandler "custodia/internal/registry/handler"
	registrymetrics "custodia/internal/registry/metrics"
	registrymodels "custodia/internal/registry/models"
	registryservice "custodia/internal/registry/service"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/platform/middleware/requesttime"
)

const (
	requestTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	auditMetrics := audit.NewMetrics()
	backends, err := buildInfra(ctx, cfg, log, auditMetrics)
	if err != nil {
		return err
	}
	defer backends.Close()

	publisher := audit.NewPublisher(backends.auditStore,
		audit.WithLogger(log),
		audit.WithMetrics(auditMetrics),
	)

	registryOpts := []registryservice.Option{
		registryservice.WithLogger(log),
		registryservice.WithMetrics(registrymetrics.New()),
		registryservice.WithAuditPublisher(publisher),
		registryservice.WithFees(feeSchedule(cfg.Fees)),
	}
	if backends.certCache != nil {
		registryOpts = append(registryOpts, registryservice.WithCache(backends.certCache))
	}
	registry := registryservice.New(backends.ledger, registryOpts...)

	escrow := escrowservice.New(backends.ledger,
		escrowservice.WithLogger(log),
		escrowservice.WithMetrics(escrowmetrics.New()),
		escrowservice.WithAuditPublisher(publisher),
	)
	accounts := ledgerservice.New(backends.ledger,
		ledgerservice.WithLogger(log),
		ledgerservice.WithAuditPublisher(publisher),
	)

	validator := jwttoken.NewSigner(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)

	r := chi.NewRouter()
	r.Use(middleware.Recovery(log))
	r.Use(middleware.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(middleware.ClientMetadata(cfg.TrustedProxies))
	r.Use(middleware.Logger(log))
	r.Use(middleware.LatencyMiddleware(metrics.New()))
	r.Use(ratelimit.New(backends.rateStore,
		ratelimit.Policy{Limit: cfg.RateLimit.Read, Window: cfg.RateLimit.Window},
		ratelimit.Policy{Limit: cfg.RateLimit.Write, Window: cfg.RateLimit.Window},
		log,
		ratelimit.WithMetrics(ratelimit.NewMetrics()),
	).Handler)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := backends.Health(r.Context()); err != nil {
			httputil.WriteError(w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	registryhandler.New(registry, log, validator).Register(r)
	escrowhandler.New(escrow, log, validator).Register(r)
	ledgerhandler.New(accounts, log, validator).Register(r)
	audithandler.New(publisher, log, validator).Register(r)

	srv := httpserver.New(cfg.Addr, r)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting custodia",
			"addr", cfg.Addr,
			"ledger", cfg.Ledger,
			"custody", registry.Custody().String(),
		)
		return httpserver.Run(gctx, srv, shutdownTimeout)
	})
	if backends.relay != nil {
		relay := backends.relay
		g.Go(func() error {
			log.Info("starting audit relay", "topic", cfg.Kafka.AuditTopic)
			if err := relay.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func feeSchedule(f config.FeeConfig) registrymodels.FeeSchedule {
	fees := registrymodels.DefaultFees()
	fees.BoxBaseFee = f.BoxBaseFee
	fees.PerByteFee = f.PerByteFee
	fees.AssetReserve = f.AssetReserve
	return fees
}
