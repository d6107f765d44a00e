// Package outbox relays audit events committed to the outbox table onto a
// Kafka topic. Delivery is at-least-once: a batch is marked published only
// after the broker acknowledges it.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"custodia/internal/audit"
)

const (
	defaultBatchSize    = 100
	defaultPollInterval = time.Second
)

// Source yields outbox batches.
type Source interface {
	Drain(ctx context.Context, limit int, publish func(context.Context, []Entry) error) (int, error)
}

// Sink publishes a batch.
type Sink interface {
	Publish(ctx context.Context, entries []Entry) error
}

// Worker polls the outbox and publishes pending entries.
type Worker struct {
	source       Source
	sink         Sink
	logger       *slog.Logger
	metrics      *audit.Metrics
	batchSize    int
	pollInterval time.Duration
}

type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithMetrics(m *audit.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

func WithPollInterval(d time.Duration) Option {
	return func(w *Worker) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.batchSize = n
		}
	}
}

func NewWorker(source Source, sink Sink, opts ...Option) *Worker {
	w := &Worker{
		source:       source,
		sink:         sink,
		logger:       slog.Default(),
		batchSize:    defaultBatchSize,
		pollInterval: defaultPollInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run relays until ctx is cancelled. Full batches are followed immediately by
// another drain; otherwise the worker waits one poll interval.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()
	for {
		n, err := w.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			w.logger.ErrorContext(ctx, "outbox relay failed", "error", err)
		}
		if err == nil && n == w.batchSize {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce drains a single batch.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	n, err := w.source.Drain(ctx, w.batchSize, w.sink.Publish)
	if err != nil {
		w.metrics.IncRelayFailures()
		return 0, err
	}
	w.metrics.AddRelayPublished(n)
	return n, nil
}
