package ratelimit

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/httputil"
	"custodia/pkg/requestcontext"
)

type Metrics struct {
	Decisions *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	return &Metrics{
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_ratelimit_decisions_total",
			Help: "Rate limit checks by endpoint class and result",
		}, []string{"class", "result"}),
	}
}

func (m *Metrics) observe(class EndpointClass, result string) {
	if m != nil {
		m.Decisions.WithLabelValues(string(class), result).Inc()
	}
}

// Middleware limits requests per client IP. GET and HEAD count against the
// read policy, everything else against the write policy.
type Middleware struct {
	store    Store
	policies map[EndpointClass]Policy
	logger   *slog.Logger
	metrics  *Metrics
}

type Option func(*Middleware)

func WithMetrics(m *Metrics) Option {
	return func(mw *Middleware) { mw.metrics = m }
}

func New(store Store, read, write Policy, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		store: store,
		policies: map[EndpointClass]Policy{
			ClassRead:  read,
			ClassWrite: write,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func classOf(r *http.Request) EndpointClass {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return ClassRead
	}
	return ClassWrite
}

// Handler enforces the limits. A store failure lets the request through.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		class := classOf(r)
		policy := m.policies[class]
		if policy.Limit <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		ip := requestcontext.ClientIP(ctx)
		result, err := m.store.Allow(ctx, string(class)+":"+ip, policy.Limit, policy.Window)
		if err != nil {
			m.metrics.observe(class, "error")
			m.logger.WarnContext(ctx, "rate limit check failed",
				"class", string(class),
				"request_id", requestcontext.RequestID(ctx),
				"error", err,
			)
			next.ServeHTTP(w, r)
			return
		}

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

		if !result.Allowed {
			m.metrics.observe(class, "denied")
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(result.RetryAfter.Seconds()))))
			httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, "too many requests, retry later"))
			return
		}
		m.metrics.observe(class, "allowed")
		next.ServeHTTP(w, r)
	})
}
