package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the certificate registry.
type Metrics struct {
	CertificatesCreated prometheus.Counter
	CertificatesClaimed prometheus.Counter

	// Operation latency by operation and outcome (domain error code or "ok")
	OperationLatency *prometheus.HistogramVec

	// Read-through cache lookups by result: "hit", "miss", "error"
	CacheLookups *prometheus.CounterVec
}

// New creates a new Metrics instance with all registry metrics registered.
func New() *Metrics {
	return &Metrics{
		CertificatesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registry_certificates_created_total",
			Help: "Certificates minted into custody",
		}),
		CertificatesClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_registry_certificates_claimed_total",
			Help: "Certificates delivered to their owners",
		}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_registry_operation_duration_seconds",
			Help:    "Duration of registry operations by outcome",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation", "outcome"}),
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_registry_cache_lookups_total",
			Help: "Certificate cache lookups by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) IncCreated() {
	if m != nil {
		m.CertificatesCreated.Inc()
	}
}

func (m *Metrics) IncClaimed() {
	if m != nil {
		m.CertificatesClaimed.Inc()
	}
}

func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op, outcome).Observe(d.Seconds())
	}
}

func (m *Metrics) IncCacheLookup(result string) {
	if m != nil {
		m.CacheLookups.WithLabelValues(result).Inc()
	}
}
