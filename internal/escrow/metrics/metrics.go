package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for escrow instances.
type Metrics struct {
	EscrowsCreated    prometheus.Counter
	Contributions     prometheus.Counter
	ContributedAmount prometheus.Counter
	Releases          prometheus.Counter
	ReleasedAmount    prometheus.Counter
	OperationLatency  *prometheus.HistogramVec
	ReleaseRejections *prometheus.CounterVec
}

// New creates a new Metrics instance with all escrow metrics registered.
func New() *Metrics {
	return &Metrics{
		EscrowsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_created_total",
			Help: "Escrow instances created",
		}),
		Contributions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_contributions_total",
			Help: "Validated contributions accepted",
		}),
		ContributedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_contributed_amount_total",
			Help: "Sum of validated contribution amounts",
		}),
		Releases: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_releases_total",
			Help: "Escrows released to their beneficiary",
		}),
		ReleasedAmount: promauto.NewCounter(prometheus.CounterOpts{
			Name: "custodia_escrow_released_amount_total",
			Help: "Sum of amounts swept to beneficiaries",
		}),
		OperationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custodia_escrow_operation_duration_seconds",
			Help:    "Duration of escrow operations by outcome",
			Buckets: []float64{0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation", "outcome"}),
		ReleaseRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "custodia_escrow_release_rejections_total",
			Help: "Release attempts rejected, by error code",
		}, []string{"code"}),
	}
}

func (m *Metrics) IncCreated() {
	if m != nil {
		m.EscrowsCreated.Inc()
	}
}

func (m *Metrics) ObserveContribution(amount uint64) {
	if m != nil {
		m.Contributions.Inc()
		m.ContributedAmount.Add(float64(amount))
	}
}

func (m *Metrics) ObserveRelease(amount uint64) {
	if m != nil {
		m.Releases.Inc()
		m.ReleasedAmount.Add(float64(amount))
	}
}

func (m *Metrics) IncReleaseRejected(code string) {
	if m != nil {
		m.ReleaseRejections.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) ObserveOperation(op, outcome string, d time.Duration) {
	if m != nil {
		m.OperationLatency.WithLabelValues(op, outcome).Observe(d.Seconds())
	}
}
