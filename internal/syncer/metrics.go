package syncer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics instruments sync cycles. A nil *Metrics records nothing.
type Metrics struct {
	cycles       *prometheus.CounterVec
	duration     prometheus.Histogram
	pushFailures *prometheus.CounterVec
	autoSync     prometheus.Gauge
}

// NewMetrics creates and registers the sync collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorledger",
			Name:      "sync_cycles_total",
			Help:      "Sync cycles by outcome.",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tutorledger",
			Name:      "sync_duration_seconds",
			Help:      "Duration of completed sync cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		pushFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tutorledger",
			Name:      "sync_push_failures_total",
			Help:      "Failed pushes to the remote store by reason.",
		}, []string{"reason"}),
		autoSync: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tutorledger",
			Name:      "auto_sync_active",
			Help:      "Users with auto-sync running.",
		}),
	}
	reg.MustRegister(m.cycles, m.duration, m.pushFailures, m.autoSync)
	return m
}

func (m *Metrics) observeCycle(outcome Outcome, took time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(outcome)).Inc()
	if outcome != OutcomeInProgress {
		m.duration.Observe(took.Seconds())
	}
}

func (m *Metrics) pushFailed(reason string) {
	if m == nil {
		return
	}
	m.pushFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) setAutoSync(n int) {
	if m == nil {
		return
	}
	m.autoSync.Set(float64(n))
}
