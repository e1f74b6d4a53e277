package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks relay throughput and health.
type Metrics struct {
	Published  prometheus.Counter
	PassFailed prometheus.Counter
}

func NewMetrics() *Metrics {
	return &Metrics{
		Published: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sasana_audit_relay_published_total",
			Help: "Audit events shipped to the broker",
		}),
		PassFailed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "sasana_audit_relay_pass_failures_total",
			Help: "Relay passes that failed and will be retried",
		}),
	}
}

func (m *Metrics) AddPublished(n int) {
	m.Published.Add(float64(n))
}

func (m *Metrics) IncrementPassFailed() {
	m.PassFailed.Inc()
}
