package provider

import (
	"time"

	"github.com/casualjim/folio/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records the outcome of provider calls made through MultiTools.
type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewMetrics registers the provider call metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		calls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "folio_provider_calls_total",
			Help: "Total provider calls by provider, variant and result",
		}, []string{"provider", "variant", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "folio_provider_call_duration_seconds",
			Help:    "Provider call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}, []string{"provider", "variant"}),
	}
}

func (m *Metrics) observe(provider string, variant types.ModelVariant, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.calls.WithLabelValues(provider, string(variant), result).Inc()
	m.duration.WithLabelValues(provider, string(variant)).Observe(time.Since(started).Seconds())
}
