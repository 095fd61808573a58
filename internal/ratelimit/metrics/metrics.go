package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Rejections  *prometheus.CounterVec
	StoreErrors prometheus.Counter
	Degraded    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtoken_ratelimit_rejections_total",
			Help: "Requests rejected by the rate limiter, by route",
		}, []string{"route"}),
		StoreErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mtoken_ratelimit_store_errors_total",
			Help: "Primary rate limit store failures",
		}),
		Degraded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mtoken_ratelimit_degraded",
			Help: "1 while the in-memory fallback is serving rate limit checks",
		}),
	}
}

func (m *Metrics) IncrementRejections(route string) {
	m.Rejections.WithLabelValues(route).Inc()
}

func (m *Metrics) IncrementStoreErrors() {
	m.StoreErrors.Inc()
}

func (m *Metrics) SetDegraded(degraded bool) {
	if degraded {
		m.Degraded.Set(1)
		return
	}
	m.Degraded.Set(0)
}
