package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for identity reconciliation.
type Metrics struct {
	Resolutions      *prometheus.CounterVec
	Registrations    *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	ResolveDuration  prometheus.Histogram
	RegisterDuration prometheus.Histogram
}

var stepBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// New registers the identity metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Resolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtoken_resolutions_total",
			Help: "Resolutions by outcome (found, new_user or an error code)",
		}, []string{"outcome"}),
		Registrations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mtoken_registrations_total",
			Help: "Registration submissions by result",
		}, []string{"result"}),
		StepDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mtoken_external_call_duration_seconds",
			Help:    "Duration of each external call made during reconciliation",
			Buckets: stepBuckets,
		}, []string{"step", "result"}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtoken_resolve_duration_seconds",
			Help:    "End-to-end duration of resolve",
			Buckets: stepBuckets,
		}),
		RegisterDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mtoken_register_duration_seconds",
			Help:    "End-to-end duration of register",
			Buckets: stepBuckets,
		}),
	}
}

// IncrementResolution records one resolve call by outcome label.
func (m *Metrics) IncrementResolution(outcome string) {
	m.Resolutions.WithLabelValues(outcome).Inc()
}

// IncrementRegistration records one register call by result label.
func (m *Metrics) IncrementRegistration(result string) {
	m.Registrations.WithLabelValues(result).Inc()
}

// ObserveStep records one external call. Call with time.Now() taken before it.
func (m *Metrics) ObserveStep(step string, ok bool, start time.Time) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.StepDuration.WithLabelValues(step, result).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveResolve(start time.Time) {
	m.ResolveDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveRegister(start time.Time) {
	m.RegisterDuration.Observe(time.Since(start).Seconds())
}
