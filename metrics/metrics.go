package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK      = "ok"
	OutcomeFailed  = "failed"
	OutcomeDropped = "dropped"
)

type Metrics struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	duration *prometheus.HistogramVec
	runs     *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "imageresize",
			Name:      "records_total",
			Help:      "Records handled per stage and outcome.",
		}, []string{"stage", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imageresize",
			Name:      "record_duration_seconds",
			Help:      "Time spent on a single record per stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		runs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "imageresize",
			Name:      "run_duration_seconds",
			Help:      "Wall-clock time of a full pipeline run per mode.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"mode"}),
	}
	m.registry.MustRegister(m.records, m.duration, m.runs)
	return m
}

// ObserveRecord is safe to call on a nil receiver.
func (m *Metrics) ObserveRecord(stage, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(stage, outcome).Inc()
	if outcome == OutcomeOK {
		m.duration.WithLabelValues(stage).Observe(elapsed.Seconds())
	}
}

func (m *Metrics) ObserveRun(mode string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(mode).Observe(elapsed.Seconds())
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
