package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements domain.repository.Metrics using Prometheus.
type Recorder struct {
	cellsTotal   *prometheus.CounterVec
	evalDuration prometheus.Histogram
	storeLatency *prometheus.HistogramVec
	storeErrors  *prometheus.CounterVec
	cacheTotal   *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	eventsTotal  *prometheus.CounterVec
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer creates a recorder on reg; tests pass a fresh registry.
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cellsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coindash_metric_cells_total",
				Help: "Metric cells evaluated, by outcome",
			},
			[]string{"outcome"},
		),
		evalDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "coindash_evaluation_duration_seconds",
				Help:    "Duration of one metric evaluation request",
				Buckets: prometheus.DefBuckets,
			},
		),
		storeLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "coindash_store_query_duration_seconds",
				Help:    "Series store query latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"backend", "op"},
		),
		storeErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coindash_store_query_errors_total",
				Help: "Series store query failures",
			},
			[]string{"backend", "op"},
		),
		cacheTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coindash_cache_requests_total",
				Help: "Cache lookups, by result",
			},
			[]string{"op", "result"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coindash_errors_total",
				Help: "Total number of errors encountered",
			},
			[]string{"type"},
		),
		eventsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coindash_metric_events_total",
				Help: "Metric change events, by type",
			},
			[]string{"type"},
		),
	}
}

// RecordCells records evaluated cells and how many of them were null.
func (r *Recorder) RecordCells(total, failed int) {
	r.cellsTotal.WithLabelValues("ok").Add(float64(total - failed))
	r.cellsTotal.WithLabelValues("null").Add(float64(failed))
}

// RecordEvaluation records the duration of an evaluation.
func (r *Recorder) RecordEvaluation(seconds float64) {
	r.evalDuration.Observe(seconds)
}

// RecordStoreQuery records store latency and failures.
func (r *Recorder) RecordStoreQuery(backend, op string, seconds float64, err error) {
	r.storeLatency.WithLabelValues(backend, op).Observe(seconds)
	if err != nil {
		r.storeErrors.WithLabelValues(backend, op).Inc()
	}
}

// RecordCache records a cache hit or miss.
func (r *Recorder) RecordCache(op string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cacheTotal.WithLabelValues(op, result).Inc()
}

// RecordError records an error occurrence.
func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordEvent records a published or received metric event.
func (r *Recorder) RecordEvent(eventType string) {
	r.eventsTotal.WithLabelValues(eventType).Inc()
}

// Nop discards every measurement.
type Nop struct{}

func (Nop) RecordCells(int, int)                            {}
func (Nop) RecordEvaluation(float64)                        {}
func (Nop) RecordStoreQuery(string, string, float64, error) {}
func (Nop) RecordCache(string, bool)                        {}
func (Nop) RecordError(string)                              {}
func (Nop) RecordEvent(string)                              {}
