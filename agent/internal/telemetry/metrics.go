package telemetry

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/agent/internal/occupancy"
	"github.com/obsidianstack/detqc/agent/internal/quality"
	"github.com/obsidianstack/detqc/pkg/types"
)

const namespace = "detqc"

// Hit outcomes used as the "outcome" label of detqc_occupancy_hits_total.
const (
	OutcomeCounted        = "counted"
	OutcomeInvalidAddress = "invalid_address"
	OutcomeBelowThreshold = "below_threshold"
)

// Metrics holds the collectors registered by New.
type Metrics struct {
	overall     prometheus.Gauge
	metric      *prometheus.GaugeVec
	verdicts    *prometheus.CounterVec
	unavailable *prometheus.CounterVec
	malformed   *prometheus.CounterVec
	cycles      prometheus.Counter
	cycleTime   prometheus.Histogram
	loadErrors  prometheus.Counter
	hits        *prometheus.CounterVec
	units       prometheus.Gauge
	meanHits    prometheus.Gauge
}

// New registers the detqc collectors with reg. Pass prometheus.NewRegistry()
// in tests to keep them off the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		overall: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quality",
			Help:      "Overall quality of the last cycle (0 bad, 1 medium, 2 good).",
		}),
		metric: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "metric_quality",
			Help:      "Quality of each configured metric in the last cycle (0 bad, 1 medium, 2 good).",
		}, []string{"metric", "kind"}),
		verdicts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Per-metric verdicts by quality.",
		}, []string{"metric", "quality"}),
		unavailable: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_unavailable_total",
			Help:      "Cycles in which a metric's aggregate was missing from the store.",
		}, []string{"metric"}),
		malformed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "metric_malformed_total",
			Help:      "Cycles in which a metric's aggregate had the wrong shape.",
		}, []string{"metric"}),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_total",
			Help:      "Completed evaluation cycles.",
		}),
		cycleTime: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one evaluation cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14), // 0.5ms to ~4s
		}),
		loadErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_load_errors_total",
			Help:      "Failed loads from the histogram source or the hit file.",
		}),
		hits: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "occupancy",
			Name:      "hits_total",
			Help:      "Hits handed to the occupancy grouper by outcome.",
		}, []string{"outcome"}),
		units: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "occupancy",
			Name:      "units",
			Help:      "Electronics units with at least one hit in the last cycle.",
		}),
		meanHits: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "occupancy",
			Name:      "mean_hits_per_unit",
			Help:      "Mean hits per occupied unit in the last cycle.",
		}),
	}
}

// ObserveReport records the verdicts of one evaluation cycle and how long
// it took.
func (m *Metrics) ObserveReport(r *quality.Report, took time.Duration) {
	m.overall.Set(float64(r.Overall))
	for _, res := range r.Metrics {
		m.metric.WithLabelValues(res.Name, string(res.Kind)).Set(float64(res.Quality))
		m.verdicts.WithLabelValues(res.Name, res.Quality.String()).Inc()
		switch {
		case errors.Is(res.Err, check.ErrMissingInput):
			m.unavailable.WithLabelValues(res.Name).Inc()
		case errors.Is(res.Err, check.ErrMalformedAggregate):
			m.malformed.WithLabelValues(res.Name).Inc()
		}
	}
	m.cycles.Inc()
	m.cycleTime.Observe(took.Seconds())
}

// ObserveOccupancy records the outcome of one grouping pass.
func (m *Metrics) ObserveOccupancy(res occupancy.Result) {
	m.hits.WithLabelValues(OutcomeCounted).Add(float64(res.Valid))
	m.hits.WithLabelValues(OutcomeInvalidAddress).Add(float64(res.Rejected))
	m.hits.WithLabelValues(OutcomeBelowThreshold).Add(float64(res.BelowThreshold))
	if res.Distribution != nil {
		m.units.Set(float64(res.Distribution.Units()))
		m.meanHits.Set(res.Distribution.Mean())
	}
}

// LoadFailed counts a failed input load, from the histogram source or the
// hit file. The cycle still runs with that input's aggregates missing.
func (m *Metrics) LoadFailed() { m.loadErrors.Inc() }

// ForgetMetric drops the per-metric series of a metric that is no longer
// configured under that kind, so a hot reload does not leave its last
// verdict behind.
func (m *Metrics) ForgetMetric(name string, kind check.Kind) {
	m.metric.DeleteLabelValues(name, string(kind))
	for _, q := range []types.Quality{types.Bad, types.Medium, types.Good} {
		m.verdicts.DeleteLabelValues(name, q.String())
	}
	m.unavailable.DeleteLabelValues(name)
	m.malformed.DeleteLabelValues(name)
}
