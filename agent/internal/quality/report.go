package quality

import (
	"errors"
	"sort"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/pkg/types"
)

// Report is the outcome of one evaluation cycle.
type Report struct {
	Overall     types.Quality
	Metrics     []MetricResult // in spec order
	EvaluatedAt time.Time
}

// MetricResult is the verdict for a single metric.
type MetricResult struct {
	Name      string
	Kind      check.Kind
	Quality   types.Quality
	Statistic float64
	Err       error // non-nil when the aggregate was missing or malformed
}

// Failed returns the sorted names of metrics that were not Good.
func (r *Report) Failed() []string {
	var out []string
	for _, m := range r.Metrics {
		if m.Quality != types.Good {
			out = append(out, m.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Unavailable returns the sorted names of metrics whose aggregate could not
// be found in the store.
func (r *Report) Unavailable() []string {
	var out []string
	for _, m := range r.Metrics {
		if errors.Is(m.Err, check.ErrMissingInput) {
			out = append(out, m.Name)
		}
	}
	sort.Strings(out)
	return out
}

// Metric returns the result for name.
func (r *Report) Metric(name string) (MetricResult, bool) {
	for _, m := range r.Metrics {
		if m.Name == name {
			return m, true
		}
	}
	return MetricResult{}, false
}
