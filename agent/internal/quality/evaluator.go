package quality

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/pkg/types"
)

// Lookup is the histogram store read contract.
type Lookup interface {
	Lookup(name string) (types.Aggregate, bool)
}

// LookupFunc adapts a plain function to Lookup.
type LookupFunc func(name string) (types.Aggregate, bool)

func (f LookupFunc) Lookup(name string) (types.Aggregate, bool) { return f(name) }

// Evaluator evaluates a fixed set of metric specs each cycle.
// It holds no mutable state and is safe for concurrent use.
type Evaluator struct {
	specs   []check.Spec
	workers int
}

// NewEvaluator validates specs and returns an Evaluator that assesses up to
// workers metrics at once. workers < 1 means sequential.
func NewEvaluator(specs []check.Spec, workers int) (*Evaluator, error) {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return nil, fmt.Errorf("quality: %w", err)
		}
		if seen[s.Name] {
			return nil, fmt.Errorf("quality: duplicate metric %q", s.Name)
		}
		seen[s.Name] = true
	}
	if workers < 1 {
		workers = 1
	}
	cp := make([]check.Spec, len(specs))
	copy(cp, specs)
	return &Evaluator{specs: cp, workers: workers}, nil
}

// Specs returns a copy of the configured specs.
func (e *Evaluator) Specs() []check.Spec {
	cp := make([]check.Spec, len(e.specs))
	copy(cp, e.specs)
	return cp
}

// Evaluate assesses every configured metric against the aggregates in store
// and folds the verdicts. now is recorded on the report so callers (and
// tests) control the clock.
//
// Every metric is evaluated every call; a missing aggregate is recorded as
// Bad with check.ErrMissingInput and does not stop the others.
func (e *Evaluator) Evaluate(store Lookup, now time.Time) *Report {
	results := make([]MetricResult, len(e.specs))

	var g errgroup.Group
	g.SetLimit(e.workers)
	for i, spec := range e.specs {
		g.Go(func() error {
			results[i] = evaluateOne(store, spec)
			return nil
		})
	}
	_ = g.Wait() // workers never return an error

	verdicts := make([]types.Quality, len(results))
	for i, r := range results {
		verdicts[i] = r.Quality
		if r.Err != nil {
			slog.Warn("quality: metric unusable, counted as bad",
				"metric", r.Name, "kind", r.Kind, "err", r.Err)
			continue
		}
		slog.Debug("quality: metric evaluated",
			"metric", r.Name, "kind", r.Kind,
			"statistic", r.Statistic, "quality", r.Quality.String())
	}

	return &Report{
		Overall:     Aggregate(verdicts...),
		Metrics:     results,
		EvaluatedAt: now,
	}
}

func evaluateOne(store Lookup, spec check.Spec) MetricResult {
	res := MetricResult{Name: spec.Name, Kind: spec.Kind}

	agg, ok := store.Lookup(spec.Name)
	if !ok || agg == nil {
		res.Quality = types.Bad
		res.Err = fmt.Errorf("%q: %w", spec.Name, check.ErrMissingInput)
		return res
	}

	a := check.Assess(agg, spec)
	res.Quality = a.Quality
	res.Statistic = a.Statistic
	res.Err = a.Err
	return res
}
