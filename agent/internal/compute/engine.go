package compute

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/alerts"
	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/agent/internal/config"
	"github.com/obsidianstack/detqc/agent/internal/daq"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/agent/internal/occupancy"
	"github.com/obsidianstack/detqc/agent/internal/quality"
	"github.com/obsidianstack/detqc/agent/internal/telemetry"
	"github.com/obsidianstack/detqc/pkg/types"
)

// Outcome is everything one cycle produced.
type Outcome struct {
	Report *quality.Report

	// Occupancy is nil when no hit file is configured or it could not be read.
	Occupancy *occupancy.Result

	// LoadErr is the histogram source error, if any. The cycle still ran,
	// with that source's aggregates treated as missing.
	LoadErr error

	// HitsErr is the hit file error, if any. The occupancy aggregates are
	// then missing for this cycle.
	HitsErr error

	// GoodPct is the share of Good verdicts over the recent history window.
	GoodPct float64
}

// HitLoader reads one cycle's hits.
type HitLoader func(path string) ([]occupancy.Hit, error)

// Engine runs evaluation cycles against a shared store.
//
// All exported methods are safe for concurrent use; cycles are serialised.
type Engine struct {
	mu       sync.Mutex
	cfg      *config.Config
	source   histstore.Source // nil when no input is configured
	eval     *quality.Evaluator
	store    *histstore.Store
	scheme   occupancy.Scheme
	metrics  *telemetry.Metrics // optional
	alerts   *alerts.Engine     // optional
	loadHits HitLoader
	history  History
	last     *Outcome

	// sourced holds the names the source published on its last successful
	// load. They are removed from the store when the source fails or stops
	// publishing them.
	sourced map[string]struct{}
}

// Option customises an Engine.
type Option func(*Engine)

// WithScheme replaces the default readout layout.
func WithScheme(s occupancy.Scheme) Option { return func(e *Engine) { e.scheme = s } }

// WithTelemetry records every cycle in m.
func WithTelemetry(m *telemetry.Metrics) Option { return func(e *Engine) { e.metrics = m } }

// WithAlerts hands every report to a.
func WithAlerts(a *alerts.Engine) Option { return func(e *Engine) { e.alerts = a } }

// WithHitLoader replaces daq.LoadHits, mainly for tests.
func WithHitLoader(f HitLoader) Option { return func(e *Engine) { e.loadHits = f } }

// NewEngine builds an Engine for cfg that publishes into store.
func NewEngine(cfg *config.Config, store *histstore.Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:    store,
		scheme:   occupancy.DefaultLayout(),
		loadHits: daq.LoadHits,
	}
	for _, o := range opts {
		o(e)
	}
	if err := e.apply(cfg); err != nil {
		return nil, err
	}
	return e, nil
}

// Reconfigure switches to cfg for the following cycles. On error the
// current config stays in effect.
func (e *Engine) Reconfigure(cfg *config.Config) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, prevOcc := e.eval, e.cfg.Occupancy
	if err := e.apply(cfg); err != nil {
		return err
	}

	// Series are labelled by name and kind, so a metric whose kind changed
	// leaves an old series behind just like a removed one.
	if e.metrics != nil {
		kept := make(map[series]bool)
		for _, s := range e.eval.Specs() {
			kept[series{s.Name, s.Kind}] = true
		}
		for _, s := range prev.Specs() {
			if !kept[series{s.Name, s.Kind}] {
				e.metrics.ForgetMetric(s.Name, s.Kind)
			}
		}
	}

	published := make(map[string]bool)
	for _, name := range cfg.Occupancy.Names() {
		published[name] = true
	}
	for _, name := range prevOcc.Names() {
		if !published[name] {
			e.store.Delete(name)
		}
	}
	if e.source == nil {
		e.dropSourced(nil)
	}
	return nil
}

// series identifies one metric_quality series.
type series struct {
	name string
	kind check.Kind
}

// apply builds everything derived from cfg and only commits on success.
func (e *Engine) apply(cfg *config.Config) error {
	specs, err := cfg.Specs()
	if err != nil {
		return fmt.Errorf("compute: %w", err)
	}
	eval, err := quality.NewEvaluator(specs, cfg.Workers)
	if err != nil {
		return fmt.Errorf("compute: %w", err)
	}

	var src histstore.Source
	if cfg.Store.Source != config.SourceFile || cfg.Store.Path != "" {
		src, err = histstore.NewSource(cfg.Store)
		if err != nil {
			return fmt.Errorf("compute: %w", err)
		}
	}

	e.cfg, e.eval, e.source = cfg, eval, src
	return nil
}

// Specs returns the metric specs currently evaluated.
func (e *Engine) Specs() []check.Spec {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.eval.Specs()
}

// Last returns the outcome of the most recent cycle, or nil before the first.
func (e *Engine) Last() *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}

// History returns a copy of the recent verdict window.
func (e *Engine) History() History {
	e.mu.Lock()
	defer e.mu.Unlock()
	return History{verdicts: e.history.Verdicts()}
}

// Process runs one cycle at now.
//
// Source and hit-file failures are logged and reported on the Outcome; they
// never abort the cycle. The aggregates the failed input would have refreshed
// are removed first, so the metrics reading them evaluate as Bad instead of
// passing on the previous cycle's data.
func (e *Engine) Process(ctx context.Context, now time.Time) *Outcome {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	out := &Outcome{}

	if e.source != nil {
		aggs, err := e.source.Load(ctx)
		if err != nil {
			slog.Warn("compute: histogram source load failed, dropping its aggregates",
				"err", err, "dropped", len(e.sourced))
			out.LoadErr = err
			e.dropSourced(nil)
			if e.metrics != nil {
				e.metrics.LoadFailed()
			}
		} else {
			e.dropSourced(aggs)
			e.store.PutAll(aggs)
			e.sourced = make(map[string]struct{}, len(aggs))
			for name := range aggs {
				e.sourced[name] = struct{}{}
			}
			slog.Debug("compute: loaded aggregates", "count", len(aggs), "held", e.store.Count())
		}
	}

	// Locally computed occupancy is published after the source load so it
	// wins over a same-named aggregate from the source.
	if occ := e.cfg.Occupancy; occ.HitsPath != "" {
		hits, err := e.loadHits(occ.HitsPath)
		if err != nil {
			slog.Warn("compute: hit file unreadable, occupancy missing this cycle", "path", occ.HitsPath, "err", err)
			out.HitsErr = err
			e.store.Delete(occ.Names()...)
			if e.metrics != nil {
				e.metrics.LoadFailed()
			}
		} else {
			res := occupancy.Compute(hits, e.scheme, occupancy.Options{
				MaxHits:      occ.MaxHits,
				MinAmplitude: occ.MinAmplitude,
				AmplitudeMax: occ.AmplitudeMax,
			})
			e.store.Put(occ.DistributionName, res.Distribution)
			e.store.Put(occ.AmplitudeName, res.Amplitude)
			if res.Map != nil {
				e.store.Put(occ.MapName, res.Map)
			} else {
				e.store.Delete(occ.MapName)
			}
			if e.metrics != nil {
				e.metrics.ObserveOccupancy(res)
			}
			out.Occupancy = &res
		}
	}

	out.Report = e.eval.Evaluate(e.store, now)
	e.history.record(out.Report.Overall)
	out.GoodPct = e.history.GoodPct()

	if e.metrics != nil {
		e.metrics.ObserveReport(out.Report, time.Since(start))
	}
	if e.alerts != nil {
		e.alerts.Observe(out.Report, now)
	}
	slog.Info("compute: cycle complete",
		"quality", out.Report.Overall.String(),
		"metrics", len(out.Report.Metrics),
		"failed", len(out.Report.Failed()),
		"good_pct", out.GoodPct,
	)
	e.last = out
	return out
}

// dropSourced removes the names of the previous source load that are not in
// keep. A nil keep drops them all.
func (e *Engine) dropSourced(keep map[string]types.Aggregate) {
	for name := range e.sourced {
		if _, ok := keep[name]; !ok {
			e.store.Delete(name)
		}
	}
	if keep == nil {
		e.sourced = nil
	}
}
