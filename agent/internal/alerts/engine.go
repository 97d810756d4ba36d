package alerts

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/agent/internal/config"
	"github.com/obsidianstack/detqc/agent/internal/quality"
	"github.com/obsidianstack/detqc/pkg/types"
)

const (
	maxHistoryLen     = 200
	recentWindowHours = 1

	// OverallKey is the alert key used for the combined verdict.
	OverallKey = "overall"
)

// Alert states.
const (
	StateFiring   = "firing"
	StateResolved = "resolved"
)

// Severities, derived from the verdict.
const (
	SeverityCritical = "critical" // bad
	SeverityWarning  = "warning"  // medium
)

// Alert is one notification about a metric (or the overall verdict).
type Alert struct {
	ID       string        `json:"id"`
	Metric   string        `json:"metric"`
	Kind     check.Kind    `json:"kind,omitempty"`
	Severity string        `json:"severity"`
	Quality  types.Quality `json:"quality"`
	Message  string        `json:"message"`

	// Statistic is the value the verdict was computed from. It is nil for
	// the overall verdict and for metrics whose input was unavailable.
	Statistic *float64 `json:"statistic,omitempty"`

	// Color and Details come from the verdict decoration: the colour of
	// the label and its lines below the quality header.
	Color   string   `json:"color"`
	Details []string `json:"details,omitempty"`

	FiredAt    time.Time  `json:"fired_at"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	State      string     `json:"state"`
}

// Engine turns evaluation reports into alerts and delivers them to the
// configured webhooks.
//
// Engine is safe for concurrent use.
type Engine struct {
	cooldown time.Duration
	webhooks []config.WebhookConfig

	mu       sync.Mutex
	active   map[string]*Alert    // key: metric name or OverallKey
	lastFire map[string]time.Time // last fire time per key
	history  []*Alert             // recently resolved alerts
	client   *http.Client
	pending  sync.WaitGroup
}

// New creates an Engine. An Engine without webhooks still tracks alerts.
func New(cfg config.AlertsConfig) *Engine {
	return &Engine{
		cooldown: cfg.Cooldown,
		webhooks: cfg.Webhooks,
		active:   make(map[string]*Alert),
		lastFire: make(map[string]time.Time),
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

func severityOf(q types.Quality) string {
	if q == types.Medium {
		return SeverityWarning
	}
	return SeverityCritical
}

// verdict is one alertable result of a report.
type verdict struct {
	key       string
	kind      check.Kind
	q         types.Quality
	statistic *float64
	deco      quality.Decoration
}

func verdictsOf(r *quality.Report) []verdict {
	out := make([]verdict, 0, len(r.Metrics)+1)
	for _, m := range r.Metrics {
		v := verdict{key: m.Name, kind: m.Kind, q: m.Quality, deco: quality.DecorateMetric(m)}
		if m.Err == nil {
			stat := m.Statistic
			v.statistic = &stat
		}
		out = append(out, v)
	}
	return append(out, verdict{key: OverallKey, q: r.Overall, deco: quality.DecorateReport(r)})
}

// Observe compares r with the currently firing alerts. A metric that is
// not Good fires (subject to the cooldown, except on escalation to
// critical); a firing metric that is Good again, or that r no longer
// carries, resolves. Webhook delivery happens in the background.
func (e *Engine) Observe(r *quality.Report, now time.Time) {
	verdicts := verdictsOf(r)
	var out []*Alert
	for _, v := range verdicts {
		if a := e.transition(v, now); a != nil {
			out = append(out, a)
		}
	}
	out = append(out, e.resolveAbsent(verdicts, now)...)

	for _, a := range out {
		e.pending.Add(1)
		go func() {
			defer e.pending.Done()
			e.deliver(a)
		}()
	}
}

// transition updates the state for v.key and returns a copy of the alert
// to deliver, or nil.
func (e *Engine) transition(v verdict, now time.Time) *Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cur, firing := e.active[v.key]

	if v.q == types.Good {
		if !firing {
			return nil
		}
		cur.Statistic = v.statistic
		return e.resolveLocked(cur, v.deco, now)
	}

	sev := severityOf(v.q)
	escalation := firing && cur.Severity == SeverityWarning && sev == SeverityCritical
	if firing && !escalation {
		// Still firing, possibly de-escalated: keep the alert current
		// without notifying again.
		cur.Quality, cur.Severity, cur.Statistic = v.q, sev, v.statistic
		cur.Color, cur.Details = v.deco.Color, details(v.deco)
		return nil
	}
	if !escalation && now.Sub(e.lastFire[v.key]) <= e.cooldown && !e.lastFire[v.key].IsZero() {
		return nil
	}

	text := strings.Join(v.deco.Lines, ", ")
	a := &Alert{
		ID:        fmt.Sprintf("%s:%d", v.key, now.UnixNano()),
		Metric:    v.key,
		Kind:      v.kind,
		Severity:  sev,
		Quality:   v.q,
		Message:   fmt.Sprintf("[%s] %s: %s", sev, v.key, text),
		Statistic: v.statistic,
		Color:     v.deco.Color,
		Details:   details(v.deco),
		FiredAt:   now,
		State:     StateFiring,
	}
	e.active[v.key] = a
	e.lastFire[v.key] = now

	slog.Warn("alerts: fired", "metric", v.key, "severity", sev, "quality", v.q.String())
	cp := *a
	return &cp
}

// resolveAbsent resolves firing alerts whose key is not among verdicts,
// such as a metric removed by a config reload.
func (e *Engine) resolveAbsent(verdicts []verdict, now time.Time) []*Alert {
	present := make(map[string]bool, len(verdicts))
	for _, v := range verdicts {
		present[v.key] = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var out []*Alert
	for key, cur := range e.active {
		if present[key] {
			continue
		}
		deco := quality.Decorate(types.Good)
		deco.Lines = append(deco.Lines, "no longer evaluated")
		cur.Statistic = nil
		out = append(out, e.resolveLocked(cur, deco, now))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metric < out[j].Metric })
	return out
}

// resolveLocked moves cur from active to history and returns a copy.
// e.mu must be held.
func (e *Engine) resolveLocked(cur *Alert, deco quality.Decoration, now time.Time) *Alert {
	resolved := now
	cur.State = StateResolved
	cur.ResolvedAt = &resolved
	cur.Quality = types.Good
	cur.Color, cur.Details = deco.Color, details(deco)
	delete(e.active, cur.Metric)

	e.history = append(e.history, cur)
	if len(e.history) > maxHistoryLen {
		e.history = e.history[len(e.history)-maxHistoryLen:]
	}
	slog.Info("alerts: resolved", "metric", cur.Metric)
	cp := *cur
	return &cp
}

// details drops the quality header line from a decoration.
func details(d quality.Decoration) []string {
	if len(d.Lines) <= 1 {
		return nil
	}
	return append([]string(nil), d.Lines[1:]...)
}

// Active returns copies of all firing alerts plus alerts resolved within
// the hour before now, newest first.
func (e *Engine) Active(now time.Time) []*Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	cutoff := now.Add(-recentWindowHours * time.Hour)
	out := make([]*Alert, 0, len(e.active))
	for _, a := range e.active {
		cp := *a
		out = append(out, &cp)
	}
	for _, a := range e.history {
		if a.ResolvedAt != nil && a.ResolvedAt.After(cutoff) {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiredAt.Equal(out[j].FiredAt) {
			return out[i].FiredAt.After(out[j].FiredAt)
		}
		return out[i].Metric < out[j].Metric
	})
	return out
}

// Wait blocks until every delivery started so far has finished.
func (e *Engine) Wait() { e.pending.Wait() }
