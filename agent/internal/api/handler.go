package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/obsidianstack/detqc/agent/internal/alerts"
	"github.com/obsidianstack/detqc/agent/internal/compute"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/agent/internal/quality"
	"github.com/obsidianstack/detqc/pkg/types"
)

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	engine   *compute.Engine
	notifier *alerts.Engine
	store    *histstore.Store
	now      func() time.Time
	mux      *http.ServeMux
}

// New creates a Handler over the engine, its alert notifier and its store,
// and registers all routes.
func New(engine *compute.Engine, notifier *alerts.Engine, store *histstore.Store) http.Handler {
	h := &Handler{
		engine:   engine,
		notifier: notifier,
		store:    store,
		now:      time.Now,
		mux:      http.NewServeMux(),
	}

	h.mux.HandleFunc("/api/v1/report", h.report)
	h.mux.HandleFunc("/api/v1/alerts", h.alerts)
	h.mux.HandleFunc("/api/v1/aggregates", h.aggregates)

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// report serves GET /api/v1/report: the last cycle and the verdict history.
func (h *Handler) report(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	out := h.engine.Last()
	if out == nil {
		jsonErr(w, http.StatusServiceUnavailable, "no cycle has run yet")
		return
	}

	deco := quality.DecorateReport(out.Report)
	resp := ReportResponse{
		Overall:     out.Report.Overall,
		Color:       deco.Color,
		Lines:       deco.Lines,
		EvaluatedAt: out.Report.EvaluatedAt,
		LoadError:   errText(out.LoadErr),
		HitsError:   errText(out.HitsErr),
		Metrics:     make([]MetricResponse, 0, len(out.Report.Metrics)),
		History:     historyResponse(h.engine.History()),
	}
	for _, m := range out.Report.Metrics {
		md := quality.DecorateMetric(m)
		mr := MetricResponse{
			Name:    m.Name,
			Kind:    m.Kind,
			Quality: m.Quality,
			Error:   errText(m.Err),
			Color:   md.Color,
			Lines:   md.Lines,
		}
		if m.Err == nil {
			stat := m.Statistic
			mr.Statistic = &stat
		}
		resp.Metrics = append(resp.Metrics, mr)
	}
	if occ := out.Occupancy; occ != nil {
		resp.Occupancy = &OccupancySummary{
			Counted:         occ.Valid,
			InvalidAddress:  occ.Rejected,
			BelowThreshold:  occ.BelowThreshold,
			Units:           occ.Distribution.Units(),
			MeanHitsPerUnit: occ.Distribution.Mean(),
		}
	}
	jsonResp(w, http.StatusOK, resp)
}

// alerts serves GET /api/v1/alerts: firing and recently resolved alerts.
func (h *Handler) alerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if h.notifier == nil {
		jsonResp(w, http.StatusOK, []*alerts.Alert{})
		return
	}
	jsonResp(w, http.StatusOK, h.notifier.Active(h.now()))
}

// aggregates serves GET /api/v1/aggregates: what the store can serve now.
func (h *Handler) aggregates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	names := h.store.Names()
	jsonResp(w, http.StatusOK, AggregatesResponse{Names: names, Count: len(names)})
}

func historyResponse(hist compute.History) HistoryResponse {
	return HistoryResponse{
		Cycles:   hist.Len(),
		Good:     hist.Count(types.Good),
		Medium:   hist.Count(types.Medium),
		Bad:      hist.Count(types.Bad),
		GoodPct:  hist.GoodPct(),
		Worst:    hist.Worst(),
		Verdicts: hist.Verdicts(),
	}
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
