package api

import (
	"time"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/pkg/types"
)

// ReportResponse is the payload for GET /api/v1/report.
type ReportResponse struct {
	Overall     types.Quality     `json:"overall"`
	Color       string            `json:"color"`
	Lines       []string          `json:"lines"`
	EvaluatedAt time.Time         `json:"evaluated_at"`
	LoadError   string            `json:"load_error,omitempty"`
	HitsError   string            `json:"hits_error,omitempty"`
	Metrics     []MetricResponse  `json:"metrics"`
	Occupancy   *OccupancySummary `json:"occupancy,omitempty"`
	History     HistoryResponse   `json:"history"`
}

// MetricResponse is one metric verdict within a report.
type MetricResponse struct {
	Name      string        `json:"name"`
	Kind      check.Kind    `json:"kind"`
	Quality   types.Quality `json:"quality"`
	Statistic *float64      `json:"statistic,omitempty"`
	Error     string        `json:"error,omitempty"`
	Color     string        `json:"color"`
	Lines     []string      `json:"lines"`
}

// OccupancySummary counts the hits of the last grouping pass.
type OccupancySummary struct {
	Counted         int     `json:"counted"`
	InvalidAddress  int     `json:"invalid_address"`
	BelowThreshold  int     `json:"below_threshold"`
	Units           uint64  `json:"units"`
	MeanHitsPerUnit float64 `json:"mean_hits_per_unit"`
}

// HistoryResponse summarises the recent overall verdicts.
type HistoryResponse struct {
	Cycles   int             `json:"cycles"`
	Good     int             `json:"good"`
	Medium   int             `json:"medium"`
	Bad      int             `json:"bad"`
	GoodPct  float64         `json:"good_pct"`
	Worst    types.Quality   `json:"worst"`
	Verdicts []types.Quality `json:"verdicts"`
}

// AggregatesResponse is the payload for GET /api/v1/aggregates.
type AggregatesResponse struct {
	Names []string `json:"names"`
	Count int      `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}
