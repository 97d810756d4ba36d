package occupancy

import (
	"errors"
	"log/slog"
	"slices"

	"github.com/obsidianstack/detqc/agent/internal/histstore"
)

const (
	// DefaultMaxHits is used when Options.MaxHits is unset.
	DefaultMaxHits = 64

	// DefaultAmplitudeMax is used when Options.AmplitudeMax is unset.
	DefaultAmplitudeMax = 1024

	// AmplitudeBins is the bin count of the amplitude spectrum.
	AmplitudeBins = 128
)

// ErrBelowThreshold is returned by Admit for hits under Options.MinAmplitude.
var ErrBelowThreshold = errors.New("occupancy: amplitude below threshold")

// Options tune Compute.
type Options struct {
	// MaxHits is the largest hit count with its own distribution bin.
	MaxHits int

	// MinAmplitude drops hits whose summed amplitude is below it.
	// 0 keeps every hit.
	MinAmplitude float64

	// AmplitudeMax is the upper edge of the amplitude spectrum. Larger
	// amplitudes land in the last bin.
	AmplitudeMax float64
}

// Result is the outcome of grouping one cycle of hits.
type Result struct {
	Distribution *Distribution

	// Map counts hits per unit on a unit x detector grid. Nil when the
	// scheme does not implement Locator.
	Map *histstore.Hist2D

	// Amplitude is the summed-amplitude spectrum of the counted hits.
	Amplitude *histstore.Hist1D

	Valid          int // hits that were counted
	Rejected       int // hits dropped for an invalid address
	BelowThreshold int // hits dropped by MinAmplitude
}

// Compute groups hits by canonical unit index and returns the distribution
// of hits per unit. Hits with invalid addresses are skipped and counted in
// Result.Rejected; they contribute nothing to the distribution. The result
// does not depend on the order of hits.
func Compute(hits []Hit, scheme Scheme, opts Options) Result {
	if opts.MaxHits <= 0 {
		opts.MaxHits = DefaultMaxHits
	}
	if opts.AmplitudeMax <= 0 {
		opts.AmplitudeMax = DefaultAmplitudeMax
	}
	res := Result{
		Distribution: NewDistribution(opts.MaxHits),
		Amplitude:    histstore.NewHist1D(AmplitudeBins, 0, opts.AmplitudeMax),
	}

	loc, hasMap := scheme.(Locator)
	if hasMap {
		res.Map = histstore.NewHist2D(loc.MaxUnitsPerDetector(), loc.Detectors())
	}

	keys := make([]int, 0, len(hits))
	var firstErr error
	for _, h := range hits {
		idx, err := Admit(h, scheme, opts)
		switch {
		case errors.Is(err, ErrBelowThreshold):
			res.BelowThreshold++
			continue
		case err != nil:
			res.Rejected++
			if firstErr == nil {
				firstErr = err
			}
			slog.Debug("occupancy: hit rejected", "err", err)
			continue
		}
		res.Amplitude.Fill(h.Amplitude())
		keys = append(keys, idx)
	}
	res.Valid = len(keys)

	if res.Rejected > 0 {
		slog.Warn("occupancy: skipped hits with invalid address",
			"rejected", res.Rejected, "total", len(hits), "first_err", firstErr)
	}

	slices.Sort(keys)

	run := 0
	for i, k := range keys {
		if i > 0 && k != keys[i-1] {
			res.Distribution.Observe(run)
			run = 0
		}
		run++
		if hasMap {
			det, unit := loc.Locate(k)
			res.Map.Fill(unit, det)
		}
	}
	if run > 0 {
		res.Distribution.Observe(run)
	}
	return res
}

// Admit returns the unit index h is counted under, or why it is not counted:
// an error wrapping ErrInvalidAddress or ErrBelowThreshold.
func Admit(h Hit, scheme Scheme, opts Options) (int, error) {
	idx, err := scheme.Index(h.Address)
	if err != nil {
		return 0, err
	}
	if opts.MinAmplitude > 0 && h.Amplitude() < opts.MinAmplitude {
		return 0, ErrBelowThreshold
	}
	return idx, nil
}
