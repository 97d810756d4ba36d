package check

import (
	"errors"
	"fmt"
	"math"

	"github.com/obsidianstack/detqc/pkg/types"
)

var (
	// ErrMissingInput means the named aggregate could not be located.
	ErrMissingInput = errors.New("missing input")

	// ErrMalformedAggregate means the aggregate exists but has the wrong shape
	// for the requested kind.
	ErrMalformedAggregate = errors.New("malformed aggregate")
)

// Assessment is the result of evaluating one aggregate.
type Assessment struct {
	Quality types.Quality

	// Statistic is the value compared against the bounds: the mean, the
	// entry count or the empty-bin fraction depending on the kind.
	// Zero when Err is set.
	Statistic float64

	// Err is non-nil when the aggregate was unusable. Quality is then Bad.
	Err error
}

// Evaluate returns the verdict for agg under spec.
func Evaluate(agg types.Aggregate, spec Spec) types.Quality {
	return Assess(agg, spec).Quality
}

// Assess evaluates agg under spec and returns the verdict together with the
// statistic it was based on. A nil agg yields Bad with ErrMissingInput.
func Assess(agg types.Aggregate, spec Spec) Assessment {
	if agg == nil {
		return unusable(fmt.Errorf("%q: %w", spec.Name, ErrMissingInput))
	}

	switch spec.Kind {
	case KindMeanInRange:
		return meanInRange(agg, spec)
	case KindMinEntries:
		n := agg.EntryCount()
		q := types.Good
		if n < spec.MinEntries {
			q = types.Bad
		}
		return Assessment{Quality: q, Statistic: float64(n)}
	case KindEmptyBinFraction:
		return emptyBinFraction(agg, agg.BinCount(), spec)
	case KindEmptyBinFraction2D:
		grid, ok := agg.(types.Aggregate2D)
		if !ok {
			return unusable(fmt.Errorf("%q: %w: want a 2-D aggregate", spec.Name, ErrMalformedAggregate))
		}
		total := grid.Width() * grid.Height()
		if total != grid.BinCount() {
			return unusable(fmt.Errorf("%q: %w: %dx%d grid holds %d bins",
				spec.Name, ErrMalformedAggregate, grid.Width(), grid.Height(), grid.BinCount()))
		}
		return emptyBinFraction(grid, total, spec)
	default:
		return unusable(fmt.Errorf("%q: unknown kind %q", spec.Name, spec.Kind))
	}
}

func meanInRange(agg types.Aggregate, spec Spec) Assessment {
	// A silent detector is a failure no matter what the mean says.
	if agg.EntryCount() == 0 {
		return Assessment{Quality: types.Bad}
	}
	mean := agg.Mean()
	if math.IsNaN(mean) {
		return unusable(fmt.Errorf("%q: %w: mean is NaN", spec.Name, ErrMalformedAggregate))
	}

	out := Assessment{Statistic: mean}
	switch {
	case mean < spec.Low:
		out.Quality = types.Bad
	case mean <= spec.High:
		out.Quality = types.Good
	default:
		out.Quality = types.Medium
	}
	return out
}

func emptyBinFraction(agg types.Aggregate, total int, spec Spec) Assessment {
	if total <= 0 {
		return unusable(fmt.Errorf("%q: %w: no bins", spec.Name, ErrMalformedAggregate))
	}
	var empty int
	for i := 0; i < total; i++ {
		if agg.BinContent(i) == 0 {
			empty++
		}
	}
	frac := float64(empty) / float64(total)

	q := types.Good
	if frac > spec.MaxEmptyFraction {
		q = types.Bad
	}
	return Assessment{Quality: q, Statistic: frac}
}

func unusable(err error) Assessment {
	return Assessment{Quality: types.Bad, Err: err}
}
