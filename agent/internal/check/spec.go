package check

import (
	"errors"
	"fmt"
	"math"
)

// Kind selects the evaluation rule applied to an aggregate.
type Kind string

const (
	KindMeanInRange        Kind = "mean_in_range"
	KindMinEntries         Kind = "min_entries"
	KindEmptyBinFraction   Kind = "empty_bin_fraction"
	KindEmptyBinFraction2D Kind = "empty_bin_fraction_2d"
)

// Kinds lists every supported kind in declaration order.
var Kinds = []Kind{KindMeanInRange, KindMinEntries, KindEmptyBinFraction, KindEmptyBinFraction2D}

// ParseKind maps a config string to a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("check: unknown kind %q", s)
}

// ErrInvalidBounds is returned by Spec.Validate when the thresholds violate
// their invariants.
var ErrInvalidBounds = errors.New("invalid bounds")

// Spec is the configuration for one metric. Only the fields used by Kind
// are consulted.
type Spec struct {
	// Name is the aggregate name looked up in the histogram store.
	Name string
	Kind Kind

	// Low and High bound the mean for KindMeanInRange.
	Low  float64
	High float64

	// MinEntries is the minimum entry count for KindMinEntries.
	MinEntries uint64

	// MaxEmptyFraction is the largest tolerated fraction of empty bins for
	// the empty-bin kinds, in [0, 1].
	MaxEmptyFraction float64
}

// Validate checks the invariants for s.Kind.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("check: %w: metric name is required", ErrInvalidBounds)
	}
	switch s.Kind {
	case KindMeanInRange:
		if math.IsNaN(s.Low) || math.IsNaN(s.High) {
			return fmt.Errorf("check: %q: %w: low/high must be numbers", s.Name, ErrInvalidBounds)
		}
		if s.Low > s.High {
			return fmt.Errorf("check: %q: %w: low %g > high %g", s.Name, ErrInvalidBounds, s.Low, s.High)
		}
	case KindMinEntries:
	case KindEmptyBinFraction, KindEmptyBinFraction2D:
		if !(s.MaxEmptyFraction >= 0 && s.MaxEmptyFraction <= 1) {
			return fmt.Errorf("check: %q: %w: max_empty_fraction %g outside [0,1]", s.Name, ErrInvalidBounds, s.MaxEmptyFraction)
		}
	default:
		return fmt.Errorf("check: %q: unknown kind %q", s.Name, s.Kind)
	}
	return nil
}
