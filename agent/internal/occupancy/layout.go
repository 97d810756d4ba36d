package occupancy

import (
	"fmt"
	"sort"
)

// Variant describes the electronics of one detector hardware type.
type Variant struct {
	Name string

	// CoarsePerSide is the number of readout boards on each side. The side
	// of board c is c&1, and board c is valid iff c>>1 < CoarsePerSide[c&1].
	// The two sides may differ.
	CoarsePerSide [2]int

	// FinePerCoarse is the number of chips per readout board.
	FinePerCoarse int

	// Channels is the number of inputs per chip.
	Channels int
}

// Units returns the number of electronics units (chips) in one detector.
func (v Variant) Units() int {
	return (v.CoarsePerSide[0] + v.CoarsePerSide[1]) * v.FinePerCoarse
}

// MaxCoarse returns one past the largest valid coarse id.
func (v Variant) MaxCoarse() int {
	n := 0
	for side, per := range v.CoarsePerSide {
		if per > 0 {
			if last := 2*(per-1) + side + 1; last > n {
				n = last
			}
		}
	}
	return n
}

func (v Variant) validate() error {
	if v.CoarsePerSide[0] < 0 || v.CoarsePerSide[1] < 0 {
		return fmt.Errorf("variant %q: negative coarse count", v.Name)
	}
	if v.CoarsePerSide[0]+v.CoarsePerSide[1] == 0 {
		return fmt.Errorf("variant %q: no coarse units", v.Name)
	}
	if v.FinePerCoarse <= 0 || v.Channels <= 0 {
		return fmt.Errorf("variant %q: fine and channel counts must be positive", v.Name)
	}
	return nil
}

// Layout is a Scheme built from a per-detector variant table. Indices are
// dense: detector d owns [offset[d], offset[d+1]); within a detector side 0
// comes first, then side 1, each ordered by board slot then chip.
type Layout struct {
	variants []Variant
	of       []int // variant index per detector
	offsets  []int // len detectors+1
	maxUnits int
}

var (
	_ Scheme  = (*Layout)(nil)
	_ Locator = (*Layout)(nil)
)

// NewLayout builds a Layout for detectors [0, detectors). variantOf returns
// the index into variants for each detector.
func NewLayout(detectors int, variants []Variant, variantOf func(det int) int) (*Layout, error) {
	if detectors <= 0 {
		return nil, fmt.Errorf("occupancy: layout needs at least one detector")
	}
	for _, v := range variants {
		if err := v.validate(); err != nil {
			return nil, fmt.Errorf("occupancy: %w", err)
		}
	}

	l := &Layout{
		variants: append([]Variant(nil), variants...),
		of:       make([]int, detectors),
		offsets:  make([]int, detectors+1),
	}
	for d := 0; d < detectors; d++ {
		vi := variantOf(d)
		if vi < 0 || vi >= len(variants) {
			return nil, fmt.Errorf("occupancy: detector %d maps to unknown variant %d", d, vi)
		}
		l.of[d] = vi
		units := variants[vi].Units()
		l.offsets[d+1] = l.offsets[d] + units
		if units > l.maxUnits {
			l.maxUnits = units
		}
	}
	return l, nil
}

// Default geometry: 18 sectors x 5 stacks x 6 layers. Chambers in the middle
// stack carry the short board set.
const (
	DefaultSectors  = 18
	DefaultStacks   = 5
	DefaultLayers   = 6
	DefaultChambers = DefaultSectors * DefaultStacks * DefaultLayers

	shortStack = 2
)

// DefaultVariants are the long (8 boards) and short (6 boards) chamber types,
// 16 chips per board and 21 channels per chip.
var DefaultVariants = []Variant{
	{Name: "long", CoarsePerSide: [2]int{4, 4}, FinePerCoarse: 16, Channels: 21},
	{Name: "short", CoarsePerSide: [2]int{3, 3}, FinePerCoarse: 16, Channels: 21},
}

// DefaultLayout returns the 540-chamber layout.
func DefaultLayout() *Layout {
	l, err := NewLayout(DefaultChambers, DefaultVariants, func(det int) int {
		stack := (det % (DefaultStacks * DefaultLayers)) / DefaultLayers
		if stack == shortStack {
			return 1
		}
		return 0
	})
	if err != nil {
		panic(err) // static table
	}
	return l
}

// Size returns the total number of units.
func (l *Layout) Size() int { return l.offsets[len(l.offsets)-1] }

// Detectors returns the number of detectors.
func (l *Layout) Detectors() int { return len(l.of) }

// MaxUnitsPerDetector returns the unit count of the largest variant in use.
func (l *Layout) MaxUnitsPerDetector() int { return l.maxUnits }

// VariantOf returns the variant of detector d.
func (l *Layout) VariantOf(d int) (Variant, bool) {
	if d < 0 || d >= len(l.of) {
		return Variant{}, false
	}
	return l.variants[l.of[d]], true
}

// Index implements Scheme.
func (l *Layout) Index(a Address) (int, error) {
	v, ok := l.VariantOf(a.Detector)
	if !ok {
		return 0, fmt.Errorf("occupancy: %w: detector %d outside [0,%d)", ErrInvalidAddress, a.Detector, len(l.of))
	}
	if a.Coarse < 0 {
		return 0, fmt.Errorf("occupancy: %w: detector %d: negative board %d", ErrInvalidAddress, a.Detector, a.Coarse)
	}
	side, slot := a.Coarse&1, a.Coarse>>1
	if slot >= v.CoarsePerSide[side] {
		return 0, fmt.Errorf("occupancy: %w: detector %d (%s): board %d, side %d holds %d boards",
			ErrInvalidAddress, a.Detector, v.Name, a.Coarse, side, v.CoarsePerSide[side])
	}
	if a.Fine < 0 || a.Fine >= v.FinePerCoarse {
		return 0, fmt.Errorf("occupancy: %w: detector %d board %d: chip %d outside [0,%d)",
			ErrInvalidAddress, a.Detector, a.Coarse, a.Fine, v.FinePerCoarse)
	}
	if a.Channel < 0 || a.Channel >= v.Channels {
		return 0, fmt.Errorf("occupancy: %w: detector %d board %d chip %d: channel %d outside [0,%d)",
			ErrInvalidAddress, a.Detector, a.Coarse, a.Fine, a.Channel, v.Channels)
	}

	local := slot*v.FinePerCoarse + a.Fine
	if side == 1 {
		local += v.CoarsePerSide[0] * v.FinePerCoarse
	}
	return l.offsets[a.Detector] + local, nil
}

// Decode implements Scheme.
func (l *Layout) Decode(index int) (Address, error) {
	if index < 0 || index >= l.Size() {
		return Address{}, fmt.Errorf("occupancy: index %d outside [0,%d)", index, l.Size())
	}
	det, local := l.Locate(index)
	v := l.variants[l.of[det]]

	side := 0
	if sideZero := v.CoarsePerSide[0] * v.FinePerCoarse; local >= sideZero {
		side = 1
		local -= sideZero
	}
	slot, fine := local/v.FinePerCoarse, local%v.FinePerCoarse
	return Address{Detector: det, Coarse: slot<<1 | side, Fine: fine}, nil
}

// Locate implements Locator. index must be in [0, Size).
func (l *Layout) Locate(index int) (detector, unit int) {
	// offsets is non-decreasing; find the last detector starting at or before index.
	d := sort.Search(len(l.of), func(i int) bool { return l.offsets[i+1] > index })
	return d, index - l.offsets[d]
}
