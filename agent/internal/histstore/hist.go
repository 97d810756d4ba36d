package histstore

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/obsidianstack/detqc/pkg/types"
)

// Hist1D is a fixed-bin one-dimensional histogram.
// Samples outside [lo, hi) are clamped into the first or last bin.
type Hist1D struct {
	lo, hi  float64
	bins    []uint64
	entries uint64
	sum     float64
}

var _ types.Aggregate = (*Hist1D)(nil)

// NewHist1D returns an empty histogram with nbins equal-width bins over [lo, hi).
// nbins < 1 is treated as 1.
func NewHist1D(nbins int, lo, hi float64) *Hist1D {
	if nbins < 1 {
		nbins = 1
	}
	return &Hist1D{lo: lo, hi: hi, bins: make([]uint64, nbins)}
}

// FromBins builds a histogram from precomputed bin contents. entries is the
// number of samples and sum their total; both are taken as given because an
// exposition may report more samples than the bins hold.
func FromBins(bins []uint64, entries uint64, sum float64) *Hist1D {
	cp := make([]uint64, len(bins))
	copy(cp, bins)
	return &Hist1D{lo: 0, hi: float64(len(bins)), bins: cp, entries: entries, sum: sum}
}

// Fill records one sample.
func (h *Hist1D) Fill(x float64) {
	h.bins[h.binOf(x)]++
	h.entries++
	h.sum += x
}

func (h *Hist1D) binOf(x float64) int {
	n := len(h.bins)
	if h.hi <= h.lo || math.IsNaN(x) || x < h.lo {
		return 0
	}
	i := int((x - h.lo) / (h.hi - h.lo) * float64(n))
	if i >= n {
		return n - 1
	}
	return i
}

func (h *Hist1D) EntryCount() uint64 { return h.entries }

// Mean returns sum/entries, or 0 for an empty histogram.
func (h *Hist1D) Mean() float64 {
	if h.entries == 0 {
		return 0
	}
	return h.sum / float64(h.entries)
}

func (h *Hist1D) BinCount() int { return len(h.bins) }

func (h *Hist1D) BinContent(i int) uint64 {
	if i < 0 || i >= len(h.bins) {
		return 0
	}
	return h.bins[i]
}

// Hist2D is an integer-addressed Width x Height count map.
type Hist2D struct {
	width, height int
	bins          []uint64
	entries       uint64
}

var _ types.Aggregate2D = (*Hist2D)(nil)

// NewHist2D returns an empty width x height map. Non-positive sizes become 1.
func NewHist2D(width, height int) *Hist2D {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	return &Hist2D{width: width, height: height, bins: make([]uint64, width*height)}
}

// Fill adds one count at (x, y). Points off the grid are ignored and
// reported as false.
func (h *Hist2D) Fill(x, y int) bool {
	if x < 0 || x >= h.width || y < 0 || y >= h.height {
		return false
	}
	h.bins[y*h.width+x]++
	h.entries++
	return true
}

func (h *Hist2D) EntryCount() uint64 { return h.entries }

// Mean is the content-weighted mean column (x) of the map.
func (h *Hist2D) Mean() float64 {
	if h.entries == 0 {
		return 0
	}
	xs := make([]float64, len(h.bins))
	ws := make([]float64, len(h.bins))
	for i, c := range h.bins {
		xs[i] = float64(i % h.width)
		ws[i] = float64(c)
	}
	return stat.Mean(xs, ws)
}

func (h *Hist2D) BinCount() int { return len(h.bins) }

func (h *Hist2D) BinContent(i int) uint64 {
	if i < 0 || i >= len(h.bins) {
		return 0
	}
	return h.bins[i]
}

// At returns the count at (x, y), 0 off the grid.
func (h *Hist2D) At(x, y int) uint64 {
	if x < 0 || x >= h.width || y < 0 || y >= h.height {
		return 0
	}
	return h.bins[y*h.width+x]
}

func (h *Hist2D) Width() int  { return h.width }
func (h *Hist2D) Height() int { return h.height }
