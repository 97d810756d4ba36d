package occupancy

import "github.com/obsidianstack/detqc/pkg/types"

// Distribution counts units by hit count. Bin k (0 <= k <= MaxHits) holds
// the units that saw exactly k hits; the final bin holds units that saw
// more than MaxHits.
type Distribution struct {
	bins  []uint64
	units uint64
	hits  uint64
}

var _ types.Aggregate = (*Distribution)(nil)

// NewDistribution returns an empty distribution with exact bins up to
// maxHits. maxHits < 1 is treated as 1.
func NewDistribution(maxHits int) *Distribution {
	if maxHits < 1 {
		maxHits = 1
	}
	return &Distribution{bins: make([]uint64, maxHits+2)}
}

// Observe records one unit that saw n hits. Negative n is ignored.
func (d *Distribution) Observe(n int) {
	if n < 0 {
		return
	}
	i := n
	if i > d.MaxHits() {
		i = len(d.bins) - 1
	}
	d.bins[i]++
	d.units++
	d.hits += uint64(n)
}

// MaxHits returns the largest hit count with its own bin.
func (d *Distribution) MaxHits() int { return len(d.bins) - 2 }

// Overflow returns the number of units that saw more than MaxHits hits.
func (d *Distribution) Overflow() uint64 { return d.bins[len(d.bins)-1] }

// Hits returns the total hits over all observed units.
func (d *Distribution) Hits() uint64 { return d.hits }

// Units returns the number of observed units.
func (d *Distribution) Units() uint64 { return d.units }

// EntryCount implements types.Aggregate: the number of observed units.
func (d *Distribution) EntryCount() uint64 { return d.units }

// Mean implements types.Aggregate: mean hits per observed unit.
func (d *Distribution) Mean() float64 {
	if d.units == 0 {
		return 0
	}
	return float64(d.hits) / float64(d.units)
}

func (d *Distribution) BinCount() int { return len(d.bins) }

func (d *Distribution) BinContent(i int) uint64 {
	if i < 0 || i >= len(d.bins) {
		return 0
	}
	return d.bins[i]
}

// Bins returns a copy of the bin contents.
func (d *Distribution) Bins() []uint64 {
	return append([]uint64(nil), d.bins...)
}
