package types

// Aggregate is a read-only summary of one metric's samples for a cycle.
// The histogram store owns and mutates the underlying data.
type Aggregate interface {
	// EntryCount is the total number of samples filled.
	EntryCount() uint64

	// Mean is the arithmetic mean of the filled samples.
	Mean() float64

	// BinCount is the number of bins, including any overflow bin.
	BinCount() int

	// BinContent returns the count in bin i, 0 <= i < BinCount().
	// Out-of-range indices return 0.
	BinContent(i int) uint64
}

// Aggregate2D is an Aggregate laid out on a Width x Height grid.
// BinContent is indexed row-major: i = y*Width() + x.
type Aggregate2D interface {
	Aggregate
	Width() int
	Height() int
}
