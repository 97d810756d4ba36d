package occupancy

import "errors"

// ErrInvalidAddress is returned by Scheme.Index for addresses outside the
// scheme's valid ranges.
var ErrInvalidAddress = errors.New("invalid address")

// Address locates the physical source of a hit.
type Address struct {
	Detector int
	Coarse   int // readout board
	Fine     int // chip on the board
	Channel  int // input on the chip
}

// Hit is one decoded hit for the current cycle.
type Hit struct {
	Address    Address
	Amplitudes []float64
}

// Amplitude returns the summed signal amplitude of h.
func (h Hit) Amplitude() float64 {
	var sum float64
	for _, a := range h.Amplitudes {
		sum += a
	}
	return sum
}

// Scheme maps addresses to canonical unit indices.
type Scheme interface {
	// Index returns the canonical unit index for a, or an error wrapping
	// ErrInvalidAddress. The channel is validated but does not affect the
	// index: all channels of a unit share it.
	Index(a Address) (int, error)

	// Decode is the inverse of Index. The returned Channel is always 0.
	Decode(index int) (Address, error)

	// Size is the number of distinct unit indices; valid indices are [0, Size).
	Size() int
}

// Locator is implemented by schemes that can place a unit on a
// detector x unit grid for occupancy maps.
type Locator interface {
	Detectors() int
	MaxUnitsPerDetector() int
	// Locate returns the detector and the unit's position within it.
	Locate(index int) (detector, unit int)
}
