package types

import "fmt"

// Quality is an ordered verdict. Bad < Medium < Good.
//
// The zero value is Bad so a verdict that was never assigned can never be
// mistaken for a healthy one.
type Quality int

const (
	Bad Quality = iota
	Medium
	Good
)

// String returns the lower-case name used in logs, config and exposition labels.
func (q Quality) String() string {
	switch q {
	case Good:
		return "good"
	case Medium:
		return "medium"
	case Bad:
		return "bad"
	default:
		return fmt.Sprintf("quality(%d)", int(q))
	}
}

// Valid reports whether q is one of the three defined levels.
func (q Quality) Valid() bool {
	return q >= Bad && q <= Good
}

// MarshalText implements encoding.TextMarshaler.
func (q Quality) MarshalText() ([]byte, error) {
	if !q.Valid() {
		return nil, fmt.Errorf("types: invalid quality %d", int(q))
	}
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (q *Quality) UnmarshalText(b []byte) error {
	switch string(b) {
	case "good":
		*q = Good
	case "medium":
		*q = Medium
	case "bad":
		*q = Bad
	default:
		return fmt.Errorf("types: unknown quality %q", string(b))
	}
	return nil
}

// Worst returns the lower-ranked of a and b. Out-of-range values rank as Bad.
func Worst(a, b Quality) Quality {
	if !a.Valid() || !b.Valid() {
		return Bad
	}
	if a < b {
		return a
	}
	return b
}
