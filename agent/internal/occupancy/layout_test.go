package occupancy

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// enumerate calls fn for every address with channel 0 whose detector, board
// and chip lie in the scheme's bounding box, valid or not.
func enumerate(l *Layout, fn func(a Address)) {
	for d := 0; d < l.Detectors(); d++ {
		v, _ := l.VariantOf(d)
		for c := 0; c < v.MaxCoarse()+1; c++ {
			for f := 0; f < v.FinePerCoarse; f++ {
				fn(Address{Detector: d, Coarse: c, Fine: f})
			}
		}
	}
}

// assertInjective checks that every valid address maps to a distinct index,
// that the indices cover [0, Size) exactly and that Decode inverts Index.
func assertInjective(t *testing.T, l *Layout) {
	t.Helper()
	seen := make(map[int]Address, l.Size())
	enumerate(l, func(a Address) {
		idx, err := l.Index(a)
		if err != nil {
			require.True(t, errors.Is(err, ErrInvalidAddress), "%+v: %v", a, err)
			return
		}
		if prev, dup := seen[idx]; dup {
			t.Fatalf("index %d shared by %+v and %+v", idx, prev, a)
		}
		seen[idx] = a
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, l.Size())

		back, err := l.Decode(idx)
		require.NoError(t, err)
		require.Equal(t, a, back, "Decode(Index(a)) != a")
	})
	assert.Len(t, seen, l.Size(), "valid addresses must cover every index")
}

func TestDefaultLayout_Injective(t *testing.T) {
	l := DefaultLayout()
	// 540 chambers. Stack 2 of each of the 18 sectors holds 6 short ones
	// (6 boards), the other 432 are long (8 boards). 16 chips per board.
	assert.Equal(t, 540, l.Detectors())
	assert.Equal(t, (108*6+432*8)*16, l.Size())
	assert.Equal(t, 8*16, l.MaxUnitsPerDetector())
	assertInjective(t, l)
}

func TestLayout_AsymmetricSides_Injective(t *testing.T) {
	variants := []Variant{
		{Name: "wide", CoarsePerSide: [2]int{4, 3}, FinePerCoarse: 5, Channels: 4},
		{Name: "lopsided", CoarsePerSide: [2]int{1, 2}, FinePerCoarse: 3, Channels: 2},
		{Name: "one-sided", CoarsePerSide: [2]int{0, 2}, FinePerCoarse: 2, Channels: 1},
	}
	l, err := NewLayout(9, variants, func(d int) int { return d % 3 })
	require.NoError(t, err)
	assert.Equal(t, 3*(7*5+3*3+2*2), l.Size())
	assertInjective(t, l)
}

func TestLayout_ParityDecidesSide(t *testing.T) {
	variants := []Variant{{Name: "v", CoarsePerSide: [2]int{4, 3}, FinePerCoarse: 2, Channels: 1}}
	l, err := NewLayout(1, variants, func(int) int { return 0 })
	require.NoError(t, err)

	valid := map[int]bool{0: true, 1: true, 2: true, 3: true, 4: true, 5: true, 6: true, 7: false, 8: false}
	for c, want := range valid {
		_, err := l.Index(Address{Coarse: c})
		assert.Equal(t, want, err == nil, "coarse %d", c)
	}
}

func TestDefaultLayout_ChannelsShareIndex(t *testing.T) {
	l := DefaultLayout()
	base, err := l.Index(Address{Detector: 77, Coarse: 5, Fine: 9})
	require.NoError(t, err)
	for ch := 0; ch < 21; ch++ {
		idx, err := l.Index(Address{Detector: 77, Coarse: 5, Fine: 9, Channel: ch})
		require.NoError(t, err)
		assert.Equal(t, base, idx)
	}
}

func TestDefaultLayout_Invalid(t *testing.T) {
	l := DefaultLayout()
	shortDet := 12 // stack 2
	longDet := 0

	tests := []struct {
		name string
		a    Address
	}{
		{"negative detector", Address{Detector: -1}},
		{"detector past end", Address{Detector: 540}},
		{"negative board", Address{Detector: longDet, Coarse: -1}},
		{"short chamber board 6", Address{Detector: shortDet, Coarse: 6}},
		{"short chamber board 7", Address{Detector: shortDet, Coarse: 7}},
		{"long chamber board 8", Address{Detector: longDet, Coarse: 8}},
		{"chip 16", Address{Detector: longDet, Fine: 16}},
		{"negative chip", Address{Detector: longDet, Fine: -1}},
		{"channel 21", Address{Detector: longDet, Channel: 21}},
		{"negative channel", Address{Detector: longDet, Channel: -1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := l.Index(tc.a)
			assert.ErrorIs(t, err, ErrInvalidAddress)
		})
	}

	_, err := l.Index(Address{Detector: longDet, Coarse: 7, Fine: 15, Channel: 20})
	assert.NoError(t, err, "long chamber board 7 is valid")
	_, err = l.Index(Address{Detector: shortDet, Coarse: 5, Fine: 15, Channel: 20})
	assert.NoError(t, err, "short chamber board 5 is valid")
}

func TestLayout_DecodeOutOfRange(t *testing.T) {
	l := DefaultLayout()
	_, err := l.Decode(-1)
	assert.Error(t, err)
	_, err = l.Decode(l.Size())
	assert.Error(t, err)
}

func TestLayout_Locate(t *testing.T) {
	l := DefaultLayout()
	for _, a := range []Address{
		{Detector: 0, Coarse: 0, Fine: 0},
		{Detector: 12, Coarse: 5, Fine: 15},
		{Detector: 539, Coarse: 7, Fine: 15},
	} {
		idx, err := l.Index(a)
		require.NoError(t, err)
		det, unit := l.Locate(idx)
		assert.Equal(t, a.Detector, det)
		assert.GreaterOrEqual(t, unit, 0)
		v, _ := l.VariantOf(det)
		assert.Less(t, unit, v.Units())
	}
}

func TestNewLayout_Errors(t *testing.T) {
	ok := []Variant{{Name: "v", CoarsePerSide: [2]int{1, 1}, FinePerCoarse: 1, Channels: 1}}

	_, err := NewLayout(0, ok, func(int) int { return 0 })
	assert.Error(t, err)

	_, err = NewLayout(2, ok, func(int) int { return 1 })
	assert.Error(t, err)

	_, err = NewLayout(1, []Variant{{Name: "empty", FinePerCoarse: 1, Channels: 1}}, func(int) int { return 0 })
	assert.Error(t, err)

	_, err = NewLayout(1, []Variant{{Name: "nochips", CoarsePerSide: [2]int{1, 0}, Channels: 1}}, func(int) int { return 0 })
	assert.Error(t, err)
}
