package quality

import (
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/obsidianstack/detqc/agent/internal/check"
	"github.com/obsidianstack/detqc/agent/internal/histstore"
	"github.com/obsidianstack/detqc/pkg/types"
)

var evalTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// meanHist returns a histogram with n samples all at x.
func meanHist(n int, x float64) *histstore.Hist1D {
	h := histstore.NewHist1D(100, 0, 1e5)
	for i := 0; i < n; i++ {
		h.Fill(x)
	}
	return h
}

func trackletSpec(name string) check.Spec {
	return check.Spec{Name: name, Kind: check.KindMeanInRange, Low: 1e4, High: 5e4}
}

func newStore(aggs map[string]types.Aggregate) *histstore.Store {
	st := histstore.New(0)
	st.PutAll(aggs)
	return st
}

func TestEvaluator_ExampleScenario(t *testing.T) {
	ev, err := NewEvaluator([]check.Spec{trackletSpec("good"), trackletSpec("silent"), trackletSpec("hot")}, 2)
	require.NoError(t, err)

	st := newStore(map[string]types.Aggregate{
		"good":   meanHist(1000, 3e4),
		"silent": histstore.NewHist1D(100, 0, 1e5),
		"hot":    meanHist(10, 6e4),
	})
	rep := ev.Evaluate(st, evalTime)

	want := map[string]types.Quality{"good": good, "silent": bad, "hot": medium}
	for name, q := range want {
		m, ok := rep.Metric(name)
		require.True(t, ok, name)
		assert.Equal(t, q, m.Quality, name)
	}
	assert.Equal(t, bad, rep.Overall)
	assert.Equal(t, []string{"hot", "silent"}, rep.Failed())
	assert.Equal(t, evalTime, rep.EvaluatedAt)
}

func TestEvaluator_MissingInputIsBadAndDoesNotAbort(t *testing.T) {
	ev, err := NewEvaluator([]check.Spec{trackletSpec("a"), trackletSpec("gone"), trackletSpec("c")}, 1)
	require.NoError(t, err)

	st := newStore(map[string]types.Aggregate{
		"a": meanHist(5, 2e4),
		"c": meanHist(5, 7e4),
	})
	rep := ev.Evaluate(st, evalTime)

	require.Len(t, rep.Metrics, 3, "every metric is evaluated")
	gone, _ := rep.Metric("gone")
	assert.Equal(t, bad, gone.Quality)
	assert.True(t, errors.Is(gone.Err, check.ErrMissingInput))

	c, _ := rep.Metric("c")
	assert.Equal(t, medium, c.Quality, "metrics after the missing one are still assessed")
	assert.Equal(t, []string{"gone"}, rep.Unavailable())
	assert.Equal(t, bad, rep.Overall)
}

func TestEvaluator_MissingInputNeverBetterThanBad(t *testing.T) {
	// Whatever the other metrics say, a missing one pins the verdict at Bad.
	for _, others := range []types.Aggregate{meanHist(10, 3e4), meanHist(10, 6e4)} {
		ev, err := NewEvaluator([]check.Spec{trackletSpec("present"), trackletSpec("absent")}, 4)
		require.NoError(t, err)
		rep := ev.Evaluate(newStore(map[string]types.Aggregate{"present": others}), evalTime)
		assert.Equal(t, bad, rep.Overall)
	}
}

func TestEvaluator_StaleAggregateIsMissing(t *testing.T) {
	clock := evalTime
	st := histstore.NewWithClock(time.Minute, func() time.Time { return clock })
	st.Put("old", meanHist(10, 3e4))

	ev, err := NewEvaluator([]check.Spec{trackletSpec("old")}, 1)
	require.NoError(t, err)

	assert.Equal(t, good, ev.Evaluate(st, evalTime).Overall)

	clock = clock.Add(2 * time.Minute)
	rep := ev.Evaluate(st, clock)
	assert.Equal(t, bad, rep.Overall)
	assert.Equal(t, []string{"old"}, rep.Unavailable())
}

func TestEvaluator_MalformedIsBad(t *testing.T) {
	spec := check.Spec{Name: "map", Kind: check.KindEmptyBinFraction2D, MaxEmptyFraction: 1}
	ev, err := NewEvaluator([]check.Spec{spec}, 1)
	require.NoError(t, err)

	rep := ev.Evaluate(newStore(map[string]types.Aggregate{"map": meanHist(3, 1)}), evalTime)
	m, _ := rep.Metric("map")
	assert.Equal(t, bad, m.Quality)
	assert.True(t, errors.Is(m.Err, check.ErrMalformedAggregate))
	assert.Empty(t, rep.Unavailable(), "malformed is not missing")
}

func TestEvaluator_NoShortCircuit(t *testing.T) {
	var calls atomic.Int64
	lookup := LookupFunc(func(name string) (types.Aggregate, bool) {
		calls.Add(1)
		return nil, false
	})

	specs := make([]check.Spec, 20)
	for i := range specs {
		specs[i] = trackletSpec(fmt.Sprintf("m%02d", i))
	}
	ev, err := NewEvaluator(specs, 3)
	require.NoError(t, err)

	rep := ev.Evaluate(lookup, evalTime)
	assert.Equal(t, int64(20), calls.Load())
	assert.Len(t, rep.Failed(), 20)
}

func TestEvaluator_ParallelMatchesSequential(t *testing.T) {
	aggs := map[string]types.Aggregate{}
	var specs []check.Spec
	for i := 0; i < 40; i++ {
		name := fmt.Sprintf("m%02d", i)
		specs = append(specs, trackletSpec(name))
		if i%7 != 0 {
			aggs[name] = meanHist(1+i, float64(i)*2e3)
		}
	}
	st := newStore(aggs)

	seq, err := NewEvaluator(specs, 1)
	require.NoError(t, err)
	par, err := NewEvaluator(specs, 8)
	require.NoError(t, err)

	a := seq.Evaluate(st, evalTime)
	b := par.Evaluate(st, evalTime)
	sameError := cmp.Comparer(func(x, y error) bool {
		if x == nil || y == nil {
			return x == nil && y == nil
		}
		return x.Error() == y.Error()
	})
	if diff := cmp.Diff(a, b, sameError); diff != "" {
		t.Errorf("parallel report differs (-seq +par):\n%s", diff)
	}
}

func TestEvaluator_NoSpecsIsGood(t *testing.T) {
	ev, err := NewEvaluator(nil, 2)
	require.NoError(t, err)
	assert.Equal(t, good, ev.Evaluate(newStore(nil), evalTime).Overall)
}

func TestNewEvaluator_RejectsInvalidSpecs(t *testing.T) {
	_, err := NewEvaluator([]check.Spec{{Name: "x", Kind: check.KindMeanInRange, Low: 2, High: 1}}, 1)
	assert.ErrorIs(t, err, check.ErrInvalidBounds)

	_, err = NewEvaluator([]check.Spec{trackletSpec("dup"), trackletSpec("dup")}, 1)
	assert.Error(t, err)
}
