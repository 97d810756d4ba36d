package histstore

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/obsidianstack/detqc/pkg/types"
)

func agg(mean float64, entries uint64) types.Aggregate {
	h := NewHist1D(4, 0, 4)
	for i := uint64(0); i < entries; i++ {
		h.Fill(mean)
	}
	return h
}

// fixedClock returns a func() time.Time that always returns t.
func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestPutAndLookup(t *testing.T) {
	st := New(5 * time.Minute)
	st.Put("nTrackletsTF", agg(2, 3))

	a, ok := st.Lookup("nTrackletsTF")
	if !ok {
		t.Fatal("Lookup: expected entry, got none")
	}
	if a.EntryCount() != 3 {
		t.Errorf("EntryCount: got %d, want 3", a.EntryCount())
	}
}

func TestLookup_Missing(t *testing.T) {
	st := New(5 * time.Minute)
	if _, ok := st.Lookup("unknown"); ok {
		t.Fatal("Lookup on empty store: expected false, got true")
	}
}

func TestPut_Overwrites(t *testing.T) {
	st := New(5 * time.Minute)
	st.Put("m", agg(1, 1))
	st.Put("m", agg(1, 7))

	a, ok := st.Lookup("m")
	if !ok {
		t.Fatal("Lookup: expected entry after two Puts")
	}
	if a.EntryCount() != 7 {
		t.Errorf("EntryCount: got %d, want 7", a.EntryCount())
	}
}

func TestLookup_HidesStale(t *testing.T) {
	base := time.Now()
	st := New(5 * time.Minute)

	st.now = fixedClock(base.Add(-10 * time.Minute))
	st.Put("old", agg(1, 1))

	st.now = fixedClock(base)
	st.Put("new", agg(1, 1))

	if _, ok := st.Lookup("old"); ok {
		t.Error("Lookup(old): stale entry should be hidden")
	}
	if _, ok := st.Lookup("new"); !ok {
		t.Error("Lookup(new): fresh entry should be visible")
	}
	names := st.Names()
	if len(names) != 1 || names[0] != "new" {
		t.Errorf("Names: got %v, want [new]", names)
	}
	if st.Count() != 2 {
		t.Errorf("Count: got %d, want 2 (stale included)", st.Count())
	}
}

func TestZeroTTL_NeverExpires(t *testing.T) {
	base := time.Now()
	st := NewWithClock(0, fixedClock(base.Add(-24*time.Hour)))
	st.Put("m", agg(1, 1))

	st.now = fixedClock(base)
	if _, ok := st.Lookup("m"); !ok {
		t.Error("Lookup: zero TTL should never expire entries")
	}
	if n := st.Evict(base); n != 0 {
		t.Errorf("Evict: got %d, want 0", n)
	}
}

func TestEvict(t *testing.T) {
	base := time.Now()
	st := New(time.Minute)

	st.now = fixedClock(base.Add(-2 * time.Minute))
	st.PutAll(map[string]types.Aggregate{"a": agg(1, 1), "b": agg(1, 1)})
	st.now = fixedClock(base)
	st.Put("c", agg(1, 1))

	if n := st.Evict(base); n != 2 {
		t.Errorf("Evict: removed %d, want 2", n)
	}
	if st.Count() != 1 {
		t.Errorf("Count after Evict: got %d, want 1", st.Count())
	}
}

func TestDelete(t *testing.T) {
	st := New(time.Minute)
	st.PutAll(map[string]types.Aggregate{"a": agg(1, 1), "b": agg(1, 1), "c": agg(1, 1)})

	st.Delete("a", "c", "unknown")

	if _, ok := st.Lookup("a"); ok {
		t.Error("Lookup(a): deleted entry should be absent")
	}
	if _, ok := st.Lookup("b"); !ok {
		t.Error("Lookup(b): untouched entry should remain")
	}
	if st.Count() != 1 {
		t.Errorf("Count after Delete: got %d, want 1", st.Count())
	}
}

func TestNames_Sorted(t *testing.T) {
	st := New(time.Minute)
	for _, n := range []string{"zeta", "alpha", "mid"} {
		st.Put(n, agg(1, 1))
	}
	got := st.Names()
	want := []string{"alpha", "mid", "zeta"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Names: got %v, want %v", got, want)
		}
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	for _, ttl := range []time.Duration{0, time.Minute} {
		st := New(ttl)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			st.Run(ctx)
			close(done)
		}()
		cancel()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("Run(ttl=%v) did not return after cancel", ttl)
		}
	}
}

func TestConcurrentAccess(t *testing.T) {
	st := New(time.Minute)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.Put("m", agg(1, 1))
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				st.Lookup("m")
				st.Names()
			}
		}()
	}
	wg.Wait()
	if _, ok := st.Lookup("m"); !ok {
		t.Fatal("Lookup after concurrent writes: expected entry")
	}
}
