package histstore

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/obsidianstack/detqc/pkg/types"
)

// Entry is an aggregate together with the time it was last published.
type Entry struct {
	Name      string
	Aggregate types.Aggregate
	UpdatedAt time.Time
}

// Store is a thread-safe in-memory aggregate store keyed by metric name.
// Entries older than the TTL are invisible to Lookup and are removed by Run.
// A TTL of zero disables expiry.
type Store struct {
	mu   sync.RWMutex
	data map[string]*Entry
	ttl  time.Duration
	now  func() time.Time // injectable for deterministic tests
}

// New creates a Store with the given TTL.
func New(ttl time.Duration) *Store {
	return &Store{
		data: make(map[string]*Entry),
		ttl:  ttl,
		now:  time.Now,
	}
}

// NewWithClock creates a Store that reads the time from now.
func NewWithClock(ttl time.Duration, now func() time.Time) *Store {
	s := New(ttl)
	s.now = now
	return s
}

// Put stores or replaces the aggregate published under name.
// Callers must not mutate agg after calling Put.
func (s *Store) Put(name string, agg types.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[name] = &Entry{Name: name, Aggregate: agg, UpdatedAt: s.now()}
}

// PutAll stores every aggregate in aggs with a single timestamp.
func (s *Store) PutAll(aggs map[string]types.Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for name, agg := range aggs {
		s.data[name] = &Entry{Name: name, Aggregate: agg, UpdatedAt: now}
	}
}

// Lookup returns the aggregate published under name. Entries past the TTL
// are reported as absent so a stale cycle can never pass for a fresh one.
func (s *Store) Lookup(name string) (types.Aggregate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.data[name]
	if !ok || !s.fresh(e, s.now()) {
		return nil, false
	}
	return e.Aggregate, true
}

// Delete removes the named entries. Unknown names are ignored.
func (s *Store) Delete(names ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, name := range names {
		delete(s.data, name)
	}
}

// Names returns the sorted names of all fresh entries.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := s.now()
	out := make([]string, 0, len(s.data))
	for name, e := range s.data {
		if s.fresh(e, now) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Count returns the total number of entries currently held, including stale ones.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Evict removes entries whose UpdatedAt is older than now minus TTL.
// It returns the number of entries removed.
func (s *Store) Evict(now time.Time) int {
	if s.ttl <= 0 {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for name, e := range s.data {
		if !s.fresh(e, now) {
			delete(s.data, name)
			removed++
		}
	}
	return removed
}

// Run starts the background TTL eviction loop. It ticks at half the TTL
// (minimum 1 second) and blocks until ctx is cancelled. With expiry disabled
// it just waits for ctx.
func (s *Store) Run(ctx context.Context) {
	if s.ttl <= 0 {
		<-ctx.Done()
		return
	}
	interval := s.ttl / 2
	if interval < time.Second {
		interval = time.Second
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			if n := s.Evict(now); n > 0 {
				slog.Debug("histstore: evicted stale aggregates", "count", n)
			}
		}
	}
}

func (s *Store) fresh(e *Entry, now time.Time) bool {
	if s.ttl <= 0 {
		return true
	}
	return e.UpdatedAt.After(now.Add(-s.ttl))
}
