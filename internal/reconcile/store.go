package reconcile

import (
	"sync"
	"time"
)

// Snapshot is a consistent copy of a store's state.
type Snapshot[T any, S any] struct {
	Collection        []T      `json:"collection"`
	Stats             S        `json:"stats"`
	Total             int      `json:"total"`
	IsLoading         bool     `json:"is_loading"`
	Error             string   `json:"error,omitempty"`
	UsingFallbackData bool     `json:"using_fallback_data"`
	Tier              TierName `json:"tier,omitempty"`
}

// Store owns the in-memory collection of one view and its derived
// statistics. Statistics are recomputed on every change and never set
// directly.
type Store[T any, S any] struct {
	derive Deriver[T, S]
	now    func() time.Time

	mu       sync.RWMutex
	records  []T
	total    int
	stats    S
	loading  int
	errMsg   string
	fallback bool
	tier     TierName
	issued   uint64
	applied  uint64
}

// NewStore builds an empty store and derives its initial statistics.
func NewStore[T any, S any](derive Deriver[T, S], now func() time.Time) *Store[T, S] {
	if now == nil {
		now = time.Now
	}
	s := &Store[T, S]{derive: derive, now: now, records: []T{}}
	s.stats = s.compute(s.records)
	return s
}

func (s *Store[T, S]) compute(records []T) S {
	var zero S
	if s.derive == nil {
		return zero
	}
	return s.derive(records, s.now())
}

// Begin issues a new generation token and marks the store loading.
func (s *Store[T, S]) Begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.issued++
	s.loading++
	return s.issued
}

// Commit applies a resolution fetched under gen. Responses older than the
// newest applied generation are discarded; the return reports whether res
// was applied.
func (s *Store[T, S]) Commit(gen uint64, res Resolution[T], errMsg string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish()
	if gen <= s.applied {
		return false
	}
	s.applied = gen
	s.replace(res.Records, res.Total)
	s.fallback = res.UsingFallbackData
	s.tier = res.Tier
	s.errMsg = errMsg
	return true
}

// Abandon ends a load without touching the collection.
func (s *Store[T, S]) Abandon(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finish()
}

func (s *Store[T, S]) finish() {
	if s.loading > 0 {
		s.loading--
	}
}

// Apply replaces the collection outright.
func (s *Store[T, S]) Apply(records []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replace(records, len(records))
}

// Patch applies a local edit to the collection and recomputes statistics.
func (s *Store[T, S]) Patch(fn func(records []T) []T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current := make([]T, len(s.records))
	copy(current, s.records)
	next := fn(current)
	s.replace(next, s.total+len(next)-len(s.records))
}

func (s *Store[T, S]) replace(records []T, total int) {
	if records == nil {
		records = []T{}
	}
	copied := make([]T, len(records))
	copy(copied, records)
	if total < len(copied) {
		total = len(copied)
	}
	s.records = copied
	s.total = total
	s.stats = s.compute(copied)
}

// Records returns a copy of the collection.
func (s *Store[T, S]) Records() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.records))
	copy(out, s.records)
	return out
}

// Stats returns the statistics of the current collection.
func (s *Store[T, S]) Stats() S {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.stats
}

// Snapshot returns a consistent copy of the store.
func (s *Store[T, S]) Snapshot() Snapshot[T, S] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]T, len(s.records))
	copy(out, s.records)
	return Snapshot[T, S]{
		Collection:        out,
		Stats:             s.stats,
		Total:             s.total,
		IsLoading:         s.loading > 0,
		Error:             s.errMsg,
		UsingFallbackData: s.fallback,
		Tier:              s.tier,
	}
}
