package orderbook

import (
	"sync"
	"time"

	"polymaker/internal/core"
)

// Snapshot is an immutable point-in-time view of the keeper's live orders
// and balances. A new Snapshot always replaces the previous one wholesale;
// nothing ever mutates a published Snapshot.
type Snapshot struct {
	Orders   []core.Order
	Balances core.Balances
	TakenAt  time.Time
	Seq      uint64
}

// Store holds the most recently published Snapshot. Single writer (the
// refresher), any number of readers. Current never blocks and never
// observes a half-written snapshot.
type Store struct {
	mu    sync.RWMutex
	snap  *Snapshot
	ready chan struct{}
}

func NewStore() *Store {
	return &Store{ready: make(chan struct{})}
}

// Publish replaces the current snapshot. Sequence numbers strictly
// increase, so readers can never move backwards.
func (s *Store) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.snap == nil {
		snap.Seq = 1
		s.snap = &snap
		close(s.ready)
		return
	}
	snap.Seq = s.snap.Seq + 1
	s.snap = &snap
}

// Current returns the latest snapshot, or (nil, false) before the first
// publish.
func (s *Store) Current() (*Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap == nil {
		return nil, false
	}
	return s.snap, true
}

// Ready is closed once the first snapshot has been published.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}
