package memory

import (
	"context"
	"sync"
	"time"

	"github.com/vietddude/rpcgate/internal/core/domain"
)

// DefaultEventCapacity bounds the in-process fallback journal.
const DefaultEventCapacity = 1000

type MemoryStorage struct {
	selections  map[domain.Network]domain.Selection
	blockhashes map[domain.Network]domain.Blockhash
	mu          sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		selections:  make(map[domain.Network]domain.Selection),
		blockhashes: make(map[domain.Network]domain.Blockhash),
	}
}

// -----------------------------------------------------------------------------
// Cache Store
// -----------------------------------------------------------------------------

func (s *MemoryStorage) GetSelection(_ context.Context, network domain.Network) (*domain.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sel, ok := s.selections[network]
	if !ok {
		return nil, nil
	}
	return &sel, nil
}

func (s *MemoryStorage) SetSelection(_ context.Context, network domain.Network, sel *domain.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selections[network] = *sel
	return nil
}

func (s *MemoryStorage) GetBlockhash(_ context.Context, network domain.Network) (*domain.Blockhash, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bh, ok := s.blockhashes[network]
	if !ok {
		return nil, nil
	}
	return &bh, nil
}

func (s *MemoryStorage) SetBlockhash(_ context.Context, network domain.Network, bh *domain.Blockhash) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blockhashes[network] = *bh
	return nil
}

func (s *MemoryStorage) Flush(_ context.Context, network domain.Network) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.selections, network)
	delete(s.blockhashes, network)
	return nil
}

// -----------------------------------------------------------------------------
// Fallback Event Repository
// -----------------------------------------------------------------------------

type EventRepo struct {
	mu       sync.Mutex
	events   []domain.FallbackEvent
	nextID   int64
	capacity int
}

func NewEventRepo(capacity int) *EventRepo {
	if capacity <= 0 {
		capacity = DefaultEventCapacity
	}
	return &EventRepo{capacity: capacity}
}

func (r *EventRepo) Record(_ context.Context, ev *domain.FallbackEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	ev.ID = r.nextID
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	r.events = append(r.events, *ev)
	if len(r.events) > r.capacity {
		r.events = append(r.events[:0], r.events[len(r.events)-r.capacity:]...)
	}
	return nil
}

func (r *EventRepo) Recent(
	_ context.Context,
	network domain.Network,
	limit int,
) ([]domain.FallbackEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.FallbackEvent
	for i := len(r.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if r.events[i].Network == network {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

func (r *EventRepo) DeleteOlderThan(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.events[:0]
	for _, ev := range r.events {
		if !ev.OccurredAt.Before(before) {
			kept = append(kept, ev)
		}
	}
	deleted := int64(len(r.events) - len(kept))
	r.events = kept
	return deleted, nil
}
