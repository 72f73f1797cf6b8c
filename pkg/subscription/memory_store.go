package subscription

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu   sync.RWMutex
	subs map[uuid.UUID]Subscription
}

// NewMemoryStore creates an empty in-memory subscription store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[uuid.UUID]Subscription)}
}

func (s *MemoryStore) Create(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[sub.ID]; exists {
		return ErrSubscriptionAlreadyExists
	}
	if sub.IsLive() {
		if _, ok := s.findLive(sub.FanID, sub.CreatorID); ok {
			return ErrSubscriptionAlreadyExists
		}
	}
	s.subs[sub.ID] = sub.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[id]
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := sub.Clone()
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, sub *Subscription, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.subs[sub.ID]
	if !ok {
		return ErrSubscriptionNotFound
	}
	if current.Version != expectedVersion {
		return ErrConcurrentModification
	}
	if sub.IsLive() && !current.IsLive() {
		if other, ok := s.findLive(sub.FanID, sub.CreatorID); ok && other.ID != sub.ID {
			return ErrSubscriptionAlreadyExists
		}
	}

	sub.Version = expectedVersion + 1
	s.subs[sub.ID] = sub.Clone()
	return nil
}

func (s *MemoryStore) FindLive(_ context.Context, fanID, creatorID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.findLive(fanID, creatorID)
	if !ok {
		return nil, ErrSubscriptionNotFound
	}
	cp := sub.Clone()
	return &cp, nil
}

func (s *MemoryStore) ListByState(_ context.Context, states []State, limit int) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if slices.Contains(states, sub.State) {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) ListExpiring(_ context.Context, now time.Time, limit int) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subs {
		if _, ok := sub.ExpiryEvent(now); ok {
			out = append(out, sub.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Subscription) int {
		return a.UpdatedAt.Compare(b.UpdatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) findLive(fanID, creatorID uuid.UUID) (Subscription, bool) {
	for _, sub := range s.subs {
		if sub.FanID == fanID && sub.CreatorID == creatorID && sub.IsLive() {
			return sub, true
		}
	}
	return Subscription{}, false
}
