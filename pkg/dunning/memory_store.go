package dunning

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory AttemptStore for tests and local development.
type MemoryStore struct {
	mu       sync.RWMutex
	attempts map[uuid.UUID]*ChargeAttempt
	order    []uuid.UUID
}

// NewMemoryStore creates an empty in-memory attempt store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		attempts: make(map[uuid.UUID]*ChargeAttempt),
	}
}

func (s *MemoryStore) Create(_ context.Context, attempt *ChargeAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *attempt
	s.attempts[attempt.ID] = &cp
	s.order = append(s.order, attempt.ID)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id uuid.UUID) (*ChargeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Resolve(_ context.Context, id uuid.UUID, outcome Outcome, reason string, resolvedAt time.Time) (*ChargeAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if !a.IsPending() {
		return nil, ErrAttemptAlreadyResolved
	}

	a.Outcome = outcome
	a.FailureReason = reason
	a.ResolvedAt = &resolvedAt

	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Submit(_ context.Context, id uuid.UUID, amount, adjustment int64, submittedAt time.Time) (*ChargeAttempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.attempts[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	if !a.IsPending() {
		return nil, ErrAttemptAlreadyResolved
	}
	if a.IsSubmitted() {
		return nil, ErrAttemptSubmitted
	}

	a.Amount = amount
	a.Adjustment = adjustment
	a.SubmittedAt = &submittedAt

	cp := *a
	return &cp, nil
}

func (s *MemoryStore) ListBySubscription(_ context.Context, subscriptionID uuid.UUID, class AttemptClass) ([]ChargeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ChargeAttempt
	for _, id := range s.order {
		a := s.attempts[id]
		if a.SubscriptionID == subscriptionID && a.Class == class {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListDue(_ context.Context, now, staleBefore time.Time, limit int) ([]ChargeAttempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ChargeAttempt
	for _, id := range s.order {
		a := s.attempts[id]
		if !a.IsDue(now) || (a.IsSubmitted() && a.SubmittedAt.After(staleBefore)) {
			continue
		}
		out = append(out, *a)
	}
	slices.SortStableFunc(out, func(a, b ChargeAttempt) int {
		return a.ScheduledAt.Compare(b.ScheduledAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
