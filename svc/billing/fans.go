package billing

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Fan is the contact and payment data of a subscriber.
type Fan struct {
	ID          uuid.UUID
	Email       string
	DisplayName string
	// Paddle customer and address ids, prefixed ctm_ and add_. Empty when
	// the fan never checked out through Paddle.
	PaddleCustomerID string
	PaddleAddressID  string
}

// FanDirectory resolves fans for email delivery and charging.
type FanDirectory interface {
	// Fan returns ErrFanNotFound when id is unknown.
	Fan(ctx context.Context, id uuid.UUID) (Fan, error)
}

// MemoryFans is an in-memory FanDirectory.
type MemoryFans struct {
	mu   sync.RWMutex
	fans map[uuid.UUID]Fan
}

func NewMemoryFans(fans ...Fan) *MemoryFans {
	m := &MemoryFans{fans: make(map[uuid.UUID]Fan, len(fans))}
	for _, f := range fans {
		m.fans[f.ID] = f
	}
	return m
}

func (m *MemoryFans) Put(f Fan) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fans[f.ID] = f
}

func (m *MemoryFans) Fan(_ context.Context, id uuid.UUID) (Fan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.fans[id]
	if !ok {
		return Fan{}, ErrFanNotFound
	}
	return f, nil
}
