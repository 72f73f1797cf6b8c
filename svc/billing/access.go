package billing

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// AccessControl toggles a fan's entitlement to a creator's content.
// Both calls must be idempotent.
type AccessControl interface {
	Grant(ctx context.Context, fanID, creatorID uuid.UUID) error
	Revoke(ctx context.Context, fanID, creatorID uuid.UUID) error
}

type accessKey struct {
	fan, creator uuid.UUID
}

// MemoryAccess keeps entitlements in memory.
type MemoryAccess struct {
	mu      sync.RWMutex
	granted map[accessKey]bool
}

func NewMemoryAccess() *MemoryAccess {
	return &MemoryAccess{granted: make(map[accessKey]bool)}
}

func (m *MemoryAccess) Grant(_ context.Context, fanID, creatorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.granted[accessKey{fanID, creatorID}] = true
	return nil
}

func (m *MemoryAccess) Revoke(_ context.Context, fanID, creatorID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.granted, accessKey{fanID, creatorID})
	return nil
}

// HasAccess reports the current entitlement.
func (m *MemoryAccess) HasAccess(fanID, creatorID uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.granted[accessKey{fanID, creatorID}]
}
