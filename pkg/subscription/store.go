package subscription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines subscription persistence.
type Store interface {
	// Create inserts a new subscription.
	// Returns ErrSubscriptionAlreadyExists if a live one exists for the same fan and creator.
	Create(ctx context.Context, sub *Subscription) error

	// Get returns ErrSubscriptionNotFound if id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*Subscription, error)

	// Update writes sub if the stored version equals expectedVersion and
	// bumps sub.Version. Returns ErrConcurrentModification otherwise.
	Update(ctx context.Context, sub *Subscription, expectedVersion int64) error

	// FindLive returns the subscription of the pair that is neither cancelled nor suspended.
	FindLive(ctx context.Context, fanID, creatorID uuid.UUID) (*Subscription, error)

	// ListByState returns up to limit subscriptions in any of states, oldest update first.
	ListByState(ctx context.Context, states []State, limit int) ([]Subscription, error)

	// ListExpiring returns up to limit subscriptions for which ExpiryEvent(now) reports an event.
	ListExpiring(ctx context.Context, now time.Time, limit int) ([]Subscription, error)
}
