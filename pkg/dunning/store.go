package dunning

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AttemptStore persists charge attempts.
type AttemptStore interface {
	// Create stores a new pending attempt.
	Create(ctx context.Context, attempt *ChargeAttempt) error

	// Get returns ErrAttemptNotFound when id is unknown.
	Get(ctx context.Context, id uuid.UUID) (*ChargeAttempt, error)

	// Resolve atomically moves a pending attempt to outcome.
	// Returns ErrAttemptAlreadyResolved if the attempt is no longer pending.
	Resolve(ctx context.Context, id uuid.UUID, outcome Outcome, reason string, resolvedAt time.Time) (*ChargeAttempt, error)

	// Submit records the amount handed to the payment processor for a pending attempt.
	// Returns ErrAttemptAlreadyResolved if the attempt is no longer pending and
	// ErrAttemptSubmitted if it was submitted before.
	Submit(ctx context.Context, id uuid.UUID, amount, adjustment int64, submittedAt time.Time) (*ChargeAttempt, error)

	// ListBySubscription returns attempts of a class ordered by creation.
	ListBySubscription(ctx context.Context, subscriptionID uuid.UUID, class AttemptClass) ([]ChargeAttempt, error)

	// ListDue returns up to limit pending attempts scheduled at or before now, oldest first.
	// Submitted attempts are only listed once submitted at or before staleBefore.
	ListDue(ctx context.Context, now, staleBefore time.Time, limit int) ([]ChargeAttempt, error)
}
