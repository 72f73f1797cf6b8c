package billing

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrymomot/creatorpay/pkg/dunning"
	"github.com/dmitrymomot/creatorpay/pkg/logger"
	"github.com/dmitrymomot/creatorpay/pkg/subscription"
)

// dispatch executes intents in order. The transition is already persisted,
// so failures are logged and do not undo it.
func (e *Engine) dispatch(ctx context.Context, sub subscription.Subscription, intents []subscription.Intent) {
	for _, in := range intents {
		if err := e.execute(ctx, sub, in); err != nil {
			e.log.ErrorContext(ctx, "intent failed",
				logger.SubscriptionID(sub.ID),
				logger.Intent(string(in.Kind)),
				logger.Error(errors.Join(ErrIntentFailed, err)))
		}
	}
}

func (e *Engine) execute(ctx context.Context, sub subscription.Subscription, in subscription.Intent) error {
	switch in.Kind {
	case subscription.IntentScheduleCharge:
		return e.scheduleCharge(ctx, sub, in)
	case subscription.IntentDunningEmail, subscription.IntentWinBackEmail:
		return e.notifier.Notify(ctx, sub, in)
	case subscription.IntentRevokeAccess:
		return e.access.Revoke(ctx, sub.FanID, sub.CreatorID)
	case subscription.IntentRestoreAccess:
		return e.access.Grant(ctx, sub.FanID, sub.CreatorID)
	default:
		return fmt.Errorf("unknown intent %q", in.Kind)
	}
}

func (e *Engine) scheduleCharge(ctx context.Context, sub subscription.Subscription, in subscription.Intent) error {
	periodStart := sub.BillingAnchor()
	if in.Class == dunning.ClassWinBack {
		if sub.SuspendedAt == nil {
			return fmt.Errorf("win-back charge for %s without suspension time", sub.State)
		}
		periodStart = *sub.SuspendedAt
	}

	attempt, err := e.tracker.ScheduleAttempt(ctx, sub.ID, in.Class, periodStart, in.At)
	if errors.Is(err, dunning.ErrAttemptPending) {
		return nil
	}
	if err != nil {
		return err
	}

	e.log.DebugContext(ctx, "charge scheduled",
		logger.SubscriptionID(sub.ID),
		logger.AttemptID(attempt.ID),
		logger.Count(attempt.AttemptNumber))
	return nil
}
