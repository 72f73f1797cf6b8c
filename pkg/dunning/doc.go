// Package dunning tracks charge attempts and drives the payment retry schedule.
//
// Every billing period gets a cycle of regular attempts scheduled relative to
// the first one: immediately, then on days 3, 5, 7 and 10. When the fifth
// attempt fails the cycle is exhausted (ChargeAttempt.IsFinal) and the
// lifecycle machine moves the subscription to its grace period. A success
// resets the cycle. After suspension a separate win-back attempt can be
// scheduled 30 days later; it is numbered independently of regular retries.
//
// The tracker only records intent and outcome. Executing a charge against the
// payment processor is the caller's job:
//
//	attempt, err := tracker.RecordAttempt(ctx, subID, periodStart)
//	// ... charge the card when attempt.ScheduledAt is due ...
//	attempt, err = tracker.ResolveAttempt(ctx, attempt.ID, dunning.OutcomeFailed, "card_declined")
//	if attempt.IsFinal() {
//	    // recovery exhausted
//	}
package dunning
