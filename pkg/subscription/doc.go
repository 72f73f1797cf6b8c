// Package subscription is the subscription ledger of the creator marketplace:
// the data model, the lifecycle state machine and the ledger service that
// persists transitions.
//
// # Lifecycle
//
// Transition is a pure function. It evaluates an Event against a Subscription
// and returns the new Subscription with the side effects (Intent values) the
// caller must execute: dunning and win-back emails, access revocation and
// restoration, and the next charge to schedule. It performs no I/O.
//
//	res, err := subscription.Transition(sub, subscription.Event{
//		Kind:      subscription.EventChargeFailed,
//		At:        now,
//		AttemptID: &attempt.ID,
//		Reason:    "card_declined",
//	})
//	if subscription.IsInvalidTransition(err) {
//		// event not allowed in the current state; sub is untouched
//	}
//
// States and events:
//
//	trialing      trial_ends_with_payment_success           -> active
//	trialing      trial_ends_with_payment_failure           -> past_due
//	active        scheduled_charge_fails                    -> past_due
//	past_due      scheduled_charge_fails (failures 2..4)    -> past_due
//	past_due      scheduled_charge_fails (failure 5)        -> grace_period
//	grace_period  scheduled_charge_fails                    -> suspended once grace elapsed
//	grace_period  grace_period_expires_without_payment      -> suspended (7 days)
//	past_due|grace payment_succeeds_during_past_due_or_grace -> active
//	active|reactivating scheduled_charge_succeeds           -> active
//	reactivating  scheduled_charge_fails                    -> suspended
//	suspended     winback_payment_succeeds                  -> reactivating
//	suspended     reactivation_requested_by_user            -> reactivating
//	active        period_ends_with_cancel_flag              -> cancelled
//	any live      user_requests_cancel                      -> unchanged, cancel at period end
//	non-terminal  user_requests_immediate_cancel            -> cancelled
//
// Events carrying an AttemptID that was already applied are replays and
// return the subscription unchanged with no intents.
//
// # Ledger
//
// Service loads the tier catalog from a TierSource (in memory or YAML),
// creates subscriptions, applies events with optimistic version checks
// through a Store, prorates tier changes and computes revenue splits.
package subscription
