// Package billing is the application shell around the subscription
// lifecycle.
//
// Engine is the only writer of subscription state. Charge outcomes arrive
// through ResolveCharge (HTTP resolve endpoint, Paddle webhook, or a
// synchronous Charger during a sweep). Each one resolves the attempt in the
// dunning tracker, takes the per-subscription lock, runs the lifecycle
// transition through the ledger with its version check and then executes
// the returned intents: scheduling the next charge attempt, sending dunning
// and win-back emails, and toggling content access.
//
// Sweeper is the scheduled driver. On every tick it fires expiry events
// (grace over, period ended with the cancel flag) and hands due attempts to
// the Charger, with a bounded number of workers.
//
// Redelivery is safe at every step: a second resolution of an attempt is
// detected by the tracker, and the ledger ignores an attempt id it already
// applied.
package billing
