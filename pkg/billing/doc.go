// Package billing applies payment provider events to per-user subscriptions
// and builds checkout and portal sessions.
//
// # Webhooks
//
// Processor.Handle runs every delivery through the same pipeline:
//
//  1. Verifier checks the "ts=...;h1=..." signature header and its
//     freshness (300s window, boundary inclusive).
//  2. ParseEvent normalizes the provider envelope.
//  3. Ledger.RecordEventIfNew claims the event id atomically; duplicates
//     stop here.
//  4. Dispatcher.Apply loads the row by the key the event type implies,
//     fires the state machine and stores the result. Notices go out only
//     after the store succeeded.
//
// When applying fails the claim is released so the provider's redelivery
// retries the event. If releasing fails too, the event is handed to a
// RetryScheduler and operators are alerted.
//
// Lookup misses, missing business fields, unknown event types and stale
// subscription updates are acknowledged without changes.
//
// # Checkout and portal
//
// Sessions.BuildCheckout validates the request, consults the
// PlanChangeGuard, requires a configured price reference and only then
// resolves the provider customer, so rejected requests never touch the
// provider. Sessions.BuildPortal maps provider failures to
// ErrPortalCustomerNotFound, ErrPortalAuthentication or ErrPortalSession.
//
// Storage, the provider client and notifications are interfaces. MemoryStore
// and MemoryLedger serve tests; subpackages provide PostgreSQL, Redis and
// Paddle implementations.
package billing
