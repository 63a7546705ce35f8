// Package billingsvc is the HTTP and background surface of the billing
// processor.
//
// Server mounts the Paddle webhook, the authenticated checkout, portal,
// subscription and notification endpoints, plus /healthz and /metrics.
// Callers are identified by headers set by an upstream auth proxy.
//
// The adapters wire the domain ports to infrastructure: Notifier stores and
// e-mails user notices through the task queue, Alerter posts operator
// alerts to a signed webhook, and RetryScheduler defers events whose
// idempotency claim could not be released.
package billingsvc
