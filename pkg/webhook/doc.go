// Package webhook delivers signed JSON payloads to HTTP endpoints. The
// billing service uses it to forward operator alerts.
//
//	sender := webhook.NewSender(
//		webhook.WithSigningSecret(secret),
//		webhook.WithRetries(3, webhook.DefaultBackoff()),
//		webhook.WithCircuitBreaker(webhook.NewCircuitBreaker(5, 1, time.Minute)),
//	)
//	err := sender.Send(ctx, alertURL, alert)
//
// Receivers check X-Webhook-Signature with VerifySignature and may
// deduplicate retries by X-Webhook-ID.
package webhook
