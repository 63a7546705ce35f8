// Package email sends transactional e-mail.
//
// Sender is implemented by PostmarkSender, backed by the Postmark API, and
// by DevSender, which writes messages to a directory for local inspection.
// NewSenderFromConfig picks between them.
//
// Deliverer plugs e-mail into the notifications package: it resolves the
// user's address, renders the notification with templates.Notice and sends
// it.
//
//	sender, err := email.NewSenderFromConfig(cfg, log)
//	deliverer := email.NewDeliverer(sender, lookup, cfg)
//	manager := notifications.NewManager(storage, deliverer)
package email
