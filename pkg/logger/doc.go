// Package logger builds *slog.Logger instances with functional options and
// context-aware attribute injection.
//
// New selects a text or JSON handler, applies static attributes and wraps the
// handler so every registered ContextExtractor runs on each record. Helpers in
// attr.go keep attribute keys consistent across the billing service,
// e.g. event_id, event_type, subscription_id and customer_id.
//
//	log := logger.New(
//		logger.WithEnvironment(environment.Production, "billingd"),
//		logger.WithContextExtractors(requestid.LoggerExtractor()),
//	)
//	log.LogAttrs(ctx, slog.LevelInfo, "event applied",
//		logger.EventID(ev.ID), logger.EventType(string(ev.Type)))
//
// Identifier helpers return an empty slog.Attr for empty values, which slog
// drops from the output.
package logger
