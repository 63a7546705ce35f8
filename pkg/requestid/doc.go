// Package requestid attaches a correlation id to every HTTP request.
//
// The middleware reuses a well formed X-Request-ID sent by the caller, or
// generates a UUID, stores it in the request context and echoes it back.
// LoggerExtractor plugs the id into pkg/logger so every record logged with
// the request context carries request_id.
package requestid
