// Package clientip resolves the address of the client behind reverse proxies.
//
// Forwarding headers are only honored when named explicitly, since any
// client can send them. X-Forwarded-For is read left to right and its first
// valid address wins. Without a usable header the TCP peer address is used.
//
//	r.Use(clientip.Middleware("X-Forwarded-For"))
//	ip := clientip.FromContext(ctx)
//
// LoggerExtractor adds client_ip to records logged with the request context.
package clientip
