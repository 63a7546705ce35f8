// Package httpserver runs an http.Server bound to a context: Run serves
// until the context is canceled and then shuts down gracefully within the
// configured timeout. HealthHandler exposes named readiness checks as JSON.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
//	defer stop()
//	if err := srv.Run(ctx, router); err != nil { ... }
package httpserver
