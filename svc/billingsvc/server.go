package billingsvc

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/billing/handler"
	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/clientip"
	"github.com/dmitrymomot/billing/pkg/httpserver"
	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/notifications"
	"github.com/dmitrymomot/billing/pkg/ratelimit"
	"github.com/dmitrymomot/billing/pkg/requestid"
)

// Server exposes the billing HTTP endpoints.
type Server struct {
	svc      *billing.Service
	inbox    *notifications.Manager
	catalog  *billing.Catalog
	cfg      Config
	identity IdentityResolver
	metrics  *Metrics
	gatherer prometheus.Gatherer
	checks   map[string]httpserver.Check
	limiter  ratelimit.Limiter
	log      *slog.Logger
	errors   handler.ErrorHandler[*Context]
	webhookE handler.ErrorHandler[handler.Context]
}

// Option configures a Server.
type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithIdentityResolver replaces the header based resolver.
func WithIdentityResolver(r IdentityResolver) Option {
	return func(s *Server) {
		if r != nil {
			s.identity = r
		}
	}
}

// WithMetrics records request metrics and serves /metrics from g.
func WithMetrics(m *Metrics, g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.metrics = m
		s.gatherer = g
	}
}

// WithHealthChecks adds dependency checks to /healthz.
func WithHealthChecks(checks map[string]httpserver.Check) Option {
	return func(s *Server) {
		for name, c := range checks {
			s.checks[name] = c
		}
	}
}

// WithNotifications enables the notification inbox endpoints.
func WithNotifications(m *notifications.Manager) Option {
	return func(s *Server) { s.inbox = m }
}

// WithCatalog adds plan limits to subscription responses.
func WithCatalog(c *billing.Catalog) Option {
	return func(s *Server) { s.catalog = c }
}

// WithRateLimiter limits the /billing endpoints per user, or per client
// address for anonymous callers.
func WithRateLimiter(l ratelimit.Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// NewServer panics if svc is nil.
func NewServer(svc *billing.Service, cfg Config, opts ...Option) *Server {
	if svc == nil {
		panic("billingsvc: Service is required")
	}
	cfg = cfg.withDefaults()
	s := &Server{
		svc:    svc,
		cfg:    cfg,
		checks: make(map[string]httpserver.Check),
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.identity == nil {
		s.identity = NewHeaderResolver(cfg.UserIDHeader, cfg.UserEmailHeader)
	}
	s.errors = handler.NewErrorHandler[*Context](s.log)
	s.webhookE = handler.NewErrorHandler[handler.Context](s.log)
	return s
}

// Router returns the HTTP handler with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(clientip.Middleware(s.cfg.TrustedIPHeaders...))

	r.Post("/webhooks/paddle", s.webhookHandler())

	r.Route("/billing", func(r chi.Router) {
		if s.limiter != nil {
			r.Use(s.rateLimit())
		}
		r.Get("/subscription", wrap(s, s.subscription))
		r.Post("/checkout", wrap(s, s.checkout, jsonBody()))
		r.Post("/portal", wrap(s, s.portal))
		if s.inbox != nil {
			r.Get("/notifications", wrap(s, s.listNotifications, queryBinder()))
			r.Post("/notifications/read", wrap(s, s.markRead, jsonBody()))
		}
	})

	r.Get("/healthz", httpserver.HealthHandler(s.log, s.cfg.HealthTimeout, s.checks))
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

// wrap mounts an authenticated endpoint. Anonymous requests are rejected
// before the body is read.
func wrap[R any](s *Server, h handler.HandlerFunc[*Context, R], binders ...handler.Bind) http.HandlerFunc {
	return handler.Wrap(h,
		handler.WithContextFactory[*Context, R](contextFactory(s.identity)),
		handler.WithBinders[*Context, R](requireIdentity(s.identity)),
		handler.WithBinders[*Context, R](binders...),
		handler.WithErrorHandler[*Context, R](s.errors),
	)
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	key := ratelimit.FirstOf(
		func(r *http.Request) string { return s.identity(r).UserID },
		func(r *http.Request) string { return clientip.FromContext(r.Context()) },
	)
	return ratelimit.Middleware(s.limiter, key,
		ratelimit.WithOnLimitReached(func(w http.ResponseWriter, r *http.Request, _ ratelimit.Result) {
			if err := handler.JSONError(errRateLimited).Render(w, r); err != nil {
				s.log.LogAttrs(r.Context(), slog.LevelError, "failed to render rate limit response", logger.Error(err))
			}
		}),
		ratelimit.WithOnError(func(r *http.Request, err error) {
			s.log.LogAttrs(r.Context(), slog.LevelWarn, "rate limiter unavailable, request allowed", logger.Error(err))
		}),
	)
}

var errRateLimited = handler.NewHTTPError(http.StatusTooManyRequests, "too_many_requests").
	WithMessage("too many requests, please retry later")
