package requestid

import (
	"net/http"
	"regexp"

	"github.com/google/uuid"
)

// Header is the default request id header.
const Header = "X-Request-ID"

const maxIDLength = 128

var validID = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

type config struct {
	header string
	trust  bool
}

type Option func(*config)

// WithHeader reads and echoes the id under name.
func WithHeader(name string) Option {
	return func(c *config) {
		if name != "" {
			c.header = name
		}
	}
}

// WithTrustIncoming controls whether a well formed id sent by the client is
// reused. Enabled by default.
func WithTrustIncoming(trust bool) Option {
	return func(c *config) { c.trust = trust }
}

// New returns middleware that stores a request id in the request context and
// echoes it in the response header. Missing or malformed ids are replaced
// with a random UUID.
func New(opts ...Option) func(http.Handler) http.Handler {
	cfg := config{header: Header, trust: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(cfg.header)
			if !cfg.trust || !isValid(id) {
				id = uuid.NewString()
			}
			w.Header().Set(cfg.header, id)
			next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), id)))
		})
	}
}

// Middleware is New with defaults.
func Middleware(next http.Handler) http.Handler {
	return New()(next)
}

func isValid(id string) bool {
	return id != "" && len(id) <= maxIDLength && validID.MatchString(id)
}
