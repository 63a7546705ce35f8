package billingsvc

import (
	"net/http"
	"strings"

	"github.com/dmitrymomot/billing/handler"
)

// MaxUserIDLength bounds identity header values.
const MaxUserIDLength = 128

// Identity is the authenticated caller as asserted by the upstream proxy.
type Identity struct {
	UserID string
	Email  string
}

// IdentityResolver extracts the caller from a request. An empty UserID
// means the request is anonymous.
type IdentityResolver func(r *http.Request) Identity

// NewHeaderResolver trusts the given headers. Only deploy it behind a proxy
// that strips client-supplied copies of them.
func NewHeaderResolver(userIDHeader, emailHeader string) IdentityResolver {
	return func(r *http.Request) Identity {
		id := strings.TrimSpace(r.Header.Get(userIDHeader))
		if len(id) > MaxUserIDLength {
			id = ""
		}
		var email string
		if emailHeader != "" {
			email = strings.TrimSpace(r.Header.Get(emailHeader))
		}
		return Identity{UserID: id, Email: email}
	}
}

// Context is the handler context of authenticated endpoints.
type Context struct {
	handler.Context
	Identity Identity
}

func contextFactory(resolve IdentityResolver) func(http.ResponseWriter, *http.Request) *Context {
	return func(w http.ResponseWriter, r *http.Request) *Context {
		return &Context{Context: handler.NewContext(w, r), Identity: resolve(r)}
	}
}

var errMissingIdentity = handler.ErrUnauthorized.WithMessage("missing user identity")

// requireIdentity is a binder that fails with 401 for anonymous requests.
func requireIdentity(resolve IdentityResolver) handler.Bind {
	return func(r *http.Request, _ any) error {
		if resolve(r).UserID == "" {
			return errMissingIdentity
		}
		return nil
	}
}
