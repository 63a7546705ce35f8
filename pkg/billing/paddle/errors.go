package paddle

import (
	"errors"
	"net/http"
	"strings"

	"github.com/PaddleHQ/paddle-go-sdk/v4/pkg/paddleerr"

	"github.com/dmitrymomot/billing/pkg/billing"
)

const codeCustomerExists = "customer_already_exists"

// wrap converts SDK errors into *billing.ProviderError.
func wrap(err error) error {
	var perr *paddleerr.Error
	if errors.As(err, &perr) {
		return &billing.ProviderError{Status: statusFor(perr.Code), Code: perr.Code, Err: err}
	}
	return &billing.ProviderError{Err: err}
}

func isConflict(err error) bool {
	var perr *paddleerr.Error
	return errors.As(err, &perr) && (perr.Code == codeCustomerExists || perr.Code == "conflict")
}

// statusFor maps Paddle error codes onto the HTTP status classes callers
// branch on. Unknown codes map to 0.
func statusFor(code string) int {
	switch {
	case code == codeCustomerExists, code == "conflict":
		return http.StatusConflict
	case code == "not_found", strings.HasSuffix(code, "_not_found"):
		return http.StatusNotFound
	case strings.HasPrefix(code, "authentication_"), code == "invalid_token":
		return http.StatusUnauthorized
	case code == "forbidden", strings.HasPrefix(code, "permission_"):
		return http.StatusForbidden
	case code == "too_many_requests":
		return http.StatusTooManyRequests
	case code == "internal_error", code == "service_unavailable":
		return http.StatusBadGateway
	}
	return 0
}
