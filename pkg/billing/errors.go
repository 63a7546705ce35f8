package billing

import (
	"errors"
	"fmt"
	"net/http"
)

// Error classes. Concrete errors are joined with one of these so callers can
// classify with errors.Is.
var (
	ErrValidation      = errors.New("validation failed")
	ErrNotFound        = errors.New("subscription not found")
	ErrExternalService = errors.New("payment provider request failed")
	ErrConfiguration   = errors.New("billing is misconfigured")
)

var (
	ErrMalformedEvent       = errors.New("malformed event payload")
	ErrInvalidPlan          = errors.New("invalid plan")
	ErrMissingSuccessURL    = errors.New("success url is required")
	ErrInvalidSuccessURL    = errors.New("success url must be an absolute http(s) url")
	ErrMissingUserID        = errors.New("user id is required")
	ErrMissingEmail         = errors.New("email is required")
	ErrMissingPriceRef      = errors.New("plan has no configured price reference")
	ErrMissingAPIKey        = errors.New("payment provider API key is not configured")
	ErrMissingSecret        = errors.New("webhook secret is not configured")
	ErrCustomerConflict     = errors.New("customer already exists for this email")
	ErrCustomerUnresolved   = errors.New("unable to resolve payment provider customer")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrRetryUnavailable     = errors.New("event could not be scheduled for retry")
)

// Portal failures surfaced to end users.
var (
	ErrPortalCustomerNotFound = errors.New("customer not found, please contact support")
	ErrPortalAuthentication   = errors.New("authentication failed")
	ErrPortalSession          = errors.New("failed to create portal session")
)

// Signature rejection reasons.
const (
	ReasonMissingSignature = "missing signature"
	ReasonMissingBody      = "missing body"
	ReasonMissingTimestamp = "missing timestamp"
	ReasonInvalidTimestamp = "invalid timestamp format"
	ReasonTooOld           = "too old"
	ReasonTooNew           = "too new"
	ReasonMismatch         = "signature mismatch"
)

// SignatureError rejects an inbound event before it reaches the dispatcher.
// Status is the HTTP status the webhook endpoint answers with.
type SignatureError struct {
	Status int
	Reason string
}

func (e *SignatureError) Error() string {
	return fmt.Sprintf("webhook signature rejected (%d): %s", e.Status, e.Reason)
}

func badRequest(reason string) *SignatureError {
	return &SignatureError{Status: http.StatusBadRequest, Reason: reason}
}

func unauthorized(reason string) *SignatureError {
	return &SignatureError{Status: http.StatusUnauthorized, Reason: reason}
}

func forbidden() *SignatureError {
	return &SignatureError{Status: http.StatusForbidden, Reason: ReasonMismatch}
}

// PlanChangeError carries a rejected plan change validation.
type PlanChangeError struct {
	Validation Validation
}

func (e *PlanChangeError) Error() string {
	if e.Validation.Message != "" {
		return "plan change rejected: " + e.Validation.Message
	}
	return "plan change rejected: " + e.Validation.Reason
}

func (e *PlanChangeError) Is(target error) bool {
	return target == ErrValidation
}

// ProviderError is a non-2xx answer from the payment provider API.
type ProviderError struct {
	Status int
	Code   string
	Err    error
}

func (e *ProviderError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("payment provider error %d (%s): %v", e.Status, e.Code, e.Err)
	}
	return fmt.Sprintf("payment provider error %d: %v", e.Status, e.Err)
}

func (e *ProviderError) Unwrap() []error {
	return []error{ErrExternalService, e.Err}
}

// ProviderStatus extracts the provider HTTP status from err, or 0.
func ProviderStatus(err error) int {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Status
	}
	return 0
}
