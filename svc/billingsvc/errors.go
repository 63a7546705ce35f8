package billingsvc

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/billing/handler"
	"github.com/dmitrymomot/billing/pkg/billing"
)

// httpError classifies a domain error. The result wraps both the
// handler.HTTPError that is rendered and err, which is only logged.
func httpError(err error) error {
	if err == nil {
		return nil
	}
	var httpErr handler.HTTPError
	if errors.As(err, &httpErr) {
		return err
	}

	var (
		sigErr  *billing.SignatureError
		planErr *billing.PlanChangeError
	)
	switch {
	case errors.As(err, &sigErr):
		httpErr = handler.NewHTTPError(sigErr.Status, "invalid_signature").WithMessage(sigErr.Reason)
	case errors.As(err, &planErr):
		key := planErr.Validation.Reason
		if key == "" {
			key = "plan_change_rejected"
		}
		httpErr = handler.NewHTTPError(http.StatusBadRequest, key).WithMessage(planErr.Validation.Message)
	case errors.Is(err, billing.ErrInvalidPlan):
		httpErr = handler.NewHTTPError(http.StatusBadRequest, "invalid_plan").WithMessage(billing.ErrInvalidPlan.Error())
	case errors.Is(err, billing.ErrMissingSuccessURL), errors.Is(err, billing.ErrInvalidSuccessURL):
		httpErr = handler.NewHTTPError(http.StatusBadRequest, "invalid_success_url").WithMessage(billing.ErrInvalidSuccessURL.Error())
	case errors.Is(err, billing.ErrMissingEmail):
		httpErr = handler.NewHTTPError(http.StatusBadRequest, "missing_email").WithMessage(billing.ErrMissingEmail.Error())
	case errors.Is(err, billing.ErrMalformedEvent):
		httpErr = handler.NewHTTPError(http.StatusBadRequest, "malformed_event")
	case errors.Is(err, billing.ErrValidation):
		httpErr = handler.ErrBadRequest
	case errors.Is(err, billing.ErrNoActiveSubscription):
		httpErr = handler.NewHTTPError(http.StatusNotFound, "no_active_subscription").WithMessage(billing.ErrNoActiveSubscription.Error())
	case errors.Is(err, billing.ErrPortalCustomerNotFound):
		httpErr = handler.NewHTTPError(http.StatusNotFound, "customer_not_found").WithMessage(billing.ErrPortalCustomerNotFound.Error())
	case errors.Is(err, billing.ErrPortalAuthentication):
		httpErr = handler.NewHTTPError(http.StatusBadGateway, "portal_authentication_failed").WithMessage(billing.ErrPortalAuthentication.Error())
	case errors.Is(err, billing.ErrPortalSession):
		httpErr = handler.NewHTTPError(http.StatusBadGateway, "portal_session_failed").WithMessage(billing.ErrPortalSession.Error())
	case errors.Is(err, billing.ErrConfiguration):
		httpErr = handler.NewHTTPError(http.StatusInternalServerError, "billing_not_configured")
	case errors.Is(err, billing.ErrCustomerUnresolved), errors.Is(err, billing.ErrExternalService):
		httpErr = handler.NewHTTPError(http.StatusBadGateway, "payment_provider_error")
	default:
		return err
	}
	return errors.Join(httpErr, err)
}

func statusOf(err error) int {
	return handler.StatusOf(httpError(err))
}
