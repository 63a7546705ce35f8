// Package handler provides typed JSON HTTP handlers.
//
// A HandlerFunc receives a bound request value and returns a Response. Wrap
// turns it into an http.HandlerFunc, running binders first and routing any
// binding or rendering error to an ErrorHandler:
//
//	type checkoutRequest struct {
//		Plan       string `json:"plan"`
//		SuccessURL string `json:"success_url"`
//	}
//
//	func checkout(ctx handler.Context, req checkoutRequest) handler.Response {
//		desc, err := svc.BuildCheckout(ctx, ...)
//		if err != nil {
//			return handler.JSONError(err)
//		}
//		return handler.JSON(desc)
//	}
//
//	r.Post("/billing/checkout", handler.Wrap(checkout,
//		handler.WithBinders[handler.Context, checkoutRequest](binder.JSON()),
//		handler.WithErrorHandler[handler.Context, checkoutRequest](handler.NewErrorHandler(log)),
//	))
//
// Errors are classified by HTTPError. Services map their domain errors to
// HTTPError values before returning them, and JSONError renders them as
//
//	{"error": {"code": "plan_change_rejected", "message": "..."}}
//
// Custom context types carrying request-scoped data, such as the caller's
// identity, are plugged in with WithContextFactory.
package handler
