package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// CheckoutRequest is an authenticated user's request to buy a plan.
type CheckoutRequest struct {
	UserID     string
	Email      string
	Plan       Plan
	SuccessURL string
}

// CheckoutMetadata travels with the checkout and comes back as custom data
// on transaction events.
type CheckoutMetadata struct {
	UserID string `json:"userId"`
	Plan   Plan   `json:"plan"`
}

// CheckoutSessionDescriptor is consumed once by the client-side widget and
// never stored.
type CheckoutSessionDescriptor struct {
	PriceRef    string           `json:"price_ref"`
	CustomerID  string           `json:"customer_id"`
	Metadata    CheckoutMetadata `json:"metadata"`
	SuccessURL  string           `json:"success_url"`
	Environment string           `json:"environment,omitempty"`
}

// Sessions builds checkout descriptors and customer portal links.
type Sessions struct {
	store       Store
	catalog     *Catalog
	guard       *PlanChangeGuard
	resolver    *CustomerResolver
	provider    Provider
	environment string
	log         *slog.Logger
}

// SessionsOption configures Sessions.
type SessionsOption func(*Sessions)

// WithCheckoutEnvironment labels descriptors for the widget, e.g. "sandbox".
func WithCheckoutEnvironment(env string) SessionsOption {
	return func(s *Sessions) { s.environment = env }
}

func WithSessionsLogger(l *slog.Logger) SessionsOption {
	return func(s *Sessions) {
		if l != nil {
			s.log = l
		}
	}
}

func NewSessions(store Store, catalog *Catalog, guard *PlanChangeGuard, resolver *CustomerResolver, provider Provider, opts ...SessionsOption) *Sessions {
	if store == nil || catalog == nil || guard == nil || resolver == nil || provider == nil {
		panic("billing: Sessions dependencies are required")
	}
	s := &Sessions{
		store:    store,
		catalog:  catalog,
		guard:    guard,
		resolver: resolver,
		provider: provider,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// BuildCheckout validates the request, runs the plan change guard and
// resolves the customer. No remote transaction is created. Every local check
// runs before the customer lookup so rejected requests have no remote effect.
func (s *Sessions) BuildCheckout(ctx context.Context, req CheckoutRequest) (*CheckoutSessionDescriptor, error) {
	if req.UserID == "" {
		return nil, errors.Join(ErrValidation, ErrMissingUserID)
	}
	if _, err := ParsePlan(string(req.Plan)); err != nil || !req.Plan.IsPaid() {
		return nil, errors.Join(ErrValidation, ErrInvalidPlan)
	}
	if err := validateSuccessURL(req.SuccessURL); err != nil {
		return nil, err
	}

	if err := s.guard.Check(ctx, req.UserID, req.Plan); err != nil {
		if errors.Is(err, ErrValidation) {
			s.log.LogAttrs(ctx, slog.LevelInfo, "checkout blocked by plan change guard",
				logger.UserID(req.UserID), logger.Plan(string(req.Plan)), logger.Error(err))
		}
		return nil, err
	}

	limits, ok := s.catalog.Limits(req.Plan)
	if !ok || limits.PriceRef == "" {
		return nil, errors.Join(ErrConfiguration, fmt.Errorf("%w: %s", ErrMissingPriceRef, req.Plan))
	}

	customerID, err := s.resolver.Resolve(ctx, req.UserID, req.Email)
	if err != nil {
		return nil, err
	}

	return &CheckoutSessionDescriptor{
		PriceRef:    limits.PriceRef,
		CustomerID:  customerID,
		Metadata:    CheckoutMetadata{UserID: req.UserID, Plan: req.Plan},
		SuccessURL:  req.SuccessURL,
		Environment: s.environment,
	}, nil
}

func validateSuccessURL(raw string) error {
	if raw == "" {
		return errors.Join(ErrValidation, ErrMissingSuccessURL)
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return errors.Join(ErrValidation, ErrInvalidSuccessURL)
	}
	return nil
}

// BuildPortal returns a short-lived customer portal URL.
func (s *Sessions) BuildPortal(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", errors.Join(ErrValidation, ErrMissingUserID)
	}
	sub, err := s.store.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) || (err == nil && sub.ProviderCustomerID == "") {
		return "", ErrNoActiveSubscription
	}
	if err != nil {
		return "", fmt.Errorf("load subscription: %w", err)
	}

	var subIDs []string
	if sub.ProviderSubscriptionID != "" {
		subIDs = append(subIDs, sub.ProviderSubscriptionID)
	}
	portalURL, err := s.provider.CreatePortalSession(ctx, sub.ProviderCustomerID, subIDs...)
	if err != nil {
		s.log.LogAttrs(ctx, slog.LevelError, "failed to create portal session",
			logger.UserID(userID), logger.CustomerID(sub.ProviderCustomerID), logger.Error(err))
		return "", portalError(err)
	}
	return portalURL, nil
}

func portalError(err error) error {
	switch ProviderStatus(err) {
	case http.StatusNotFound:
		return errors.Join(ErrPortalCustomerNotFound, err)
	case http.StatusUnauthorized, http.StatusForbidden:
		return errors.Join(ErrPortalAuthentication, err)
	default:
		return errors.Join(ErrPortalSession, err)
	}
}
