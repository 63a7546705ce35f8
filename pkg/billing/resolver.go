package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// CustomerResolver maps local users to provider customers.
type CustomerResolver struct {
	store    Store
	provider Provider
	log      *slog.Logger
	now      func() time.Time
}

func NewCustomerResolver(store Store, provider Provider, log *slog.Logger) *CustomerResolver {
	if store == nil || provider == nil {
		panic("billing: Store and Provider are required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CustomerResolver{store: store, provider: provider, log: log, now: time.Now}
}

// Resolve returns the provider customer id of userID, creating the remote
// customer on first use. A conflicting email is resolved by looking the
// customer up. The mapping is persisted, creating a free row when needed.
func (r *CustomerResolver) Resolve(ctx context.Context, userID, email string) (string, error) {
	if userID == "" {
		return "", errors.Join(ErrValidation, ErrMissingUserID)
	}

	sub, err := r.store.GetByUserID(ctx, userID)
	switch {
	case errors.Is(err, ErrNotFound):
		sub = nil
	case err != nil:
		return "", fmt.Errorf("load subscription: %w", err)
	case sub.ProviderCustomerID != "":
		return sub.ProviderCustomerID, nil
	}

	if email == "" {
		return "", errors.Join(ErrValidation, ErrMissingEmail)
	}

	customerID, err := r.provider.CreateCustomer(ctx, email, map[string]string{"userId": userID})
	if errors.Is(err, ErrCustomerConflict) {
		r.log.LogAttrs(ctx, slog.LevelInfo, "customer already exists, looking up by email", logger.UserID(userID))
		customerID, err = r.provider.FindCustomerByEmail(ctx, email)
		if err == nil && customerID == "" {
			err = errors.New("no customer owns the conflicting email")
		}
	}
	if err != nil {
		return "", errors.Join(ErrCustomerUnresolved, err)
	}

	now := r.now().UTC()
	if sub == nil {
		sub = NewFreeSubscription(userID, now)
	}
	sub.ProviderCustomerID = customerID
	sub.UpdatedAt = now
	if err := r.store.UpsertByUserID(ctx, sub); err != nil {
		return "", fmt.Errorf("persist customer mapping: %w", err)
	}

	r.log.LogAttrs(ctx, slog.LevelInfo, "customer resolved", logger.UserID(userID), logger.CustomerID(customerID))
	return customerID, nil
}
