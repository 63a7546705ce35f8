package paddle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	paddlesdk "github.com/PaddleHQ/paddle-go-sdk/v4"

	"github.com/dmitrymomot/billing/pkg/billing"
)

// Provider implements billing.Provider over the Paddle Billing API.
type Provider struct {
	client *paddlesdk.SDK
}

// New builds a Paddle client. A missing API key is not an error here:
// every call then fails with billing.ErrConfiguration, so webhooks keep
// working while checkout reports a configuration problem.
func New(cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return &Provider{}, nil
	}

	var opts []paddlesdk.Option
	if cfg.BaseURL != "" {
		opts = append(opts, paddlesdk.WithBaseURL(cfg.BaseURL))
	}

	var (
		client *paddlesdk.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddlesdk.NewSandbox(cfg.APIKey, opts...)
	case "production", "":
		client, err = paddlesdk.New(cfg.APIKey, opts...)
	default:
		return nil, errors.Join(billing.ErrConfiguration, fmt.Errorf("invalid paddle environment: %s", cfg.Environment))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}
	return &Provider{client: client}, nil
}

func (p *Provider) ready() error {
	if p.client == nil {
		return errors.Join(billing.ErrConfiguration, billing.ErrMissingAPIKey)
	}
	return nil
}

func (p *Provider) CreateCustomer(ctx context.Context, email string, metadata map[string]string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}

	data := make(paddlesdk.CustomData, len(metadata))
	for k, v := range metadata {
		data[k] = v
	}
	customer, err := p.client.CustomersClient.CreateCustomer(ctx, &paddlesdk.CreateCustomerRequest{
		Email:      email,
		CustomData: data,
	})
	if err != nil {
		if isConflict(err) {
			return "", errors.Join(billing.ErrCustomerConflict, err)
		}
		return "", wrap(err)
	}
	return customer.ID, nil
}

func (p *Provider) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}

	res, err := p.client.CustomersClient.ListCustomers(ctx, &paddlesdk.ListCustomersRequest{
		Email: []string{email},
	})
	if err != nil {
		return "", wrap(err)
	}

	var id string
	err = res.Iter(ctx, func(c *paddlesdk.Customer) (bool, error) {
		if strings.EqualFold(c.Email, email) {
			id = c.ID
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", wrap(err)
	}
	return id, nil
}

// CustomerEmail returns the e-mail address stored on a Paddle customer.
func (p *Provider) CustomerEmail(ctx context.Context, customerID string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}

	customer, err := p.client.CustomersClient.GetCustomer(ctx, &paddlesdk.GetCustomerRequest{
		CustomerID: customerID,
	})
	if err != nil {
		return "", wrap(err)
	}
	return customer.Email, nil
}

// CreatePortalSession returns the general overview URL of a new portal session.
func (p *Provider) CreatePortalSession(ctx context.Context, customerID string, subscriptionIDs ...string) (string, error) {
	if err := p.ready(); err != nil {
		return "", err
	}

	session, err := p.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddlesdk.CreateCustomerPortalSessionRequest{
		CustomerID:      customerID,
		SubscriptionIDs: subscriptionIDs,
	})
	if err != nil {
		return "", wrap(err)
	}
	if session.URLs.General.Overview == "" {
		return "", &billing.ProviderError{Err: errors.New("no portal URL returned from paddle")}
	}
	return session.URLs.General.Overview, nil
}

// GetSubscription returns the current billing period of a subscription.
func (p *Provider) GetSubscription(ctx context.Context, subscriptionID string) (billing.BillingPeriod, error) {
	if err := p.ready(); err != nil {
		return billing.BillingPeriod{}, err
	}

	sub, err := p.client.SubscriptionsClient.GetSubscription(ctx, &paddlesdk.GetSubscriptionRequest{
		SubscriptionID: subscriptionID,
	})
	if err != nil {
		return billing.BillingPeriod{}, wrap(err)
	}
	if sub.CurrentBillingPeriod == nil {
		return billing.BillingPeriod{}, &billing.ProviderError{Err: fmt.Errorf("subscription %s has no current billing period", subscriptionID)}
	}

	start, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.StartsAt)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("parse period start: %w", err)
	}
	end, err := time.Parse(time.RFC3339, sub.CurrentBillingPeriod.EndsAt)
	if err != nil {
		return billing.BillingPeriod{}, fmt.Errorf("parse period end: %w", err)
	}
	return billing.BillingPeriod{Start: start.UTC(), End: end.UTC()}, nil
}

var _ billing.Provider = (*Provider)(nil)
