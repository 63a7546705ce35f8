package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/pg"
)

const subscriptionColumns = `user_id, plan, messages_count, chatbots_count,
	billing_period_start, billing_period_end,
	provider_customer_id, provider_subscription_id,
	last_event_at, created_at, updated_at`

// Store is a billing.Store backed by the subscriptions table.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) GetByUserID(ctx context.Context, userID string) (*billing.Subscription, error) {
	return s.getOne(ctx, "user_id", userID)
}

func (s *Store) GetByProviderSubscriptionID(ctx context.Context, subscriptionID string) (*billing.Subscription, error) {
	return s.getOne(ctx, "provider_subscription_id", subscriptionID)
}

func (s *Store) GetByProviderCustomerID(ctx context.Context, customerID string) (*billing.Subscription, error) {
	return s.getOne(ctx, "provider_customer_id", customerID)
}

// getOne selects by a fixed column name, never by caller input.
func (s *Store) getOne(ctx context.Context, column, value string) (*billing.Subscription, error) {
	if value == "" {
		return nil, fmt.Errorf("%s is empty: %w", column, billing.ErrNotFound)
	}
	q := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE ` + column + ` = $1 LIMIT 1`
	sub, err := scanSubscription(s.pool.QueryRow(ctx, q, value))
	if pg.IsNotFoundError(err) {
		return nil, fmt.Errorf("%s %q: %w", column, value, billing.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription by %s: %w", column, err)
	}
	return sub, nil
}

func (s *Store) UpsertByUserID(ctx context.Context, sub *billing.Subscription) error {
	if sub == nil || sub.UserID == "" {
		return billing.ErrMissingUserID
	}
	r := toRow(sub)
	_, err := s.pool.Exec(ctx, `
		INSERT INTO subscriptions (`+subscriptionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (user_id) DO UPDATE SET
			plan = EXCLUDED.plan,
			messages_count = EXCLUDED.messages_count,
			chatbots_count = EXCLUDED.chatbots_count,
			billing_period_start = EXCLUDED.billing_period_start,
			billing_period_end = EXCLUDED.billing_period_end,
			provider_customer_id = EXCLUDED.provider_customer_id,
			provider_subscription_id = EXCLUDED.provider_subscription_id,
			last_event_at = EXCLUDED.last_event_at,
			updated_at = EXCLUDED.updated_at`,
		r.args()...)
	return classify("upsert subscription", err)
}

func (s *Store) UpdateByProviderSubscriptionID(ctx context.Context, subscriptionID string, sub *billing.Subscription) error {
	if subscriptionID == "" {
		return fmt.Errorf("subscription id is empty: %w", billing.ErrNotFound)
	}
	r := toRow(sub)
	tag, err := s.pool.Exec(ctx, `
		UPDATE subscriptions SET
			plan = $2,
			messages_count = $3,
			chatbots_count = $4,
			billing_period_start = $5,
			billing_period_end = $6,
			provider_customer_id = $7,
			provider_subscription_id = $8,
			last_event_at = $9,
			updated_at = $10
		WHERE provider_subscription_id = $1`,
		subscriptionID, r.plan, r.messages, r.chatbots, r.periodStart, r.periodEnd,
		r.customerID, r.subscriptionID, r.lastEventAt, r.updatedAt)
	if err != nil {
		return classify("update subscription", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %q: %w", subscriptionID, billing.ErrNotFound)
	}
	return nil
}

func classify(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case pg.IsCheckViolationError(err):
		return errors.Join(billing.ErrValidation, fmt.Errorf("%s: %w", op, err))
	case pg.IsDuplicateKeyError(err):
		return errors.Join(billing.ErrValidation, fmt.Errorf("%s: provider subscription id already assigned: %w", op, err))
	}
	return fmt.Errorf("%s: %w", op, err)
}

// row is the nullable column form of a subscription.
type row struct {
	userID         string
	plan           string
	messages       int64
	chatbots       int64
	periodStart    *time.Time
	periodEnd      *time.Time
	customerID     *string
	subscriptionID *string
	lastEventAt    *time.Time
	createdAt      time.Time
	updatedAt      time.Time
}

func toRow(sub *billing.Subscription) row {
	now := time.Now().UTC()
	r := row{
		userID:         sub.UserID,
		plan:           string(sub.Plan),
		messages:       sub.Usage.MessagesCount,
		chatbots:       sub.Usage.ChatbotsCount,
		customerID:     nullString(sub.ProviderCustomerID),
		subscriptionID: nullString(sub.ProviderSubscriptionID),
		createdAt:      sub.CreatedAt,
		updatedAt:      sub.UpdatedAt,
	}
	if r.plan == "" {
		r.plan = string(billing.PlanFree)
	}
	if sub.BillingPeriod != nil {
		start, end := sub.BillingPeriod.Start, sub.BillingPeriod.End
		r.periodStart, r.periodEnd = &start, &end
	}
	if !sub.LastEventAt.IsZero() {
		t := sub.LastEventAt
		r.lastEventAt = &t
	}
	if r.createdAt.IsZero() {
		r.createdAt = now
	}
	if r.updatedAt.IsZero() {
		r.updatedAt = now
	}
	return r
}

func (r row) args() []any {
	return []any{
		r.userID, r.plan, r.messages, r.chatbots, r.periodStart, r.periodEnd,
		r.customerID, r.subscriptionID, r.lastEventAt, r.createdAt, r.updatedAt,
	}
}

func scanSubscription(sc pgx.Row) (*billing.Subscription, error) {
	var r row
	if err := sc.Scan(
		&r.userID,
		&r.plan,
		&r.messages,
		&r.chatbots,
		&r.periodStart,
		&r.periodEnd,
		&r.customerID,
		&r.subscriptionID,
		&r.lastEventAt,
		&r.createdAt,
		&r.updatedAt,
	); err != nil {
		return nil, err
	}

	sub := &billing.Subscription{
		UserID:    r.userID,
		Plan:      billing.Plan(r.plan),
		Usage:     billing.Usage{MessagesCount: r.messages, ChatbotsCount: r.chatbots},
		CreatedAt: r.createdAt.UTC(),
		UpdatedAt: r.updatedAt.UTC(),
	}
	if r.periodStart != nil && r.periodEnd != nil {
		sub.BillingPeriod = &billing.BillingPeriod{Start: r.periodStart.UTC(), End: r.periodEnd.UTC()}
	}
	if r.customerID != nil {
		sub.ProviderCustomerID = *r.customerID
	}
	if r.subscriptionID != nil {
		sub.ProviderSubscriptionID = *r.subscriptionID
	}
	if r.lastEventAt != nil {
		sub.LastEventAt = r.lastEventAt.UTC()
	}
	return sub, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var _ billing.Store = (*Store)(nil)
