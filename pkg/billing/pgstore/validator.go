package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/billing/pkg/billing"
	"github.com/dmitrymomot/billing/pkg/pg"
)

// PlanChangeValidator evaluates plan changes in the database with
// billing_validate_plan_change, against the limits in plan_limits.
type PlanChangeValidator struct {
	pool *pgxpool.Pool
}

func NewPlanChangeValidator(pool *pgxpool.Pool) *PlanChangeValidator {
	return &PlanChangeValidator{pool: pool}
}

func (v *PlanChangeValidator) ValidatePlanChange(ctx context.Context, userID string, newPlan billing.Plan) (billing.Validation, error) {
	var (
		res     billing.Validation
		reason  *string
		message *string
	)
	err := v.pool.QueryRow(ctx,
		`SELECT valid, reason, message FROM billing_validate_plan_change($1, $2)`,
		userID, string(newPlan)).Scan(&res.Valid, &reason, &message)
	if err != nil {
		return billing.Validation{}, fmt.Errorf("validate plan change: %w", err)
	}
	if reason != nil {
		res.Reason = *reason
	}
	if message != nil {
		res.Message = *message
	}
	return res, nil
}

// SyncCatalog replaces plan_limits with the limits of c, so the database
// verdicts follow the configured catalog.
func (v *PlanChangeValidator) SyncCatalog(ctx context.Context, c *billing.Catalog) error {
	return pg.WithTx(ctx, v.pool, func(tx pgx.Tx) error {
		plans := c.Plans()
		names := make([]string, 0, len(plans))
		batch := &pgx.Batch{}
		for _, p := range plans {
			l, _ := c.Limits(p)
			names = append(names, string(p))
			batch.Queue(`
				INSERT INTO plan_limits (plan, max_chatbots, max_messages) VALUES ($1, $2, $3)
				ON CONFLICT (plan) DO UPDATE SET
					max_chatbots = EXCLUDED.max_chatbots,
					max_messages = EXCLUDED.max_messages`,
				string(p), l.MaxChatbots, l.MaxMessages)
		}
		batch.Queue(`DELETE FROM plan_limits WHERE NOT (plan = ANY($1))`, names)
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("sync plan limits: %w", err)
		}
		return nil
	})
}

var _ billing.PlanChangeValidator = (*PlanChangeValidator)(nil)
