package billing

import (
	"context"
	"errors"
	"fmt"
)

// Plan change rejection reasons.
const (
	ReasonUnknownPlan          = "unknown_plan"
	ReasonChatbotLimitExceeded = "chatbot_limit_exceeded"
	ReasonMessageLimitExceeded = "message_limit_exceeded"
)

// Validation is the verdict of a plan change check.
type Validation struct {
	Valid   bool   `json:"valid"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// PlanChangeValidator evaluates whether userID may move to newPlan.
type PlanChangeValidator interface {
	ValidatePlanChange(ctx context.Context, userID string, newPlan Plan) (Validation, error)
}

// PlanChangeGuard blocks plan changes that would leave current usage above
// the target plan's limits.
type PlanChangeGuard struct {
	validator PlanChangeValidator
}

func NewPlanChangeGuard(v PlanChangeValidator) *PlanChangeGuard {
	if v == nil {
		panic("billing: PlanChangeValidator is required")
	}
	return &PlanChangeGuard{validator: v}
}

// Validate returns the validator's verdict.
func (g *PlanChangeGuard) Validate(ctx context.Context, userID string, newPlan Plan) (Validation, error) {
	v, err := g.validator.ValidatePlanChange(ctx, userID, newPlan)
	if err != nil {
		return Validation{}, fmt.Errorf("validate plan change: %w", err)
	}
	return v, nil
}

// Check is Validate returning a *PlanChangeError for invalid changes.
func (g *PlanChangeGuard) Check(ctx context.Context, userID string, newPlan Plan) error {
	v, err := g.Validate(ctx, userID, newPlan)
	if err != nil {
		return err
	}
	if !v.Valid {
		return &PlanChangeError{Validation: v}
	}
	return nil
}

// LimitsValidator compares stored usage with the catalog limits.
type LimitsValidator struct {
	store   Store
	catalog *Catalog
}

func NewLimitsValidator(store Store, catalog *Catalog) *LimitsValidator {
	return &LimitsValidator{store: store, catalog: catalog}
}

func (v *LimitsValidator) ValidatePlanChange(ctx context.Context, userID string, newPlan Plan) (Validation, error) {
	limits, ok := v.catalog.Limits(newPlan)
	if !ok {
		return Validation{Reason: ReasonUnknownPlan, Message: fmt.Sprintf("plan %q is not available", newPlan)}, nil
	}

	sub, err := v.store.GetByUserID(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return Validation{Valid: true}, nil
	}
	if err != nil {
		return Validation{}, err
	}
	return limitsVerdict(sub.Usage, newPlan, limits), nil
}

func limitsVerdict(u Usage, plan Plan, l PlanLimits) Validation {
	if !within(u.ChatbotsCount, l.MaxChatbots) {
		return Validation{
			Reason: ReasonChatbotLimitExceeded,
			Message: fmt.Sprintf("you have %d chatbots but the %s plan allows %d, remove some before switching",
				u.ChatbotsCount, plan, l.MaxChatbots),
		}
	}
	if !within(u.MessagesCount, l.MaxMessages) {
		return Validation{
			Reason: ReasonMessageLimitExceeded,
			Message: fmt.Sprintf("%d messages were used this period but the %s plan allows %d",
				u.MessagesCount, plan, l.MaxMessages),
		}
	}
	return Validation{Valid: true}
}
