package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

var (
	ErrSubscriptionNotFound = errors.New("subscription_not_found")
	ErrUnknownPlan          = errors.New("unknown_plan")
	ErrPlanNotSelectable    = errors.New("plan_not_selectable")
	ErrSamePlan             = errors.New("plan_unchanged")
	ErrCheckoutIncomplete   = errors.New("checkout_incomplete")
)

// ChangePlanOutcome names the possible results of a plan-change request.
type ChangePlanOutcome string

const (
	OutcomePortalRedirect     ChangePlanOutcome = "portal_redirect"
	OutcomeCheckoutRedirect   ChangePlanOutcome = "checkout_redirect"
	OutcomeDowngradeScheduled ChangePlanOutcome = "downgrade_scheduled"
	OutcomeRejected           ChangePlanOutcome = "rejected"
)

type ChangePlanRequest struct {
	TenantID     snowflake.ID `json:"tenant_id"`
	TargetPlanID string       `json:"target_plan_id"`
	BillingCycle string       `json:"billing_cycle"`
}

type ChangePlanResult struct {
	Outcome     ChangePlanOutcome `json:"outcome"`
	RedirectURL string            `json:"redirect_url,omitempty"`
	EffectiveAt *time.Time        `json:"effective_at,omitempty"`
	RenewalDate *time.Time        `json:"renewal_date,omitempty"`
	Reason      string            `json:"reason,omitempty"`
}

type ImmediateDowngradeRequest struct {
	TenantID        snowflake.ID `json:"tenant_id"`
	NewPlanID       string       `json:"new_plan_id"`
	RefundRequested bool         `json:"refund_requested"`
}

type ImmediateDowngradeResult struct {
	Subscription    *Subscription   `json:"subscription"`
	ProrationAmount decimal.Decimal `json:"proration_amount"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundIssued    bool            `json:"refund_issued"`
}

type Service interface {
	GetByTenantID(ctx context.Context, tenantID snowflake.ID) (*Subscription, error)
	ChangePlan(ctx context.Context, req ChangePlanRequest) (*ChangePlanResult, error)
	ImmediateDowngrade(ctx context.Context, req ImmediateDowngradeRequest) (*ImmediateDowngradeResult, error)
	ApplyScheduledDowngrades(ctx context.Context) (int, error)
	ExpireTrials(ctx context.Context) (int, error)
	CompleteCheckout(ctx context.Context, sessionID string) (*Subscription, error)
	ListTrialEvents(ctx context.Context, tenantID snowflake.ID) ([]TrialEvent, error)
}
