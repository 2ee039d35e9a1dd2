// Package domain contains subscription models and the plan-change contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Status string

const (
	StatusTrialing Status = "trialing"
	StatusActive   Status = "active"
	StatusPastDue  Status = "past_due"
	StatusCanceled Status = "canceled"
)

// Subscription is the single current subscription row of a tenant. A plan
// change rewrites the plan and limit fields in place; it never creates a
// second row for the same tenant.
type Subscription struct {
	ID                     snowflake.ID                `gorm:"primaryKey" json:"id"`
	TenantID               snowflake.ID                `gorm:"not null;uniqueIndex:ux_subscriptions_tenant" json:"tenant_id"`
	PlanID                 string                      `gorm:"type:text;not null;column:plan_id" json:"plan_id"`
	Status                 Status                      `gorm:"type:text;not null" json:"status"`
	BillingCycle           string                      `gorm:"type:text;not null;column:billing_cycle" json:"billing_cycle"`
	CycleAmount            string                      `gorm:"type:text;not null;column:cycle_amount" json:"cycle_amount"`
	Currency               string                      `gorm:"type:text;not null" json:"currency"`
	CurrentPeriodStart     time.Time                   `gorm:"not null;column:current_period_start" json:"current_period_start"`
	CurrentPeriodEnd       time.Time                   `gorm:"not null;column:current_period_end" json:"current_period_end"`
	TrialStart             *time.Time                  `gorm:"column:trial_start" json:"trial_start,omitempty"`
	TrialEnd               *time.Time                  `gorm:"column:trial_end" json:"trial_end,omitempty"`
	GatewaySubscriptionRef string                      `gorm:"type:text;column:gateway_subscription_ref" json:"gateway_subscription_ref"`
	GatewayCustomerRef     string                      `gorm:"type:text;column:gateway_customer_ref" json:"gateway_customer_ref"`
	SubscribedTools        datatypes.JSONSlice[string] `gorm:"type:jsonb;column:subscribed_tools" json:"subscribed_tools"`
	UsageLimits            datatypes.JSONMap           `gorm:"type:jsonb;column:usage_limits" json:"usage_limits"`
	CreatedAt              time.Time                   `gorm:"not null" json:"created_at"`
	UpdatedAt              time.Time                   `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Subscription) TableName() string { return "subscriptions" }

type DowngradeStatus string

const (
	DowngradeStatusPending  DowngradeStatus = "pending"
	DowngradeStatusApplied  DowngradeStatus = "applied"
	DowngradeStatusCanceled DowngradeStatus = "canceled"
)

// ScheduledDowngrade marks a downgrade to be applied at the end of the
// current billing period.
type ScheduledDowngrade struct {
	ID             snowflake.ID    `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID    `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID snowflake.ID    `gorm:"not null;index" json:"subscription_id"`
	FromPlanID     string          `gorm:"type:text;not null;column:from_plan_id" json:"from_plan_id"`
	ToPlanID       string          `gorm:"type:text;not null;column:to_plan_id" json:"to_plan_id"`
	EffectiveAt    time.Time       `gorm:"not null;column:effective_at" json:"effective_at"`
	Status         DowngradeStatus `gorm:"type:text;not null" json:"status"`
	CreatedAt      time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (ScheduledDowngrade) TableName() string { return "scheduled_downgrades" }

const (
	TrialEventStartedOnboarding = "trial_started_onboarding"
	TrialEventDowngradedToTrial = "plan_downgraded_to_trial"
	TrialEventConverted         = "trial_converted"
	TrialEventExpired           = "trial_expired"
)

// TrialEvent is an append-only audit row for trial lifecycle transitions.
type TrialEvent struct {
	ID             snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID       snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID snowflake.ID `gorm:"not null;index" json:"subscription_id"`
	Event          string       `gorm:"type:text;not null" json:"event"`
	OccurredAt     time.Time    `gorm:"not null;column:occurred_at" json:"occurred_at"`
	CreatedAt      time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (TrialEvent) TableName() string { return "trial_events" }
