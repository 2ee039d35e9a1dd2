// Package domain contains the payment ledger models and contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type PaymentType string

const (
	PaymentTypeSubscription PaymentType = "subscription"
	PaymentTypePlanChange   PaymentType = "plan_change"
	PaymentTypeRefund       PaymentType = "refund"
)

type PaymentStatus string

const (
	PaymentStatusPending           PaymentStatus = "pending"
	PaymentStatusSucceeded         PaymentStatus = "succeeded"
	PaymentStatusFailed            PaymentStatus = "failed"
	PaymentStatusRefunded          PaymentStatus = "refunded"
	PaymentStatusPartiallyRefunded PaymentStatus = "partially_refunded"
)

// Payment is an append-only ledger row. Amount is an exact decimal string
// and is never mutated after insert; refunds append a new negative row and
// only flip the original row's status.
type Payment struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	TenantID          snowflake.ID  `gorm:"not null;index" json:"tenant_id"`
	SubscriptionID    snowflake.ID  `gorm:"index" json:"subscription_id"`
	Amount            string        `gorm:"type:text;not null" json:"amount"`
	Currency          string        `gorm:"type:text;not null" json:"currency"`
	PaymentType       PaymentType   `gorm:"type:text;not null;column:payment_type" json:"payment_type"`
	PaymentMethod     string        `gorm:"type:text;not null;column:payment_method" json:"payment_method"`
	Status            PaymentStatus `gorm:"type:text;not null" json:"status"`
	GatewayPaymentRef string        `gorm:"type:text;column:gateway_payment_ref" json:"gateway_payment_ref"`
	GatewayRefundRef  string        `gorm:"type:text;column:gateway_refund_ref" json:"gateway_refund_ref"`
	RefundedPaymentID *snowflake.ID `gorm:"column:refunded_payment_id" json:"refunded_payment_id,omitempty"`
	Description       string        `gorm:"type:text" json:"description"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt         time.Time     `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Payment) TableName() string { return "payments" }
