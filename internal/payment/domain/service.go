package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
)

var (
	ErrPaymentNotFound = errors.New("payment_not_found")
	ErrForbidden       = errors.New("payment_forbidden")
	ErrInvalidAmount   = errors.New("invalid_refund_amount")
	ErrAlreadyRefunded = errors.New("payment_already_refunded")
)

type CreatePaymentRecordRequest struct {
	TenantID          snowflake.ID
	SubscriptionID    snowflake.ID
	Amount            decimal.Decimal
	Currency          string
	PaymentType       PaymentType
	PaymentMethod     string
	Status            PaymentStatus
	GatewayPaymentRef string
	Description       string
}

type ProcessRefundRequest struct {
	TenantID  snowflake.ID
	PaymentID snowflake.ID
	// Amount nil means a full refund.
	Amount *decimal.Decimal
	Reason string
}

type RefundResult struct {
	Original     *Payment        `json:"original"`
	Refund       *Payment        `json:"refund"`
	RefundAmount decimal.Decimal `json:"refund_amount"`
	Partial      bool            `json:"partial"`
}

type Service interface {
	CreatePaymentRecord(ctx context.Context, req CreatePaymentRecordRequest) (*Payment, error)
	ProcessRefund(ctx context.Context, req ProcessRefundRequest) (*RefundResult, error)
	LatestSubscriptionPayment(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*Payment, error)
	ListByTenant(ctx context.Context, tenantID snowflake.ID, page pagination.Pagination) ([]Payment, *pagination.PageInfo, error)
}
