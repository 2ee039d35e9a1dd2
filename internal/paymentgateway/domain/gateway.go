package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotConfigured  = errors.New("payment_gateway_not_configured")
	ErrGatewayFailure = errors.New("payment_gateway_failure")
	ErrNotFound       = errors.New("payment_gateway_resource_not_found")
)

// ProrationBehavior mirrors the gateway proration modes used when a
// subscription changes price mid cycle.
type ProrationBehavior string

const (
	ProrationAlwaysInvoice ProrationBehavior = "always_invoice"
	ProrationNone          ProrationBehavior = "none"
)

type CheckoutSessionRequest struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

type CheckoutSession struct {
	ID              string
	URL             string
	Status          string
	SubscriptionRef string
	CustomerRef     string
	Metadata        map[string]string
}

type SubscriptionInfo struct {
	Ref               string
	Status            string
	PriceID           string
	ItemRef           string
	CurrentPeriodEnd  time.Time
	CancelAtPeriodEnd bool
}

type UpdateSubscriptionRequest struct {
	SubscriptionRef string
	PriceID         string
	Proration       ProrationBehavior
}

type RefundRequest struct {
	PaymentRef string
	Amount     int64
	Reason     string
}

type Refund struct {
	Ref    string
	Status string
}

// Gateway wraps the external billing provider. Implementations report
// IsConfigured false when credentials are absent, and callers skip the
// remote leg in that case.
type Gateway interface {
	IsConfigured() bool
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (*CheckoutSession, error)
	RetrieveCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	CreateBillingPortalSession(ctx context.Context, customerRef, returnURL string) (string, error)
	RetrieveSubscription(ctx context.Context, subscriptionRef string) (*SubscriptionInfo, error)
	UpdateSubscription(ctx context.Context, req UpdateSubscriptionRequest) (*SubscriptionInfo, error)
	CancelSubscription(ctx context.Context, subscriptionRef string, atPeriodEnd bool) error
	CreateRefund(ctx context.Context, req RefundRequest) (*Refund, error)
}
