// Package stripegateway implements the billing gateway on top of Stripe.
package stripegateway

import (
	"context"
	"strings"
	"time"

	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	stripe "github.com/stripe/stripe-go/v81"
	portalsession "github.com/stripe/stripe-go/v81/billingportal/session"
	"github.com/stripe/stripe-go/v81/checkout/session"
	"github.com/stripe/stripe-go/v81/refund"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"
)

type gateway struct {
	secretKey string
	log       *zap.Logger
}

// New builds the Stripe gateway. The secret key is installed globally,
// matching how the stripe-go subpackage clients resolve credentials.
func New(cfg config.Config, log *zap.Logger) domain.Gateway {
	key := strings.TrimSpace(cfg.StripeSecretKey)
	if key != "" {
		stripe.Key = key
	}
	return &gateway{
		secretKey: key,
		log:       log.Named("paymentgateway.stripe"),
	}
}

func (g *gateway) IsConfigured() bool {
	return g.secretKey != ""
}

func (g *gateway) CreateCheckoutSession(ctx context.Context, req domain.CheckoutSessionRequest) (*domain.CheckoutSession, error) {
	if !g.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(req.PriceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:    stripe.String(req.SuccessURL),
		CancelURL:     stripe.String(req.CancelURL),
		CustomerEmail: stripe.String(req.CustomerEmail),
	}
	params.Context = ctx
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	s, err := session.New(params)
	if err != nil {
		g.log.Warn("checkout session create failed", zap.Error(err))
		return nil, domain.ErrGatewayFailure
	}
	return checkoutSessionFrom(s), nil
}

func (g *gateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*domain.CheckoutSession, error) {
	if !g.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx
	s, err := session.Get(sessionID, params)
	if err != nil {
		return nil, asDomainErr(err)
	}
	return checkoutSessionFrom(s), nil
}

func (g *gateway) CreateBillingPortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	if !g.IsConfigured() {
		return "", domain.ErrNotConfigured
	}

	params := &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerRef),
		ReturnURL: stripe.String(returnURL),
	}
	params.Context = ctx
	s, err := portalsession.New(params)
	if err != nil {
		return "", asDomainErr(err)
	}
	return s.URL, nil
}

func (g *gateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*domain.SubscriptionInfo, error) {
	if !g.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	sub, err := subscription.Get(subscriptionRef, params)
	if err != nil {
		return nil, asDomainErr(err)
	}
	return subscriptionInfoFrom(sub), nil
}

func (g *gateway) UpdateSubscription(ctx context.Context, req domain.UpdateSubscriptionRequest) (*domain.SubscriptionInfo, error) {
	if !g.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	current, err := g.RetrieveSubscription(ctx, req.SubscriptionRef)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.ItemRef),
				Price: stripe.String(req.PriceID),
			},
		},
		ProrationBehavior: stripe.String(string(req.Proration)),
	}
	params.Context = ctx
	sub, err := subscription.Update(req.SubscriptionRef, params)
	if err != nil {
		g.log.Warn("subscription update failed",
			zap.String("subscription_ref", req.SubscriptionRef),
			zap.Error(err),
		)
		return nil, domain.ErrGatewayFailure
	}
	return subscriptionInfoFrom(sub), nil
}

func (g *gateway) CancelSubscription(ctx context.Context, subscriptionRef string, atPeriodEnd bool) error {
	if !g.IsConfigured() {
		return domain.ErrNotConfigured
	}

	if atPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		_, err := subscription.Update(subscriptionRef, params)
		return asDomainErr(err)
	}

	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	_, err := subscription.Cancel(subscriptionRef, params)
	return asDomainErr(err)
}

func (g *gateway) CreateRefund(ctx context.Context, req domain.RefundRequest) (*domain.Refund, error) {
	if !g.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(req.PaymentRef),
	}
	if req.Amount > 0 {
		params.Amount = stripe.Int64(req.Amount)
	}
	if req.Reason != "" {
		params.Reason = stripe.String(req.Reason)
	}
	params.Context = ctx

	r, err := refund.New(params)
	if err != nil {
		g.log.Warn("refund create failed",
			zap.String("payment_ref", req.PaymentRef),
			zap.Error(err),
		)
		return nil, domain.ErrGatewayFailure
	}
	return &domain.Refund{Ref: r.ID, Status: string(r.Status)}, nil
}

func checkoutSessionFrom(s *stripe.CheckoutSession) *domain.CheckoutSession {
	out := &domain.CheckoutSession{
		ID:       s.ID,
		URL:      s.URL,
		Status:   string(s.Status),
		Metadata: s.Metadata,
	}
	if s.Subscription != nil {
		out.SubscriptionRef = s.Subscription.ID
	}
	if s.Customer != nil {
		out.CustomerRef = s.Customer.ID
	}
	return out
}

func subscriptionInfoFrom(sub *stripe.Subscription) *domain.SubscriptionInfo {
	info := &domain.SubscriptionInfo{
		Ref:               sub.ID,
		Status:            string(sub.Status),
		CurrentPeriodEnd:  time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		info.ItemRef = item.ID
		if item.Price != nil {
			info.PriceID = item.Price.ID
		}
	}
	return info
}

func asDomainErr(err error) error {
	if err == nil {
		return nil
	}
	if stripeErr, ok := err.(*stripe.Error); ok {
		if stripeErr.HTTPStatusCode == 404 {
			return domain.ErrNotFound
		}
	}
	return domain.ErrGatewayFailure
}
