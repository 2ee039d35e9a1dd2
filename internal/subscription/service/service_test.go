package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/notification"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	paymentrepo "github.com/smallbiznis/tenantcore/internal/payment/repository"
	paymentservice "github.com/smallbiznis/tenantcore/internal/payment/service"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	"github.com/smallbiznis/tenantcore/internal/plan"
	"github.com/smallbiznis/tenantcore/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/tenantcore/internal/subscription/repository"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/tenantcore/internal/tenant/repository"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&tenantdomain.Tenant{},
		&domain.Subscription{},
		&domain.ScheduledDowngrade{},
		&domain.TrialEvent{},
		&paymentdomain.Payment{},
	))
	return db
}

// fakeGateway is an in-memory payment gateway double that records every call.
type fakeGateway struct {
	configured bool

	retrievedSession *gatewaydomain.CheckoutSession
	subscriptionInfo *gatewaydomain.SubscriptionInfo

	checkoutReqs []gatewaydomain.CheckoutSessionRequest
	updateReqs   []gatewaydomain.UpdateSubscriptionRequest
	cancelRefs   []string
	refundReqs   []gatewaydomain.RefundRequest

	updateErr error
	cancelErr error
	refundErr error
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req gatewaydomain.CheckoutSessionRequest) (*gatewaydomain.CheckoutSession, error) {
	g.checkoutReqs = append(g.checkoutReqs, req)
	return &gatewaydomain.CheckoutSession{
		ID:       "cs_test",
		URL:      "https://checkout.test/cs_test",
		Status:   "open",
		Metadata: req.Metadata,
	}, nil
}

func (g *fakeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*gatewaydomain.CheckoutSession, error) {
	if g.retrievedSession == nil {
		return nil, gatewaydomain.ErrNotFound
	}
	return g.retrievedSession, nil
}

func (g *fakeGateway) CreateBillingPortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	return "https://portal.test/" + customerRef, nil
}

func (g *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*gatewaydomain.SubscriptionInfo, error) {
	if g.subscriptionInfo == nil {
		return nil, gatewaydomain.ErrNotFound
	}
	return g.subscriptionInfo, nil
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, req gatewaydomain.UpdateSubscriptionRequest) (*gatewaydomain.SubscriptionInfo, error) {
	g.updateReqs = append(g.updateReqs, req)
	if g.updateErr != nil {
		return nil, g.updateErr
	}
	return &gatewaydomain.SubscriptionInfo{Ref: req.SubscriptionRef, PriceID: req.PriceID}, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionRef string, atPeriodEnd bool) error {
	g.cancelRefs = append(g.cancelRefs, subscriptionRef)
	return g.cancelErr
}

func (g *fakeGateway) CreateRefund(ctx context.Context, req gatewaydomain.RefundRequest) (*gatewaydomain.Refund, error) {
	g.refundReqs = append(g.refundReqs, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gatewaydomain.Refund{Ref: "re_test", Status: "succeeded"}, nil
}

type testEnv struct {
	db       *gorm.DB
	svc      domain.Service
	repo     domain.Repository
	tenants  tenantdomain.Repository
	payments paymentdomain.Repository
	gateway  *fakeGateway
	clock    *clock.FakeClock
	node     *snowflake.Node
}

func newTestEnv(t *testing.T, gw *fakeGateway) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	repo := subscriptionrepo.NewRepository(db)
	tenants := tenantrepo.NewRepository(db)
	payments := paymentrepo.NewRepository(db)

	paymentSvc := paymentservice.New(paymentservice.ServiceParam{
		DB:      db,
		Repo:    payments,
		Gateway: gw,
		Node:    node,
		Clock:   fc,
		Metrics: metrics.NewNop(),
		Logger:  zap.NewNop(),
	})

	svc := New(ServiceParam{
		DB:          db,
		Repo:        repo,
		TenantRepo:  tenants,
		PaymentRepo: payments,
		Payments:    paymentSvc,
		Catalog:     plan.NewStaticHolder(plan.DefaultCatalog()),
		Gateway:     gw,
		Notifier:    &notification.NoOpSink{},
		Node:        node,
		Clock:       fc,
		Config: config.Config{
			TrialLengthDays:    14,
			CheckoutSuccessURL: "https://app.test/billing/success",
			CheckoutCancelURL:  "https://app.test/billing/cancel",
			PortalReturnURL:    "https://app.test/billing",
		},
		Metrics: metrics.NewNop(),
		Logger:  zap.NewNop(),
	})

	return &testEnv{
		db:       db,
		svc:      svc,
		repo:     repo,
		tenants:  tenants,
		payments: payments,
		gateway:  gw,
		clock:    fc,
		node:     node,
	}
}

func (e *testEnv) seedTenant(t *testing.T, planID string) *tenantdomain.Tenant {
	t.Helper()

	now := e.clock.Now()
	tenant := &tenantdomain.Tenant{
		ID:                 e.node.Generate(),
		Name:               "Acme Inc",
		Subdomain:          "acme",
		AdminEmail:         "owner@acme.test",
		Status:             tenantdomain.TenantStatusActive,
		PlanID:             planID,
		SubscriptionStatus: string(domain.StatusActive),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	require.NoError(t, e.tenants.CreateTenant(context.Background(), tenant))
	return tenant
}

func (e *testEnv) seedSubscription(t *testing.T, tenant *tenantdomain.Tenant, sub *domain.Subscription) *domain.Subscription {
	t.Helper()

	now := e.clock.Now()
	if sub.ID == 0 {
		sub.ID = e.node.Generate()
	}
	sub.TenantID = tenant.ID
	if sub.Status == "" {
		sub.Status = domain.StatusActive
	}
	if sub.BillingCycle == "" {
		sub.BillingCycle = string(plan.CycleMonthly)
	}
	if sub.Currency == "" {
		sub.Currency = "usd"
	}
	if sub.CurrentPeriodStart.IsZero() {
		sub.CurrentPeriodStart = now.AddDate(0, 0, -15)
	}
	if sub.CurrentPeriodEnd.IsZero() {
		sub.CurrentPeriodEnd = now.AddDate(0, 0, 15)
	}
	sub.CreatedAt = now
	sub.UpdatedAt = now
	require.NoError(t, e.repo.Create(context.Background(), sub))
	return sub
}
