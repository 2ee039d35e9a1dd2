package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	"github.com/smallbiznis/tenantcore/internal/payment/domain"
	"github.com/smallbiznis/tenantcore/internal/payment/repository"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.Payment{}))
	return db
}

// fakeGateway records refund calls and can be toggled unconfigured.
type fakeGateway struct {
	configured bool
	refundReqs []gatewaydomain.RefundRequest
	refundErr  error
}

func (g *fakeGateway) IsConfigured() bool { return g.configured }

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req gatewaydomain.CheckoutSessionRequest) (*gatewaydomain.CheckoutSession, error) {
	return nil, gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) RetrieveCheckoutSession(ctx context.Context, sessionID string) (*gatewaydomain.CheckoutSession, error) {
	return nil, gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) CreateBillingPortalSession(ctx context.Context, customerRef, returnURL string) (string, error) {
	return "", gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) RetrieveSubscription(ctx context.Context, subscriptionRef string) (*gatewaydomain.SubscriptionInfo, error) {
	return nil, gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, req gatewaydomain.UpdateSubscriptionRequest) (*gatewaydomain.SubscriptionInfo, error) {
	return nil, gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionRef string, atPeriodEnd bool) error {
	return gatewaydomain.ErrNotConfigured
}

func (g *fakeGateway) CreateRefund(ctx context.Context, req gatewaydomain.RefundRequest) (*gatewaydomain.Refund, error) {
	g.refundReqs = append(g.refundReqs, req)
	if g.refundErr != nil {
		return nil, g.refundErr
	}
	return &gatewaydomain.Refund{Ref: "re_test", Status: "succeeded"}, nil
}

type testEnv struct {
	svc   domain.Service
	repo  domain.Repository
	node  *snowflake.Node
	clock *clock.FakeClock
}

func newTestEnv(t *testing.T, gw *fakeGateway) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))
	repo := repository.NewRepository(db)

	svc := New(ServiceParam{
		DB:      db,
		Repo:    repo,
		Gateway: gw,
		Node:    node,
		Clock:   fc,
		Metrics: metrics.NewNop(),
		Logger:  zap.NewNop(),
	})
	return &testEnv{svc: svc, repo: repo, node: node, clock: fc}
}

func (e *testEnv) seedPayment(t *testing.T, tenantID snowflake.ID, amount, gatewayRef string) *domain.Payment {
	t.Helper()

	now := e.clock.Now()
	payment := &domain.Payment{
		ID:                e.node.Generate(),
		TenantID:          tenantID,
		SubscriptionID:    e.node.Generate(),
		Amount:            amount,
		Currency:          "usd",
		PaymentType:       domain.PaymentTypeSubscription,
		PaymentMethod:     "card",
		Status:            domain.PaymentStatusSucceeded,
		GatewayPaymentRef: gatewayRef,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	require.NoError(t, e.repo.Create(context.Background(), payment))
	return payment
}

func TestProcessRefundPartial(t *testing.T) {
	gw := &fakeGateway{configured: true}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	tenantID := env.node.Generate()
	original := env.seedPayment(t, tenantID, "100.00", "pi_1")

	amount := decimal.RequireFromString("40.00")
	res, err := env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
		Amount:    &amount,
		Reason:    "downgrade to starter",
	})
	require.NoError(t, err)

	assert.True(t, res.Partial)
	assert.True(t, res.RefundAmount.Equal(amount))

	require.Len(t, gw.refundReqs, 1)
	assert.Equal(t, "pi_1", gw.refundReqs[0].PaymentRef)
	assert.Equal(t, int64(4000), gw.refundReqs[0].Amount)

	// The original row never changes amount, only status.
	stored, err := env.repo.FindByID(ctx, original.ID)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString(stored.Amount).Equal(decimal.RequireFromString("100.00")))
	assert.Equal(t, domain.PaymentStatusPartiallyRefunded, stored.Status)

	refund, err := env.repo.FindByID(ctx, res.Refund.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentTypeRefund, refund.PaymentType)
	assert.Equal(t, domain.PaymentStatusSucceeded, refund.Status)
	assert.True(t, decimal.RequireFromString(refund.Amount).Equal(decimal.RequireFromString("-40.00")))
	require.NotNil(t, refund.RefundedPaymentID)
	assert.Equal(t, original.ID, *refund.RefundedPaymentID)
	assert.Equal(t, "re_test", refund.GatewayRefundRef)
}

func TestProcessRefundFull(t *testing.T) {
	gw := &fakeGateway{configured: true}
	env := newTestEnv(t, gw)
	ctx := context.Background()

	tenantID := env.node.Generate()
	original := env.seedPayment(t, tenantID, "29.00", "pi_1")

	res, err := env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
		Reason:    "full refund",
	})
	require.NoError(t, err)

	assert.False(t, res.Partial)
	assert.True(t, res.RefundAmount.Equal(decimal.RequireFromString("29.00")))

	stored, err := env.repo.FindByID(ctx, original.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusRefunded, stored.Status)

	// A second refund against the same payment is refused.
	_, err = env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
	})
	assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
}

func TestProcessRefundWithoutGatewayStaysPending(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{configured: false})
	ctx := context.Background()

	tenantID := env.node.Generate()
	original := env.seedPayment(t, tenantID, "29.00", "")

	res, err := env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, res.Refund.Status)
	assert.Empty(t, res.Refund.GatewayRefundRef)
}

func TestProcessRefundValidation(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{configured: true})
	ctx := context.Background()

	tenantID := env.node.Generate()
	original := env.seedPayment(t, tenantID, "100.00", "pi_1")

	_, err := env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: env.node.Generate(),
	})
	assert.ErrorIs(t, err, domain.ErrPaymentNotFound)

	// Another tenant cannot touch the payment.
	_, err = env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  env.node.Generate(),
		PaymentID: original.ID,
	})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	over := decimal.RequireFromString("150.00")
	_, err = env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
		Amount:    &over,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	zero := decimal.Zero
	_, err = env.svc.ProcessRefund(ctx, domain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: original.ID,
		Amount:    &zero,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestCreatePaymentRecordDefaults(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{})
	ctx := context.Background()

	tenantID := env.node.Generate()
	payment, err := env.svc.CreatePaymentRecord(ctx, domain.CreatePaymentRecordRequest{
		TenantID:    tenantID,
		Amount:      decimal.RequireFromString("29.00"),
		PaymentType: domain.PaymentTypeSubscription,
		Status:      domain.PaymentStatusSucceeded,
	})
	require.NoError(t, err)
	assert.Equal(t, "card", payment.PaymentMethod)
	assert.Equal(t, "usd", payment.Currency)

	_, err = env.svc.CreatePaymentRecord(ctx, domain.CreatePaymentRecordRequest{
		TenantID:    tenantID,
		Amount:      decimal.RequireFromString("29.00"),
		PaymentType: domain.PaymentTypeSubscription,
	})
	assert.Error(t, err)
}

func TestLatestSubscriptionPayment(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{})
	ctx := context.Background()

	tenantID := env.node.Generate()
	subscriptionID := env.node.Generate()

	older := &domain.Payment{
		ID:             env.node.Generate(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		Amount:         "29.00",
		Currency:       "usd",
		PaymentType:    domain.PaymentTypeSubscription,
		PaymentMethod:  "card",
		Status:         domain.PaymentStatusSucceeded,
		CreatedAt:      env.clock.Now().AddDate(0, -1, 0),
		UpdatedAt:      env.clock.Now().AddDate(0, -1, 0),
	}
	require.NoError(t, env.repo.Create(ctx, older))

	newer := &domain.Payment{
		ID:             env.node.Generate(),
		TenantID:       tenantID,
		SubscriptionID: subscriptionID,
		Amount:         "100.00",
		Currency:       "usd",
		PaymentType:    domain.PaymentTypeSubscription,
		PaymentMethod:  "card",
		Status:         domain.PaymentStatusSucceeded,
		CreatedAt:      env.clock.Now(),
		UpdatedAt:      env.clock.Now(),
	}
	require.NoError(t, env.repo.Create(ctx, newer))

	latest, err := env.svc.LatestSubscriptionPayment(ctx, tenantID, subscriptionID)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, newer.ID, latest.ID)

	missing, err := env.svc.LatestSubscriptionPayment(ctx, tenantID, env.node.Generate())
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestListByTenantPaginates(t *testing.T) {
	env := newTestEnv(t, &fakeGateway{})
	ctx := context.Background()

	tenantID := env.node.Generate()
	subscriptionID := env.node.Generate()
	base := env.clock.Now().AddDate(0, 0, -3)
	for i := 0; i < 3; i++ {
		created := base.AddDate(0, 0, i)
		payment := &domain.Payment{
			ID:             env.node.Generate(),
			TenantID:       tenantID,
			SubscriptionID: subscriptionID,
			Amount:         "10.00",
			Currency:       "usd",
			PaymentType:    domain.PaymentTypeSubscription,
			PaymentMethod:  "card",
			Status:         domain.PaymentStatusSucceeded,
			CreatedAt:      created,
			UpdatedAt:      created,
		}
		require.NoError(t, env.repo.Create(ctx, payment))
	}

	first, info, err := env.svc.ListByTenant(ctx, tenantID, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.True(t, info.HasMore)
	require.NotEmpty(t, info.NextPageToken)
	// Newest first.
	assert.True(t, first[0].CreatedAt.After(first[1].CreatedAt))

	second, info, err := env.svc.ListByTenant(ctx, tenantID, pagination.Pagination{
		PageSize:  2,
		PageToken: info.NextPageToken,
	})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.False(t, info.HasMore)
	assert.True(t, first[1].CreatedAt.After(second[0].CreatedAt))
}
