package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	"github.com/smallbiznis/tenantcore/internal/payment/domain"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	DB      *gorm.DB
	Repo    domain.Repository
	Gateway gatewaydomain.Gateway
	Node    *snowflake.Node
	Clock   clock.Clock
	Metrics *metrics.Metrics `optional:"true"`
	Logger  *zap.Logger
}

type service struct {
	db      *gorm.DB
	repo    domain.Repository
	gateway gatewaydomain.Gateway
	node    *snowflake.Node
	clock   clock.Clock
	metrics *metrics.Metrics
	log     *zap.Logger
}

func New(p ServiceParam) domain.Service {
	return &service{
		db:      p.DB,
		repo:    p.Repo,
		gateway: p.Gateway,
		node:    p.Node,
		clock:   p.Clock,
		metrics: p.Metrics,
		log:     p.Logger.Named("payment.service"),
	}
}

func (s *service) CreatePaymentRecord(ctx context.Context, req domain.CreatePaymentRecordRequest) (*domain.Payment, error) {
	if req.Status == "" {
		return nil, fmt.Errorf("payment status is required")
	}

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = "card"
	}
	currency := strings.ToLower(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "usd"
	}

	now := s.clock.Now()
	payment := &domain.Payment{
		ID:                s.node.Generate(),
		TenantID:          req.TenantID,
		SubscriptionID:    req.SubscriptionID,
		Amount:            req.Amount.String(),
		Currency:          currency,
		PaymentType:       req.PaymentType,
		PaymentMethod:     method,
		Status:            req.Status,
		GatewayPaymentRef: req.GatewayPaymentRef,
		Description:       req.Description,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, err
	}
	return payment, nil
}

func (s *service) ProcessRefund(ctx context.Context, req domain.ProcessRefundRequest) (*domain.RefundResult, error) {
	payment, err := s.repo.FindByID(ctx, req.PaymentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, domain.ErrPaymentNotFound
	}
	if payment.TenantID != req.TenantID {
		return nil, domain.ErrForbidden
	}
	if payment.Status == domain.PaymentStatusRefunded {
		return nil, domain.ErrAlreadyRefunded
	}

	fullAmount, err := decimal.NewFromString(payment.Amount)
	if err != nil {
		return nil, fmt.Errorf("stored amount is not a decimal: %w", err)
	}

	refundAmount := fullAmount
	if req.Amount != nil {
		refundAmount = *req.Amount
	}
	if refundAmount.LessThanOrEqual(decimal.Zero) || refundAmount.GreaterThan(fullAmount) {
		return nil, domain.ErrInvalidAmount
	}
	partial := req.Amount != nil && req.Amount.LessThan(fullAmount)

	// Gateway call stays outside the transaction.
	refundStatus := domain.PaymentStatusPending
	gatewayRefundRef := ""
	if payment.GatewayPaymentRef != "" && s.gateway.IsConfigured() {
		gatewayRefund, err := s.gateway.CreateRefund(ctx, gatewaydomain.RefundRequest{
			PaymentRef: payment.GatewayPaymentRef,
			Amount:     refundAmount.Shift(2).IntPart(),
			Reason:     req.Reason,
		})
		if err != nil {
			return nil, err
		}
		refundStatus = domain.PaymentStatusSucceeded
		gatewayRefundRef = gatewayRefund.Ref
	}

	now := s.clock.Now()
	refund := &domain.Payment{
		ID:                s.node.Generate(),
		TenantID:          payment.TenantID,
		SubscriptionID:    payment.SubscriptionID,
		Amount:            refundAmount.Neg().String(),
		Currency:          payment.Currency,
		PaymentType:       domain.PaymentTypeRefund,
		PaymentMethod:     payment.PaymentMethod,
		Status:            refundStatus,
		GatewayPaymentRef: payment.GatewayPaymentRef,
		GatewayRefundRef:  gatewayRefundRef,
		RefundedPaymentID: &payment.ID,
		Description:       req.Reason,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		if partial {
			payment.Status = domain.PaymentStatusPartiallyRefunded
		} else {
			payment.Status = domain.PaymentStatusRefunded
		}
		payment.UpdatedAt = now
		if err := repo.Update(ctx, payment); err != nil {
			return err
		}
		return repo.Create(ctx, refund)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordRefund(ctx, partial)
	s.log.Info("refund processed",
		zap.Int64("tenant_id", int64(payment.TenantID)),
		zap.Int64("payment_id", int64(payment.ID)),
		zap.String("refund_amount", refundAmount.String()),
		zap.Bool("partial", partial),
	)

	return &domain.RefundResult{
		Original:     payment,
		Refund:       refund,
		RefundAmount: refundAmount,
		Partial:      partial,
	}, nil
}

func (s *service) LatestSubscriptionPayment(ctx context.Context, tenantID, subscriptionID snowflake.ID) (*domain.Payment, error) {
	return s.repo.FindLatestByType(ctx, tenantID, subscriptionID, domain.PaymentTypeSubscription, domain.PaymentStatusSucceeded)
}

func (s *service) ListByTenant(ctx context.Context, tenantID snowflake.ID, page pagination.Pagination) ([]domain.Payment, *pagination.PageInfo, error) {
	return s.repo.ListByTenantPage(ctx, tenantID, page)
}
