package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantcore/internal/notification"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	"github.com/smallbiznis/tenantcore/internal/plan"
	"github.com/smallbiznis/tenantcore/internal/subscription/domain"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ImmediateDowngrade applies a plan change right away, bypassing the
// portal/checkout flow. Gateway-side changes run before the local mutation;
// the refund leg runs after it and is not rolled back on failure.
func (s *service) ImmediateDowngrade(ctx context.Context, req domain.ImmediateDowngradeRequest) (*domain.ImmediateDowngradeResult, error) {
	sub, err := s.repo.FindByTenantID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	newPlanID := strings.ToLower(strings.TrimSpace(req.NewPlanID))
	if newPlanID == sub.PlanID {
		return nil, domain.ErrSamePlan
	}
	catalog := s.catalog.Get()
	def, ok := catalog.Lookup(newPlanID)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}
	toTrial := newPlanID == plan.Trial

	cycle := plan.NormalizeCycle(sub.BillingCycle)
	totalDays := cycle.Days()
	now := s.clock.Now()

	var lastPayment *paymentdomain.Payment
	prorationAmt := decimal.Zero
	if sub.GatewaySubscriptionRef != "" {
		remaining := daysRemaining(now, sub.CurrentPeriodEnd)
		prorationAmt = prorationAmount(parseAmount(sub.CycleAmount), remaining, totalDays)
	} else {
		lastPayment, err = s.payments.LatestSubscriptionPayment(ctx, sub.TenantID, sub.ID)
		if err != nil {
			return nil, err
		}
		if lastPayment != nil {
			daysSince := int(now.Sub(lastPayment.CreatedAt).Hours() / 24)
			remaining := totalDays - daysSince
			if remaining < 0 {
				remaining = 0
			}
			prorationAmt = prorationAmount(parseAmount(lastPayment.Amount), remaining, totalDays)
		}
	}

	refundAmount := decimal.Zero
	if req.RefundRequested {
		refundAmount = prorationAmt
	}

	if sub.GatewaySubscriptionRef != "" && s.gateway.IsConfigured() {
		if toTrial {
			if err := s.gateway.CancelSubscription(ctx, sub.GatewaySubscriptionRef, false); err != nil {
				return nil, err
			}
		} else {
			behavior := gatewaydomain.ProrationNone
			if req.RefundRequested {
				behavior = gatewaydomain.ProrationAlwaysInvoice
			}
			if _, err := s.gateway.UpdateSubscription(ctx, gatewaydomain.UpdateSubscriptionRequest{
				SubscriptionRef: sub.GatewaySubscriptionRef,
				PriceID:         def.GatewayPriceID(cycle),
				Proration:       behavior,
			}); err != nil {
				return nil, err
			}
		}
	}

	fromPlanID := sub.PlanID
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub.PlanID = def.ID
		if toTrial {
			sub.Status = domain.StatusTrialing
			sub.GatewaySubscriptionRef = ""
			sub.GatewayCustomerRef = ""
		}
		sub.CycleAmount = def.Price(cycle).String()
		sub.SubscribedTools = datatypes.NewJSONSlice(def.Tools)
		sub.UsageLimits = limitsToJSONMap(def.Limits)
		sub.UpdatedAt = now
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}

		if err := s.syncTenantMirror(ctx, tx, sub); err != nil {
			return err
		}

		if toTrial {
			event := &domain.TrialEvent{
				ID:             s.node.Generate(),
				TenantID:       sub.TenantID,
				SubscriptionID: sub.ID,
				Event:          domain.TrialEventDowngradedToTrial,
				OccurredAt:     now,
				CreatedAt:      now,
			}
			return repo.CreateTrialEvent(ctx, event)
		}

		record := &paymentdomain.Payment{
			ID:             s.node.Generate(),
			TenantID:       sub.TenantID,
			SubscriptionID: sub.ID,
			Amount:         prorationAmt.Neg().String(),
			Currency:       strings.ToLower(sub.Currency),
			PaymentType:    paymentdomain.PaymentTypePlanChange,
			PaymentMethod:  "card",
			Status:         paymentdomain.PaymentStatusSucceeded,
			Description:    fmt.Sprintf("plan change %s -> %s", fromPlanID, def.ID),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		return s.paymentRepo.WithTx(tx).Create(ctx, record)
	})
	if err != nil {
		return nil, err
	}

	refundIssued := false
	if req.RefundRequested && refundAmount.GreaterThan(decimal.Zero) {
		if lastPayment == nil {
			lastPayment, err = s.payments.LatestSubscriptionPayment(ctx, sub.TenantID, sub.ID)
			if err != nil {
				return nil, err
			}
		}
		if lastPayment != nil {
			amount := refundAmount
			if amount.GreaterThan(parseAmount(lastPayment.Amount)) {
				amount = parseAmount(lastPayment.Amount)
			}
			if _, err := s.payments.ProcessRefund(ctx, paymentdomain.ProcessRefundRequest{
				TenantID:  sub.TenantID,
				PaymentID: lastPayment.ID,
				Amount:    &amount,
				Reason:    fmt.Sprintf("downgrade to %s", def.ID),
			}); err != nil {
				return nil, err
			}
			refundAmount = amount
			refundIssued = true
		} else {
			// No prior payment to refund against; leave a pending row for
			// manual reconciliation.
			if _, err := s.payments.CreatePaymentRecord(ctx, paymentdomain.CreatePaymentRecordRequest{
				TenantID:       sub.TenantID,
				SubscriptionID: sub.ID,
				Amount:         refundAmount.Neg(),
				Currency:       sub.Currency,
				PaymentType:    paymentdomain.PaymentTypeRefund,
				Status:         paymentdomain.PaymentStatusPending,
				Description:    fmt.Sprintf("refund for downgrade to %s", def.ID),
			}); err != nil {
				return nil, err
			}
		}
	}

	if tenant, terr := s.tenantRepo.FindTenantByID(ctx, sub.TenantID); terr == nil && tenant != nil {
		if nerr := s.notifier.SendDowngradeConfirmation(ctx, notification.DowngradeMessage{
			TenantID:      int64(sub.TenantID),
			AdminEmail:    tenant.AdminEmail,
			FromPlanID:    fromPlanID,
			ToPlanID:      def.ID,
			EffectiveDate: now.Format("2006-01-02"),
			RefundAmount:  refundAmount.String(),
		}); nerr != nil {
			s.log.Warn("downgrade notification failed", zap.Error(nerr))
		}
	}

	s.metrics.RecordPlanChange(ctx, "immediate_downgrade")
	s.log.Info("immediate downgrade applied",
		zap.Int64("tenant_id", int64(sub.TenantID)),
		zap.String("from_plan", fromPlanID),
		zap.String("to_plan", def.ID),
		zap.String("proration_amount", prorationAmt.String()),
		zap.Bool("refund_issued", refundIssued),
	)

	return &domain.ImmediateDowngradeResult{
		Subscription:    sub,
		ProrationAmount: prorationAmt,
		RefundAmount:    refundAmount,
		RefundIssued:    refundIssued,
	}, nil
}

// ApplyScheduledDowngrades applies every pending downgrade whose effective
// date has passed. It reuses the immediate-downgrade mutation path, without
// a refund. Returns the number applied.
func (s *service) ApplyScheduledDowngrades(ctx context.Context) (int, error) {
	due, err := s.repo.ListDueDowngrades(ctx, s.clock.Now())
	if err != nil {
		return 0, err
	}

	applied := 0
	for i := range due {
		downgrade := &due[i]

		sub, err := s.repo.FindByTenantID(ctx, downgrade.TenantID)
		if err != nil {
			return applied, err
		}
		if sub == nil || sub.PlanID != downgrade.FromPlanID {
			// The plan moved on since the downgrade was scheduled.
			downgrade.Status = domain.DowngradeStatusCanceled
			downgrade.UpdatedAt = s.clock.Now()
			if err := s.repo.UpdateScheduledDowngrade(ctx, downgrade); err != nil {
				return applied, err
			}
			continue
		}

		if _, err := s.ImmediateDowngrade(ctx, domain.ImmediateDowngradeRequest{
			TenantID:        downgrade.TenantID,
			NewPlanID:       downgrade.ToPlanID,
			RefundRequested: false,
		}); err != nil {
			s.log.Warn("scheduled downgrade failed",
				zap.Int64("tenant_id", int64(downgrade.TenantID)),
				zap.String("to_plan", downgrade.ToPlanID),
				zap.Error(err),
			)
			continue
		}

		downgrade.Status = domain.DowngradeStatusApplied
		downgrade.UpdatedAt = s.clock.Now()
		if err := s.repo.UpdateScheduledDowngrade(ctx, downgrade); err != nil {
			return applied, err
		}
		applied++
		s.metrics.RecordDowngradeApplied(ctx)
	}
	return applied, nil
}
