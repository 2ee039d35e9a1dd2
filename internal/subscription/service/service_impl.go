package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/notification"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	"github.com/smallbiznis/tenantcore/internal/plan"
	"github.com/smallbiznis/tenantcore/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// downgradeWindowDays is how close to renewal a downgrade request must be
// before it is scheduled instead of rejected.
const downgradeWindowDays = 7

type ServiceParam struct {
	fx.In

	DB          *gorm.DB
	Repo        domain.Repository
	TenantRepo  tenantdomain.Repository
	PaymentRepo paymentdomain.Repository
	Payments    paymentdomain.Service
	Catalog     *plan.CatalogHolder
	Gateway     gatewaydomain.Gateway
	Notifier    notification.Sink
	Node        *snowflake.Node
	Clock       clock.Clock
	Config      config.Config
	Metrics     *metrics.Metrics `optional:"true"`
	Logger      *zap.Logger
}

type service struct {
	db          *gorm.DB
	repo        domain.Repository
	tenantRepo  tenantdomain.Repository
	paymentRepo paymentdomain.Repository
	payments    paymentdomain.Service
	catalog     *plan.CatalogHolder
	gateway     gatewaydomain.Gateway
	notifier    notification.Sink
	node        *snowflake.Node
	clock       clock.Clock
	cfg         config.Config
	metrics     *metrics.Metrics
	log         *zap.Logger
}

func New(p ServiceParam) domain.Service {
	return &service{
		db:          p.DB,
		repo:        p.Repo,
		tenantRepo:  p.TenantRepo,
		paymentRepo: p.PaymentRepo,
		payments:    p.Payments,
		catalog:     p.Catalog,
		gateway:     p.Gateway,
		notifier:    p.Notifier,
		node:        p.Node,
		clock:       p.Clock,
		cfg:         p.Config,
		metrics:     p.Metrics,
		log:         p.Logger.Named("subscription.service"),
	}
}

func (s *service) GetByTenantID(ctx context.Context, tenantID snowflake.ID) (*domain.Subscription, error) {
	sub, err := s.repo.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}
	return sub, nil
}

func (s *service) ListTrialEvents(ctx context.Context, tenantID snowflake.ID) ([]domain.TrialEvent, error) {
	return s.repo.ListTrialEvents(ctx, tenantID)
}

// ChangePlan decides how a requested plan change proceeds. It never mutates
// the subscription row directly; upgrades go through the hosted portal or
// checkout flow, and near-renewal downgrades leave a scheduled marker.
func (s *service) ChangePlan(ctx context.Context, req domain.ChangePlanRequest) (*domain.ChangePlanResult, error) {
	sub, err := s.repo.FindByTenantID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	catalog := s.catalog.Get()
	targetID := strings.ToLower(strings.TrimSpace(req.TargetPlanID))
	if targetID == plan.Trial {
		return nil, domain.ErrPlanNotSelectable
	}
	targetDef, ok := catalog.Lookup(targetID)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}

	currentLevel := catalog.Level(sub.PlanID)
	targetLevel := catalog.Level(targetID)
	now := s.clock.Now()

	if targetLevel < currentLevel && sub.Status == domain.StatusActive {
		remaining := daysRemaining(now, sub.CurrentPeriodEnd)
		if remaining > downgradeWindowDays {
			renewal := sub.CurrentPeriodEnd
			s.metrics.RecordPlanChange(ctx, string(domain.OutcomeRejected))
			return &domain.ChangePlanResult{
				Outcome:     domain.OutcomeRejected,
				RenewalDate: &renewal,
				Reason: fmt.Sprintf(
					"you have already paid through %s; the downgrade can be requested within %d days of renewal",
					renewal.Format("2006-01-02"), downgradeWindowDays,
				),
			}, nil
		}

		// One pending marker per tenant; a repeated request retargets it
		// instead of stacking rows.
		downgrade, err := s.repo.FindPendingDowngrade(ctx, sub.TenantID)
		if err != nil {
			return nil, err
		}
		if downgrade != nil {
			downgrade.SubscriptionID = sub.ID
			downgrade.FromPlanID = sub.PlanID
			downgrade.ToPlanID = targetID
			downgrade.EffectiveAt = sub.CurrentPeriodEnd
			downgrade.UpdatedAt = now
			if err := s.repo.UpdateScheduledDowngrade(ctx, downgrade); err != nil {
				return nil, err
			}
		} else {
			downgrade = &domain.ScheduledDowngrade{
				ID:             s.node.Generate(),
				TenantID:       sub.TenantID,
				SubscriptionID: sub.ID,
				FromPlanID:     sub.PlanID,
				ToPlanID:       targetID,
				EffectiveAt:    sub.CurrentPeriodEnd,
				Status:         domain.DowngradeStatusPending,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := s.repo.CreateScheduledDowngrade(ctx, downgrade); err != nil {
				return nil, err
			}
		}

		s.metrics.RecordDowngradeScheduled(ctx)
		s.metrics.RecordPlanChange(ctx, string(domain.OutcomeDowngradeScheduled))
		effective := sub.CurrentPeriodEnd
		return &domain.ChangePlanResult{
			Outcome:     domain.OutcomeDowngradeScheduled,
			EffectiveAt: &effective,
		}, nil
	}

	if !targetDef.AllowDowngrade && targetLevel <= currentLevel {
		s.metrics.RecordPlanChange(ctx, string(domain.OutcomeRejected))
		return &domain.ChangePlanResult{
			Outcome: domain.OutcomeRejected,
			Reason:  fmt.Sprintf("plan %q cannot be downgraded to", targetID),
		}, nil
	}

	if sub.GatewaySubscriptionRef != "" && s.gateway.IsConfigured() {
		url, err := s.gateway.CreateBillingPortalSession(ctx, sub.GatewayCustomerRef, s.cfg.PortalReturnURL)
		if err != nil {
			return nil, err
		}
		s.metrics.RecordPlanChange(ctx, string(domain.OutcomePortalRedirect))
		return &domain.ChangePlanResult{
			Outcome:     domain.OutcomePortalRedirect,
			RedirectURL: url,
		}, nil
	}

	cycle := plan.NormalizeCycle(req.BillingCycle)
	if strings.TrimSpace(req.BillingCycle) == "" {
		cycle = plan.NormalizeCycle(sub.BillingCycle)
	}

	tenant, err := s.tenantRepo.FindTenantByID(ctx, req.TenantID)
	if err != nil {
		return nil, err
	}
	if tenant == nil {
		return nil, tenantdomain.ErrTenantNotFound
	}

	session, err := s.gateway.CreateCheckoutSession(ctx, gatewaydomain.CheckoutSessionRequest{
		PriceID:       targetDef.GatewayPriceID(cycle),
		CustomerEmail: tenant.AdminEmail,
		SuccessURL:    s.cfg.CheckoutSuccessURL,
		CancelURL:     s.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"tenant_id":     sub.TenantID.String(),
			"plan_id":       targetID,
			"billing_cycle": string(cycle),
		},
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPlanChange(ctx, string(domain.OutcomeCheckoutRedirect))
	return &domain.ChangePlanResult{
		Outcome:     domain.OutcomeCheckoutRedirect,
		RedirectURL: session.URL,
	}, nil
}

// CompleteCheckout activates the subscription for a finished checkout
// session, keyed by the tenant metadata stamped on the session.
func (s *service) CompleteCheckout(ctx context.Context, sessionID string) (*domain.Subscription, error) {
	session, err := s.gateway.RetrieveCheckoutSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(session.Status, "complete") {
		return nil, domain.ErrCheckoutIncomplete
	}

	tenantID, err := snowflake.ParseString(session.Metadata["tenant_id"])
	if err != nil {
		return nil, fmt.Errorf("checkout session missing tenant metadata: %w", err)
	}
	planID := strings.ToLower(strings.TrimSpace(session.Metadata["plan_id"]))
	cycle := plan.NormalizeCycle(session.Metadata["billing_cycle"])

	catalog := s.catalog.Get()
	def, ok := catalog.Lookup(planID)
	if !ok {
		return nil, domain.ErrUnknownPlan
	}

	sub, err := s.repo.FindByTenantID(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, domain.ErrSubscriptionNotFound
	}

	now := s.clock.Now()
	periodEnd := now.AddDate(0, 0, cycle.Days())
	if session.SubscriptionRef != "" {
		if info, err := s.gateway.RetrieveSubscription(ctx, session.SubscriptionRef); err == nil {
			periodEnd = info.CurrentPeriodEnd
		}
	}

	wasTrialing := sub.Status == domain.StatusTrialing
	amount := def.Price(cycle)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		sub.PlanID = def.ID
		sub.Status = domain.StatusActive
		sub.BillingCycle = string(cycle)
		sub.CycleAmount = amount.String()
		sub.CurrentPeriodStart = now
		sub.CurrentPeriodEnd = periodEnd
		sub.GatewaySubscriptionRef = session.SubscriptionRef
		sub.GatewayCustomerRef = session.CustomerRef
		sub.SubscribedTools = datatypes.NewJSONSlice(def.Tools)
		sub.UsageLimits = limitsToJSONMap(def.Limits)
		sub.UpdatedAt = now
		if err := repo.Update(ctx, sub); err != nil {
			return err
		}

		if wasTrialing {
			event := &domain.TrialEvent{
				ID:             s.node.Generate(),
				TenantID:       sub.TenantID,
				SubscriptionID: sub.ID,
				Event:          domain.TrialEventConverted,
				OccurredAt:     now,
				CreatedAt:      now,
			}
			if err := repo.CreateTrialEvent(ctx, event); err != nil {
				return err
			}
		}

		if err := s.syncTenantMirror(ctx, tx, sub); err != nil {
			return err
		}

		payment := &paymentdomain.Payment{
			ID:                s.node.Generate(),
			TenantID:          sub.TenantID,
			SubscriptionID:    sub.ID,
			Amount:            amount.String(),
			Currency:          strings.ToLower(sub.Currency),
			PaymentType:       paymentdomain.PaymentTypeSubscription,
			PaymentMethod:     "card",
			Status:            paymentdomain.PaymentStatusSucceeded,
			GatewayPaymentRef: session.ID,
			Description:       fmt.Sprintf("subscription to %s (%s)", def.ID, cycle),
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		return s.paymentRepo.WithTx(tx).Create(ctx, payment)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RecordPlanChange(ctx, "checkout_completed")
	s.log.Info("checkout completed",
		zap.Int64("tenant_id", int64(sub.TenantID)),
		zap.String("plan_id", sub.PlanID),
		zap.String("billing_cycle", sub.BillingCycle),
	)
	return sub, nil
}

func (s *service) syncTenantMirror(ctx context.Context, tx *gorm.DB, sub *domain.Subscription) error {
	repo := s.tenantRepo.WithTx(tx)
	tenant, err := repo.FindTenantByID(ctx, sub.TenantID)
	if err != nil {
		return err
	}
	if tenant == nil {
		return tenantdomain.ErrTenantNotFound
	}
	tenant.PlanID = sub.PlanID
	tenant.SubscriptionStatus = string(sub.Status)
	tenant.UpdatedAt = s.clock.Now()
	return repo.UpdateTenant(ctx, tenant)
}

func limitsToJSONMap(limits map[string]int64) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range limits {
		out[key] = value
	}
	return out
}

func parseAmount(raw string) decimal.Decimal {
	amount, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero
	}
	return amount
}
