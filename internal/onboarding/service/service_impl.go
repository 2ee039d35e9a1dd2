package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/config"
	identitydomain "github.com/smallbiznis/tenantcore/internal/identity/domain"
	"github.com/smallbiznis/tenantcore/internal/notification"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	"github.com/smallbiznis/tenantcore/internal/onboarding/domain"
	"github.com/smallbiznis/tenantcore/internal/plan"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"github.com/smallbiznis/tenantcore/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const superAdminRoleName = "Super Administrator"

type ServiceParam struct {
	fx.In

	DB               *gorm.DB
	TenantRepo       tenantdomain.Repository
	SubscriptionRepo subscriptiondomain.Repository
	Identity         identitydomain.Gateway
	Catalog          *plan.CatalogHolder
	Notifier         notification.Sink
	Node             *snowflake.Node
	Clock            clock.Clock
	Config           config.Config
	Metrics          *metrics.Metrics `optional:"true"`
	Logger           *zap.Logger
}

type service struct {
	db               *gorm.DB
	tenantRepo       tenantdomain.Repository
	subscriptionRepo subscriptiondomain.Repository
	identity         identitydomain.Gateway
	catalog          *plan.CatalogHolder
	notifier         notification.Sink
	node             *snowflake.Node
	clock            clock.Clock
	cfg              config.Config
	metrics          *metrics.Metrics
	log              *zap.Logger
}

func New(p ServiceParam) domain.Service {
	return &service{
		db:               p.DB,
		tenantRepo:       p.TenantRepo,
		subscriptionRepo: p.SubscriptionRepo,
		identity:         p.Identity,
		catalog:          p.Catalog,
		notifier:         p.Notifier,
		node:             p.Node,
		clock:            p.Clock,
		cfg:              p.Config,
		metrics:          p.Metrics,
		log:              p.Logger.Named("onboarding.service"),
	}
}

// ProvisionTenant runs the provisioning saga: advisory uniqueness checks,
// external org/user creation with fallback refs, one local transaction for
// all tenant rows, then best-effort identity assignment after commit. The
// local store is the source of truth; identity failures never fail the call.
func (s *service) ProvisionTenant(ctx context.Context, req domain.ProvisionTenantRequest) (*domain.ProvisionTenantResult, error) {
	req.CompanyName = strings.TrimSpace(req.CompanyName)
	req.AdminEmail = strings.ToLower(strings.TrimSpace(req.AdminEmail))
	req.Subdomain = slug.Make(req.Subdomain)
	if req.CompanyName == "" || req.AdminEmail == "" || req.Subdomain == "" {
		return nil, domain.ErrInvalidRequest
	}

	catalog := s.catalog.Get()
	planID := strings.ToLower(strings.TrimSpace(req.PlanID))
	if planID == "" {
		planID = plan.Trial
	}
	planDef, ok := catalog.Lookup(planID)
	if !ok {
		return nil, domain.ErrInvalidRequest
	}
	cycle := plan.NormalizeCycle(req.BillingCycle)

	if existing, err := s.tenantRepo.FindTenantByAdminEmail(ctx, req.AdminEmail); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, tenantdomain.ErrEmailTaken
	}
	if existing, err := s.tenantRepo.FindTenantBySubdomain(ctx, req.Subdomain); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, tenantdomain.ErrSubdomainTaken
	}

	now := s.clock.Now()
	progress := datatypes.JSONMap{}

	// Step 1: external organization, falling back to a local ref on failure.
	orgRef := ""
	orgFallback := false
	if org, err := s.identity.CreateOrganization(ctx, identitydomain.CreateOrganizationRequest{
		Name:      req.CompanyName,
		Subdomain: req.Subdomain,
	}); err != nil {
		orgRef = fmt.Sprintf("org_%s_%d", req.Subdomain, now.Unix())
		orgFallback = true
		progress["organization"] = "fallback"
		s.log.Warn("identity organization creation failed, using fallback ref",
			zap.String("subdomain", req.Subdomain),
			zap.Error(err),
		)
	} else {
		orgRef = org.Ref
		progress["organization"] = "created"
	}

	// Step 2: external admin user, reusing the caller's identity when known.
	userRef := strings.TrimSpace(req.AuthenticatedUserRef)
	userFallback := false
	if userRef != "" {
		progress["admin_user"] = "reused"
	} else if user, err := s.identity.CreateUser(ctx, identitydomain.CreateUserRequest{
		Email: req.AdminEmail,
		Name:  req.AdminName,
	}); err != nil {
		userRef = fallbackUserRef(req.AdminEmail)
		userFallback = true
		progress["admin_user"] = "fallback"
		s.log.Warn("identity user creation failed, using fallback ref",
			zap.String("admin_email", req.AdminEmail),
			zap.Error(err),
		)
	} else {
		userRef = user.Ref
		progress["admin_user"] = "created"
	}
	progress["local_records"] = "created"

	trialStart := now
	trialEnd := now.AddDate(0, 0, s.cfg.TrialLengthDays)

	tenant := &tenantdomain.Tenant{
		ID:                  s.node.Generate(),
		Name:                req.CompanyName,
		Subdomain:           req.Subdomain,
		AdminEmail:          req.AdminEmail,
		Status:              tenantdomain.TenantStatusActive,
		PlanID:              planDef.ID,
		ExternalOrgRef:      orgRef,
		OrgRefFallback:      orgFallback,
		SubscriptionStatus:  string(subscriptiondomain.StatusTrialing),
		OnboardingCompleted: true,
		OnboardingProgress:  progress,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	admin := &tenantdomain.AdminUser{
		ID:              s.node.Generate(),
		TenantID:        tenant.ID,
		Email:           req.AdminEmail,
		Name:            strings.TrimSpace(req.AdminName),
		ExternalUserRef: userRef,
		UserRefFallback: userFallback,
		IsTenantAdmin:   true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	role := &tenantdomain.Role{
		ID:          s.node.Generate(),
		TenantID:    tenant.ID,
		Name:        superAdminRoleName,
		Permissions: datatypes.NewJSONSlice(planDef.Permissions),
		CreatedAt:   now,
	}
	assignment := &tenantdomain.RoleAssignment{
		ID:        s.node.Generate(),
		TenantID:  tenant.ID,
		UserID:    admin.ID,
		RoleID:    role.ID,
		CreatedAt: now,
	}
	subscription := &subscriptiondomain.Subscription{
		ID:                 s.node.Generate(),
		TenantID:           tenant.ID,
		PlanID:             planDef.ID,
		Status:             subscriptiondomain.StatusTrialing,
		BillingCycle:       string(cycle),
		CycleAmount:        planDef.Price(cycle).String(),
		Currency:           "usd",
		CurrentPeriodStart: trialStart,
		CurrentPeriodEnd:   trialEnd,
		TrialStart:         &trialStart,
		TrialEnd:           &trialEnd,
		SubscribedTools:    datatypes.NewJSONSlice(planDef.Tools),
		UsageLimits:        limitsToJSONMap(planDef.Limits),
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	trialEvent := &subscriptiondomain.TrialEvent{
		ID:             s.node.Generate(),
		TenantID:       tenant.ID,
		SubscriptionID: subscription.ID,
		Event:          subscriptiondomain.TrialEventStartedOnboarding,
		OccurredAt:     now,
		CreatedAt:      now,
	}

	// Step 3: the single local transaction. Insert order matters for FK
	// sanity; any failure rolls everything back.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		tenants := s.tenantRepo.WithTx(tx)
		subscriptions := s.subscriptionRepo.WithTx(tx)

		if err := tenants.CreateTenant(ctx, tenant); err != nil {
			return err
		}
		if err := tenants.CreateAdminUser(ctx, admin); err != nil {
			return err
		}
		if err := tenants.CreateRole(ctx, role); err != nil {
			return err
		}
		if err := tenants.CreateRoleAssignment(ctx, assignment); err != nil {
			return err
		}
		if err := subscriptions.Create(ctx, subscription); err != nil {
			return err
		}
		return subscriptions.CreateTrialEvent(ctx, trialEvent)
	})
	if err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, s.conflictFor(ctx, req.AdminEmail, req.Subdomain)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrProvisioningFailed, err)
	}

	// Step 4: best-effort identity assignment, after commit on purpose.
	if !orgFallback && !userFallback {
		s.reconcileAssignment(ctx, tenant, admin)
	}

	if err := s.notifier.SendWelcome(ctx, notification.WelcomeMessage{
		TenantName: tenant.Name,
		Subdomain:  tenant.Subdomain,
		AdminEmail: tenant.AdminEmail,
		PlanID:     tenant.PlanID,
		Degraded:   orgFallback || userFallback,
	}); err != nil {
		s.log.Warn("welcome notification failed", zap.Error(err))
	}

	s.metrics.RecordProvisioned(ctx, orgFallback || userFallback)
	s.log.Info("tenant provisioned",
		zap.Int64("tenant_id", int64(tenant.ID)),
		zap.String("subdomain", tenant.Subdomain),
		zap.Bool("org_ref_fallback", orgFallback),
		zap.Bool("user_ref_fallback", userFallback),
	)

	return &domain.ProvisionTenantResult{
		TenantID:        tenant.ID,
		Subdomain:       tenant.Subdomain,
		ExternalOrgRef:  tenant.ExternalOrgRef,
		OrgRefFallback:  orgFallback,
		UserRefFallback: userFallback,
		Degraded:        orgFallback || userFallback,
		Subscription: domain.SubscriptionSummary{
			PlanID:       subscription.PlanID,
			Status:       string(subscription.Status),
			BillingCycle: subscription.BillingCycle,
			TrialEnd:     subscription.TrialEnd,
		},
	}, nil
}

// conflictFor maps an insert-time uniqueness violation to the same error the
// advisory check would have produced, closing the check/insert race.
func (s *service) conflictFor(ctx context.Context, adminEmail, subdomain string) error {
	if existing, err := s.tenantRepo.FindTenantByAdminEmail(ctx, adminEmail); err == nil && existing != nil {
		return tenantdomain.ErrEmailTaken
	}
	return tenantdomain.ErrSubdomainTaken
}

// fallbackUserRef derives a deterministic local user reference from the
// admin email, so retried provisioning attempts agree on the placeholder.
func fallbackUserRef(email string) string {
	sum := sha256.Sum256([]byte(email))
	return "user_" + hex.EncodeToString(sum[:])[:16]
}

func limitsToJSONMap(limits map[string]int64) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for key, value := range limits {
		out[key] = value
	}
	return out
}
