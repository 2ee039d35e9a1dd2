package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/tenantcore/internal/clock"
	"github.com/smallbiznis/tenantcore/internal/config"
	identitydomain "github.com/smallbiznis/tenantcore/internal/identity/domain"
	"github.com/smallbiznis/tenantcore/internal/notification"
	"github.com/smallbiznis/tenantcore/internal/observability/metrics"
	"github.com/smallbiznis/tenantcore/internal/onboarding/domain"
	"github.com/smallbiznis/tenantcore/internal/plan"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	subscriptionrepo "github.com/smallbiznis/tenantcore/internal/subscription/repository"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	tenantrepo "github.com/smallbiznis/tenantcore/internal/tenant/repository"
	"github.com/stretchr/testify/assert"
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
		&tenantdomain.AdminUser{},
		&tenantdomain.Role{},
		&tenantdomain.RoleAssignment{},
		&subscriptiondomain.Subscription{},
		&subscriptiondomain.TrialEvent{},
	))
	return db
}

// fakeIdentity is an in-memory identity provider double. Errors can be
// injected per operation to simulate an outage.
type fakeIdentity struct {
	orgErr    error
	userErr   error
	assignErr error
	tokenErr  error

	tokens      map[string]string
	memberships map[string][]identitydomain.Organization

	orgCalls    int
	userCalls   int
	assignCalls int
}

func (f *fakeIdentity) IsConfigured() bool { return true }

func (f *fakeIdentity) CreateOrganization(ctx context.Context, req identitydomain.CreateOrganizationRequest) (*identitydomain.Organization, error) {
	f.orgCalls++
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	return &identitydomain.Organization{
		Ref:       "org_ext_" + req.Subdomain,
		Name:      req.Name,
		Subdomain: req.Subdomain,
	}, nil
}

func (f *fakeIdentity) CreateUser(ctx context.Context, req identitydomain.CreateUserRequest) (*identitydomain.User, error) {
	f.userCalls++
	if f.userErr != nil {
		return nil, f.userErr
	}
	return &identitydomain.User{Ref: "usr_ext_" + req.Email, Email: req.Email, Name: req.Name}, nil
}

func (f *fakeIdentity) AssignUserToOrganization(ctx context.Context, userRef, orgRef string, opts identitydomain.AssignOptions) error {
	f.assignCalls++
	if f.assignErr != nil {
		return f.assignErr
	}
	if f.memberships == nil {
		f.memberships = make(map[string][]identitydomain.Organization)
	}
	if opts.Exclusive {
		f.memberships[userRef] = nil
	}
	f.memberships[userRef] = append(f.memberships[userRef], identitydomain.Organization{Ref: orgRef})
	return nil
}

func (f *fakeIdentity) GetUserOrganizations(ctx context.Context, userRef string) ([]identitydomain.Organization, error) {
	return f.memberships[userRef], nil
}

func (f *fakeIdentity) ValidateToken(ctx context.Context, token string) (*identitydomain.User, error) {
	if f.tokenErr != nil {
		return nil, f.tokenErr
	}
	ref, ok := f.tokens[token]
	if !ok {
		return nil, identitydomain.ErrInvalidToken
	}
	return &identitydomain.User{Ref: ref}, nil
}

type testEnv struct {
	db            *gorm.DB
	svc           domain.Service
	tenants       tenantdomain.Repository
	subscriptions subscriptiondomain.Repository
	identity      *fakeIdentity
	clock         *clock.FakeClock
}

func newTestEnv(t *testing.T, identity *fakeIdentity) *testEnv {
	t.Helper()

	db := setupTestDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	fc := clock.NewFakeClock(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	tenants := tenantrepo.NewRepository(db)
	subscriptions := subscriptionrepo.NewRepository(db)

	svc := New(ServiceParam{
		DB:               db,
		TenantRepo:       tenants,
		SubscriptionRepo: subscriptions,
		Identity:         identity,
		Catalog:          plan.NewStaticHolder(plan.DefaultCatalog()),
		Notifier:         &notification.NoOpSink{},
		Node:             node,
		Clock:            fc,
		Config:           config.Config{TrialLengthDays: 14},
		Metrics:          metrics.NewNop(),
		Logger:           zap.NewNop(),
	})

	return &testEnv{
		db:            db,
		svc:           svc,
		tenants:       tenants,
		subscriptions: subscriptions,
		identity:      identity,
		clock:         fc,
	}
}

func TestProvisionTenant(t *testing.T) {
	identity := &fakeIdentity{}
	env := newTestEnv(t, identity)
	ctx := context.Background()

	res, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "Acme Corp",
		AdminEmail:  "Owner@Acme.Test",
		AdminName:   "Ada Owner",
	})
	require.NoError(t, err)

	assert.False(t, res.Degraded)
	assert.Equal(t, "acme-corp", res.Subdomain)
	assert.Equal(t, "org_ext_acme-corp", res.ExternalOrgRef)
	assert.Equal(t, plan.Trial, res.Subscription.PlanID)
	assert.Equal(t, string(subscriptiondomain.StatusTrialing), res.Subscription.Status)

	tenant, err := env.tenants.FindTenantByID(ctx, res.TenantID)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.Equal(t, "owner@acme.test", tenant.AdminEmail)
	assert.Equal(t, tenantdomain.TenantStatusActive, tenant.Status)
	assert.True(t, tenant.OnboardingCompleted)
	assert.False(t, tenant.OrgRefFallback)
	assert.Equal(t, "verified", tenant.OnboardingProgress["identity_assignment"])

	admin, err := env.tenants.FindAdminUserByTenantID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.IsTenantAdmin)
	assert.False(t, admin.UserRefFallback)
	assert.Equal(t, "usr_ext_owner@acme.test", admin.ExternalUserRef)

	role, err := env.tenants.FindRoleByName(ctx, tenant.ID, "Super Administrator")
	require.NoError(t, err)
	require.NotNil(t, role)
	assert.Contains(t, []string(role.Permissions), "tenant.admin")

	sub, err := env.subscriptions.FindByTenantID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, subscriptiondomain.StatusTrialing, sub.Status)
	require.NotNil(t, sub.TrialEnd)
	assert.WithinDuration(t, env.clock.Now().AddDate(0, 0, 14), *sub.TrialEnd, time.Second)

	events, err := env.subscriptions.ListTrialEvents(ctx, tenant.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, subscriptiondomain.TrialEventStartedOnboarding, events[0].Event)

	assert.NotZero(t, identity.assignCalls)
}

func TestProvisionTenantDegradedMode(t *testing.T) {
	identity := &fakeIdentity{
		orgErr:  identitydomain.ErrUnavailable,
		userErr: identitydomain.ErrUnavailable,
	}
	env := newTestEnv(t, identity)
	ctx := context.Background()

	res, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "acme",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	require.NoError(t, err)

	assert.True(t, res.Degraded)
	assert.True(t, res.OrgRefFallback)
	assert.True(t, res.UserRefFallback)
	assert.Contains(t, res.ExternalOrgRef, "org_acme_")

	tenant, err := env.tenants.FindTenantByID(ctx, res.TenantID)
	require.NoError(t, err)
	require.NotNil(t, tenant)
	assert.True(t, tenant.OrgRefFallback)
	assert.Equal(t, "fallback", tenant.OnboardingProgress["organization"])
	assert.Equal(t, "fallback", tenant.OnboardingProgress["admin_user"])

	admin, err := env.tenants.FindAdminUserByTenantID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, admin)
	assert.True(t, admin.UserRefFallback)
	assert.Contains(t, admin.ExternalUserRef, "user_")
	assert.Len(t, admin.ExternalUserRef, len("user_")+16)

	// Local provisioning still completed in full.
	sub, err := env.subscriptions.FindByTenantID(ctx, tenant.ID)
	require.NoError(t, err)
	require.NotNil(t, sub)
	assert.Equal(t, subscriptiondomain.StatusTrialing, sub.Status)

	// No assignment attempts when any ref is a fallback.
	assert.Zero(t, identity.assignCalls)
}

func TestProvisionTenantFallbackUserRefIsDeterministic(t *testing.T) {
	assert.Equal(t, fallbackUserRef("owner@acme.test"), fallbackUserRef("owner@acme.test"))
	assert.NotEqual(t, fallbackUserRef("owner@acme.test"), fallbackUserRef("other@acme.test"))
}

func TestProvisionTenantReusesAuthenticatedUser(t *testing.T) {
	identity := &fakeIdentity{}
	env := newTestEnv(t, identity)
	ctx := context.Background()

	res, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName:          "Acme Inc",
		Subdomain:            "acme",
		AdminEmail:           "owner@acme.test",
		AdminName:            "Ada Owner",
		AuthenticatedUserRef: "usr_ext_known",
	})
	require.NoError(t, err)

	tenant, err := env.tenants.FindTenantByID(ctx, res.TenantID)
	require.NoError(t, err)
	assert.Equal(t, "reused", tenant.OnboardingProgress["admin_user"])

	admin, err := env.tenants.FindAdminUserByTenantID(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "usr_ext_known", admin.ExternalUserRef)
	assert.False(t, admin.UserRefFallback)
}

func TestProvisionTenantConflicts(t *testing.T) {
	env := newTestEnv(t, &fakeIdentity{})
	ctx := context.Background()

	_, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "acme",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	require.NoError(t, err)

	_, err = env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Two",
		Subdomain:   "acme-two",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrEmailTaken)

	_, err = env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Two",
		Subdomain:   "acme",
		AdminEmail:  "other@acme.test",
		AdminName:   "Ada Owner",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrSubdomainTaken)
}

// advisoryBlindRepo hides existing rows from the advisory lookups, leaving
// the insert-time unique constraint as the only guard. This is the shape of
// two provisioning requests racing past each other's checks.
type advisoryBlindRepo struct {
	tenantdomain.Repository
	blindLookups int
}

func (r *advisoryBlindRepo) FindTenantByAdminEmail(ctx context.Context, email string) (*tenantdomain.Tenant, error) {
	if r.blindLookups > 0 {
		r.blindLookups--
		return nil, nil
	}
	return r.Repository.FindTenantByAdminEmail(ctx, email)
}

func (r *advisoryBlindRepo) FindTenantBySubdomain(ctx context.Context, subdomain string) (*tenantdomain.Tenant, error) {
	if r.blindLookups > 0 {
		r.blindLookups--
		return nil, nil
	}
	return r.Repository.FindTenantBySubdomain(ctx, subdomain)
}

func TestProvisionTenantConcurrentDuplicateMapsToConflict(t *testing.T) {
	env := newTestEnv(t, &fakeIdentity{})
	ctx := context.Background()

	_, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "acme",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	require.NoError(t, err)

	// A second service whose advisory checks see nothing, so the insert
	// itself trips the admin_email unique constraint.
	node, err := snowflake.NewNode(2)
	require.NoError(t, err)
	blind := &advisoryBlindRepo{Repository: env.tenants, blindLookups: 2}
	racer := New(ServiceParam{
		DB:               env.db,
		TenantRepo:       blind,
		SubscriptionRepo: env.subscriptions,
		Identity:         &fakeIdentity{},
		Catalog:          plan.NewStaticHolder(plan.DefaultCatalog()),
		Notifier:         &notification.NoOpSink{},
		Node:             node,
		Clock:            env.clock,
		Config:           config.Config{TrialLengthDays: 14},
		Metrics:          metrics.NewNop(),
		Logger:           zap.NewNop(),
	})

	_, err = racer.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Two",
		Subdomain:   "acme-two",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	assert.ErrorIs(t, err, tenantdomain.ErrEmailTaken)

	// Exactly one provision succeeded and the loser left nothing behind.
	var count int64
	require.NoError(t, env.db.Model(&tenantdomain.Tenant{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestProvisionTenantValidation(t *testing.T) {
	env := newTestEnv(t, &fakeIdentity{})
	ctx := context.Background()

	_, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		Subdomain:  "acme",
		AdminEmail: "owner@acme.test",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)

	_, err = env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "acme",
		AdminEmail:  "owner@acme.test",
		PlanID:      "platinum",
	})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestProvisionTenantTransactionIsAtomic(t *testing.T) {
	env := newTestEnv(t, &fakeIdentity{})
	ctx := context.Background()

	// Break the last insert of the transaction; every earlier row must be
	// rolled back with it.
	require.NoError(t, env.db.Migrator().DropTable(&subscriptiondomain.TrialEvent{}))

	_, err := env.svc.ProvisionTenant(ctx, domain.ProvisionTenantRequest{
		CompanyName: "Acme Inc",
		Subdomain:   "acme",
		AdminEmail:  "owner@acme.test",
		AdminName:   "Ada Owner",
	})
	require.ErrorIs(t, err, domain.ErrProvisioningFailed)

	tenant, err := env.tenants.FindTenantBySubdomain(ctx, "acme")
	require.NoError(t, err)
	assert.Nil(t, tenant)

	var count int64
	require.NoError(t, env.db.Model(&subscriptiondomain.Subscription{}).Count(&count).Error)
	assert.Zero(t, count)
}
