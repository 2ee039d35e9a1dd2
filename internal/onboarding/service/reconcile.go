package service

import (
	"context"
	"errors"
	"time"

	identitydomain "github.com/smallbiznis/tenantcore/internal/identity/domain"
	"github.com/smallbiznis/tenantcore/internal/retry"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"go.uber.org/zap"
)

const (
	assignAttempts = 3
	assignBackoff  = 2 * time.Second
	verifyAttempts = 3
	verifyInterval = time.Second
)

// reconcileAssignment attaches the admin user to the external organization
// after the local commit. It retries with linear backoff, then polls to
// verify membership. Failures are recorded on the tenant row, never
// propagated to the caller.
func (s *service) reconcileAssignment(ctx context.Context, tenant *tenantdomain.Tenant, admin *tenantdomain.AdminUser) {
	result := retry.Do(ctx, assignAttempts, retry.Linear(assignBackoff), func(ctx context.Context) error {
		// Idempotent create-if-absent before the assignment; duplicate
		// invocation is expected on retry.
		if _, err := s.identity.CreateUser(ctx, identitydomain.CreateUserRequest{
			Email: admin.Email,
			Name:  admin.Name,
		}); err != nil && !errors.Is(err, identitydomain.ErrAlreadyExists) {
			return err
		}
		return s.identity.AssignUserToOrganization(ctx, admin.ExternalUserRef, tenant.ExternalOrgRef, identitydomain.AssignOptions{
			Exclusive: true,
			Role:      "admin",
		})
	})
	if !result.OK() {
		s.log.Warn("identity assignment exhausted retries",
			zap.Int64("tenant_id", int64(tenant.ID)),
			zap.Int("attempts", result.Attempts),
			zap.Error(result.Err),
		)
		s.recordAssignmentOutcome(ctx, tenant, "assignment_failed")
		return
	}

	if s.verifyMembership(ctx, admin.ExternalUserRef, tenant.ExternalOrgRef) {
		s.recordAssignmentOutcome(ctx, tenant, "verified")
		return
	}
	s.log.Warn("identity assignment not verified",
		zap.Int64("tenant_id", int64(tenant.ID)),
		zap.String("org_ref", tenant.ExternalOrgRef),
	)
	s.recordAssignmentOutcome(ctx, tenant, "unverified")
}

func (s *service) verifyMembership(ctx context.Context, userRef, orgRef string) bool {
	result := retry.Do(ctx, verifyAttempts, retry.Fixed(verifyInterval), func(ctx context.Context) error {
		orgs, err := s.identity.GetUserOrganizations(ctx, userRef)
		if err != nil {
			return err
		}
		for _, org := range orgs {
			if org.Ref == orgRef {
				return nil
			}
		}
		return errors.New("membership_not_visible")
	})
	return result.OK()
}

func (s *service) recordAssignmentOutcome(ctx context.Context, tenant *tenantdomain.Tenant, outcome string) {
	tenant.OnboardingProgress["identity_assignment"] = outcome
	tenant.UpdatedAt = s.clock.Now()
	if err := s.tenantRepo.UpdateTenant(ctx, tenant); err != nil {
		s.log.Warn("failed to record assignment outcome", zap.Error(err))
	}
}
