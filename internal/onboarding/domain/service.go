// Package domain contains the tenant provisioning contracts.
package domain

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	ErrInvalidRequest     = errors.New("invalid_provision_request")
	ErrProvisioningFailed = errors.New("provisioning_failed")
)

type ProvisionTenantRequest struct {
	CompanyName  string `json:"company_name"`
	Subdomain    string `json:"subdomain"`
	AdminEmail   string `json:"admin_email"`
	AdminName    string `json:"admin_name"`
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
	// AuthenticatedUserRef carries the caller's identity-provider user ref
	// when the request is made by an already-authenticated user.
	AuthenticatedUserRef string `json:"-"`
}

type SubscriptionSummary struct {
	PlanID       string     `json:"plan_id"`
	Status       string     `json:"status"`
	BillingCycle string     `json:"billing_cycle"`
	TrialEnd     *time.Time `json:"trial_end,omitempty"`
}

// ProvisionTenantResult reports a committed tenant. Degraded is set when an
// identity-provider call failed and a fallback reference was substituted;
// the tenant is still fully usable locally.
type ProvisionTenantResult struct {
	TenantID       snowflake.ID        `json:"tenant_id"`
	Subdomain      string              `json:"subdomain"`
	ExternalOrgRef string              `json:"external_org_ref"`
	OrgRefFallback bool                `json:"org_ref_fallback"`
	UserRefFallback bool               `json:"user_ref_fallback"`
	Degraded       bool                `json:"degraded"`
	Subscription   SubscriptionSummary `json:"subscription"`
}

type Service interface {
	ProvisionTenant(ctx context.Context, req ProvisionTenantRequest) (*ProvisionTenantResult, error)
}
