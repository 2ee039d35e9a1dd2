// Package domain contains persistence models for the tenant service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type TenantStatus string

const (
	TenantStatusActive    TenantStatus = "active"
	TenantStatusSuspended TenantStatus = "suspended"
)

// Tenant is the local system-of-record row for a provisioned workspace.
// ExternalOrgRef points at the identity provider organization; when the
// provider was unreachable during provisioning the ref is a locally
// generated placeholder and OrgRefFallback is set.
type Tenant struct {
	ID                  snowflake.ID       `gorm:"primaryKey" json:"id"`
	Name                string             `gorm:"type:text;not null" json:"name"`
	Subdomain           string             `gorm:"type:text;not null;uniqueIndex:ux_tenants_subdomain" json:"subdomain"`
	AdminEmail          string             `gorm:"type:text;not null;uniqueIndex:ux_tenants_admin_email" json:"admin_email"`
	Status              TenantStatus       `gorm:"type:text;not null" json:"status"`
	PlanID              string             `gorm:"type:text;not null" json:"plan_id"`
	ExternalOrgRef      string             `gorm:"type:text;column:external_org_ref" json:"external_org_ref"`
	OrgRefFallback      bool               `gorm:"column:org_ref_fallback" json:"org_ref_fallback"`
	SubscriptionStatus  string             `gorm:"type:text;column:subscription_status" json:"subscription_status"`
	OnboardingCompleted bool               `gorm:"column:onboarding_completed" json:"onboarding_completed"`
	OnboardingProgress  datatypes.JSONMap  `gorm:"type:jsonb" json:"onboarding_progress"`
	CreatedAt           time.Time          `gorm:"not null" json:"created_at"`
	UpdatedAt           time.Time          `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (Tenant) TableName() string { return "tenants" }

// AdminUser is the first user of a tenant, created during provisioning.
// ExternalUserRef mirrors the identity provider user; UserRefFallback marks
// a locally derived placeholder ref.
type AdminUser struct {
	ID              snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID        snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	Email           string       `gorm:"type:text;not null" json:"email"`
	Name            string       `gorm:"type:text;not null" json:"name"`
	ExternalUserRef string       `gorm:"type:text;column:external_user_ref" json:"external_user_ref"`
	UserRefFallback bool         `gorm:"column:user_ref_fallback" json:"user_ref_fallback"`
	IsTenantAdmin   bool         `gorm:"column:is_tenant_admin;not null" json:"is_tenant_admin"`
	CreatedAt       time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time    `gorm:"not null" json:"updated_at"`
}

// TableName sets the database table name.
func (AdminUser) TableName() string { return "admin_users" }

// Role is a tenant-scoped role with a permission list.
type Role struct {
	ID          snowflake.ID        `gorm:"primaryKey" json:"id"`
	TenantID    snowflake.ID        `gorm:"not null;index;uniqueIndex:ux_roles_tenant_name,priority:1" json:"tenant_id"`
	Name        string              `gorm:"type:text;not null;uniqueIndex:ux_roles_tenant_name,priority:2" json:"name"`
	Permissions datatypes.JSONSlice[string] `gorm:"type:jsonb" json:"permissions"`
	CreatedAt   time.Time           `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (Role) TableName() string { return "roles" }

// RoleAssignment attaches a role to an admin user within a tenant.
type RoleAssignment struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	TenantID  snowflake.ID `gorm:"not null;index" json:"tenant_id"`
	UserID    snowflake.ID `gorm:"not null;index;uniqueIndex:ux_role_assignments,priority:1" json:"user_id"`
	RoleID    snowflake.ID `gorm:"not null;uniqueIndex:ux_role_assignments,priority:2" json:"role_id"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

// TableName sets the database table name.
func (RoleAssignment) TableName() string { return "role_assignments" }
