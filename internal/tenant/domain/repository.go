package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

var (
	ErrTenantNotFound = errors.New("tenant_not_found")
	ErrSubdomainTaken = errors.New("subdomain_taken")
	ErrEmailTaken     = errors.New("admin_email_taken")
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateTenant(ctx context.Context, tenant *Tenant) error
	UpdateTenant(ctx context.Context, tenant *Tenant) error
	FindTenantByID(ctx context.Context, id snowflake.ID) (*Tenant, error)
	FindTenantBySubdomain(ctx context.Context, subdomain string) (*Tenant, error)
	FindTenantByAdminEmail(ctx context.Context, email string) (*Tenant, error)

	CreateAdminUser(ctx context.Context, user *AdminUser) error
	UpdateAdminUser(ctx context.Context, user *AdminUser) error
	FindAdminUserByTenantID(ctx context.Context, tenantID snowflake.ID) (*AdminUser, error)

	CreateRole(ctx context.Context, role *Role) error
	CreateRoleAssignment(ctx context.Context, assignment *RoleAssignment) error
	FindRoleByName(ctx context.Context, tenantID snowflake.ID, name string) (*Role, error)
}
