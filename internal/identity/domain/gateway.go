package domain

import (
	"context"
	"errors"
)

var (
	ErrNotConfigured = errors.New("identity_not_configured")
	ErrAlreadyExists = errors.New("identity_resource_exists")
	ErrNotFound      = errors.New("identity_resource_not_found")
	ErrUnavailable   = errors.New("identity_unavailable")
	ErrInvalidToken  = errors.New("identity_invalid_token")
)

// Organization is an organization record held by the identity provider.
type Organization struct {
	Ref       string `json:"ref"`
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}

// User is a user record held by the identity provider.
type User struct {
	Ref   string `json:"ref"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type CreateOrganizationRequest struct {
	Name      string `json:"name"`
	Subdomain string `json:"subdomain"`
}

type CreateUserRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// AssignOptions controls how a user is attached to an organization.
// Exclusive detaches the user from any other organization first, so the
// user belongs to exactly one organization afterwards.
type AssignOptions struct {
	Exclusive bool
	Role      string
}

// Gateway talks to the external identity provider. Every call can fail
// independently of local state; callers decide whether a failure is fatal
// or handled by falling back to locally generated references.
type Gateway interface {
	IsConfigured() bool
	CreateOrganization(ctx context.Context, req CreateOrganizationRequest) (*Organization, error)
	CreateUser(ctx context.Context, req CreateUserRequest) (*User, error)
	AssignUserToOrganization(ctx context.Context, userRef, orgRef string, opts AssignOptions) error
	GetUserOrganizations(ctx context.Context, userRef string) ([]Organization, error)
	// ValidateToken resolves a caller-supplied access token into the user it
	// belongs to. Returns ErrInvalidToken for tokens the provider rejects.
	ValidateToken(ctx context.Context, token string) (*User, error)
}
