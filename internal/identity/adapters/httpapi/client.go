// Package httpapi implements the identity gateway against a REST identity
// provider.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/smallbiznis/tenantcore/internal/config"
	"github.com/smallbiznis/tenantcore/internal/identity/domain"
	"go.uber.org/zap"
)

type client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// New builds an identity gateway from the configured base URL and API token.
func New(cfg config.Config, log *zap.Logger) domain.Gateway {
	return &client{
		baseURL: strings.TrimRight(cfg.IdentityBaseURL, "/"),
		token:   cfg.IdentityToken,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log.Named("identity.httpapi"),
	}
}

func (c *client) IsConfigured() bool {
	return c.baseURL != "" && c.token != ""
}

func (c *client) CreateOrganization(ctx context.Context, req domain.CreateOrganizationRequest) (*domain.Organization, error) {
	var out domain.Organization
	if err := c.do(ctx, http.MethodPost, "/v1/organizations", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) CreateUser(ctx context.Context, req domain.CreateUserRequest) (*domain.User, error) {
	var out domain.User
	if err := c.do(ctx, http.MethodPost, "/v1/users", req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

type assignRequest struct {
	OrganizationRef string `json:"organization_ref"`
	Role            string `json:"role,omitempty"`
	Exclusive       bool   `json:"exclusive,omitempty"`
}

func (c *client) AssignUserToOrganization(ctx context.Context, userRef, orgRef string, opts domain.AssignOptions) error {
	path := fmt.Sprintf("/v1/users/%s/organizations", userRef)
	return c.do(ctx, http.MethodPost, path, assignRequest{
		OrganizationRef: orgRef,
		Role:            opts.Role,
		Exclusive:       opts.Exclusive,
	}, nil)
}

// ValidateToken asks the provider who the caller token belongs to. Unlike
// the other calls it authenticates with the caller's token, not the service
// token.
func (c *client) ValidateToken(ctx context.Context, token string) (*domain.User, error) {
	if !c.IsConfigured() {
		return nil, domain.ErrNotConfigured
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/users/me", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("identity token validation failed", zap.Error(err))
		return nil, domain.ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, domain.ErrInvalidToken
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, domain.ErrUnavailable
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("identity_request_failed_status_%d", resp.StatusCode)
	}

	var out domain.User
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *client) GetUserOrganizations(ctx context.Context, userRef string) ([]domain.Organization, error) {
	var out struct {
		Organizations []domain.Organization `json:"organizations"`
	}
	path := fmt.Sprintf("/v1/users/%s/organizations", userRef)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Organizations, nil
}

func (c *client) do(ctx context.Context, method, path string, in, out any) error {
	if !c.IsConfigured() {
		return domain.ErrNotConfigured
	}

	var body *bytes.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		c.log.Warn("identity request failed",
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		return domain.ErrUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusConflict:
		return domain.ErrAlreadyExists
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode >= http.StatusInternalServerError:
		return domain.ErrUnavailable
	case resp.StatusCode >= http.StatusBadRequest:
		return fmt.Errorf("identity_request_failed_status_%d", resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
