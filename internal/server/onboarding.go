package server

import (
	"net/http"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	onboardingdomain "github.com/smallbiznis/tenantcore/internal/onboarding/domain"
)

type provisionTenantRequest struct {
	CompanyName  string `json:"company_name" binding:"required"`
	Subdomain    string `json:"subdomain" binding:"required"`
	AdminEmail   string `json:"admin_email" binding:"required,email"`
	AdminName    string `json:"admin_name"`
	PlanID       string `json:"plan_id"`
	BillingCycle string `json:"billing_cycle"`
}

func (s *Server) ProvisionTenant(c *gin.Context) {
	var req provisionTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", err.Error()))
		return
	}

	result, err := s.onboardingSvc.ProvisionTenant(c.Request.Context(), onboardingdomain.ProvisionTenantRequest{
		CompanyName:          req.CompanyName,
		Subdomain:            req.Subdomain,
		AdminEmail:           req.AdminEmail,
		AdminName:            req.AdminName,
		PlanID:               req.PlanID,
		BillingCycle:         req.BillingCycle,
		AuthenticatedUserRef: s.resolveAuthenticatedUser(c),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, result)
}

// resolveAuthenticatedUser resolves a Bearer token from the request into an
// identity-provider user ref. A missing or rejected token degrades to an
// anonymous signup rather than failing the request.
func (s *Server) resolveAuthenticatedUser(c *gin.Context) string {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	if !ok || token == "" {
		return ""
	}

	user, err := s.identity.ValidateToken(c.Request.Context(), token)
	if err != nil || user == nil {
		return ""
	}
	return user.Ref
}

func (s *Server) GetTenant(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	tenant, err := s.tenantRepo.FindTenantByID(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if tenant == nil {
		AbortWithError(c, ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, tenant)
}

func parseTenantID(c *gin.Context) (snowflake.ID, error) {
	id, err := snowflake.ParseString(c.Param("id"))
	if err != nil {
		return 0, newValidationError("id", "invalid_tenant_id", "tenant id must be numeric")
	}
	return id, nil
}
