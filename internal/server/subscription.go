package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
)

func (s *Server) GetSubscription(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	sub, err := s.subscriptionSvc.GetByTenantID(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

type changePlanRequest struct {
	TargetPlanID string `json:"target_plan_id" binding:"required"`
	BillingCycle string `json:"billing_cycle"`
}

func (s *Server) ChangePlan(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req changePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", err.Error()))
		return
	}

	result, err := s.subscriptionSvc.ChangePlan(c.Request.Context(), subscriptiondomain.ChangePlanRequest{
		TenantID:     tenantID,
		TargetPlanID: req.TargetPlanID,
		BillingCycle: req.BillingCycle,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

type immediateDowngradeRequest struct {
	NewPlanID       string `json:"new_plan_id" binding:"required"`
	RefundRequested bool   `json:"refund_requested"`
}

func (s *Server) ImmediateDowngrade(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req immediateDowngradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", err.Error()))
		return
	}

	result, err := s.subscriptionSvc.ImmediateDowngrade(c.Request.Context(), subscriptiondomain.ImmediateDowngradeRequest{
		TenantID:        tenantID,
		NewPlanID:       req.NewPlanID,
		RefundRequested: req.RefundRequested,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

func (s *Server) CompleteCheckout(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		AbortWithError(c, newValidationError("session_id", "invalid_session_id", "session_id is required"))
		return
	}

	sub, err := s.subscriptionSvc.CompleteCheckout(c.Request.Context(), sessionID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sub)
}

func (s *Server) ListTrialEvents(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	events, err := s.subscriptionSvc.ListTrialEvents(c.Request.Context(), tenantID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"trial_events": events})
}

func (s *Server) ApplyScheduledDowngrades(c *gin.Context) {
	applied, err := s.subscriptionSvc.ApplyScheduledDowngrades(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"applied": applied})
}

func (s *Server) ExpireTrials(c *gin.Context) {
	expired, err := s.subscriptionSvc.ExpireTrials(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"expired": expired})
}
