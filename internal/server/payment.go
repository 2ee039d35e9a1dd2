package server

import (
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	"github.com/smallbiznis/tenantcore/pkg/db/pagination"
)

func (s *Server) ListPayments(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", err.Error()))
		return
	}

	payments, pageInfo, err := s.paymentSvc.ListByTenant(c.Request.Context(), tenantID, page)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"payments": payments, "page_info": pageInfo})
}

type processRefundRequest struct {
	Amount *string `json:"amount"`
	Reason string  `json:"reason"`
}

func (s *Server) ProcessRefund(c *gin.Context) {
	tenantID, err := parseTenantID(c)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	paymentID, err := snowflake.ParseString(c.Param("paymentId"))
	if err != nil {
		AbortWithError(c, newValidationError("paymentId", "invalid_payment_id", "payment id must be numeric"))
		return
	}

	var req processRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, newValidationError("request", "invalid_request", err.Error()))
		return
	}

	var amount *decimal.Decimal
	if req.Amount != nil {
		parsed, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be a decimal string"))
			return
		}
		amount = &parsed
	}

	result, err := s.paymentSvc.ProcessRefund(c.Request.Context(), paymentdomain.ProcessRefundRequest{
		TenantID:  tenantID,
		PaymentID: paymentID,
		Amount:    amount,
		Reason:    req.Reason,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
