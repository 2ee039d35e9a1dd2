package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	identitydomain "github.com/smallbiznis/tenantcore/internal/identity/domain"
	onboardingdomain "github.com/smallbiznis/tenantcore/internal/onboarding/domain"
	paymentdomain "github.com/smallbiznis/tenantcore/internal/payment/domain"
	gatewaydomain "github.com/smallbiznis/tenantcore/internal/paymentgateway/domain"
	subscriptiondomain "github.com/smallbiznis/tenantcore/internal/subscription/domain"
	tenantdomain "github.com/smallbiznis/tenantcore/internal/tenant/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrForbidden      = errors.New("forbidden")
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrForbidden),
		errors.Is(err, paymentdomain.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case errors.Is(err, tenantdomain.ErrEmailTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "admin email already owns a tenant",
		}
	case errors.Is(err, tenantdomain.ErrSubdomainTaken):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "subdomain is not available",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, paymentdomain.ErrAlreadyRefunded),
		errors.Is(err, identitydomain.ErrAlreadyExists):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, gatewaydomain.ErrNotConfigured),
		errors.Is(err, gatewaydomain.ErrGatewayFailure):
		return http.StatusBadGateway, errorPayload{
			Type:    "gateway_error",
			Message: "payment gateway error",
		}
	case errors.Is(err, onboardingdomain.ErrProvisioningFailed):
		return http.StatusInternalServerError, errorPayload{
			Type:    "provisioning_failed",
			Message: "tenant provisioning failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, onboardingdomain.ErrInvalidRequest),
		errors.Is(err, subscriptiondomain.ErrUnknownPlan),
		errors.Is(err, subscriptiondomain.ErrPlanNotSelectable),
		errors.Is(err, subscriptiondomain.ErrSamePlan),
		errors.Is(err, subscriptiondomain.ErrCheckoutIncomplete),
		errors.Is(err, paymentdomain.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, tenantdomain.ErrTenantNotFound),
		errors.Is(err, subscriptiondomain.ErrSubscriptionNotFound),
		errors.Is(err, paymentdomain.ErrPaymentNotFound),
		errors.Is(err, gatewaydomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, onboardingdomain.ErrInvalidRequest):
		return "invalid_request"
	default:
		return err.Error()
	}
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}
