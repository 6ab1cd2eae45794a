package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
	entitlementdomain "github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"go.uber.org/zap"
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
	Type      string            `json:"type"`
	Message   string            `json:"message"`
	Errors    []ValidationError `json:"errors,omitempty"`
	Required  *credits.Amount   `json:"required,omitempty"`
	Available *credits.Amount   `json:"available,omitempty"`
}

// rateLimitBody is reported next to the error of a throttled request.
// Window is in milliseconds.
type rateLimitBody struct {
	Window    int64     `json:"window"`
	Limit     int       `json:"limit"`
	ResetTime time.Time `json:"resetTime"`
	Blocked   bool      `json:"blocked"`
}

type envelope struct {
	Success bool          `json:"success"`
	Data    any           `json:"data,omitempty"`
	Error   *errorPayload `json:"error,omitempty"`
	*rateLimitBody
}

var (
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrPublishFailed  = errors.New("publish_failed")
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

		status, body := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			logger.FromContext(c.Request.Context()).Error("request failed",
				zap.String("route", c.FullPath()),
				zap.Error(lastErr.Err),
			)
		}
		c.AbortWithStatusJSON(status, body)
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, envelope{Success: true, Data: data})
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
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

func mapError(err error) (int, envelope) {
	fail := func(status int, payload errorPayload) (int, envelope) {
		return status, envelope{Success: false, Error: &payload}
	}

	if err == nil {
		return fail(http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		})
	}

	var limited *ratelimit.LimitedError
	if errors.As(err, &limited) {
		status, body := fail(http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many requests",
		})
		body.rateLimitBody = &rateLimitBody{
			Window:    limited.Result.Window.Milliseconds(),
			Limit:     limited.Result.Limit,
			ResetTime: limited.Result.ResetTime,
			Blocked:   limited.Result.Blocked,
		}
		return status, body
	}

	var insufficient *entitlementdomain.InsufficientCreditsError
	if errors.As(err, &insufficient) {
		required, available := insufficient.Required, insufficient.Available
		return fail(http.StatusPaymentRequired, errorPayload{
			Type:      "insufficient_credits",
			Message:   "insufficient credits",
			Required:  &required,
			Available: &available,
		})
	}

	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return fail(http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		})
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return fail(http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: "invalid value",
				},
			},
		})
	}

	switch {
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrInvalidToken):
		return fail(http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		})
	case errors.Is(err, entitlementdomain.ErrWishLimitReached):
		return fail(http.StatusForbidden, errorPayload{
			Type:    "wish_limit_reached",
			Message: "monthly wish limit reached",
		})
	case errors.Is(err, ErrForbidden):
		return fail(http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		})
	case errors.Is(err, ErrNotFound),
		errors.Is(err, entitlementdomain.ErrUserNotFound):
		return fail(http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		})
	default:
		return fail(http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		})
	}
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, entitlementdomain.ErrInvalidUserID),
		errors.Is(err, entitlementdomain.ErrInvalidAmount),
		errors.Is(err, entitlementdomain.ErrInvalidPlan),
		errors.Is(err, entitlementdomain.ErrUnknownFeature),
		errors.Is(err, pricingdomain.ErrInvalidElement),
		errors.Is(err, pricingdomain.ErrTooManyElements),
		errors.Is(err, pricingdomain.ErrUnknownPolicy),
		errors.Is(err, credits.ErrInvalidAmount):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range []error{
		ErrInvalidRequest,
		entitlementdomain.ErrInvalidUserID,
		entitlementdomain.ErrInvalidAmount,
		entitlementdomain.ErrInvalidPlan,
		entitlementdomain.ErrUnknownFeature,
		pricingdomain.ErrInvalidElement,
		pricingdomain.ErrTooManyElements,
		pricingdomain.ErrUnknownPolicy,
		credits.ErrInvalidAmount,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "invalid_request"
}

func validationErrorField(code string) string {
	switch code {
	case "invalid_user_id":
		return "userId"
	case "invalid_amount", "invalid_credit_amount":
		return "amount"
	case "invalid_plan":
		return "requiredPlan"
	case "unknown_feature":
		return "feature"
	case "unknown_pricing_policy":
		return "policy"
	case "invalid_request":
		return "request"
	default:
		return "elements"
	}
}

// classifyErrorForLog gives the request logger a stable type and code.
func classifyErrorForLog(err error) (string, string) {
	_, body := mapError(err)
	if body.Error == nil {
		return "", ""
	}
	code := body.Error.Type
	if len(body.Error.Errors) > 0 {
		code = body.Error.Errors[0].Code
	}
	return body.Error.Type, code
}
