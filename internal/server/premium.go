package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
	"github.com/smallbiznis/creditgate/internal/config"
	entitlementdomain "github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	"github.com/smallbiznis/creditgate/internal/ratelimit"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"go.uber.org/zap"
)

const (
	actionUseCredits         = "useCredits"
	actionAddCredits         = "addCredits"
	actionGetStatus          = "getStatus"
	actionGetCreditHistory   = "getCreditHistory"
	actionClaimMonthlyBonus  = "claimMonthlyLoginBonus"
	actionCheckFeatureAccess = "checkFeatureAccess"
	actionCanCreateWish      = "canCreateWish"
)

type premiumRequest struct {
	Action       string          `json:"action"`
	UserID       string          `json:"userId"`
	Feature      string          `json:"feature"`
	Amount       *credits.Amount `json:"amount"`
	WishID       *string         `json:"wishId"`
	Description  string          `json:"description"`
	RequiredPlan string          `json:"requiredPlan"`
	Limit        int             `json:"limit"`
}

type rateLimitStatus struct {
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"resetTime"`
}

type statusResponse struct {
	*entitlementdomain.Status
	RateLimit *rateLimitStatus `json:"rateLimit,omitempty"`
}

// HandlePremium dispatches one ledger action for the verified caller.
func (s *Server) HandlePremium(c *gin.Context) {
	id, err := auth.IdentityFrom(c)
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req premiumRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	action := strings.TrimSpace(req.Action)
	c.Set(logger.KeyPremiumAction, action)

	if target := strings.TrimSpace(req.UserID); target != "" && target != id.UserID {
		logger.FromContext(c.Request.Context()).Warn("cross identity premium request rejected",
			zap.String("action", action),
		)
		AbortWithError(c, ErrForbidden)
		return
	}

	ctx := c.Request.Context()
	switch action {
	case actionUseCredits:
		feature := strings.TrimSpace(req.Feature)
		if feature == "" {
			AbortWithError(c, newValidationError("feature", "missing_feature", "feature is required"))
			return
		}
		res, err := s.entitlementSvc.UseCredits(ctx, entitlementdomain.UseCreditsRequest{
			UserID:          id.UserID,
			FeatureID:       feature,
			Description:     req.Description,
			RelatedEntityID: trimmedPtr(req.WishID),
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, res)

	case actionAddCredits:
		if req.Amount == nil || *req.Amount <= 0 {
			AbortWithError(c, newValidationError("amount", "invalid_amount", "amount must be positive"))
			return
		}
		res, err := s.entitlementSvc.AddCredits(ctx, entitlementdomain.AddCreditsRequest{
			UserID:      id.UserID,
			Amount:      *req.Amount,
			Description: req.Description,
			Source:      entitlementdomain.SourcePurchase,
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, res)

	case actionGetStatus:
		status, err := s.entitlementSvc.GetStatus(ctx, id.UserID, id.Email)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		out := statusResponse{Status: status}
		if res, err := s.limiter.Remaining(ctx, config.RateLimitClassPremium, namespacePremium, ratelimit.ResolveIdentity(id.UserID, "")); err == nil {
			out.RateLimit = &rateLimitStatus{Limit: res.Limit, Remaining: res.Remaining, ResetTime: res.ResetTime}
		}
		respond(c, http.StatusOK, out)

	case actionGetCreditHistory:
		items, err := s.entitlementSvc.GetCreditHistory(ctx, id.UserID, req.Limit)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, gin.H{"transactions": items})

	case actionClaimMonthlyBonus:
		res, err := s.entitlementSvc.ClaimMonthlyLoginBonus(ctx, id.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, res)

	case actionCheckFeatureAccess:
		feature := strings.TrimSpace(req.Feature)
		required, err := requiredPlanFor(feature, req.RequiredPlan)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		res, err := s.entitlementSvc.HasFeatureAccess(ctx, id.UserID, feature, required)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, res)

	case actionCanCreateWish:
		res, err := s.entitlementSvc.CanCreateWish(ctx, id.UserID)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		respond(c, http.StatusOK, res)

	default:
		AbortWithError(c, newValidationError("action", "unknown_action", "unknown action"))
	}
}

// requiredPlanFor prefers the explicit plan and falls back to the lowest
// plan that includes feature.
func requiredPlanFor(feature, plan string) (entitlementdomain.PlanType, error) {
	if strings.TrimSpace(plan) != "" {
		return entitlementdomain.ParsePlanType(plan)
	}
	if required, ok := entitlementdomain.MinimumPlanFor(feature); ok {
		return required, nil
	}
	return entitlementdomain.PlanFree, entitlementdomain.ErrUnknownFeature
}

func trimmedPtr(v *string) *string {
	if v == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*v)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
