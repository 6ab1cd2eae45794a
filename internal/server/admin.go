package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
	entitlementdomain "github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"go.uber.org/zap"
)

const HeaderAdminToken = "X-Admin-Token"

// AdminRequired checks X-Admin-Token against ADMIN_TOKEN_HASH. Without a
// configured hash every admin request is refused.
func (s *Server) AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !auth.VerifyAdminToken(c.GetHeader(HeaderAdminToken), s.cfg.AdminTokenHash) {
			AbortWithError(c, ErrUnauthorized)
			return
		}
		c.Next()
	}
}

type upgradeRequest struct {
	Plan           string  `json:"plan"`
	SubscriptionID *string `json:"subscriptionId"`
}

type grantCreditsRequest struct {
	Amount      credits.Amount `json:"amount"`
	Description string         `json:"description"`
	Source      string         `json:"source"`
}

func (s *Server) GetUserStatus(c *gin.Context) {
	status, err := s.entitlementSvc.GetStatus(c.Request.Context(), c.Param("id"), "")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, status)
}

func (s *Server) ReconcileUser(c *gin.Context) {
	rec, err := s.entitlementSvc.Reconcile(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, rec)
}

func (s *Server) UpgradeUser(c *gin.Context) {
	var req upgradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	plan, err := entitlementdomain.ParsePlanType(req.Plan)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	user, err := s.entitlementSvc.UpgradeUser(c.Request.Context(), c.Param("id"), plan, trimmedPtr(req.SubscriptionID))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("user upgraded",
		zap.String("target_user_id", user.UserID),
		zap.Stringer("plan", user.PlanType),
	)
	respond(c, http.StatusOK, user)
}

func (s *Server) DowngradeUser(c *gin.Context) {
	user, err := s.entitlementSvc.DowngradeUser(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	logger.FromContext(c.Request.Context()).Info("user downgraded", zap.String("target_user_id", user.UserID))
	respond(c, http.StatusOK, user)
}

func (s *Server) GrantCredits(c *gin.Context) {
	var req grantCreditsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = entitlementdomain.SourceManual
	}

	res, err := s.entitlementSvc.AddCredits(c.Request.Context(), entitlementdomain.AddCreditsRequest{
		UserID:      c.Param("id"),
		Amount:      req.Amount,
		Description: req.Description,
		Source:      source,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}
