package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/creditgate/internal/auth"
	entitlementdomain "github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/internal/observability/logger"
	"github.com/smallbiznis/creditgate/internal/pricing"
	pricingdomain "github.com/smallbiznis/creditgate/internal/pricing/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"go.uber.org/zap"
)

const featureWishElements = "wish_elements"

type wishRequest struct {
	Title    string                  `json:"title"`
	Elements []pricingdomain.Element `json:"elements"`
	Template bool                    `json:"template"`
}

func (r wishRequest) policy() pricingdomain.Policy {
	if r.Template {
		return pricingdomain.PolicyTemplate
	}
	return pricingdomain.PolicyTotal
}

type createWishResponse struct {
	Wish      Wish                    `json:"wish"`
	Breakdown pricingdomain.Breakdown `json:"breakdown"`
	Balance   *credits.Amount         `json:"balance,omitempty"`
}

// QuoteWish prices a composition without touching the ledger.
func (s *Server) QuoteWish(c *gin.Context) {
	var req wishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := pricing.ValidateElements(req.Elements); err != nil {
		AbortWithError(c, err)
		return
	}

	breakdown, err := s.catalog.Calculate(req.policy(), req.Elements)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	respond(c, http.StatusOK, breakdown)
}

// CreateWish checks the plan quota, debits the priced composition and
// publishes it. Any failure after the debit refunds it.
func (s *Server) CreateWish(c *gin.Context) {
	id, err := auth.IdentityFrom(c)
	if err != nil {
		AbortWithError(c, ErrUnauthorized)
		return
	}

	var req wishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if err := pricing.ValidateElements(req.Elements); err != nil {
		AbortWithError(c, err)
		return
	}

	ctx := c.Request.Context()
	log := logger.FromContext(ctx)

	allowance, err := s.entitlementSvc.CanCreateWish(ctx, id.UserID)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if !allowance.CanCreate {
		AbortWithError(c, entitlementdomain.ErrWishLimitReached)
		return
	}

	breakdown, err := s.catalog.Calculate(req.policy(), req.Elements)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	wish := Wish{
		ID:        s.genID.Generate(),
		UserID:    id.UserID,
		Title:     strings.TrimSpace(req.Title),
		Elements:  req.Elements,
		Policy:    breakdown.Policy,
		Cost:      breakdown.TotalCost,
		CreatedAt: s.clock.Now(),
	}
	wishID := wish.ID.String()

	resp := createWishResponse{Breakdown: breakdown}
	if breakdown.TotalCost > 0 {
		cost := breakdown.TotalCost
		debit, err := s.entitlementSvc.UseCredits(ctx, entitlementdomain.UseCreditsRequest{
			UserID:          id.UserID,
			FeatureID:       featureWishElements,
			Description:     "Wish " + wishID,
			RelatedEntityID: &wishID,
			Cost:            &cost,
			Metadata: map[string]any{
				"policy":   string(breakdown.Policy),
				"elements": len(req.Elements),
			},
		})
		if err != nil {
			AbortWithError(c, err)
			return
		}
		resp.Balance = &debit.Balance
	}

	if err := s.entitlementSvc.RecordWishCreated(ctx, id.UserID); err != nil {
		s.refund(ctx, wish, resp.Balance)
		AbortWithError(c, err)
		return
	}

	if err := s.wishSink.Publish(ctx, wish); err != nil {
		log.Error("wish publish failed", zap.String("wish_id", wishID), zap.Error(err))
		s.refund(ctx, wish, resp.Balance)
		AbortWithError(c, errors.Join(ErrPublishFailed, err))
		return
	}

	resp.Wish = wish
	respond(c, http.StatusCreated, resp)
}

// refund returns the credits taken for wish. balance is updated in place
// when the refund lands.
func (s *Server) refund(ctx context.Context, wish Wish, balance *credits.Amount) {
	if wish.Cost <= 0 || balance == nil {
		return
	}
	wishID := wish.ID.String()
	res, err := s.entitlementSvc.AddCredits(ctx, entitlementdomain.AddCreditsRequest{
		UserID:          wish.UserID,
		Amount:          wish.Cost,
		Description:     "Refund for wish " + wishID,
		Source:          entitlementdomain.SourceRefund,
		RelatedEntityID: &wishID,
	})
	if err != nil {
		logger.FromContext(ctx).Error("wish refund failed",
			zap.String("wish_id", wishID),
			zap.Stringer("amount", wish.Cost),
			zap.Error(err),
		)
		return
	}
	*balance = res.Balance
}

// GetPricingCatalog lists the active element price table.
func (s *Server) GetPricingCatalog(c *gin.Context) {
	respond(c, http.StatusOK, gin.H{"elements": s.catalog.Definitions()})
}
