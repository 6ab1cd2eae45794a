package domain

import (
	"context"

	"github.com/smallbiznis/creditgate/pkg/credits"
)

type Service interface {
	GetOrCreateUser(ctx context.Context, userID, email string) (*PremiumUser, error)
	UseCredits(ctx context.Context, req UseCreditsRequest) (*CreditResult, error)
	AddCredits(ctx context.Context, req AddCreditsRequest) (*CreditResult, error)
	GetCreditHistory(ctx context.Context, userID string, limit int) ([]CreditTransaction, error)
	ClaimMonthlyLoginBonus(ctx context.Context, userID string) (*BonusResult, error)
	CanCreateWish(ctx context.Context, userID string) (*CreateAllowance, error)
	RecordWishCreated(ctx context.Context, userID string) error
	HasFeatureAccess(ctx context.Context, userID, featureID string, requiredPlan PlanType) (*FeatureAccess, error)
	UpgradeUser(ctx context.Context, userID string, plan PlanType, subscriptionID *string) (*PremiumUser, error)
	DowngradeUser(ctx context.Context, userID string) (*PremiumUser, error)
	GetStatus(ctx context.Context, userID, email string) (*Status, error)
	Reconcile(ctx context.Context, userID string) (*Reconciliation, error)
}

// UseCreditsRequest debits a feature. Cost overrides the feature price and
// is how element pricing reaches the ledger.
type UseCreditsRequest struct {
	UserID          string
	FeatureID       string
	Description     string
	RelatedEntityID *string
	Cost            *credits.Amount
	Metadata        map[string]any
}

type AddCreditsRequest struct {
	UserID          string
	Amount          credits.Amount
	Description     string
	Source          string
	RelatedEntityID *string
}

type CreditResult struct {
	Balance     credits.Amount     `json:"balance"`
	Transaction *CreditTransaction `json:"transaction"`
}

type BonusResult struct {
	Claimed      bool           `json:"claimed"`
	CreditsAdded credits.Amount `json:"creditsAdded"`
	Message      string         `json:"message"`
	Period       string         `json:"period"`
	Balance      credits.Amount `json:"balance"`
}

type CreateAllowance struct {
	CanCreate bool   `json:"canCreate"`
	Reason    string `json:"reason,omitempty"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
}

type FeatureAccess struct {
	HasAccess    bool     `json:"hasAccess"`
	Reason       string   `json:"reason,omitempty"`
	Plan         PlanType `json:"plan"`
	RequiredPlan PlanType `json:"requiredPlan"`
}

type UsageSummary struct {
	Period        string `json:"period"`
	WishesCreated int    `json:"wishesCreated"`
}

type Status struct {
	User           *PremiumUser `json:"user"`
	Limits         PlanLimits   `json:"limits"`
	Usage          UsageSummary `json:"usage"`
	BonusAvailable bool         `json:"bonusAvailable"`
}

type Reconciliation struct {
	UserID       string         `json:"userId"`
	Balance      credits.Amount `json:"balance"`
	LedgerSum    credits.Amount `json:"ledgerSum"`
	Transactions int64          `json:"transactions"`
	Consistent   bool           `json:"consistent"`
}
