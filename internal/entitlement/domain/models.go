package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"gorm.io/datatypes"
)

type TransactionKind string

const (
	TransactionKindUsage    TransactionKind = "usage"
	TransactionKindAddition TransactionKind = "addition"
	TransactionKindBonus    TransactionKind = "bonus"
)

const (
	SourceFeature      = "feature"
	SourceWish         = "wish"
	SourceManual       = "manual"
	SourcePurchase     = "purchase"
	SourceRefund       = "refund"
	SourceSignup       = "signup"
	SourceMonthlyLogin = "monthly_login"
)

// PremiumUser holds the plan and credit balance of one user.
type PremiumUser struct {
	UserID                 string         `gorm:"primaryKey;type:text" json:"userId"`
	Email                  string         `gorm:"type:text;not null;default:''" json:"email"`
	PlanType               PlanType       `gorm:"type:text;not null" json:"planType"`
	Credits                credits.Amount `gorm:"not null;default:0" json:"credits"`
	SubscriptionID         *string        `gorm:"type:text" json:"subscriptionId"`
	LastMonthlyBonusPeriod *string        `gorm:"type:text" json:"lastMonthlyBonusPeriod"`
	Version                int64          `gorm:"not null;default:1" json:"-"`
	CreatedAt              time.Time      `gorm:"not null" json:"createdAt"`
	UpdatedAt              time.Time      `gorm:"not null" json:"updatedAt"`
}

func (PremiumUser) TableName() string { return "premium_users" }

// CreditTransaction is an append-only ledger row. Amount is negative for
// usage.
type CreditTransaction struct {
	ID              snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserID          string            `gorm:"type:text;not null;index:idx_credit_transactions_user_created,priority:1" json:"userId"`
	Amount          credits.Amount    `gorm:"not null" json:"amount"`
	Kind            TransactionKind   `gorm:"type:text;not null" json:"kind"`
	Description     string            `gorm:"type:text;not null;default:''" json:"description"`
	RelatedEntityID *string           `gorm:"type:text" json:"relatedEntityId,omitempty"`
	Source          string            `gorm:"type:text;not null;default:''" json:"source"`
	Metadata        datatypes.JSONMap `json:"metadata,omitempty"`
	CreatedAt       time.Time         `gorm:"not null;index:idx_credit_transactions_user_created,priority:2" json:"createdAt"`
}

func (CreditTransaction) TableName() string { return "credit_transactions" }

// UsagePeriodCounter counts wishes created in the current calendar month.
type UsagePeriodCounter struct {
	UserID                string    `gorm:"primaryKey;type:text"`
	Period                string    `gorm:"type:text;not null"`
	PeriodStart           time.Time `gorm:"not null"`
	WishesCreatedInPeriod int       `gorm:"not null;default:0"`
	UpdatedAt             time.Time `gorm:"not null"`
}

func (UsagePeriodCounter) TableName() string { return "usage_period_counters" }

// PeriodOf returns the YYYY-MM calendar month of t in UTC.
func PeriodOf(t time.Time) string {
	return t.UTC().Format("2006-01")
}

// PeriodStartOf returns midnight UTC on the first day of t's month.
func PeriodStartOf(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// MaxBalance is the highest balance any user can hold; additions that would
// pass it are refused.
const MaxBalance = credits.Amount(100_000_000_000_000)

// DefaultFeatureCosts are the credit prices of pay-per-use features.
func DefaultFeatureCosts() map[string]credits.Amount {
	return map[string]credits.Amount{
		"premium_template": credits.Whole(2),
		"custom_music":     credits.Whole(1),
		"remove_watermark": credits.Whole(3),
		"ai_message":       credits.Whole(1),
		"extra_wish":       credits.Whole(1),
	}
}
