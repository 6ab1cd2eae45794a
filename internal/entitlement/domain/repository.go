package domain

import (
	"context"
	"time"

	"github.com/smallbiznis/creditgate/pkg/credits"
	"gorm.io/gorm"
)

// Repository methods take the handle to run on so callers can compose them
// inside one transaction. Mutations report affected rows; zero means the
// guard in the WHERE clause did not hold.
type Repository interface {
	FindUser(ctx context.Context, db *gorm.DB, userID string) (*PremiumUser, error)
	InsertUserIfAbsent(ctx context.Context, db *gorm.DB, user *PremiumUser) (bool, error)
	UpdateEmail(ctx context.Context, db *gorm.DB, userID, email string, now time.Time) error
	DebitCredits(ctx context.Context, db *gorm.DB, userID string, amount credits.Amount, now time.Time) (int64, error)
	// CreditCredits adds amount unless the balance would pass ceiling.
	CreditCredits(ctx context.Context, db *gorm.DB, userID string, amount, ceiling credits.Amount, now time.Time) (int64, error)
	ClaimBonus(ctx context.Context, db *gorm.DB, userID, period string, amount credits.Amount, now time.Time) (int64, error)
	UpdatePlan(ctx context.Context, db *gorm.DB, userID string, plan PlanType, subscriptionID *string, now time.Time) (int64, error)

	InsertTransaction(ctx context.Context, db *gorm.DB, txn *CreditTransaction) error
	ListTransactions(ctx context.Context, db *gorm.DB, userID string, limit int) ([]CreditTransaction, error)
	SumTransactions(ctx context.Context, db *gorm.DB, userID string) (credits.Amount, int64, error)

	FindCounter(ctx context.Context, db *gorm.DB, userID string) (*UsagePeriodCounter, error)
	IncrementCounter(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time, limit int, now time.Time) (bool, error)
}
