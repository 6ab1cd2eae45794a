package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindUser(ctx context.Context, db *gorm.DB, userID string) (*domain.PremiumUser, error) {
	var user domain.PremiumUser
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, email, plan_type, credits, subscription_id, last_monthly_bonus_period, version, created_at, updated_at
		 FROM premium_users WHERE user_id = ?`,
		userID,
	).Scan(&user).Error
	if err != nil {
		return nil, err
	}
	if user.UserID == "" {
		return nil, nil
	}
	return &user, nil
}

func (r *repo) InsertUserIfAbsent(ctx context.Context, db *gorm.DB, user *domain.PremiumUser) (bool, error) {
	result := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(user)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repo) UpdateEmail(ctx context.Context, db *gorm.DB, userID, email string, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE premium_users SET email = ?, updated_at = ? WHERE user_id = ? AND email = ''`,
		email,
		now,
		userID,
	).Error
}

func (r *repo) DebitCredits(ctx context.Context, db *gorm.DB, userID string, amount credits.Amount, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE premium_users
		 SET credits = credits - ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND credits >= ?`,
		int64(amount),
		now,
		userID,
		int64(amount),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) CreditCredits(ctx context.Context, db *gorm.DB, userID string, amount, ceiling credits.Amount, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE premium_users
		 SET credits = credits + ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND credits <= ?`,
		int64(amount),
		now,
		userID,
		int64(ceiling-amount),
	)
	return result.RowsAffected, result.Error
}

func (r *repo) ClaimBonus(ctx context.Context, db *gorm.DB, userID, period string, amount credits.Amount, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE premium_users
		 SET credits = credits + ?, last_monthly_bonus_period = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ? AND (last_monthly_bonus_period IS NULL OR last_monthly_bonus_period <> ?)`,
		int64(amount),
		period,
		now,
		userID,
		period,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) UpdatePlan(ctx context.Context, db *gorm.DB, userID string, plan domain.PlanType, subscriptionID *string, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Exec(
		`UPDATE premium_users
		 SET plan_type = ?, subscription_id = ?, version = version + 1, updated_at = ?
		 WHERE user_id = ?`,
		plan.String(),
		subscriptionID,
		now,
		userID,
	)
	return result.RowsAffected, result.Error
}

func (r *repo) InsertTransaction(ctx context.Context, db *gorm.DB, txn *domain.CreditTransaction) error {
	return db.WithContext(ctx).Create(txn).Error
}

func (r *repo) ListTransactions(ctx context.Context, db *gorm.DB, userID string, limit int) ([]domain.CreditTransaction, error) {
	var items []domain.CreditTransaction
	err := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repo) SumTransactions(ctx context.Context, db *gorm.DB, userID string) (credits.Amount, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	err := db.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(amount), 0) AS total, COUNT(*) AS count
		 FROM credit_transactions WHERE user_id = ?`,
		userID,
	).Scan(&row).Error
	if err != nil {
		return 0, 0, err
	}
	return credits.Amount(row.Total), row.Count, nil
}

func (r *repo) FindCounter(ctx context.Context, db *gorm.DB, userID string) (*domain.UsagePeriodCounter, error) {
	var counter domain.UsagePeriodCounter
	err := db.WithContext(ctx).Raw(
		`SELECT user_id, period, period_start, wishes_created_in_period, updated_at
		 FROM usage_period_counters WHERE user_id = ?`,
		userID,
	).Scan(&counter).Error
	if err != nil {
		return nil, err
	}
	if counter.UserID == "" {
		return nil, nil
	}
	return &counter, nil
}

// IncrementCounter counts one wish in the period starting at periodStart,
// rolling the row over when it still holds an older period. It reports
// false when limit is already reached. A negative limit is unlimited.
func (r *repo) IncrementCounter(ctx context.Context, db *gorm.DB, userID string, periodStart time.Time, limit int, now time.Time) (bool, error) {
	period := domain.PeriodOf(periodStart)

	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(&domain.UsagePeriodCounter{
			UserID:      userID,
			Period:      period,
			PeriodStart: periodStart,
			UpdatedAt:   now,
		}).Error
	if err != nil {
		return false, err
	}

	if err := db.WithContext(ctx).Exec(
		`UPDATE usage_period_counters
		 SET period = ?, period_start = ?, wishes_created_in_period = 0, updated_at = ?
		 WHERE user_id = ? AND period <> ?`,
		period,
		periodStart,
		now,
		userID,
		period,
	).Error; err != nil {
		return false, err
	}

	result := db.WithContext(ctx).Exec(
		`UPDATE usage_period_counters
		 SET wishes_created_in_period = wishes_created_in_period + 1, updated_at = ?
		 WHERE user_id = ? AND period = ? AND (? < 0 OR wishes_created_in_period < ?)`,
		now,
		userID,
		period,
		limit,
		limit,
	)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}
