package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/entitlement/domain"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"github.com/smallbiznis/creditgate/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
	maxTxAttempts       = 3
)

var defaultMaxGrant = credits.Whole(100_000)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	Cfg        config.Config
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics

	monthlyBonus credits.Amount
	signupGrant  credits.Amount
	maxGrant     credits.Amount
	featureCosts map[string]credits.Amount
}

func New(p Params) (domain.Service, error) {
	monthlyBonus, err := credits.FromFloat(p.Cfg.Credits.MonthlyBonus)
	if err != nil || monthlyBonus < 0 {
		return nil, fmt.Errorf("credits monthly bonus: %w", domain.ErrInvalidAmount)
	}
	signupGrant, err := credits.FromFloat(p.Cfg.Credits.SignupGrant)
	if err != nil || signupGrant < 0 {
		return nil, fmt.Errorf("credits signup grant: %w", domain.ErrInvalidAmount)
	}
	maxGrant, err := credits.FromFloat(p.Cfg.Credits.MaxGrant)
	if err != nil || maxGrant < 0 || maxGrant > domain.MaxBalance {
		return nil, fmt.Errorf("credits max grant: %w", domain.ErrInvalidAmount)
	}
	if maxGrant == 0 {
		maxGrant = defaultMaxGrant
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}

	return &Service{
		db:           p.DB,
		log:          p.Log.Named("entitlement.service"),
		genID:        p.GenID,
		repo:         p.Repo,
		clock:        clk,
		obsMetrics:   p.ObsMetrics,
		monthlyBonus: monthlyBonus,
		signupGrant:  signupGrant,
		maxGrant:     maxGrant,
		featureCosts: domain.DefaultFeatureCosts(),
	}, nil
}

// transaction runs fn in a database transaction, replaying it when the
// database reports a serialization conflict.
func (s *Service) transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !db.IsRetryable(err) {
			return err
		}
		s.log.Warn("retrying credit transaction", zap.Int("attempt", attempt), zap.Error(err))
	}
	return err
}

func (s *Service) GetOrCreateUser(ctx context.Context, userID, email string) (*domain.PremiumUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	email = strings.TrimSpace(email)

	user, err := s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user != nil {
		if email != "" && user.Email == "" {
			if err := s.repo.UpdateEmail(ctx, s.db, userID, email, s.clock.Now()); err != nil {
				return nil, err
			}
			user.Email = email
		}
		return user, nil
	}

	err = s.transaction(ctx, func(tx *gorm.DB) error {
		now := s.clock.Now()
		inserted, err := s.repo.InsertUserIfAbsent(ctx, tx, &domain.PremiumUser{
			UserID:    userID,
			Email:     email,
			PlanType:  domain.PlanFree,
			Credits:   s.signupGrant,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted || s.signupGrant == 0 {
			return nil
		}
		return s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
			ID:          s.genID.Generate(),
			UserID:      userID,
			Amount:      s.signupGrant,
			Kind:        domain.TransactionKindBonus,
			Description: "Signup grant",
			Source:      domain.SourceSignup,
			CreatedAt:   now,
		})
	})
	if err != nil {
		return nil, err
	}

	user, err = s.repo.FindUser(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	s.log.Info("premium user created", zap.String("user_id", userID))
	return user, nil
}

func (s *Service) featureCost(req domain.UseCreditsRequest) (credits.Amount, error) {
	if req.Cost != nil {
		if *req.Cost <= 0 {
			return 0, domain.ErrInvalidAmount
		}
		return *req.Cost, nil
	}
	cost, ok := s.featureCosts[strings.TrimSpace(req.FeatureID)]
	if !ok {
		return 0, domain.ErrUnknownFeature
	}
	return cost, nil
}

func (s *Service) UseCredits(ctx context.Context, req domain.UseCreditsRequest) (*domain.CreditResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	featureID := strings.TrimSpace(req.FeatureID)
	if featureID == "" {
		return nil, domain.ErrUnknownFeature
	}
	cost, err := s.featureCost(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.GetOrCreateUser(ctx, userID, ""); err != nil {
		return nil, err
	}

	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Used " + featureID
	}
	metadata := map[string]any{"feature": featureID}
	for k, v := range req.Metadata {
		metadata[k] = v
	}

	var result domain.CreditResult
	err = s.transaction(ctx, func(tx *gorm.DB) error {
		now := s.clock.Now()
		rows, err := s.repo.DebitCredits(ctx, tx, userID, cost, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			user, err := s.repo.FindUser(ctx, tx, userID)
			if err != nil {
				return err
			}
			if user == nil {
				return domain.ErrUserNotFound
			}
			return &domain.InsufficientCreditsError{Required: cost, Available: user.Credits}
		}

		txn := &domain.CreditTransaction{
			ID:              s.genID.Generate(),
			UserID:          userID,
			Amount:          -cost,
			Kind:            domain.TransactionKindUsage,
			Description:     description,
			RelatedEntityID: req.RelatedEntityID,
			Source:          domain.SourceFeature,
			Metadata:        metadata,
			CreatedAt:       now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		user, err := s.repo.FindUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = domain.CreditResult{Balance: user.Credits, Transaction: txn}
		return nil
	})
	if err != nil {
		var insufficient *domain.InsufficientCreditsError
		if errors.As(err, &insufficient) {
			s.obsMetrics.RecordInsufficientCredits(ctx, featureID)
		}
		return nil, err
	}

	s.obsMetrics.RecordCreditTransaction(ctx, string(domain.TransactionKindUsage), domain.SourceFeature)
	s.log.Info("credits used",
		zap.String("user_id", userID),
		zap.String("feature", featureID),
		zap.Stringer("cost", cost),
		zap.Stringer("balance", result.Balance),
	)
	return &result, nil
}

func (s *Service) AddCredits(ctx context.Context, req domain.AddCreditsRequest) (*domain.CreditResult, error) {
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if req.Amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = domain.SourceManual
	}
	if req.Amount > s.maxGrant && source != domain.SourceRefund {
		return nil, fmt.Errorf("%w: grant above %s", domain.ErrInvalidAmount, s.maxGrant)
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Credits added"
	}
	if _, err := s.GetOrCreateUser(ctx, userID, ""); err != nil {
		return nil, err
	}

	var result domain.CreditResult
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		now := s.clock.Now()
		rows, err := s.repo.CreditCredits(ctx, tx, userID, req.Amount, domain.MaxBalance, now)
		if err != nil {
			return err
		}
		if rows == 0 {
			// the user exists, so the ceiling refused it
			return fmt.Errorf("%w: balance would exceed %s", domain.ErrInvalidAmount, domain.MaxBalance)
		}

		txn := &domain.CreditTransaction{
			ID:              s.genID.Generate(),
			UserID:          userID,
			Amount:          req.Amount,
			Kind:            domain.TransactionKindAddition,
			Description:     description,
			RelatedEntityID: req.RelatedEntityID,
			Source:          source,
			CreatedAt:       now,
		}
		if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
			return err
		}

		user, err := s.repo.FindUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		result = domain.CreditResult{Balance: user.Credits, Transaction: txn}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.obsMetrics.RecordCreditTransaction(ctx, string(domain.TransactionKindAddition), source)
	s.log.Info("credits added",
		zap.String("user_id", userID),
		zap.String("source", source),
		zap.Stringer("amount", req.Amount),
	)
	return &result, nil
}

func (s *Service) GetCreditHistory(ctx context.Context, userID string, limit int) ([]domain.CreditTransaction, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	items, err := s.repo.ListTransactions(ctx, s.db, userID, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []domain.CreditTransaction{}
	}
	return items, nil
}

func (s *Service) ClaimMonthlyLoginBonus(ctx context.Context, userID string) (*domain.BonusResult, error) {
	userID = strings.TrimSpace(userID)
	if _, err := s.GetOrCreateUser(ctx, userID, ""); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	period := domain.PeriodOf(now)
	result := domain.BonusResult{Period: period}

	err := s.transaction(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.ClaimBonus(ctx, tx, userID, period, s.monthlyBonus, now)
		if err != nil {
			return err
		}
		result.Claimed = rows > 0

		if result.Claimed && s.monthlyBonus > 0 {
			if err := s.repo.InsertTransaction(ctx, tx, &domain.CreditTransaction{
				ID:          s.genID.Generate(),
				UserID:      userID,
				Amount:      s.monthlyBonus,
				Kind:        domain.TransactionKindBonus,
				Description: "Monthly login bonus " + period,
				Source:      domain.SourceMonthlyLogin,
				CreatedAt:   now,
			}); err != nil {
				return err
			}
		}

		user, err := s.repo.FindUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = user.Credits
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Claimed {
		result.Message = fmt.Sprintf("Monthly bonus already claimed for %s", period)
		s.obsMetrics.RecordBonusClaim(ctx, "already_claimed")
		return &result, nil
	}

	result.CreditsAdded = s.monthlyBonus
	result.Message = fmt.Sprintf("Claimed %s credits for %s", s.monthlyBonus, period)
	s.obsMetrics.RecordBonusClaim(ctx, "claimed")
	s.obsMetrics.RecordCreditTransaction(ctx, string(domain.TransactionKindBonus), domain.SourceMonthlyLogin)
	s.log.Info("monthly bonus claimed", zap.String("user_id", userID), zap.String("period", period))
	return &result, nil
}

func (s *Service) wishesUsed(ctx context.Context, userID string, now time.Time) (int, error) {
	counter, err := s.repo.FindCounter(ctx, s.db, userID)
	if err != nil {
		return 0, err
	}
	if counter == nil || counter.Period != domain.PeriodOf(now) {
		return 0, nil
	}
	return counter.WishesCreatedInPeriod, nil
}

func (s *Service) CanCreateWish(ctx context.Context, userID string) (*domain.CreateAllowance, error) {
	user, err := s.GetOrCreateUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	limits := domain.LimitsFor(user.PlanType)
	used, err := s.wishesUsed(ctx, user.UserID, s.clock.Now())
	if err != nil {
		return nil, err
	}

	allowance := &domain.CreateAllowance{CanCreate: true, Limit: limits.MaxWishesPerPeriod, Used: used}
	if limits.Unlimited() || used < limits.MaxWishesPerPeriod {
		return allowance, nil
	}
	allowance.CanCreate = false
	allowance.Reason = fmt.Sprintf("Monthly wish limit reached (%d/%d) on the %s plan", used, limits.MaxWishesPerPeriod, user.PlanType)
	return allowance, nil
}

func (s *Service) RecordWishCreated(ctx context.Context, userID string) error {
	user, err := s.GetOrCreateUser(ctx, userID, "")
	if err != nil {
		return err
	}
	limits := domain.LimitsFor(user.PlanType)

	return s.transaction(ctx, func(tx *gorm.DB) error {
		now := s.clock.Now()
		ok, err := s.repo.IncrementCounter(ctx, tx, user.UserID, domain.PeriodStartOf(now), limits.MaxWishesPerPeriod, now)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrWishLimitReached
		}
		return nil
	})
}

func (s *Service) HasFeatureAccess(ctx context.Context, userID, featureID string, requiredPlan domain.PlanType) (*domain.FeatureAccess, error) {
	if !requiredPlan.Valid() {
		return nil, domain.ErrInvalidPlan
	}
	user, err := s.GetOrCreateUser(ctx, userID, "")
	if err != nil {
		return nil, err
	}

	access := &domain.FeatureAccess{
		HasAccess:    user.PlanType.AtLeast(requiredPlan),
		Plan:         user.PlanType,
		RequiredPlan: requiredPlan,
	}
	if !access.HasAccess {
		access.Reason = fmt.Sprintf("%s requires the %s plan", strings.TrimSpace(featureID), requiredPlan)
	}
	return access, nil
}

func (s *Service) UpgradeUser(ctx context.Context, userID string, plan domain.PlanType, subscriptionID *string) (*domain.PremiumUser, error) {
	if !plan.Valid() || plan == domain.PlanFree {
		return nil, domain.ErrInvalidPlan
	}
	return s.changePlan(ctx, userID, plan, subscriptionID)
}

func (s *Service) DowngradeUser(ctx context.Context, userID string) (*domain.PremiumUser, error) {
	return s.changePlan(ctx, userID, domain.PlanFree, nil)
}

func (s *Service) changePlan(ctx context.Context, userID string, plan domain.PlanType, subscriptionID *string) (*domain.PremiumUser, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	var user *domain.PremiumUser
	err := s.transaction(ctx, func(tx *gorm.DB) error {
		rows, err := s.repo.UpdatePlan(ctx, tx, userID, plan, subscriptionID, s.clock.Now())
		if err != nil {
			return err
		}
		if rows == 0 {
			return domain.ErrUserNotFound
		}
		user, err = s.repo.FindUser(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("plan changed", zap.String("user_id", userID), zap.Stringer("plan", plan))
	return user, nil
}

func (s *Service) GetStatus(ctx context.Context, userID, email string) (*domain.Status, error) {
	user, err := s.GetOrCreateUser(ctx, userID, email)
	if err != nil {
		return nil, err
	}
	now := s.clock.Now()
	used, err := s.wishesUsed(ctx, user.UserID, now)
	if err != nil {
		return nil, err
	}
	period := domain.PeriodOf(now)

	return &domain.Status{
		User:           user,
		Limits:         domain.LimitsFor(user.PlanType),
		Usage:          domain.UsageSummary{Period: period, WishesCreated: used},
		BonusAvailable: user.LastMonthlyBonusPeriod == nil || *user.LastMonthlyBonusPeriod != period,
	}, nil
}

func (s *Service) Reconcile(ctx context.Context, userID string) (*domain.Reconciliation, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, domain.ErrInvalidUserID
	}

	var out *domain.Reconciliation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.repo.FindUser(ctx, tx, userID)
		if err != nil {
			return err
		}
		if user == nil {
			return domain.ErrUserNotFound
		}
		sum, count, err := s.repo.SumTransactions(ctx, tx, userID)
		if err != nil {
			return err
		}
		out = &domain.Reconciliation{
			UserID:       userID,
			Balance:      user.Credits,
			LedgerSum:    sum,
			Transactions: count,
			Consistent:   user.Credits == sum,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !out.Consistent {
		s.log.Error("credit ledger out of balance",
			zap.String("user_id", userID),
			zap.Stringer("balance", out.Balance),
			zap.Stringer("ledger_sum", out.LedgerSum),
		)
	}
	return out, nil
}
