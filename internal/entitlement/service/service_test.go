package service

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/entitlement/domain"
	"github.com/smallbiznis/creditgate/internal/entitlement/repository"
	"github.com/smallbiznis/creditgate/pkg/credits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	db    *gorm.DB
	clock *clock.FakeClock
	svc   domain.Service
}

func setupService(t *testing.T, cfg config.CreditsConfig) *fixture {
	t.Helper()

	dsn := "file:" + strings.ReplaceAll(t.Name(), "/", "_") + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(&domain.PremiumUser{}, &domain.CreditTransaction{}, &domain.UsagePeriodCounter{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	fc := clock.NewFakeClock(time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC))
	svc, err := New(Params{
		DB:    db,
		Log:   zap.NewNop(),
		GenID: node,
		Repo:  repository.Provide(),
		Clock: fc,
		Cfg:   config.Config{Credits: cfg},
	})
	require.NoError(t, err)

	return &fixture{db: db, clock: fc, svc: svc}
}

func (f *fixture) requireReconciled(t *testing.T, userID string) {
	t.Helper()
	rec, err := f.svc.Reconcile(context.Background(), userID)
	require.NoError(t, err)
	assert.True(t, rec.Consistent, "balance %s ledger %s", rec.Balance, rec.LedgerSum)
}

func TestGetOrCreateUser_FreeDefaults(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5})
	ctx := context.Background()

	user, err := f.svc.GetOrCreateUser(ctx, "u1", "u1@example.com")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, user.PlanType)
	assert.Equal(t, credits.Amount(0), user.Credits)
	assert.Equal(t, "u1@example.com", user.Email)
	assert.Nil(t, user.LastMonthlyBonusPeriod)

	again, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, again.UserID)

	_, err = f.svc.GetOrCreateUser(ctx, "  ", "")
	assert.ErrorIs(t, err, domain.ErrInvalidUserID)
}

func TestGetOrCreateUser_PersistsPlanAsText(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	_, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)

	var stored string
	require.NoError(t, f.db.Raw(`SELECT plan_type FROM premium_users WHERE user_id = ?`, "u1").Scan(&stored).Error)
	assert.Equal(t, "free", stored)

	_, err = f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(5)})
	require.NoError(t, err)
	cost := credits.Whole(2)
	res, err := f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "wish_elements", Cost: &cost})
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(3), res.Balance)
	f.requireReconciled(t, "u1")
}

func TestGetOrCreateUser_SignupGrantIsLedgered(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5, SignupGrant: 2.5})
	ctx := context.Background()

	user, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, credits.Amount(250), user.Credits)

	history, err := f.svc.GetCreditHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.TransactionKindBonus, history[0].Kind)
	assert.Equal(t, domain.SourceSignup, history[0].Source)
	f.requireReconciled(t, "u1")
}

// Balance 5, two debits of 2 succeed, the third is refused and leaves 1.
func TestUseCredits_ExactDebitsThenInsufficient(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5})
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(5)})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		res, err := f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "premium_template"})
		require.NoError(t, err)
		assert.Equal(t, credits.Amount(-200), res.Transaction.Amount)
		assert.Equal(t, domain.TransactionKindUsage, res.Transaction.Kind)
		f.requireReconciled(t, "u1")
	}

	_, err = f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "premium_template"})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrInsufficientCredits)

	var insufficient *domain.InsufficientCreditsError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, credits.Whole(2), insufficient.Required)
	assert.Equal(t, credits.Whole(1), insufficient.Available)

	status, err := f.svc.GetStatus(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(1), status.User.Credits)
	f.requireReconciled(t, "u1")
}

func TestUseCredits_ExplicitCostAndValidation(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(3)})
	require.NoError(t, err)

	cost := credits.Amount(175)
	res, err := f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "wish_elements", Cost: &cost})
	require.NoError(t, err)
	assert.Equal(t, credits.Amount(125), res.Balance)
	assert.Equal(t, "wish_elements", res.Transaction.Metadata["feature"])

	_, err = f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "no_such_feature"})
	assert.ErrorIs(t, err, domain.ErrUnknownFeature)

	zero := credits.Amount(0)
	_, err = f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "x", Cost: &zero})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	f.requireReconciled(t, "u1")
}

func TestAddCredits_GrantCapExemptsRefunds(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MaxGrant: 10})
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(11)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	_, err = f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Amount(math.MaxInt64 / 2)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	res, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(10)})
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(10), res.Balance)

	res, err = f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(25), Source: domain.SourceRefund})
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(35), res.Balance)
	f.requireReconciled(t, "u1")
}

func TestAddCredits_BalanceCeiling(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MaxGrant: domain.MaxBalance.Float64()})
	ctx := context.Background()

	res, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: domain.MaxBalance})
	require.NoError(t, err)
	assert.Equal(t, domain.MaxBalance, res.Balance)

	_, err = f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Amount(1)})
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	user, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxBalance, user.Credits)
	f.requireReconciled(t, "u1")
}

func TestUseCredits_ConcurrentDebitsNeverOverdraw(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(10)})
	require.NoError(t, err)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
		refused   atomic.Int32
	)
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "custom_music"})
			switch {
			case err == nil:
				succeeded.Add(1)
			case errors.Is(err, domain.ErrInsufficientCredits):
				refused.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(10), succeeded.Load())
	assert.Equal(t, int32(15), refused.Load())

	rec, err := f.svc.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, credits.Amount(0), rec.Balance)
	assert.True(t, rec.Consistent)
	assert.Equal(t, int64(11), rec.Transactions)
}

// Claim twice in January, once in February.
func TestClaimMonthlyLoginBonus_OncePerPeriod(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5})
	ctx := context.Background()

	first, err := f.svc.ClaimMonthlyLoginBonus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, first.Claimed)
	assert.Equal(t, credits.Whole(5), first.CreditsAdded)
	assert.Equal(t, "2025-01", first.Period)
	assert.Equal(t, credits.Whole(5), first.Balance)

	second, err := f.svc.ClaimMonthlyLoginBonus(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, second.Claimed)
	assert.Equal(t, credits.Amount(0), second.CreditsAdded)
	assert.Contains(t, second.Message, "already claimed")
	assert.Equal(t, credits.Whole(5), second.Balance)

	f.clock.Set(time.Date(2025, 2, 1, 0, 0, 1, 0, time.UTC))
	third, err := f.svc.ClaimMonthlyLoginBonus(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, third.Claimed)
	assert.Equal(t, "2025-02", third.Period)
	assert.Equal(t, credits.Whole(10), third.Balance)

	status, err := f.svc.GetStatus(ctx, "u1", "")
	require.NoError(t, err)
	require.NotNil(t, status.User.LastMonthlyBonusPeriod)
	assert.Equal(t, "2025-02", *status.User.LastMonthlyBonusPeriod)
	assert.False(t, status.BonusAvailable)
	f.requireReconciled(t, "u1")
}

func TestClaimMonthlyLoginBonus_ConcurrentClaimsGrantOnce(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5})
	ctx := context.Background()

	_, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)

	var (
		wg      sync.WaitGroup
		claimed atomic.Int32
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := f.svc.ClaimMonthlyLoginBonus(ctx, "u1")
			if err == nil && res.Claimed {
				claimed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), claimed.Load())
	rec, err := f.svc.Reconcile(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, credits.Whole(5), rec.Balance)
	assert.True(t, rec.Consistent)
}

func TestGetCreditHistory_NewestFirst(t *testing.T) {
	f := setupService(t, config.CreditsConfig{MonthlyBonus: 5})
	ctx := context.Background()

	_, err := f.svc.AddCredits(ctx, domain.AddCreditsRequest{UserID: "u1", Amount: credits.Whole(4), Source: domain.SourcePurchase})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.UseCredits(ctx, domain.UseCreditsRequest{UserID: "u1", FeatureID: "custom_music"})
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	_, err = f.svc.ClaimMonthlyLoginBonus(ctx, "u1")
	require.NoError(t, err)

	history, err := f.svc.GetCreditHistory(ctx, "u1", 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, domain.TransactionKindBonus, history[0].Kind)
	assert.Equal(t, domain.TransactionKindUsage, history[1].Kind)
	assert.Equal(t, domain.TransactionKindAddition, history[2].Kind)
	assert.Equal(t, domain.SourcePurchase, history[2].Source)

	limited, err := f.svc.GetCreditHistory(ctx, "u1", 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, history[0].ID, limited[0].ID)

	empty, err := f.svc.GetCreditHistory(ctx, "nobody", 10)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestWishQuota_FreePlan(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		allowance, err := f.svc.CanCreateWish(ctx, "u1")
		require.NoError(t, err)
		assert.True(t, allowance.CanCreate)
		assert.Equal(t, i, allowance.Used)
		require.NoError(t, f.svc.RecordWishCreated(ctx, "u1"))
	}

	allowance, err := f.svc.CanCreateWish(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, allowance.CanCreate)
	assert.Equal(t, 3, allowance.Limit)
	assert.NotEmpty(t, allowance.Reason)

	assert.ErrorIs(t, f.svc.RecordWishCreated(ctx, "u1"), domain.ErrWishLimitReached)

	f.clock.Set(time.Date(2025, 2, 3, 0, 0, 0, 0, time.UTC))
	allowance, err = f.svc.CanCreateWish(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, allowance.CanCreate)
	assert.Equal(t, 0, allowance.Used)
	require.NoError(t, f.svc.RecordWishCreated(ctx, "u1"))

	status, err := f.svc.GetStatus(ctx, "u1", "")
	require.NoError(t, err)
	assert.Equal(t, "2025-02", status.Usage.Period)
	assert.Equal(t, 1, status.Usage.WishesCreated)
}

func TestWishQuota_PremiumIsUnlimited(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	_, err := f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)
	_, err = f.svc.UpgradeUser(ctx, "u1", domain.PlanPremium, nil)
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		require.NoError(t, f.svc.RecordWishCreated(ctx, "u1"))
	}
	allowance, err := f.svc.CanCreateWish(ctx, "u1")
	require.NoError(t, err)
	assert.True(t, allowance.CanCreate)
	assert.Equal(t, domain.Unlimited, allowance.Limit)
	assert.Equal(t, 10, allowance.Used)
}

func TestHasFeatureAccess_PlanOrdering(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	access, err := f.svc.HasFeatureAccess(ctx, "u1", domain.FeatureAnalytics, domain.PlanPro)
	require.NoError(t, err)
	assert.False(t, access.HasAccess)
	assert.Equal(t, domain.PlanFree, access.Plan)
	assert.NotEmpty(t, access.Reason)

	sub := "sub_123"
	upgraded, err := f.svc.UpgradeUser(ctx, "u1", domain.PlanPro, &sub)
	require.NoError(t, err)
	assert.Equal(t, domain.PlanPro, upgraded.PlanType)
	require.NotNil(t, upgraded.SubscriptionID)
	assert.Equal(t, sub, *upgraded.SubscriptionID)

	access, err = f.svc.HasFeatureAccess(ctx, "u1", domain.FeatureAnalytics, domain.PlanPro)
	require.NoError(t, err)
	assert.True(t, access.HasAccess)

	access, err = f.svc.HasFeatureAccess(ctx, "u1", domain.FeatureCustomDomain, domain.PlanPremium)
	require.NoError(t, err)
	assert.False(t, access.HasAccess)

	downgraded, err := f.svc.DowngradeUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, domain.PlanFree, downgraded.PlanType)
	assert.Nil(t, downgraded.SubscriptionID)

	_, err = f.svc.HasFeatureAccess(ctx, "u1", domain.FeatureAnalytics, domain.PlanType(9))
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)
}

func TestUpgradeUser_Validation(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	ctx := context.Background()

	_, err := f.svc.UpgradeUser(ctx, "ghost", domain.PlanPro, nil)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.svc.GetOrCreateUser(ctx, "u1", "")
	require.NoError(t, err)
	_, err = f.svc.UpgradeUser(ctx, "u1", domain.PlanFree, nil)
	assert.ErrorIs(t, err, domain.ErrInvalidPlan)

	_, err = f.svc.DowngradeUser(ctx, "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestReconcile_UnknownUser(t *testing.T) {
	f := setupService(t, config.CreditsConfig{})
	_, err := f.svc.Reconcile(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}
