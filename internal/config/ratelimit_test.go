package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultRateLimitPolicies(t *testing.T) {
	policies := DefaultRateLimitPolicies()

	assert.Equal(t, RateLimitPolicy{MaxRequests: 100, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute}, policies[RateLimitClassPremium])
	assert.Equal(t, RateLimitPolicy{MaxRequests: 50, Window: 10 * time.Minute, BlockDuration: 15 * time.Minute}, policies[RateLimitClassAuth])
	assert.Equal(t, RateLimitPolicy{MaxRequests: 200, Window: 15 * time.Minute, BlockDuration: 5 * time.Minute}, policies[RateLimitClassGeneral])
	assert.Equal(t, RateLimitPolicy{MaxRequests: 500, Window: 15 * time.Minute}, policies[RateLimitClassPublic])
}

func TestRateLimitPolicyHolderLoadsOverrides(t *testing.T) {
	cfg := Config{RateLimit: RateLimitConfig{PolicyFile: "testdata/ratelimit.yml"}}

	holder, err := NewRateLimitPolicyHolder(cfg, zap.NewNop())
	require.NoError(t, err)

	premium, ok := holder.Get("premium")
	require.True(t, ok)
	assert.Equal(t, 10, premium.MaxRequests)
	assert.Equal(t, time.Minute, premium.Window)
	assert.Equal(t, 2*time.Minute, premium.BlockDuration)

	webhook, ok := holder.Get("WEBHOOK")
	require.True(t, ok)
	assert.Equal(t, 20, webhook.MaxRequests)
	assert.Zero(t, webhook.BlockDuration)

	public, ok := holder.Get(RateLimitClassPublic)
	require.True(t, ok)
	assert.Equal(t, 500, public.MaxRequests)
}

func TestRateLimitPolicyHolderMissingExplicitFile(t *testing.T) {
	cfg := Config{RateLimit: RateLimitConfig{PolicyFile: "testdata/does-not-exist.yml"}}

	_, err := NewRateLimitPolicyHolder(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestValidateRateLimitPolicy(t *testing.T) {
	assert.Error(t, ValidateRateLimitPolicy(RateLimitPolicy{MaxRequests: 0, Window: time.Second}))
	assert.Error(t, ValidateRateLimitPolicy(RateLimitPolicy{MaxRequests: 1}))
	assert.Error(t, ValidateRateLimitPolicy(RateLimitPolicy{MaxRequests: 1, Window: time.Second, BlockDuration: -time.Second}))
	assert.NoError(t, ValidateRateLimitPolicy(RateLimitPolicy{MaxRequests: 1, Window: time.Second}))
}

func TestStaticHolderIsIsolatedFromCaller(t *testing.T) {
	policies := map[string]RateLimitPolicy{"x": {MaxRequests: 1, Window: time.Second}}
	holder := NewStaticRateLimitPolicies(policies)
	policies["x"] = RateLimitPolicy{MaxRequests: 99, Window: time.Second}

	got, ok := holder.Get("x")
	require.True(t, ok)
	assert.Equal(t, 1, got.MaxRequests)
}
