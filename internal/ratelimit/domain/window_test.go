package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestApplyWindowThenBlock(t *testing.T) {
	cfg := Config{MaxRequests: 3, Window: time.Second, BlockDuration: 5 * time.Second}

	var rec *Record
	for i := 1; i <= 3; i++ {
		next, res := Apply(rec, cfg, base)
		require.True(t, res.Allowed, "call %d", i)
		assert.Equal(t, 3-i, res.Remaining)
		assert.Equal(t, i, next.Count)
		rec = &next
	}

	next, res := Apply(rec, cfg, base)
	assert.False(t, res.Allowed)
	assert.True(t, res.Blocked)
	require.NotNil(t, next.BlockedUntil)
	assert.Equal(t, base.Add(5*time.Second), *next.BlockedUntil)
	assert.Equal(t, 3, next.Count)
	rec = &next

	next, res = Apply(rec, cfg, base.Add(4999*time.Millisecond))
	assert.False(t, res.Allowed)
	assert.True(t, res.Blocked)
	assert.Equal(t, base.Add(5*time.Second), res.ResetTime)
	rec = &next

	next, res = Apply(rec, cfg, base.Add(5*time.Second))
	assert.True(t, res.Allowed)
	assert.False(t, res.Blocked)
	assert.Equal(t, 1, next.Count)
	assert.Nil(t, next.BlockedUntil)
}

func TestApplyBlockExpiresInsideLongWindow(t *testing.T) {
	cfg := Config{MaxRequests: 1, Window: time.Hour, BlockDuration: time.Minute}

	first, _ := Apply(nil, cfg, base)
	blocked, res := Apply(&first, cfg, base)
	require.True(t, res.Blocked)

	next, res := Apply(&blocked, cfg, base.Add(time.Minute))
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, next.Count)
	assert.Equal(t, base.Add(time.Minute+time.Hour), next.WindowResetAt)
}

func TestApplyDenyWithoutBlockKeepsCounter(t *testing.T) {
	cfg := Config{MaxRequests: 2, Window: time.Minute}

	rec, _ := Apply(nil, cfg, base)
	rec, _ = Apply(&rec, cfg, base)

	for i := 0; i < 3; i++ {
		next, res := Apply(&rec, cfg, base.Add(time.Second))
		assert.False(t, res.Allowed)
		assert.False(t, res.Blocked)
		assert.Nil(t, next.BlockedUntil)
		assert.Equal(t, 2, next.Count)
		assert.Equal(t, base.Add(time.Minute), res.ResetTime)
		rec = next
	}

	next, res := Apply(&rec, cfg, base.Add(time.Minute+time.Millisecond))
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, next.Count)
}

func TestApplyWindowBoundaryIsInclusive(t *testing.T) {
	cfg := Config{MaxRequests: 1, Window: time.Second}
	rec, _ := Apply(nil, cfg, base)

	_, res := Apply(&rec, cfg, base.Add(time.Second))
	assert.False(t, res.Allowed)
}

func TestEvaluateDoesNotCount(t *testing.T) {
	cfg := Config{MaxRequests: 3, Window: time.Minute, BlockDuration: time.Minute}

	res := Evaluate(nil, cfg, base)
	assert.True(t, res.Allowed)
	assert.Equal(t, 3, res.Remaining)

	rec, _ := Apply(nil, cfg, base)
	res = Evaluate(&rec, cfg, base)
	assert.Equal(t, 2, res.Remaining)
	assert.Equal(t, 1, rec.Count)

	rec.Count = 3
	res = Evaluate(&rec, cfg, base)
	assert.False(t, res.Allowed)
	assert.False(t, res.Blocked)

	until := base.Add(time.Minute)
	rec.BlockedUntil = &until
	res = Evaluate(&rec, cfg, base)
	assert.True(t, res.Blocked)
	assert.Equal(t, until, res.ResetTime)
}

func TestRecordExpired(t *testing.T) {
	until := base.Add(time.Hour)
	rec := Record{Count: 1, WindowResetAt: base, BlockedUntil: &until}
	assert.False(t, rec.Expired(base.Add(time.Minute)))
	assert.True(t, rec.Expired(base.Add(time.Hour)))

	open := Record{Count: 1, WindowResetAt: base}
	assert.False(t, open.Expired(base))
	assert.True(t, open.Expired(base.Add(time.Nanosecond)))
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, Config{MaxRequests: 1, Window: time.Second}.Validate())
	assert.ErrorIs(t, Config{Window: time.Second}.Validate(), ErrInvalidConfig)
	assert.ErrorIs(t, Config{MaxRequests: 1, Window: time.Second, BlockDuration: -1}.Validate(), ErrInvalidConfig)
}

func TestApplyWindowRollsOnlyAfterReset(t *testing.T) {
	cfg := Config{MaxRequests: 1, Window: time.Minute}

	first, _ := Apply(nil, cfg, base)
	require.Equal(t, base.Add(time.Minute), first.WindowResetAt)

	_, res := Apply(&first, cfg, first.WindowResetAt)
	assert.False(t, res.Allowed)
	assert.Equal(t, first.WindowResetAt, res.ResetTime)

	next, res := Apply(&first, cfg, first.WindowResetAt.Add(time.Nanosecond))
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, next.Count)
}
