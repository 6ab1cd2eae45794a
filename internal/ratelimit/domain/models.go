package domain

import (
	"context"
	"errors"
	"time"
)

var (
	ErrEmptyKey      = errors.New("rate_limit_key_empty")
	ErrInvalidConfig = errors.New("invalid_rate_limit_config")
)

// Config is the quota applied to one key. BlockDuration of zero denies
// over-quota requests without blocking.
type Config struct {
	MaxRequests   int
	Window        time.Duration
	BlockDuration time.Duration
}

func (c Config) Validate() error {
	if c.MaxRequests <= 0 || c.Window <= 0 || c.BlockDuration < 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Record is the stored counter of one key.
type Record struct {
	Count         int
	WindowResetAt time.Time
	BlockedUntil  *time.Time
}

// Expired reports whether both the window and any block are over.
func (r Record) Expired(now time.Time) bool {
	if !now.After(r.WindowResetAt) {
		return false
	}
	return r.BlockedUntil == nil || !now.Before(*r.BlockedUntil)
}

// Result is the outcome of evaluating a key against its quota.
type Result struct {
	Allowed   bool
	Remaining int
	Limit     int
	ResetTime time.Time
	Blocked   bool
	Window    time.Duration
}

// RetryAfter is the wait before the next request can be admitted.
func (r Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed || !r.ResetTime.After(now) {
		return 0
	}
	return r.ResetTime.Sub(now)
}

// Store keeps one Record per key. Take must evaluate and persist in a
// single atomic step; Peek must not mutate.
type Store interface {
	Take(ctx context.Context, key string, cfg Config, now time.Time) (Result, error)
	Peek(ctx context.Context, key string, cfg Config, now time.Time) (Result, error)
	Sweep(ctx context.Context, now time.Time) (int, error)
}
