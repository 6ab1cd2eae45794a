package ratelimit

import (
	"errors"

	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
)

var (
	ErrRateLimited  = errors.New("rate_limited")
	ErrUnknownClass = errors.New("unknown_rate_limit_class")
)

// LimitedError carries the denial so callers can report the quota.
type LimitedError struct {
	Class  string
	Result domain.Result
}

func (e *LimitedError) Error() string {
	if e.Result.Blocked {
		return "rate_limited: blocked"
	}
	return "rate_limited"
}

func (e *LimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
