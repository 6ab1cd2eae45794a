package domain

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/creditgate/pkg/credits"
)

var (
	ErrInvalidUserID       = errors.New("invalid_user_id")
	ErrInvalidAmount       = errors.New("invalid_amount")
	ErrInvalidPlan         = errors.New("invalid_plan")
	ErrUnknownFeature      = errors.New("unknown_feature")
	ErrUserNotFound        = errors.New("user_not_found")
	ErrInsufficientCredits = errors.New("insufficient_credits")
	ErrWishLimitReached    = errors.New("wish_limit_reached")
)

// InsufficientCreditsError reports the shortfall of a rejected debit.
type InsufficientCreditsError struct {
	Required  credits.Amount
	Available credits.Amount
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("insufficient_credits: required %s, available %s", e.Required, e.Available)
}

func (e *InsufficientCreditsError) Unwrap() error {
	return ErrInsufficientCredits
}
