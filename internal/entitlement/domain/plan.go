package domain

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// PlanType is an ordered plan tier: PlanFree < PlanPro < PlanPremium.
type PlanType int

const (
	PlanFree PlanType = iota
	PlanPro
	PlanPremium
)

const Unlimited = -1

const (
	FeatureCustomMusic      = "custom_music"
	FeaturePremiumTemplates = "premium_templates"
	FeatureRemoveWatermark  = "remove_watermark"
	FeatureAnalytics        = "analytics"
	FeatureCustomDomain     = "custom_domain"
)

func ParsePlanType(s string) (PlanType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "free":
		return PlanFree, nil
	case "pro":
		return PlanPro, nil
	case "premium":
		return PlanPremium, nil
	default:
		return PlanFree, fmt.Errorf("%w: %q", ErrInvalidPlan, s)
	}
}

func (p PlanType) String() string {
	switch p {
	case PlanPro:
		return "pro"
	case PlanPremium:
		return "premium"
	default:
		return "free"
	}
}

func (p PlanType) Valid() bool {
	return p >= PlanFree && p <= PlanPremium
}

// AtLeast reports whether p ranks at or above required.
func (p PlanType) AtLeast(required PlanType) bool {
	return p >= required
}

func (p PlanType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *PlanType) UnmarshalText(text []byte) error {
	parsed, err := ParsePlanType(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Value stores the plan as text.
func (p PlanType) Value() (driver.Value, error) {
	return p.String(), nil
}

func (p *PlanType) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return p.UnmarshalText([]byte(v))
	case []byte:
		return p.UnmarshalText(v)
	case nil:
		*p = PlanFree
		return nil
	default:
		return fmt.Errorf("%w: unsupported type %T", ErrInvalidPlan, src)
	}
}

// PlanLimits is the per-period quota and feature set of a plan.
type PlanLimits struct {
	Plan               PlanType        `json:"plan"`
	MaxWishesPerPeriod int             `json:"maxWishesPerPeriod"`
	Features           map[string]bool `json:"features"`
}

func (l PlanLimits) Unlimited() bool {
	return l.MaxWishesPerPeriod == Unlimited
}

func LimitsFor(plan PlanType) PlanLimits {
	switch plan {
	case PlanPremium:
		return PlanLimits{
			Plan:               PlanPremium,
			MaxWishesPerPeriod: Unlimited,
			Features: map[string]bool{
				FeatureCustomMusic:      true,
				FeaturePremiumTemplates: true,
				FeatureRemoveWatermark:  true,
				FeatureAnalytics:        true,
				FeatureCustomDomain:     true,
			},
		}
	case PlanPro:
		return PlanLimits{
			Plan:               PlanPro,
			MaxWishesPerPeriod: 50,
			Features: map[string]bool{
				FeatureCustomMusic:      true,
				FeaturePremiumTemplates: true,
				FeatureRemoveWatermark:  true,
			},
		}
	default:
		return PlanLimits{
			Plan:               PlanFree,
			MaxWishesPerPeriod: 3,
			Features:           map[string]bool{},
		}
	}
}

// MinimumPlanFor returns the lowest plan that includes feature.
func MinimumPlanFor(feature string) (PlanType, bool) {
	for _, plan := range []PlanType{PlanFree, PlanPro, PlanPremium} {
		if LimitsFor(plan).Features[feature] {
			return plan, true
		}
	}
	return PlanFree, false
}
