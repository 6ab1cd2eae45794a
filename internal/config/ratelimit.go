package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Rate limit class names shared by the gatekeeper routes.
const (
	RateLimitClassPremium = "premium"
	RateLimitClassAuth    = "auth"
	RateLimitClassGeneral = "general"
	RateLimitClassPublic  = "public"
)

// RateLimitPolicy is the quota of one named rate limit class.
// BlockDuration of zero denies without blocking.
type RateLimitPolicy struct {
	MaxRequests   int           `mapstructure:"max_requests" yaml:"max_requests"`
	Window        time.Duration `mapstructure:"window" yaml:"window"`
	BlockDuration time.Duration `mapstructure:"block_duration" yaml:"block_duration"`
}

func DefaultRateLimitPolicies() map[string]RateLimitPolicy {
	return map[string]RateLimitPolicy{
		RateLimitClassPremium: {MaxRequests: 100, Window: 15 * time.Minute, BlockDuration: 30 * time.Minute},
		RateLimitClassAuth:    {MaxRequests: 50, Window: 10 * time.Minute, BlockDuration: 15 * time.Minute},
		RateLimitClassGeneral: {MaxRequests: 200, Window: 15 * time.Minute, BlockDuration: 5 * time.Minute},
		RateLimitClassPublic:  {MaxRequests: 500, Window: 15 * time.Minute, BlockDuration: 0},
	}
}

type RateLimitPolicyHolder struct {
	current atomic.Value // holds map[string]RateLimitPolicy
}

// NewStaticRateLimitPolicies returns a holder that never reloads.
func NewStaticRateLimitPolicies(policies map[string]RateLimitPolicy) *RateLimitPolicyHolder {
	holder := &RateLimitPolicyHolder{}
	holder.current.Store(clonePolicies(policies))
	return holder
}

// NewRateLimitPolicyHolder loads class overrides from ratelimit.yml on top of
// the defaults and keeps watching the file for changes.
func NewRateLimitPolicyHolder(cfg Config, log *zap.Logger) (*RateLimitPolicyHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("config.ratelimit")

	v := viper.New()
	if cfg.RateLimit.PolicyFile != "" {
		v.SetConfigFile(cfg.RateLimit.PolicyFile)
	} else {
		v.SetConfigName("ratelimit")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/creditgate")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("CREDITGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	holder := &RateLimitPolicyHolder{}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfg.RateLimit.PolicyFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read rate limit policy file: %w", err)
		}
		// no file: defaults only
		holder.current.Store(DefaultRateLimitPolicies())
		return holder, nil
	}

	policies, err := decodePolicies(v)
	if err != nil {
		return nil, err
	}
	holder.current.Store(policies)

	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		updated, err := decodePolicies(v)
		if err != nil {
			log.Warn("rate limit policy reload ignored", zap.String("file", e.Name), zap.Error(err))
			return
		}
		holder.current.Store(updated)
		log.Info("rate limit policies reloaded", zap.String("file", e.Name), zap.Strings("classes", policyNames(updated)))
	})

	return holder, nil
}

// Get returns the policy of a class.
func (h *RateLimitPolicyHolder) Get(class string) (RateLimitPolicy, bool) {
	policies := h.current.Load().(map[string]RateLimitPolicy)
	policy, ok := policies[strings.ToLower(strings.TrimSpace(class))]
	return policy, ok
}

// All returns a copy of every configured class.
func (h *RateLimitPolicyHolder) All() map[string]RateLimitPolicy {
	return clonePolicies(h.current.Load().(map[string]RateLimitPolicy))
}

func decodePolicies(v *viper.Viper) (map[string]RateLimitPolicy, error) {
	var overrides map[string]RateLimitPolicy
	if err := v.UnmarshalKey("ratelimit.classes", &overrides); err != nil {
		return nil, err
	}

	merged := DefaultRateLimitPolicies()
	for name, policy := range overrides {
		name = strings.ToLower(strings.TrimSpace(name))
		if err := ValidateRateLimitPolicy(policy); err != nil {
			return nil, fmt.Errorf("ratelimit.classes.%s: %w", name, err)
		}
		merged[name] = policy
	}
	return merged, nil
}

func ValidateRateLimitPolicy(policy RateLimitPolicy) error {
	if policy.MaxRequests <= 0 {
		return errors.New("max_requests must be positive")
	}
	if policy.Window <= 0 {
		return errors.New("window must be positive")
	}
	if policy.BlockDuration < 0 {
		return errors.New("block_duration cannot be negative")
	}
	return nil
}

func clonePolicies(in map[string]RateLimitPolicy) map[string]RateLimitPolicy {
	out := make(map[string]RateLimitPolicy, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func policyNames(policies map[string]RateLimitPolicy) []string {
	names := make([]string, 0, len(policies))
	for name := range policies {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
