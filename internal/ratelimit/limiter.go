package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/smallbiznis/creditgate/internal/clock"
	"github.com/smallbiznis/creditgate/internal/config"
	obsmetrics "github.com/smallbiznis/creditgate/internal/observability/metrics"
	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const defaultSweepInterval = time.Minute

type Params struct {
	fx.In

	Cfg      config.Config
	Policies *config.RateLimitPolicyHolder
	Store    domain.Store
	Clock    clock.Clock
	Log      *zap.Logger
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

// Limiter applies fixed-window quotas with escalating blocks.
type Limiter struct {
	enabled       bool
	store         domain.Store
	policies      *config.RateLimitPolicyHolder
	clock         clock.Clock
	log           *zap.Logger
	metrics       *obsmetrics.Metrics
	sweepInterval time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(p Params) *Limiter {
	interval := p.Cfg.RateLimit.SweepInterval
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	log := p.Log
	if log == nil {
		log = zap.NewNop()
	}
	clk := p.Clock
	if clk == nil {
		clk = clock.New()
	}
	return &Limiter{
		enabled:       p.Cfg.RateLimit.Enabled,
		store:         p.Store,
		policies:      p.Policies,
		clock:         clk,
		log:           log.Named("ratelimit"),
		metrics:       p.Metrics,
		sweepInterval: interval,
	}
}

// Check counts one request for key and reports the decision.
func (l *Limiter) Check(ctx context.Context, key string, cfg domain.Config) (domain.Result, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Result{}, domain.ErrEmptyKey
	}
	if err := cfg.Validate(); err != nil {
		return domain.Result{}, err
	}
	return l.store.Take(ctx, key, cfg, l.clock.Now())
}

// Info evaluates key without counting a request.
func (l *Limiter) Info(ctx context.Context, key string, cfg domain.Config) (domain.Result, error) {
	if strings.TrimSpace(key) == "" {
		return domain.Result{}, domain.ErrEmptyKey
	}
	if err := cfg.Validate(); err != nil {
		return domain.Result{}, err
	}
	return l.store.Peek(ctx, key, cfg, l.clock.Now())
}

// Policy resolves the quota of a named class.
func (l *Limiter) Policy(class string) (domain.Config, error) {
	policy, ok := l.policies.Get(class)
	if !ok {
		return domain.Config{}, fmt.Errorf("%w: %s", ErrUnknownClass, class)
	}
	return domain.Config{
		MaxRequests:   policy.MaxRequests,
		Window:        policy.Window,
		BlockDuration: policy.BlockDuration,
	}, nil
}

// Allow counts one request of identity against the quota of class inside
// namespace. A denial is returned as *LimitedError alongside the result.
func (l *Limiter) Allow(ctx context.Context, class, namespace, identity string) (domain.Result, error) {
	cfg, err := l.Policy(class)
	if err != nil {
		return domain.Result{}, err
	}
	if !l.enabled {
		return domain.Result{
			Allowed:   true,
			Remaining: cfg.MaxRequests,
			Limit:     cfg.MaxRequests,
			ResetTime: l.clock.Now().Add(cfg.Window),
			Window:    cfg.Window,
		}, nil
	}

	res, err := l.Check(ctx, MakeKey(namespace, identity), cfg)
	if err != nil {
		return domain.Result{}, err
	}
	if res.Allowed {
		l.metrics.RecordRateLimitAllowed(ctx, class)
		return res, nil
	}

	reason := "window"
	if res.Blocked {
		reason = "blocked"
	}
	l.metrics.RecordRateLimitDenied(ctx, class, reason)
	return res, &LimitedError{Class: class, Result: res}
}

// Remaining reports the quota left for identity without counting.
func (l *Limiter) Remaining(ctx context.Context, class, namespace, identity string) (domain.Result, error) {
	cfg, err := l.Policy(class)
	if err != nil {
		return domain.Result{}, err
	}
	if !l.enabled {
		return domain.Evaluate(nil, cfg, l.clock.Now()), nil
	}
	return l.Info(ctx, MakeKey(namespace, identity), cfg)
}

// Sweep evicts records whose window and block have both expired.
func (l *Limiter) Sweep(ctx context.Context) (int, error) {
	return l.store.Sweep(ctx, l.clock.Now())
}

// Start runs Sweep on its own ticker until Stop.
func (l *Limiter) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	l.cancel = cancel
	l.done = done

	ticker := time.NewTicker(l.sweepInterval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				removed, err := l.Sweep(ctx)
				if err != nil && !errors.Is(err, context.Canceled) {
					l.log.Warn("rate limit sweep failed", zap.Error(err))
					continue
				}
				if removed > 0 {
					l.log.Debug("rate limit records evicted", zap.Int("removed", removed))
				}
			}
		}
	}()
}

func (l *Limiter) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}
