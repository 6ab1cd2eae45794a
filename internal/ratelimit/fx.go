package ratelimit

import (
	"context"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/config"
	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
	"github.com/smallbiznis/creditgate/internal/ratelimit/memory"
	"github.com/smallbiznis/creditgate/internal/ratelimit/redisstore"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("rate.limit",
	fx.Provide(NewStore),
	fx.Provide(New),
	fx.Invoke(registerSweep),
)

// NewStore selects the record store from RATE_LIMIT_BACKEND.
func NewStore(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) (domain.Store, error) {
	limitCfg := cfg.RateLimit
	switch limitCfg.Backend {
	case "", config.RateLimitBackendMemory:
		return memory.New(), nil
	case config.RateLimitBackendRedis:
		addr := strings.TrimSpace(limitCfg.RedisAddr)
		if addr == "" {
			return nil, fmt.Errorf("rate limit redis addr is required for backend %q", limitCfg.Backend)
		}
		client := redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: strings.TrimSpace(limitCfg.RedisPassword),
			DB:       limitCfg.RedisDB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				return client.Ping(ctx).Err()
			},
			OnStop: func(ctx context.Context) error {
				return client.Close()
			},
		})
		log.Info("rate limit store uses redis", zap.String("addr", addr))
		return redisstore.New(client), nil
	default:
		return nil, fmt.Errorf("unsupported rate limit backend %q", limitCfg.Backend)
	}
}

func registerSweep(lc fx.Lifecycle, l *Limiter) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			l.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			l.Stop()
			return nil
		},
	})
}
