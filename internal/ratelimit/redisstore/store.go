package redisstore

import (
	"context"
	"errors"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/creditgate/internal/ratelimit/domain"
)

const fixedWindowScript = `
local max = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local block = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local data = redis.call("HMGET", KEYS[1], "count", "reset_at", "blocked_until")
local count = tonumber(data[1])
local resetAt = tonumber(data[2])
local blockedUntil = tonumber(data[3]) or 0

local allowed = 0
local blocked = 0
local reset = 0

if count == nil then
  count = 1
  resetAt = now + window
  blockedUntil = 0
  allowed = 1
  reset = resetAt
elseif blockedUntil > 0 and now < blockedUntil then
  return {0, 1, count, blockedUntil}
elseif blockedUntil > 0 or now > resetAt then
  count = 1
  resetAt = now + window
  blockedUntil = 0
  allowed = 1
  reset = resetAt
elseif count < max then
  count = count + 1
  allowed = 1
  reset = resetAt
else
  reset = resetAt
  if block > 0 then
    blockedUntil = now + block
    blocked = 1
    reset = blockedUntil
  end
end

redis.call("HSET", KEYS[1], "count", count, "reset_at", resetAt, "blocked_until", blockedUntil)

local expireAt = resetAt
if blockedUntil > expireAt then
  expireAt = blockedUntil
end
local ttl = expireAt - now + 1
if ttl < 1 then
  ttl = 1
end
redis.call("PEXPIRE", KEYS[1], ttl)

-- allowed, blocked, count, reset (unix ms)
return {allowed, blocked, count, reset}
`

// Store evaluates the fixed window inside redis so every replica shares one
// counter per key. Records expire through PEXPIRE.
type Store struct {
	client redis.UniversalClient
	script *redis.Script
}

func New(client redis.UniversalClient) *Store {
	return &Store{
		client: client,
		script: redis.NewScript(fixedWindowScript),
	}
}

func (s *Store) Take(ctx context.Context, key string, cfg domain.Config, now time.Time) (domain.Result, error) {
	if s == nil || s.client == nil {
		return domain.Result{}, errors.New("rate limit store not configured")
	}

	res, err := s.script.Run(
		ctx,
		s.client,
		[]string{key},
		cfg.MaxRequests,
		cfg.Window.Milliseconds(),
		cfg.BlockDuration.Milliseconds(),
		now.UnixMilli(),
	).Int64Slice()
	if err != nil {
		return domain.Result{}, err
	}
	if len(res) < 4 {
		return domain.Result{}, errors.New("invalid rate limit script response")
	}

	out := domain.Result{
		Allowed:   res[0] == 1,
		Blocked:   res[1] == 1,
		Limit:     cfg.MaxRequests,
		ResetTime: time.UnixMilli(res[3]).UTC(),
		Window:    cfg.Window,
	}
	if out.Allowed {
		out.Remaining = cfg.MaxRequests - int(res[2])
	}
	return out, nil
}

func (s *Store) Peek(ctx context.Context, key string, cfg domain.Config, now time.Time) (domain.Result, error) {
	if s == nil || s.client == nil {
		return domain.Result{}, errors.New("rate limit store not configured")
	}

	values, err := s.client.HMGet(ctx, key, "count", "reset_at", "blocked_until").Result()
	if err != nil {
		return domain.Result{}, err
	}
	rec, ok := decodeRecord(values)
	if !ok {
		return domain.Evaluate(nil, cfg, now), nil
	}
	return domain.Evaluate(&rec, cfg, now), nil
}

// Sweep is a no-op: redis evicts records on their own TTL.
func (s *Store) Sweep(ctx context.Context, now time.Time) (int, error) {
	return 0, nil
}

func decodeRecord(values []interface{}) (domain.Record, bool) {
	if len(values) < 3 {
		return domain.Record{}, false
	}
	count, ok := parseInt(values[0])
	if !ok {
		return domain.Record{}, false
	}
	resetAt, ok := parseInt(values[1])
	if !ok {
		return domain.Record{}, false
	}

	rec := domain.Record{
		Count:         int(count),
		WindowResetAt: time.UnixMilli(resetAt).UTC(),
	}
	if blockedUntil, ok := parseInt(values[2]); ok && blockedUntil > 0 {
		until := time.UnixMilli(blockedUntil).UTC()
		rec.BlockedUntil = &until
	}
	return rec, true
}

func parseInt(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case int64:
		return val, true
	case string:
		parsed, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

var _ domain.Store = (*Store)(nil)
