package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jrfdy6/aiclone-sub001/internal/domain"
	"github.com/jrfdy6/aiclone-sub001/internal/pkg/logger"
)

// ProviderLimit defines per-second/minute/day call budgets for a provider.
type ProviderLimit struct {
	PerSecond int
	PerMinute int
	PerDay    int
}

// DefaultProviderLimits are conservative free-tier budgets. The daily
// google budget mirrors the Custom Search free quota.
var DefaultProviderLimits = map[string]ProviderLimit{
	"google": {PerSecond: 2, PerMinute: 30, PerDay: 100},
	"scrape": {PerSecond: 2, PerMinute: 20, PerDay: 500},
	"llm":    {PerSecond: 3, PerMinute: 60, PerDay: 2000},
}

// Lua script for an atomic multi-window check-and-increment. GET → check →
// INCR from Go would race across processes; the script checks every window
// before touching any counter.
const checkAndIncrLuaScript = `
local secondKey = KEYS[1]
local minuteKey = KEYS[2]
local dailyKey = KEYS[3]
local secondLimit = tonumber(ARGV[1])
local minuteLimit = tonumber(ARGV[2])
local dailyLimit = tonumber(ARGV[3])

local secCurrent = tonumber(redis.call("GET", secondKey) or "0")
local minCurrent = tonumber(redis.call("GET", minuteKey) or "0")
local dayCurrent = tonumber(redis.call("GET", dailyKey) or "0")

if secCurrent + 1 > secondLimit then
    return {0, 1}
end
if minCurrent + 1 > minuteLimit then
    return {0, 2}
end
if dayCurrent + 1 > dailyLimit then
    return {0, 3}
end

local newSec = redis.call("INCR", secondKey)
if newSec == 1 then
    redis.call("EXPIRE", secondKey, 2)
end
local newMin = redis.call("INCR", minuteKey)
if newMin == 1 then
    redis.call("EXPIRE", minuteKey, 120)
end
local newDay = redis.call("INCR", dailyKey)
if newDay == 1 then
    redis.call("EXPIRE", dailyKey, 90000)
end

return {1, 0}
`

// RateLimiter gates outbound provider calls. With Redis configured the
// windows are shared across processes via an atomic Lua script; without it
// a per-process token bucket approximates the same budgets.
type RateLimiter struct {
	redis  *redis.Client
	script *redis.Script
	limits map[string]ProviderLimit
	clock  Clock

	mu      sync.Mutex
	buckets map[string]*tokenBucket
}

// NewRateLimiter builds a limiter. client may be nil (in-process fallback);
// limits may be nil (defaults).
func NewRateLimiter(client *redis.Client, limits map[string]ProviderLimit, clock Clock) *RateLimiter {
	if limits == nil {
		limits = DefaultProviderLimits
	}
	if clock == nil {
		clock = RealClock{}
	}
	rl := &RateLimiter{
		redis:   client,
		limits:  limits,
		clock:   clock,
		buckets: make(map[string]*tokenBucket),
	}
	if client != nil {
		rl.script = redis.NewScript(checkAndIncrLuaScript)
	}
	return rl
}

// NewRateLimiterFromURL connects to Redis and builds a shared limiter.
func NewRateLimiterFromURL(redisURL string, limits map[string]ProviderLimit) (*RateLimiter, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, domain.E(domain.KindConfig, "redis_bad_url", "invalid redis URL", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, domain.E(domain.KindUnavailable, "redis_unreachable", "redis connection failed", err)
	}

	logger.Info("rate limiter connected to redis")
	return NewRateLimiter(client, limits, nil), nil
}

// Wait blocks until a call slot for provider is available or the context
// ends. A spent daily budget returns a quota error immediately so callers
// degrade instead of stalling the whole pipeline.
func (rl *RateLimiter) Wait(ctx context.Context, provider string) error {
	for {
		allowed, wait, err := rl.check(ctx, provider)
		if err != nil {
			return err
		}
		if allowed {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return domain.E(domain.KindCancelled, "ratelimit_wait_cancelled", "cancelled waiting for rate limit", ctx.Err())
		}
	}
}

func (rl *RateLimiter) check(ctx context.Context, provider string) (allowed bool, wait time.Duration, err error) {
	limit, ok := rl.limits[provider]
	if !ok {
		return true, 0, nil
	}
	if rl.redis == nil {
		return rl.checkLocal(provider, limit)
	}

	now := rl.clock.Now()
	keys := []string{
		fmt.Sprintf("ratelimit:%s:sec:%d", provider, now.Unix()),
		fmt.Sprintf("ratelimit:%s:min:%d", provider, now.Unix()/60),
		fmt.Sprintf("ratelimit:%s:day:%s", provider, now.Format("2006-01-02")),
	}
	result, err := rl.script.Run(ctx, rl.redis, keys,
		limit.PerSecond, limit.PerMinute, limit.PerDay).Slice()
	if err != nil {
		// Redis down mid-run: degrade to the local bucket rather than
		// failing every provider call.
		logger.Warn("rate limiter falling back to local bucket", "error", err.Error())
		return rl.checkLocal(provider, limit)
	}

	if result[0].(int64) == 1 {
		return true, 0, nil
	}
	switch result[1].(int64) {
	case 1:
		return false, time.Second, nil
	case 2:
		return false, time.Duration(60-now.Second()) * time.Second, nil
	default:
		return false, 0, domain.E(domain.KindQuota, provider+"_daily_limit",
			"daily call budget exhausted for "+provider, nil)
	}
}

// tokenBucket is the single-process fallback: capacity = per-minute limit,
// refill rate = per-minute limit per minute, plus a hard daily counter.
type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
	dayCount   int
	dayStamp   string
}

func (rl *RateLimiter) checkLocal(provider string, limit ProviderLimit) (bool, time.Duration, error) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	b, ok := rl.buckets[provider]
	if !ok {
		b = &tokenBucket{tokens: float64(limit.PerMinute), lastRefill: now, dayStamp: now.Format("2006-01-02")}
		rl.buckets[provider] = b
	}

	if stamp := now.Format("2006-01-02"); stamp != b.dayStamp {
		b.dayStamp = stamp
		b.dayCount = 0
	}
	if b.dayCount >= limit.PerDay {
		return false, 0, domain.E(domain.KindQuota, provider+"_daily_limit",
			"daily call budget exhausted for "+provider, nil)
	}

	refillPerSec := float64(limit.PerMinute) / 60.0
	b.tokens += now.Sub(b.lastRefill).Seconds() * refillPerSec
	if b.tokens > float64(limit.PerMinute) {
		b.tokens = float64(limit.PerMinute)
	}
	b.lastRefill = now

	if b.tokens < 1 {
		wait := time.Duration((1-b.tokens)/refillPerSec*float64(time.Second)) + 10*time.Millisecond
		return false, wait, nil
	}
	b.tokens--
	b.dayCount++
	return true, 0, nil
}
