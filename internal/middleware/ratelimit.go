package middleware

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RateLimiter decides whether one more request under key is allowed. When it
// is not, retryAfter is how long the caller should wait.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

// slidingWindowScript trims the window, then admits the request if fewer than
// limit entries remain. It returns {allowed, retry_after_ms}.
var slidingWindowScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, 0, now - window)
local count = redis.call('ZCARD', key)
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	redis.call('PEXPIRE', key, window)
	return {1, 0}
end

local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
local retry = window
if oldest[2] then
	retry = tonumber(oldest[2]) + window - now
end
return {0, retry}
`)

// RedisRateLimiter is a sliding-window limiter shared by every server
// instance that talks to the same Redis.
type RedisRateLimiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter creates a limiter allowing limit requests per window.
func NewRedisRateLimiter(client *redis.Client, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{
		client: client,
		prefix: prefix,
		limit:  limit,
		window: window,
	}
}

func (rl *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := time.Now().UnixMilli()
	res, err := slidingWindowScript.Run(ctx, rl.client,
		[]string{rl.prefix + key},
		now, rl.window.Milliseconds(), rl.limit, strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script failed: %w", err)
	}
	if len(res) != 2 {
		return false, 0, fmt.Errorf("unexpected rate limit reply %v", res)
	}

	allowed, _ := res[0].(int64)
	retryMs, _ := res[1].(int64)
	return allowed == 1, time.Duration(retryMs) * time.Millisecond, nil
}

// MemoryRateLimiter is an in-process sliding window, used when Redis is not
// configured. Limits are per instance.
type MemoryRateLimiter struct {
	attempts map[string][]time.Time
	mutex    sync.Mutex
	limit    int
	window   time.Duration
	stop     chan struct{}
	once     sync.Once
}

// NewMemoryRateLimiter creates a new in-memory rate limiter
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	rl := &MemoryRateLimiter{
		attempts: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
		stop:     make(chan struct{}),
	}

	// Start cleanup goroutine
	go rl.cleanup()

	return rl
}

func (rl *MemoryRateLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	valid := pruneAttempts(rl.attempts[key], now.Add(-rl.window))

	if len(valid) >= rl.limit {
		rl.attempts[key] = valid
		return false, valid[0].Add(rl.window).Sub(now), nil
	}

	rl.attempts[key] = append(valid, now)
	return true, 0, nil
}

// Close stops the cleanup goroutine.
func (rl *MemoryRateLimiter) Close() {
	rl.once.Do(func() { close(rl.stop) })
}

// cleanup removes old entries periodically
func (rl *MemoryRateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stop:
			return
		case <-ticker.C:
		}

		rl.mutex.Lock()
		cutoff := time.Now().Add(-rl.window)
		for key, attempts := range rl.attempts {
			if valid := pruneAttempts(attempts, cutoff); len(valid) == 0 {
				delete(rl.attempts, key)
			} else {
				rl.attempts[key] = valid
			}
		}
		rl.mutex.Unlock()
	}
}

func pruneAttempts(attempts []time.Time, cutoff time.Time) []time.Time {
	valid := attempts[:0]
	for _, attempt := range attempts {
		if attempt.After(cutoff) {
			valid = append(valid, attempt)
		}
	}
	return valid
}

// RateLimit rejects requests over the limiter's budget with 429, keyed by
// scope and client IP. Limiter errors let the request through.
func RateLimit(limiter RateLimiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + getClientIP(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				writeJSONError(w, http.StatusTooManyRequests, "too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
