package middleware

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/stratboard/strategy-api/internal/config"
	"github.com/stratboard/strategy-api/internal/httpx"
)

// RateLimit builds a sliding-window limiter keyed by client IP.  The window
// lives in a Redis sorted set so multiple processes share one budget; a
// single Lua script keeps trim/count/record atomic.  Redis errors fail
// open: a broken limiter must not take the API down with it.
func RateLimit(cfg config.RateLimitConfig, rule config.RateLimitRule, class string, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error { return next(c) }
		}
	}

	limiterScript := redis.NewScript(`
        local key = KEYS[1]
        local now_ms = tonumber(ARGV[1])
        local window_ms = tonumber(ARGV[2])
        local limit = tonumber(ARGV[3])
        local member = ARGV[4]

        redis.call('ZREMRANGEBYSCORE', key, 0, now_ms - window_ms)
        local count = redis.call('ZCARD', key)

        if count < limit then
            redis.call('ZADD', key, now_ms, member)
            redis.call('PEXPIRE', key, window_ms)
            return { 1, limit - count - 1, 0 }
        end

        local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
        local retry_after_ms = 0
        if oldest[2] then
            retry_after_ms = math.max(0, (tonumber(oldest[2]) + window_ms) - now_ms)
        end
        return { 0, 0, retry_after_ms }
    `)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ip := c.RealIP()
			if ip == "" {
				ip = "unknown"
			}
			key := strings.Join([]string{cfg.Prefix, class, "ip", ip}, ":")
			now := time.Now()
			member := strconv.FormatInt(now.UnixNano(), 10) + "-" + strconv.Itoa(rand.Intn(1<<20))

			ctx := c.Request().Context()
			vals, err := limiterScript.Run(ctx, rdb, []string{key},
				now.UnixMilli(), rule.Window.Milliseconds(), rule.Limit, member).Result()
			if err != nil {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] redis error for key=%s: %v", key, err)
				}
				return next(c)
			}

			allowed := false
			remaining := int64(0)
			retryMs := int64(0)
			if arr, ok := vals.([]interface{}); ok && len(arr) == 3 {
				allowed = asInt64(arr[0]) == 1
				remaining = asInt64(arr[1])
				retryMs = asInt64(arr[2])
			} else {
				if cfg.Debug {
					c.Logger().Warnf("[ratelimit] unexpected script result for key=%s: %#v", key, vals)
				}
				return next(c)
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Response().Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if !allowed {
				secs := int(math.Ceil(float64(retryMs) / 1000.0))
				if secs < 0 {
					secs = 0
				}
				c.Response().Header().Set("Retry-After", strconv.Itoa(secs))
				if cfg.Debug {
					c.Logger().Infof("[ratelimit] block key=%s retry=%dms", key, retryMs)
				}
				return httpx.Fail(c, http.StatusTooManyRequests, httpx.CodeRateLimited, "rate limit exceeded")
			}
			return next(c)
		}
	}
}

func asInt64(v interface{}) int64 {
	switch t := v.(type) {
	case int64:
		return t
	case int32:
		return int64(t)
	case int:
		return int64(t)
	case float64:
		return int64(t)
	case float32:
		return int64(t)
	case string:
		if n, err := strconv.ParseInt(t, 10, 64); err == nil {
			return n
		}
	}
	return 0
}
