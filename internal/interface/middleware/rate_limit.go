package middleware

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/account-guard/pkg/response"
)

// ipFromCtx extracts the client IP from Gin context, falling back to "unknown"
func ipFromCtx(c *gin.Context) string {
	if ip := c.GetString(CtxRealIPKey); ip != "" {
		return ip
	}
	if ip := c.ClientIP(); ip != "" {
		return ip
	}
	return "unknown"
}

func normalizePath(c *gin.Context) string {
	if fp := c.FullPath(); fp != "" {
		return fp
	}
	return c.Request.URL.Path
}

// KeyFunc builds a rate-limit key from the request.
type KeyFunc func(c *gin.Context) string

// KeyByIP returns a key function that limits by client IP only
func KeyByIP() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:ip:" + ipFromCtx(c)
	}
}

// KeyByIPAndPath returns a key function that limits by client IP and request path
func KeyByIPAndPath() KeyFunc {
	return func(c *gin.Context) string {
		return "rl:path:" + normalizePath(c) + ":ip:" + ipFromCtx(c)
	}
}

// KeyByAccount limits signed-in callers per account, anonymous ones per IP.
func KeyByAccount() KeyFunc {
	return func(c *gin.Context) string {
		id, ok := AccountID(c)
		if !ok {
			return "rl:account:anon:ip:" + ipFromCtx(c)
		}
		return "rl:account:" + strconv.FormatInt(int64(id), 10)
	}
}

// incrWindow counts a hit and returns {count, ms left in window}.
// The first hit opens the window.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {n, ttl}
`)

var (
	limiterStats      = expvar.NewMap("rate_limit")
	limiterThrottled  = new(expvar.Int)
	limiterFailedOpen = new(expvar.Int)
)

func init() {
	limiterStats.Set("throttled", limiterThrottled)
	limiterStats.Set("failed_open", limiterFailedOpen)
}

// AllowFunc reports whether a request bypasses the limit.
type AllowFunc func(*gin.Context) bool

// RateLimit caps requests per key in a fixed window kept in Redis.
// It sets X-RateLimit-* headers, skips OPTIONS and lets everything
// through when Redis cannot answer.
func RateLimit(rdb *redis.Client, max int, window time.Duration, keyFn KeyFunc, allow AllowFunc) gin.HandlerFunc {
	if rdb == nil || max <= 0 || window <= 0 || keyFn == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		if allow != nil && allow(c) {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodOptions {
			c.Next()
			return
		}

		count, left, err := hit(c.Request.Context(), rdb, keyFn(c), window)
		if err != nil {
			limiterFailedOpen.Add(1)
			c.Next()
			return
		}
		resetSec := int((left + time.Second - 1) / time.Second)

		remaining := max - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", strconv.Itoa(resetSec))

		if count > max {
			limiterThrottled.Add(1)
			if resetSec > 0 {
				c.Header("Retry-After", strconv.Itoa(resetSec))
			}
			response.Error[any](c, http.StatusTooManyRequests, "rate limit exceeded", nil)
			return
		}
		c.Next()
	}
}

func hit(ctx context.Context, rdb *redis.Client, key string, window time.Duration) (int, time.Duration, error) {
	vals, err := incrWindow.Run(ctx, rdb, []string{key}, window.Milliseconds()).Int64Slice()
	if err != nil {
		return 0, 0, err
	}
	if len(vals) != 2 {
		return 0, 0, fmt.Errorf("rate limit script: %d values", len(vals))
	}
	left := time.Duration(vals[1]) * time.Millisecond
	if left < 0 {
		left = 0
	}
	return int(vals[0]), left, nil
}
