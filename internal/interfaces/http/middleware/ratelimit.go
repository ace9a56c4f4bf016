package middleware

import (
	"strconv"
	"time"

	"github.com/adamj-ops/everyday-properties/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
)

// RateLimiter is a fixed-window request counter per key. A window starts at
// a key's first request.
type RateLimiter struct {
	counters *gocache.Cache
	limit    int
	window   time.Duration
}

// NewRateLimiter allows limit requests per key and window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		counters: gocache.New(window, 2*window),
		limit:    limit,
		window:   window,
	}
}

// Allow counts a request for key and reports whether it is within the limit,
// along with the requests left in the window.
func (rl *RateLimiter) Allow(key string) (int, bool) {
	if err := rl.counters.Add(key, 1, rl.window); err == nil {
		return rl.limit - 1, true
	}
	n, err := rl.counters.IncrementInt(key, 1)
	if err != nil {
		// The window expired between Add and IncrementInt.
		rl.counters.Set(key, 1, rl.window)
		return rl.limit - 1, true
	}
	if n > rl.limit {
		return 0, false
	}
	return rl.limit - n, true
}

// Limit returns the requests allowed per window.
func (rl *RateLimiter) Limit() int {
	return rl.limit
}

// RateLimit limits requests per client IP. A nil limiter disables limiting.
func RateLimit(limiter *RateLimiter) gin.HandlerFunc {
	return RateLimitByKey(limiter, func(c *gin.Context) string { return c.ClientIP() })
}

// RateLimitByKey returns a rate limiting middleware with custom key extractor
func RateLimitByKey(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		remaining, ok := limiter.Allow(keyFunc(c))
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Limit()))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			abortWithCode(c, dto.ErrCodeRateLimited, "Too many requests. Please try again later.")
			return
		}
		c.Next()
	}
}
