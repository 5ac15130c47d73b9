package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// KeyByUserOrIP buckets requests by the caller's user id (context value or
// X-User-ID header) and falls back to the client IP.
func KeyByUserOrIP() func(*gin.Context) string {
	return func(c *gin.Context) string {
		if u := requestUser(c); u != "" {
			return "user:" + u
		}
		return "ip:" + c.ClientIP()
	}
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a process-local token bucket per caller. Idle buckets are
// swept once per idle period. Replays flagged by IdempotencyValidator do not
// consume tokens: a client retrying a committed write must get its stored
// response back even when throttled.
type RateLimiter struct {
	limit rate.Limit
	burst int
	key   func(*gin.Context) string
	idle  time.Duration
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

// NewRateLimiter allows rps tokens per second with the given burst (minimum 1)
// per key.
func NewRateLimiter(rps float64, burst int, key func(*gin.Context) string) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	if key == nil {
		key = KeyByUserOrIP()
	}
	now := time.Now()
	return &RateLimiter{
		limit:     rate.Limit(rps),
		burst:     burst,
		key:       key,
		idle:      10 * time.Minute,
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: now,
	}
}

// limiter returns key's bucket, creating it on first use.
func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	now := rl.now()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastSweep) >= rl.idle {
		for k, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.idle {
				delete(rl.buckets, k)
			}
		}
		rl.lastSweep = now
	}

	b, ok := rl.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.buckets[key] = b
	}
	b.seen = now
	return b.lim
}

// size reports the number of live buckets.
func (rl *RateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator found a completed record
// for the request's key.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// retryAfter renders d as whole seconds, at least 1.
func retryAfter(d time.Duration) string {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		s = 1
	}
	return strconv.Itoa(s)
}

// Handler rejects callers over their budget with 429 and a Retry-After equal
// to the time until the next token.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || strings.EqualFold(c.Request.Method, http.MethodOptions) {
			c.Next()
			return
		}

		res := rl.limiter(rl.key(c)).ReserveN(rl.now(), 1)
		if res.OK() {
			delay := res.DelayFrom(rl.now())
			if delay == 0 {
				c.Next()
				return
			}
			res.Cancel()
			c.Header("Retry-After", retryAfter(delay))
		}

		SetOutcome(c, "too_many_requests")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": c.Writer.Header().Get(requestIDHeader),
			"code":       "too_many_requests",
			"message":    "rate limit exceeded",
		})
	}
}
