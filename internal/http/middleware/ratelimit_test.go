package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestKeyByUserOrIP(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	c.Request.RemoteAddr = "203.0.113.9:12345"

	key := KeyByUserOrIP()
	if got := key(c); got != "ip:203.0.113.9" {
		t.Fatalf("anonymous key = %q", got)
	}
	c.Request.Header.Set("X-User-ID", "u-header")
	if got := key(c); got != "user:u-header" {
		t.Fatalf("header key = %q", got)
	}
	c.Set("userID", "u-ctx")
	if got := key(c); got != "user:u-ctx" {
		t.Fatalf("context key = %q", got)
	}
}

func TestRateLimiter_SweepsIdleBuckets(t *testing.T) {
	rl := NewRateLimiter(1, 0, nil)
	if rl.burst != 1 {
		t.Fatalf("burst = %d; want 1", rl.burst)
	}
	clock := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	rl.lastSweep = clock

	a := rl.limiter("user:a")
	if rl.limiter("user:a") != a {
		t.Fatalf("bucket not reused")
	}
	rl.limiter("user:b")

	clock = clock.Add(rl.idle / 2)
	rl.limiter("user:b")
	clock = clock.Add(rl.idle / 2)
	rl.limiter("user:c") // sweep: a idle a full period, b only half

	if n := rl.size(); n != 2 {
		t.Fatalf("buckets after sweep = %d; want 2", n)
	}
	if rl.limiter("user:a") == a {
		t.Fatalf("idle bucket survived the sweep")
	}
}

func TestRateLimiter_Handler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0.5, 1, KeyByUserOrIP())

	r := gin.New()
	r.Use(RequestID())
	r.Use(func(c *gin.Context) {
		if c.Query("replay") == "1" {
			c.Set(ctxKeyRateBypass, true)
		}
		c.Next()
	})
	r.Use(rl.Handler())
	r.POST("/sets", func(c *gin.Context) { c.Status(http.StatusCreated) })

	do := func(target, user string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, target, nil)
		req.Header.Set("X-User-ID", user)
		r.ServeHTTP(w, req)
		return w
	}

	if w := do("/sets", "u1"); w.Code != http.StatusCreated {
		t.Fatalf("first = %d", w.Code)
	}
	w := do("/sets", "u1")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second = %d; want 429", w.Code)
	}
	if ra := w.Header().Get("Retry-After"); ra != "2" {
		t.Fatalf("Retry-After = %q; want 2", ra)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "too_many_requests" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}

	// Replays and other callers are unaffected.
	if w := do("/sets?replay=1", "u1"); w.Code != http.StatusCreated {
		t.Fatalf("replay = %d", w.Code)
	}
	if w := do("/sets", "u2"); w.Code != http.StatusCreated {
		t.Fatalf("other user = %d", w.Code)
	}
}

func TestRateLimiter_ZeroRateNeverRefills(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(0, 1, KeyByUserOrIP())
	r := gin.New()
	r.Use(rl.Handler())
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
		codes = append(codes, w.Code)
		if i == 1 && w.Header().Get("Retry-After") != "" {
			t.Fatalf("Retry-After set although no token will come")
		}
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Fatalf("codes = %v", codes)
	}
}

func TestRetryAfter(t *testing.T) {
	for d, want := range map[time.Duration]string{
		10 * time.Millisecond:   "1",
		time.Second:             "1",
		1500 * time.Millisecond: "2",
	} {
		if got := retryAfter(d); got != want {
			t.Fatalf("retryAfter(%v) = %q; want %q", d, got, want)
		}
	}
}
