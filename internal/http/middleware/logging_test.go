package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// lastLine decodes the last JSON log line in buf.
func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var m map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &m); err != nil {
		t.Fatalf("decode log line %q: %v", lines[len(lines)-1], err)
	}
	return m
}

func TestRequestID_GenerateAndPropagate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/rid", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Fatalf("requestID not set in context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/rid", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated %s", requestIDHeader)
	}

	w = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/rid", nil)
	req.Header.Set("x-request-id", " abc-123 ")
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got != "abc-123" {
		t.Fatalf("propagated id = %q", got)
	}
}

func TestAccessLog_ScrubsAndMasks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{MaskHeaders: []string{"X-Api-Key"}}))
	r.GET("/progression/:exerciseId", func(c *gin.Context) { c.Status(http.StatusOK) })

	q := "owner=a.b+tag@example.com&ref=123e4567-e89b-12d3-a456-426614174000&phone=212-555-1212"
	req := httptest.NewRequest(http.MethodGet, "/progression/123e4567-e89b-12d3-a456-426614174000?"+q, nil)
	req.Header.Set("Authorization", "Bearer secret")
	req.Header.Set("X-Api-Key", "shhh")
	req.Header.Set(HeaderIdempotencyKey, "k-secret")
	req.Header.Set("X-Note", "mail a@b.com")
	req.Header.Set("X-User-ID", "u1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, leaked := range []string{"Bearer secret", "shhh", "k-secret", "a@b.com", "example.com", "212-555-1212", "123e4567-e89b"} {
		if strings.Contains(out, leaked) {
			t.Fatalf("log leaked %q: %s", leaked, out)
		}
	}
	m := lastLine(t, buf)
	if m["level"] != "info" || m["route"] != "/progression/:exerciseId" || m["user_id"] != "u1" {
		t.Fatalf("unexpected fields: %v", m)
	}
	if m["keyed"] != true || m["outcome"] != "ok" {
		t.Fatalf("keyed/outcome = %v/%v", m["keyed"], m["outcome"])
	}
	if !strings.Contains(out, "[REDACTED:email]") || !strings.Contains(out, "[REDACTED:id]") {
		t.Fatalf("expected scrub markers: %s", out)
	}
}

func TestAccessLog_LevelsAndOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{}))
	r.PATCH("/sets/:id", func(c *gin.Context) {
		SetOutcome(c, "stale_lock")
		c.Status(http.StatusConflict)
	})
	r.POST("/sessions", func(c *gin.Context) {
		c.Header(HeaderIdempotencyReplayed, "true")
		c.Status(http.StatusCreated)
	})
	r.GET("/boom", func(c *gin.Context) { c.Status(http.StatusServiceUnavailable) })
	r.GET("/err", func(c *gin.Context) {
		_ = c.Error(http.ErrAbortHandler)
		c.Status(http.StatusOK)
	})

	cases := []struct {
		method, path string
		level        string
		outcome      string
	}{
		{http.MethodPatch, "/sets/1", "warn", "stale_lock"},
		{http.MethodPost, "/sessions", "info", "replayed"},
		{http.MethodGet, "/boom", "error", "ok"},
		{http.MethodGet, "/err", "error", "ok"},
		{http.MethodGet, "/missing", "warn", "ok"},
	}
	for _, tc := range cases {
		buf.Reset()
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(tc.method, tc.path, nil))
		m := lastLine(t, buf)
		if m["level"] != tc.level || m["outcome"] != tc.outcome {
			t.Fatalf("%s %s: level=%v outcome=%v", tc.method, tc.path, m["level"], m["outcome"])
		}
	}
}

func TestLoggerFrom_FallbackAndRequestScoped(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	LoggerFrom(c).Info().Msg("bare")
	if m := lastLine(t, buf); m["request_id"] != nil {
		t.Fatalf("fallback logger carries request fields: %v", m)
	}

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{}))
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("inside")
		c.Status(http.StatusNoContent)
	})
	buf.Reset()
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(requestIDHeader, "rid-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	first := strings.Split(buf.String(), "\n")[0]
	if !strings.Contains(first, `"message":"inside"`) || !strings.Contains(first, `"request_id":"rid-1"`) {
		t.Fatalf("scoped line = %s", first)
	}
}

func TestRecovery(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), AccessLog(AccessLogOptions{}), Recovery())
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	r.GET("/late", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("after write")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	req.Header.Set(requestIDHeader, "rid-p")
	r.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("json: %v", err)
	}
	if body["code"] != "internal_error" || body["request_id"] != "rid-p" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged")
	}
	if m := lastLine(t, buf); m["outcome"] != "internal_error" {
		t.Fatalf("access log outcome = %v", m["outcome"])
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/late", nil))
	if w.Code != http.StatusOK || w.Body.String() != "partial" {
		t.Fatalf("late panic rewrote response: %d %q", w.Code, w.Body.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc…" {
		t.Fatalf("truncate = %q", got)
	}
	if got := truncate("abc", 0); got != "abc" {
		t.Fatalf("max 0 = %q", got)
	}
}
