// Package middleware contains the Gin middleware shared by the HTTP layer.
//
// This file covers request correlation and access logging:
//
//   - RequestID propagates or mints X-Request-ID.
//   - AccessLog attaches a request-scoped zerolog.Logger and, once the handler
//     returns, writes one line per request with identifiers and header values
//     scrubbed. The line records the integrity outcome (idempotent replay,
//     stale lock, key conflict) so duplicate traffic is visible in logs.
//   - Recovery turns panics into the standard JSON 500 envelope.
//
// Order: RequestID, AccessLog, Recovery. Bodies are never logged.
package middleware

import (
	"net/http"
	"regexp"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"
	outcomeKey      = "outcome.code"

	maxQueryLogLength = 2048
)

// RequestID reuses the caller's X-Request-ID or generates a UUID, stores it in
// the context and echoes it on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// SetOutcome records the machine-readable error code of a failed request so
// the access log and metrics can report it. Handlers call it from their error
// writer.
func SetOutcome(c *gin.Context, code string) {
	c.Set(outcomeKey, code)
}

// Outcome returns the code recorded by SetOutcome, "replayed" for a response
// served from the idempotency ledger, or "ok".
func Outcome(c *gin.Context) string {
	if v, ok := c.Get(outcomeKey); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	if c.Writer.Header().Get(HeaderIdempotencyReplayed) == "true" {
		return "replayed"
	}
	return "ok"
}

// AccessLogOptions configures AccessLog.
type AccessLogOptions struct {
	// MaskHeaders are replaced with "[REDACTED]" in addition to Authorization,
	// Cookie, Set-Cookie and Idempotency-Key. Matching ignores case.
	MaskHeaders []string
}

var (
	// UUIDs go first so the phone pattern cannot eat their digit groups.
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}-[0-9a-f]{4}-[1-5][0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// scrub replaces identifiers, emails and phone numbers in s.
func scrub(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// AccessLog logs every request at info, 4xx at warn and 5xx or gin errors at
// error. The logger it attaches is returned by LoggerFrom.
func AccessLog(opts AccessLogOptions) gin.HandlerFunc {
	// Idempotency keys are bearer-like: a holder can read the stored response.
	masked := map[string]struct{}{
		"authorization":   {},
		"cookie":          {},
		"set-cookie":      {},
		"idempotency-key": {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			masked[h] = struct{}{}
		}
	}

	return func(c *gin.Context) {
		start := time.Now()
		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		rid, _ := c.Get(requestIDKey)

		l := log.With().
			Str("request_id", asString(rid)).
			Str("user_id", requestUser(c)).
			Str("method", c.Request.Method).
			Str("route", route).
			Logger()
		c.Set(loggerKey, &l)

		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if _, ok := masked[strings.ToLower(k)]; ok {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = scrub(strings.Join(vv, ", "))
		}
		_, keyed := c.Request.Header[http.CanonicalHeaderKey(HeaderIdempotencyKey)]

		c.Next()

		status := c.Writer.Status()
		var ev *zerolog.Event
		switch {
		case len(c.Errors) > 0:
			ev = l.Error().Str("errors", c.Errors.String())
		case status >= 500:
			ev = l.Error()
		case status >= 400:
			ev = l.Warn()
		default:
			ev = l.Info()
		}
		ev.
			Str("query", truncate(scrub(c.Request.URL.RawQuery), maxQueryLogLength)).
			Str("remote_ip", c.ClientIP()).
			Int("status", status).
			Str("outcome", Outcome(c)).
			Bool("keyed", keyed).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}

// requestUser mirrors the handlers' identity resolution for log fields.
func requestUser(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return strings.TrimSpace(c.GetHeader("X-User-ID"))
}

// Recovery logs a panic with its stack and answers 500 unless a response has
// already started.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			v, _ := c.Get(requestIDKey)
			rid := asString(v)
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Str("request_id", rid).
				Msg("panic recovered")
			SetOutcome(c, "internal_error")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"request_id": rid,
				"code":       "internal_error",
				"message":    "internal server error",
			})
		}()
		c.Next()
	}
}

// LoggerFrom returns the logger AccessLog attached, or the global logger.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.Logger
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate caps s at max bytes. max <= 0 disables it.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
