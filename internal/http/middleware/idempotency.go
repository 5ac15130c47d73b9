// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file validates the Idempotency-Key header on unsafe requests. A valid
// key is stashed in the Gin context together with the exact request body
// bytes, which the idempotency ledger fingerprints. When a lookup reports that
// the key already holds a completed response, the request is flagged as a
// replay so the rate limiter lets it through.
//
// The middleware never serves stored responses itself: the ledger decides,
// inside the service call, whether to replay, reject or execute.
package middleware

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"regexp"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

// HeaderIdempotencyReplayed is set to "true" on responses served from the
// ledger instead of a fresh execution.
const HeaderIdempotencyReplayed = "Idempotency-Replayed"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemBody   = "idem.body"
	ctxKeyIdemReplay = "idem.replay" // bool: a completed record exists
	ctxKeyRateBypass = "rate.bypass" // bool: skip rate limiting
)

// GetIdempotencyKey returns the validated key stashed by
// IdempotencyValidator. The second return value indicates presence.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// GetIdempotencyBody returns the raw request body read while validating the
// key. It is nil when no key was supplied.
func GetIdempotencyBody(c *gin.Context) []byte {
	v, ok := c.Get(ctxKeyIdemBody)
	if !ok {
		return nil
	}
	b, _ := v.([]byte)
	return b
}

// IsReplay reports whether the lookup found a completed record for the key.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures header validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. If nil, ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether userID's key already holds a completed
// response. Errors are ignored by the middleware; the ledger re-checks.
type IdempotencyLookup func(ctx context.Context, userID, key string, now time.Time) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header on non-GET
// requests and buffers the body for fingerprinting.
//
// Behavior:
//   - If the header is absent: no-op.
//   - If the header fails validation: 400 bad_idempotency_key.
//   - If the body cannot be read (e.g. over the size limit): 400 bad_request.
//   - If lookup reports a completed record: sets replay + rate-bypass flags.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" || c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			SetOutcome(c, "bad_idempotency_key")
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": c.Writer.Header().Get("X-Request-ID"),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}

		body := []byte{}
		if c.Request.Body != nil {
			b, err := io.ReadAll(c.Request.Body)
			if err != nil {
				SetOutcome(c, "bad_request")
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"request_id": c.Writer.Header().Get("X-Request-ID"),
					"code":       "bad_request",
					"message":    "unreadable request body",
				})
				return
			}
			body = b
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		c.Set(ctxKeyIdemKey, key)
		c.Set(ctxKeyIdemBody, body)

		if lookup != nil {
			if exists, _ := lookup(c.Request.Context(), userIDFromCtx(c), key, time.Now().UTC()); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}

// userIDFromCtx resolves the caller like the handlers do, defaulting to
// "demo-user".
func userIDFromCtx(c *gin.Context) string {
	if u := requestUser(c); u != "" {
		return u
	}
	return "demo-user"
}
