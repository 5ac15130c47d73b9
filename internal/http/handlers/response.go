// Package handlers implements the SetLogs REST endpoints on top of the
// services layer.
//
// Errors leave through one envelope with a stable code:
//
//	HTTP/1.1 409 Conflict
//	{"request_id":"...","code":"stale_lock","message":"update: stale lock stamp"}
//
// Mutation successes are written byte-for-byte from services.Outcome so a
// replayed response is identical to the first one.
package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/http/middleware"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID.
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code (see errors.go).
	Code    string `json:"code" example:"stale_lock"`
	Message string `json:"message" example:"stale lock stamp"`
}

// fail aborts with the envelope, records the code as the request outcome and
// logs 5xx through the request-scoped logger.
func fail(c *gin.Context, status int, code, msg string) {
	middleware.SetOutcome(c, code)
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
	})
}

// Fail lets the router answer with the same envelope (NoRoute, NoMethod).
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

func noContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// failErr maps an error from the service layer onto the status and code
// taxonomy:
//
//	validation            400 validation_failed
//	not found             404 not_found
//	idempotency conflict  422 idempotency_conflict
//	in flight             409 request_in_flight (+ Retry-After)
//	stale lock            409 stale_lock
//	unavailable           503 unavailable (+ Retry-After)
//
// Anything else is a 500 whose detail is logged, not returned.
func failErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		fail(c, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "resource not found")
	case errors.Is(err, domain.ErrIdempotencyConflict):
		fail(c, http.StatusUnprocessableEntity, ErrCodeIdempotencyConflict, domain.ErrIdempotencyConflict.Error())
	case errors.Is(err, domain.ErrInFlight):
		c.Header("Retry-After", "1")
		fail(c, http.StatusConflict, ErrCodeInFlight, domain.ErrInFlight.Error())
	case errors.Is(err, domain.ErrStaleLock):
		fail(c, http.StatusConflict, ErrCodeStaleLock, err.Error())
	case errors.Is(err, domain.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		middleware.LoggerFrom(c).Error().Err(err).Msg("store unavailable")
		c.Header("Retry-After", "1")
		fail(c, http.StatusServiceUnavailable, ErrCodeUnavailable, "service temporarily unavailable")
	default:
		middleware.LoggerFrom(c).Error().Err(err).Msg("unclassified error")
		fail(c, http.StatusInternalServerError, ErrCodeInternal, "internal error")
	}
}

// writeOutcome writes the exact bytes of a mutation response. Replays are
// marked with Idempotency-Replayed: true.
func writeOutcome(c *gin.Context, out services.Outcome) {
	if out.Replayed {
		c.Header(middleware.HeaderIdempotencyReplayed, "true")
	}
	ct := out.ContentType
	if ct == "" {
		ct = services.JSONContentType
	}
	c.Data(out.Status, ct, out.Body)
}
