// Package handlers defines HTTP-layer error codes used across all API endpoints.
//
// This file centralizes symbolic error code constants that are mapped to HTTP
// responses (via the `fail()` and `failErr()` helpers in this package). These
// codes give clients a stable, machine-readable error taxonomy that
// supplements human-readable messages.
//
// Conventions:
//   - Codes are lowercase, snake_case.
//   - Generic codes (e.g., bad_request, not_found) mirror HTTP status semantics.
//   - Integrity codes (idempotency_conflict, stale_lock, request_in_flight) tell
//     the client what to do next: pick a new key, refetch, or retry later with
//     the same key.
//
// Example response:
//
//	{
//	  "request_id": "e1b9be03-4999-4289-9f03-999b042d65d6",
//	  "code": "stale_lock",
//	  "message": "stale lock stamp"
//	}
package handlers

const (
	ErrCodeBadRequest       = "bad_request"
	ErrCodeValidation       = "validation_failed"
	ErrCodeNotFound         = "not_found"
	ErrCodeRateLimited      = "too_many_requests"
	ErrCodeInternal         = "internal_error"
	ErrCodeMethodNotAllowed = "method_not_allowed"

	// Integrity core:
	ErrCodeIdempotencyConflict = "idempotency_conflict"
	ErrCodeInFlight            = "request_in_flight"
	ErrCodeStaleLock           = "stale_lock"
	ErrCodeUnavailable         = "unavailable"
)
