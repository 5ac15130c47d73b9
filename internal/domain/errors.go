package domain

import (
	"context"
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Error taxonomy shared by the integrity core. Callers branch on these with
// errors.Is; transports map each kind to a distinct client-visible code.
var (
	// ErrIdempotencyConflict means a key was reused for a different request.
	// The client must pick a new key.
	ErrIdempotencyConflict = errors.New("idempotency key reused with a different request")

	// ErrInFlight means another request holding the same key has not finished
	// within the bounded wait. The client may retry with the same key.
	ErrInFlight = errors.New("request with this idempotency key is still in flight")

	// ErrStaleLock means the supplied lock stamp (or expected version) no
	// longer matches the entity. The client must refetch and decide.
	ErrStaleLock = errors.New("stale lock stamp")

	// ErrNotFound means the entity, version, or record does not exist or is
	// not visible to the caller.
	ErrNotFound = errors.New("not found")

	// ErrUnavailable means the durable store could not be reached.
	ErrUnavailable = errors.New("store unavailable")

	// ErrValidation means the input was malformed.
	ErrValidation = errors.New("validation failed")
)

// Unavailable wraps a store failure so that errors.Is(err, ErrUnavailable)
// holds while the driver error stays in the chain. Context cancellation is
// returned unchanged.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return pkgerrors.Wrap(fmt.Errorf("%w: %w", ErrUnavailable, err), op)
}

// IsKnown reports whether err belongs to the taxonomy above.
func IsKnown(err error) bool {
	for _, k := range []error{ErrIdempotencyConflict, ErrInFlight, ErrStaleLock, ErrNotFound, ErrUnavailable, ErrValidation} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Kind names the taxonomy member err belongs to, or "" when it belongs to
// none. The names are stable and safe to use as metric labels.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, ErrInFlight):
		return "in_flight"
	case errors.Is(err, ErrStaleLock):
		return "stale_lock"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrValidation):
		return "validation"
	}
	return ""
}
