// Package handlers exposes the workout log over REST.
//
// Handlers are transport-thin: they bind input, resolve the caller's identity,
// idempotency key and lock stamp, call the services, and translate results
// into HTTP responses. Keyed mutations are written back byte-for-byte from
// the stored outcome so a replay is indistinguishable from the original.
package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/http/middleware"
	"github.com/tbourn/go-setlogs-backend/internal/progression"
	"github.com/tbourn/go-setlogs-backend/internal/services"
	"github.com/tbourn/go-setlogs-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// ExerciseService defines the exercise catalog operations consumed by HTTP
// handlers.
type ExerciseService interface {
	Create(ctx context.Context, userID string, in services.ExerciseInput, idem services.Idem) (services.Outcome, error)
	Update(ctx context.Context, userID, exerciseID string, in services.ExerciseUpdate, idem services.Idem) (services.Outcome, error)
	Get(ctx context.Context, exerciseID string) (*services.ExerciseView, error)
	ListPage(ctx context.Context, query string, page, pageSize int) ([]services.ExerciseView, int64, error)
	History(ctx context.Context, exerciseID string) ([]domain.ExerciseVersion, error)
	Version(ctx context.Context, versionID string) (*domain.ExerciseVersion, error)
}

// SessionService defines session lifecycle operations.
type SessionService interface {
	Create(ctx context.Context, userID string, in services.SessionInput, idem services.Idem) (services.Outcome, error)
	Get(ctx context.Context, userID, sessionID string) (*domain.Session, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, int64, error)
	ListStats(ctx context.Context, userID string) (int64, *time.Time, error)
	Update(ctx context.Context, userID, sessionID string, p services.SessionPatch) (*domain.Session, error)
	Delete(ctx context.Context, userID, sessionID string, lockStamp int64) error
}

// SetService defines set operations.
type SetService interface {
	Create(ctx context.Context, userID, sessionID string, in services.SetInput, idem services.Idem) (services.Outcome, error)
	Get(ctx context.Context, userID, setID string) (*services.SetView, error)
	List(ctx context.Context, userID, sessionID string) ([]services.SetView, error)
	ListStats(ctx context.Context, userID, sessionID string) (int64, *time.Time, error)
	Update(ctx context.Context, userID, setID string, p services.SetPatch) (*services.SetView, error)
	Delete(ctx context.Context, userID, setID string, lockStamp int64) error
}

// ProgressionService serves cached progression reports.
type ProgressionService interface {
	Report(ctx context.Context, userID, exerciseID, window string) (progression.Report, error)
}

// AuditService reads audit trails.
type AuditService interface {
	Trail(ctx context.Context, userID, entityType, entityID string) ([]domain.AuditEntry, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on service interfaces only.
type Handlers struct {
	exercises ExerciseService
	sessions  SessionService
	sets      SetService
	reports   ProgressionService
	audits    AuditService
}

// New constructs Handlers bound to the given services.
func New(ex ExerciseService, sess SessionService, sets SetService, reports ProgressionService, audits AuditService) *Handlers {
	return &Handlers{exercises: ex, sessions: sess, sets: sets, reports: reports, audits: audits}
}

// userID extracts the authenticated user id from Gin context (set by upstream
// middleware). If absent, it falls back to "X-User-ID" header, and finally
// to "demo-user".
func userID(c *gin.Context) string {
	if v, ok := c.Get("userID"); ok {
		if s, ok := v.(string); ok && s != "" {
			return s
		}
	}
	if c != nil && c.Request != nil {
		if h := strings.TrimSpace(c.GetHeader("X-User-ID")); h != "" {
			return h
		}
	}
	return "demo-user"
}

// idem returns the validated idempotency key and the body bytes it covers.
func idem(c *gin.Context) services.Idem {
	key, ok := middleware.GetIdempotencyKey(c)
	if !ok {
		return services.Idem{}
	}
	return services.Idem{Key: key, Payload: middleware.GetIdempotencyBody(c)}
}

//
// DTOs
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

//
// Helpers
//

// clampPagination parses and bounds page and page_size query params.
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// entityETag is the strong validator of a lock-guarded entity.
func entityETag(id string, stamp int64) string {
	return fmt.Sprintf(`"%s:%d"`, id, stamp)
}

// listETag is a weak validator over a collection's size and last change.
func listETag(kind, scope string, count int64, maxTS *time.Time) string {
	var ts int64
	if maxTS != nil {
		ts = maxTS.UnixNano()
	}
	return fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, scope, count, ts)
}

// stampFromIfMatch extracts the lock stamp from an If-Match header holding
// either an entity ETag ("<id>:<stamp>") or a bare integer. ok is false when
// the header is absent or malformed.
func stampFromIfMatch(c *gin.Context) (int64, bool) {
	v := strings.TrimSpace(c.GetHeader("If-Match"))
	if v == "" {
		return 0, false
	}
	v = strings.TrimPrefix(v, "W/")
	v = strings.Trim(v, `"`)
	if i := strings.LastIndexByte(v, ':'); i >= 0 {
		v = v[i+1:]
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

// lockStamp resolves the stamp for a guarded mutation: the body value when
// set, then If-Match, then the lock_stamp query parameter.
func lockStamp(c *gin.Context, body int64) (int64, bool) {
	if body > 0 {
		return body, true
	}
	if n, ok := stampFromIfMatch(c); ok {
		return n, true
	}
	if q := c.Query("lock_stamp"); q != "" {
		if n, err := strconv.ParseInt(q, 10, 64); err == nil && n > 0 {
			return n, true
		}
	}
	return 0, false
}
