// Package services – SessionService
//
// SessionService manages training sessions. Every change goes through the
// optimistic lock coordinator: callers name the lock_stamp they last read and
// lose with ErrStaleLock when someone else got there first. Deleting a session
// retires its active sets in the same transaction.
package services

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/audit"
	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/events"
	"github.com/tbourn/go-setlogs-backend/internal/locking"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
	"github.com/tbourn/go-setlogs-backend/internal/utils"
)

// SessionInput creates a session. StartedAt defaults to now.
type SessionInput struct {
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Notes       string     `json:"notes,omitempty"`
	ProgramRef  string     `json:"program_ref,omitempty"`
	ProgramWeek *int       `json:"program_week,omitempty"`
	ProgramDay  *int       `json:"program_day,omitempty"`
}

// SessionPatch changes a session. Nil fields are left alone.
type SessionPatch struct {
	LockStamp   int64      `json:"lock_stamp"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Notes       *string    `json:"notes,omitempty"`
	ProgramRef  *string    `json:"program_ref,omitempty"`
	ProgramWeek *int       `json:"program_week,omitempty"`
	ProgramDay  *int       `json:"program_day,omitempty"`
}

// SessionService manages sessions.
type SessionService struct {
	*Core
	// RequireKey makes Idempotency-Key mandatory on create.
	RequireKey    bool
	MaxNotesRunes int
}

// NewSessionService constructs a SessionService with default limits.
func NewSessionService(c *Core, requireKey bool) *SessionService {
	return &SessionService{Core: c, RequireKey: requireKey, MaxNotesRunes: 2000}
}

func sessionTarget(id, userID string) locking.Target {
	return locking.Target{Entity: domain.EntitySession, Model: &domain.Session{}, ID: id, OwnerID: userID}
}

func validProgram(week, day *int) bool {
	if week != nil && *week < 1 {
		return false
	}
	if day != nil && (*day < 1 || *day > 7) {
		return false
	}
	return true
}

// Create starts a session for userID.
func (s *SessionService) Create(ctx context.Context, userID string, in SessionInput, idem Idem) (Outcome, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	now := s.Now()
	started := now
	if in.StartedAt != nil {
		started = in.StartedAt.UTC()
	}
	if in.EndedAt != nil && in.EndedAt.Before(started) {
		return Outcome{}, ErrInvalidTimes
	}
	if !validProgram(in.ProgramWeek, in.ProgramDay) {
		return Outcome{}, ErrInvalidProgram
	}
	notes := strings.TrimSpace(in.Notes)
	if s.MaxNotesRunes > 0 && utf8.RuneCountInString(notes) > s.MaxNotesRunes {
		return Outcome{}, ErrNotesTooLong
	}

	return s.run(ctx, userID, "sessions.create", idem, s.RequireKey, func(tx *gorm.DB) (mutation, error) {
		sess := &domain.Session{
			ID:          uuid.NewString(),
			UserID:      userID,
			StartedAt:   started,
			Notes:       notes,
			ProgramRef:  strings.TrimSpace(in.ProgramRef),
			ProgramWeek: in.ProgramWeek,
			ProgramDay:  in.ProgramDay,
			Status:      domain.StatusActive,
			LockStamp:   1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if in.EndedAt != nil {
			ended := in.EndedAt.UTC()
			sess.EndedAt = &ended
		}
		if err := repo.CreateSession(ctx, tx, sess); err != nil {
			return mutation{}, domain.Unavailable("session: insert", err)
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType: domain.EntitySession,
			EntityID:   sess.ID,
			ActorID:    userID,
			Kind:       domain.MutationCreate,
			AfterStamp: audit.Stamp(1),
			Payload:    sess,
		}); err != nil {
			return mutation{}, err
		}
		return mutation{
			status: http.StatusCreated,
			value:  sess,
			events: []events.MutationEvent{{
				EntityType: domain.EntitySession, EntityID: sess.ID, UserID: userID,
				Kind: domain.MutationCreate, Stamp: 1,
			}},
		}, nil
	})
}

// Get returns an active session owned by userID.
func (s *SessionService) Get(ctx context.Context, userID, sessionID string) (*domain.Session, error) {
	sess, err := repo.GetSession(ctx, s.DB, sessionID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("session: get", err)
	}
	return sess, nil
}

// ListPage returns a page of userID's active sessions, newest first.
func (s *SessionService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Session, int64, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	_, pageSize, offset := utils.Paginate(page, pageSize, 20, 100)
	total, err := repo.CountSessions(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, domain.Unavailable("session: count", err)
	}
	if total == 0 {
		return []domain.Session{}, 0, nil
	}
	items, err := repo.ListSessionsPage(ctx, s.DB, userID, offset, pageSize)
	if err != nil {
		return nil, 0, domain.Unavailable("session: list", err)
	}
	return items, total, nil
}

// Update applies p if p.LockStamp is still current and returns the session
// as stored.
func (s *SessionService) Update(ctx context.Context, userID, sessionID string, p SessionPatch) (*domain.Session, error) {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("lock.stamp", p.LockStamp),
		),
	)
	defer span.End()

	if !validProgram(p.ProgramWeek, p.ProgramDay) {
		return nil, ErrInvalidProgram
	}
	if p.Notes != nil && s.MaxNotesRunes > 0 && utf8.RuneCountInString(strings.TrimSpace(*p.Notes)) > s.MaxNotesRunes {
		return nil, ErrNotesTooLong
	}

	var out *domain.Session
	err := s.tx(ctx, func(tx *gorm.DB) ([]events.MutationEvent, error) {
		var cur *domain.Session
		stamp, err := s.Locks.ApplyUpdate(ctx, tx, sessionTarget(sessionID, userID), p.LockStamp, func(tx *gorm.DB) (map[string]any, error) {
			var err error
			if cur, err = repo.GetSession(ctx, tx, sessionID, userID); err != nil {
				// Missing rows are classified by the guarded update.
				if errors.Is(err, repo.ErrNotFound) {
					return map[string]any{}, nil
				}
				return nil, domain.Unavailable("session: load", err)
			}
			return sessionChanges(cur, p)
		})
		if err != nil {
			return nil, err
		}
		if out, err = repo.GetSession(ctx, tx, sessionID, userID); err != nil {
			return nil, domain.Unavailable("session: reload", err)
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType:  domain.EntitySession,
			EntityID:    sessionID,
			ActorID:     userID,
			Kind:        domain.MutationUpdate,
			BeforeStamp: audit.Stamp(p.LockStamp),
			AfterStamp:  audit.Stamp(stamp),
			Payload:     p,
		}); err != nil {
			return nil, err
		}
		return []events.MutationEvent{{
			EntityType: domain.EntitySession, EntityID: sessionID, UserID: userID,
			Kind: domain.MutationUpdate, Stamp: stamp,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// sessionChanges validates p against the current row and returns the column
// changes.
func sessionChanges(cur *domain.Session, p SessionPatch) (map[string]any, error) {
	ch := map[string]any{}
	started := cur.StartedAt
	if p.StartedAt != nil {
		started = p.StartedAt.UTC()
		ch["started_at"] = started
	}
	ended := cur.EndedAt
	if p.EndedAt != nil {
		e := p.EndedAt.UTC()
		ended = &e
		ch["ended_at"] = e
	}
	if ended != nil && ended.Before(started) {
		return nil, ErrInvalidTimes
	}
	if p.Notes != nil {
		ch["notes"] = strings.TrimSpace(*p.Notes)
	}
	if p.ProgramRef != nil {
		ch["program_ref"] = strings.TrimSpace(*p.ProgramRef)
	}
	if p.ProgramWeek != nil {
		ch["program_week"] = *p.ProgramWeek
	}
	if p.ProgramDay != nil {
		ch["program_day"] = *p.ProgramDay
	}
	return ch, nil
}

// Delete retires a session and its active sets. Each retired set gets its own
// audit entry and invalidates its progression partition.
func (s *SessionService) Delete(ctx context.Context, userID, sessionID string, lockStamp int64) error {
	ctx, span := otel.Tracer("services/SessionService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.Int64("lock.stamp", lockStamp),
		),
	)
	defer span.End()

	return s.tx(ctx, func(tx *gorm.DB) ([]events.MutationEvent, error) {
		stamp, err := s.Locks.Delete(ctx, tx, sessionTarget(sessionID, userID), lockStamp)
		if err != nil {
			return nil, err
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType:  domain.EntitySession,
			EntityID:    sessionID,
			ActorID:     userID,
			Kind:        domain.MutationDelete,
			BeforeStamp: audit.Stamp(lockStamp),
			AfterStamp:  audit.Stamp(stamp),
		}); err != nil {
			return nil, err
		}
		evs := []events.MutationEvent{{
			EntityType: domain.EntitySession, EntityID: sessionID, UserID: userID,
			Kind: domain.MutationDelete, Stamp: stamp,
		}}

		sets, err := repo.ListSetsBySession(ctx, tx, sessionID)
		if err != nil {
			return nil, domain.Unavailable("session: list sets", err)
		}
		bumped := map[string]bool{}
		for _, set := range sets {
			setStamp, err := s.Locks.Delete(ctx, tx, setTarget(set.ID, userID), set.LockStamp)
			if err != nil {
				return nil, err
			}
			if _, err := s.Audit.Record(ctx, tx, audit.Entry{
				EntityType:  domain.EntitySet,
				EntityID:    set.ID,
				ActorID:     userID,
				Kind:        domain.MutationDelete,
				BeforeStamp: audit.Stamp(set.LockStamp),
				AfterStamp:  audit.Stamp(setStamp),
				Payload:     map[string]string{"cause": "session_deleted", "session_id": sessionID},
			}); err != nil {
				return nil, err
			}
			if !bumped[set.ExerciseID] {
				if _, err := s.Cache.Bump(ctx, tx, userID, set.ExerciseID); err != nil {
					return nil, err
				}
				bumped[set.ExerciseID] = true
			}
			evs = append(evs, events.MutationEvent{
				EntityType: domain.EntitySet, EntityID: set.ID, UserID: userID,
				Kind: domain.MutationDelete, ExerciseID: set.ExerciseID, Stamp: setStamp,
			})
		}
		return evs, nil
	})
}

// ListStats returns the active session count and the latest change time for
// userID, used for weak ETags on the session list.
func (s *SessionService) ListStats(ctx context.Context, userID string) (int64, *time.Time, error) {
	n, ts, err := repo.SessionsStats(ctx, s.DB, userID)
	if err != nil {
		return 0, nil, domain.Unavailable("session: stats", err)
	}
	return n, ts, nil
}
