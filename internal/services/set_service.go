// Package services – SetService
//
// SetService logs and edits performed sets. A new set pins the exercise
// version that is current at that moment, so later catalog edits never change
// how a historical set reads. Every accepted set mutation advances the
// (user, exercise) progression generation on the same transaction.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/audit"
	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/events"
	"github.com/tbourn/go-setlogs-backend/internal/locking"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
)

// SetInput logs one set. SetIndex defaults to the next free position for the
// exercise in the session; PerformedAt defaults to the session start.
type SetInput struct {
	ExerciseID  string              `json:"exercise_id"`
	SetIndex    *int                `json:"set_index,omitempty"`
	Reps        int                 `json:"reps"                   example:"5"`
	WeightKg    decimal.Decimal     `json:"weight_kg"              swaggertype:"string" example:"100"`
	RPE         decimal.NullDecimal `json:"rpe"                    swaggertype:"string" example:"8"`
	PerformedAt *time.Time          `json:"performed_at,omitempty"`
}

// SetPatch changes a set. Nil fields are left alone; ClearRPE removes the
// RPE.
type SetPatch struct {
	LockStamp   int64            `json:"lock_stamp"`
	Reps        *int             `json:"reps,omitempty"`
	WeightKg    *decimal.Decimal `json:"weight_kg,omitempty"    swaggertype:"string"`
	RPE         *decimal.Decimal `json:"rpe,omitempty"          swaggertype:"string"`
	ClearRPE    bool             `json:"clear_rpe,omitempty"`
	PerformedAt *time.Time       `json:"performed_at,omitempty"`
}

// SetView is a set with the exercise definition it was logged against.
type SetView struct {
	domain.Set
	ExerciseVersion int             `json:"exercise_version"`
	Exercise        json.RawMessage `json:"exercise"           swaggertype:"object"`
}

// SetService manages sets.
type SetService struct {
	*Core
}

// NewSetService constructs a SetService.
func NewSetService(c *Core) *SetService {
	return &SetService{Core: c}
}

func setTarget(id, userID string) locking.Target {
	return locking.Target{Entity: domain.EntitySet, Model: &domain.Set{}, ID: id, OwnerID: userID}
}

var (
	one = decimal.NewFromInt(1)
	ten = decimal.NewFromInt(10)
)

func validWeight(w decimal.Decimal) bool {
	return !w.IsNegative() && w.Equal(w.Round(3))
}

func validRPE(r decimal.Decimal) bool {
	return !r.LessThan(one) && !r.GreaterThan(ten)
}

// Create logs a set into sessionID. An idempotency key is always required.
func (s *SetService) Create(ctx context.Context, userID, sessionID string, in SetInput, idem Idem) (Outcome, error) {
	ctx, span := otel.Tracer("services/SetService").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("session.id", sessionID),
			attribute.String("exercise.id", in.ExerciseID),
		),
	)
	defer span.End()

	if idem.Key == "" {
		return Outcome{}, ErrKeyRequired
	}
	if in.ExerciseID == "" {
		return Outcome{}, ErrExerciseRequired
	}
	if in.Reps <= 0 {
		return Outcome{}, ErrInvalidReps
	}
	if !validWeight(in.WeightKg) {
		return Outcome{}, ErrInvalidWeight
	}
	if in.RPE.Valid && !validRPE(in.RPE.Decimal) {
		return Outcome{}, ErrInvalidRPE
	}
	if in.SetIndex != nil && *in.SetIndex < 1 {
		return Outcome{}, ErrInvalidSetIndex
	}

	return s.run(ctx, userID, "sets.create:"+sessionID, idem, true, func(tx *gorm.DB) (mutation, error) {
		sess, err := repo.GetSession(ctx, tx, sessionID, userID)
		if errors.Is(err, repo.ErrNotFound) {
			return mutation{}, domain.ErrNotFound
		}
		if err != nil {
			return mutation{}, domain.Unavailable("set: load session", err)
		}
		v, err := s.Versions.CurrentVersion(ctx, tx, in.ExerciseID)
		if err != nil {
			return mutation{}, err
		}

		index := 0
		if in.SetIndex != nil {
			index = *in.SetIndex
		} else if index, err = repo.NextSetIndex(ctx, tx, sessionID, in.ExerciseID); err != nil {
			return mutation{}, domain.Unavailable("set: next index", err)
		}
		performed := sess.StartedAt
		if in.PerformedAt != nil {
			performed = in.PerformedAt.UTC()
		}

		now := s.Now()
		set := &domain.Set{
			ID:                uuid.NewString(),
			SessionID:         sessionID,
			UserID:            userID,
			ExerciseID:        in.ExerciseID,
			ExerciseVersionID: v.ID,
			SetIndex:          index,
			Reps:              in.Reps,
			WeightKg:          in.WeightKg,
			RPE:               in.RPE,
			PerformedAt:       performed,
			Status:            domain.StatusActive,
			LockStamp:         1,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		if err := repo.CreateSet(ctx, tx, set); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return mutation{}, ErrSetPositionTaken
			}
			return mutation{}, domain.Unavailable("set: insert", err)
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType: domain.EntitySet,
			EntityID:   set.ID,
			ActorID:    userID,
			Kind:       domain.MutationCreate,
			AfterStamp: audit.Stamp(1),
			Payload:    set,
		}); err != nil {
			return mutation{}, err
		}
		if _, err := s.Cache.Bump(ctx, tx, userID, in.ExerciseID); err != nil {
			return mutation{}, err
		}
		return mutation{
			status: http.StatusCreated,
			value:  SetView{Set: *set, ExerciseVersion: v.Number, Exercise: json.RawMessage(v.Payload)},
			events: []events.MutationEvent{{
				EntityType: domain.EntitySet, EntityID: set.ID, UserID: userID,
				Kind: domain.MutationCreate, ExerciseID: in.ExerciseID, Stamp: 1,
			}},
		}, nil
	})
}

// Get returns an active set owned by userID with its pinned definition.
func (s *SetService) Get(ctx context.Context, userID, setID string) (*SetView, error) {
	set, err := repo.GetSet(ctx, s.DB, setID, userID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("set: get", err)
	}
	return s.view(ctx, s.DB, set)
}

func (s *SetService) view(ctx context.Context, db *gorm.DB, set *domain.Set) (*SetView, error) {
	v, err := s.Versions.GetVersion(ctx, db, set.ExerciseVersionID)
	if err != nil {
		return nil, err
	}
	return &SetView{Set: *set, ExerciseVersion: v.Number, Exercise: json.RawMessage(v.Payload)}, nil
}

// List returns the active sets of one of userID's sessions.
func (s *SetService) List(ctx context.Context, userID, sessionID string) ([]SetView, error) {
	if _, err := repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.Unavailable("set: load session", err)
	}
	sets, err := repo.ListSetsBySession(ctx, s.DB, sessionID)
	if err != nil {
		return nil, domain.Unavailable("set: list", err)
	}
	ids := make([]string, 0, len(sets))
	for _, st := range sets {
		ids = append(ids, st.ExerciseVersionID)
	}
	versions, err := repo.GetVersionsByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, domain.Unavailable("set: load versions", err)
	}
	out := make([]SetView, 0, len(sets))
	for _, st := range sets {
		v := versions[st.ExerciseVersionID]
		out = append(out, SetView{Set: st, ExerciseVersion: v.Number, Exercise: json.RawMessage(v.Payload)})
	}
	return out, nil
}

// Update applies p if p.LockStamp is still current.
func (s *SetService) Update(ctx context.Context, userID, setID string, p SetPatch) (*SetView, error) {
	ctx, span := otel.Tracer("services/SetService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("set.id", setID),
			attribute.Int64("lock.stamp", p.LockStamp),
		),
	)
	defer span.End()

	ch := map[string]any{}
	if p.Reps != nil {
		if *p.Reps <= 0 {
			return nil, ErrInvalidReps
		}
		ch["reps"] = *p.Reps
	}
	if p.WeightKg != nil {
		if !validWeight(*p.WeightKg) {
			return nil, ErrInvalidWeight
		}
		ch["weight_kg"] = *p.WeightKg
	}
	switch {
	case p.ClearRPE:
		ch["rpe"] = decimal.NullDecimal{}
	case p.RPE != nil:
		if !validRPE(*p.RPE) {
			return nil, ErrInvalidRPE
		}
		ch["rpe"] = decimal.NewNullDecimal(*p.RPE)
	}
	if p.PerformedAt != nil {
		ch["performed_at"] = p.PerformedAt.UTC()
	}

	var out *SetView
	err := s.tx(ctx, func(tx *gorm.DB) ([]events.MutationEvent, error) {
		stamp, err := s.Locks.ApplyUpdate(ctx, tx, setTarget(setID, userID), p.LockStamp, func(*gorm.DB) (map[string]any, error) {
			return ch, nil
		})
		if err != nil {
			return nil, err
		}
		set, err := repo.GetSet(ctx, tx, setID, userID)
		if err != nil {
			return nil, domain.Unavailable("set: reload", err)
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType:  domain.EntitySet,
			EntityID:    setID,
			ActorID:     userID,
			Kind:        domain.MutationUpdate,
			BeforeStamp: audit.Stamp(p.LockStamp),
			AfterStamp:  audit.Stamp(stamp),
			Payload:     p,
		}); err != nil {
			return nil, err
		}
		if _, err := s.Cache.Bump(ctx, tx, userID, set.ExerciseID); err != nil {
			return nil, err
		}
		if out, err = s.view(ctx, tx, set); err != nil {
			return nil, err
		}
		return []events.MutationEvent{{
			EntityType: domain.EntitySet, EntityID: setID, UserID: userID,
			Kind: domain.MutationUpdate, ExerciseID: set.ExerciseID, Stamp: stamp,
		}}, nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete retires a set.
func (s *SetService) Delete(ctx context.Context, userID, setID string, lockStamp int64) error {
	ctx, span := otel.Tracer("services/SetService").Start(ctx, "Delete",
		trace.WithAttributes(
			attribute.String("set.id", setID),
			attribute.Int64("lock.stamp", lockStamp),
		),
	)
	defer span.End()

	return s.tx(ctx, func(tx *gorm.DB) ([]events.MutationEvent, error) {
		// The partition to invalidate is read before the guarded write; a row
		// that is already gone is classified by the coordinator.
		exerciseID := ""
		if set, err := repo.GetSet(ctx, tx, setID, userID); err == nil {
			exerciseID = set.ExerciseID
		} else if !errors.Is(err, repo.ErrNotFound) {
			return nil, domain.Unavailable("set: load", err)
		}
		stamp, err := s.Locks.Delete(ctx, tx, setTarget(setID, userID), lockStamp)
		if err != nil {
			return nil, err
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType:  domain.EntitySet,
			EntityID:    setID,
			ActorID:     userID,
			Kind:        domain.MutationDelete,
			BeforeStamp: audit.Stamp(lockStamp),
			AfterStamp:  audit.Stamp(stamp),
		}); err != nil {
			return nil, err
		}
		if _, err := s.Cache.Bump(ctx, tx, userID, exerciseID); err != nil {
			return nil, err
		}
		return []events.MutationEvent{{
			EntityType: domain.EntitySet, EntityID: setID, UserID: userID,
			Kind: domain.MutationDelete, ExerciseID: exerciseID, Stamp: stamp,
		}}, nil
	})
}

// ListStats returns the active set count of a session owned by userID and
// the latest change time among its sets.
func (s *SetService) ListStats(ctx context.Context, userID, sessionID string) (int64, *time.Time, error) {
	if _, err := repo.GetSession(ctx, s.DB, sessionID, userID); err != nil {
		return 0, nil, notFoundOr(err, "set: stats session")
	}
	n, ts, err := repo.SetsStats(ctx, s.DB, sessionID)
	if err != nil {
		return 0, nil, domain.Unavailable("set: stats", err)
	}
	return n, ts, nil
}
