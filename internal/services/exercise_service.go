// Package services – ExerciseService
//
// ExerciseService owns the exercise catalog. Definitions are never edited in
// place: every update appends a version through the version chain manager, and
// sets keep pointing at the version that was current when they were logged.
package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/audit"
	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/events"
	"github.com/tbourn/go-setlogs-backend/internal/repo"
	"github.com/tbourn/go-setlogs-backend/internal/search"
	"github.com/tbourn/go-setlogs-backend/internal/utils"
)

// ExerciseInput is the client-supplied definition of an exercise.
type ExerciseInput struct {
	Slug            string           `json:"slug,omitempty"              example:"bench-press"`
	Name            string           `json:"name"                        example:"Bench Press"`
	Description     string           `json:"description,omitempty"`
	TargetMuscles   []string         `json:"target_muscles,omitempty"`
	DefaultRepRange *domain.RepRange `json:"default_rep_range,omitempty"`
}

// ExerciseUpdate is a new definition plus the version the client based it
// on. ExpectedVersion 0 skips the check.
type ExerciseUpdate struct {
	ExerciseInput
	ExpectedVersion int `json:"expected_version" example:"1"`
}

// ExerciseView is an exercise with its current definition.
type ExerciseView struct {
	ID         string                    `json:"id"`
	Slug       string                    `json:"slug"`
	CreatedBy  string                    `json:"created_by"`
	Version    int                       `json:"version"`
	VersionID  string                    `json:"version_id"`
	Definition domain.ExerciseDefinition `json:"definition"`
	CreatedAt  time.Time                 `json:"created_at"`
	UpdatedAt  time.Time                 `json:"updated_at"`
	Score      float64                   `json:"score,omitempty"`
}

// ExerciseService manages the versioned exercise catalog.
type ExerciseService struct {
	*Core
	// RequireKey makes Idempotency-Key mandatory on create and update.
	RequireKey   bool
	MaxNameRunes int
}

// NewExerciseService constructs an ExerciseService with default limits.
func NewExerciseService(c *Core, requireKey bool) *ExerciseService {
	return &ExerciseService{Core: c, RequireKey: requireKey, MaxNameRunes: 120}
}

var slugRE = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// normalize validates in and returns the definition and slug to store.
func (s *ExerciseService) normalize(in ExerciseInput) (domain.ExerciseDefinition, string, error) {
	name := search.NormalizeName(in.Name)
	if name == "" {
		return domain.ExerciseDefinition{}, "", ErrNameRequired
	}
	if s.MaxNameRunes > 0 && utf8.RuneCountInString(name) > s.MaxNameRunes {
		return domain.ExerciseDefinition{}, "", ErrNameTooLong
	}
	slug := strings.TrimSpace(in.Slug)
	if slug == "" {
		slug = search.Slugify(name)
	}
	if !slugRE.MatchString(slug) {
		return domain.ExerciseDefinition{}, "", ErrInvalidSlug
	}
	if rr := in.DefaultRepRange; rr != nil && (rr.Min < 1 || rr.Max < rr.Min || rr.Max > 100) {
		return domain.ExerciseDefinition{}, "", ErrInvalidRepRange
	}
	var muscles []string
	seen := map[string]struct{}{}
	for _, m := range in.TargetMuscles {
		m = strings.ToLower(strings.Join(strings.Fields(m), " "))
		if m == "" {
			continue
		}
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		muscles = append(muscles, m)
	}
	return domain.ExerciseDefinition{
		Name:            name,
		Description:     strings.TrimSpace(in.Description),
		TargetMuscles:   muscles,
		DefaultRepRange: in.DefaultRepRange,
	}, slug, nil
}

// Create adds a catalog entry with its definition as version 1.
func (s *ExerciseService) Create(ctx context.Context, userID string, in ExerciseInput, idem Idem) (Outcome, error) {
	ctx, span := otel.Tracer("services/ExerciseService").Start(ctx, "Create",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	def, slug, err := s.normalize(in)
	if err != nil {
		return Outcome{}, err
	}
	payload, err := json.Marshal(def)
	if err != nil {
		return Outcome{}, err
	}

	return s.run(ctx, userID, "exercises.create", idem, s.RequireKey, func(tx *gorm.DB) (mutation, error) {
		ex := &domain.Exercise{Slug: slug, CreatedBy: userID}
		v, err := s.Versions.CreateEntity(ctx, tx, ex, payload)
		if errors.Is(err, repo.ErrDuplicate) {
			return mutation{}, ErrSlugTaken
		}
		if err != nil {
			return mutation{}, err
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType: domain.EntityExercise,
			EntityID:   ex.ID,
			ActorID:    userID,
			Kind:       domain.MutationCreate,
			AfterStamp: audit.Stamp(1),
			Payload:    map[string]any{"version_id": v.ID, "number": v.Number, "definition": def},
		}); err != nil {
			return mutation{}, err
		}
		return mutation{
			status: http.StatusCreated,
			value:  view(ex, v.ID, v.Number, def),
			events: []events.MutationEvent{{
				EntityType: domain.EntityExercise, EntityID: ex.ID, UserID: userID,
				Kind: domain.MutationCreate, ExerciseID: ex.ID, Stamp: 1,
			}},
		}, nil
	})
}

// Update appends a new version of exerciseID. A stale ExpectedVersion or a
// concurrent update is ErrStaleLock.
func (s *ExerciseService) Update(ctx context.Context, userID, exerciseID string, in ExerciseUpdate, idem Idem) (Outcome, error) {
	ctx, span := otel.Tracer("services/ExerciseService").Start(ctx, "Update",
		trace.WithAttributes(
			attribute.String("exercise.id", exerciseID),
			attribute.Int("version.expected", in.ExpectedVersion),
		),
	)
	defer span.End()

	if in.ExpectedVersion < 0 {
		return Outcome{}, ErrInvalidExpectedVersion
	}
	// Slugs are stable handles; an update never changes them.
	def, _, err := s.normalize(in.ExerciseInput)
	if err != nil {
		return Outcome{}, err
	}
	payload, err := json.Marshal(def)
	if err != nil {
		return Outcome{}, err
	}

	return s.run(ctx, userID, "exercises.update:"+exerciseID, idem, s.RequireKey, func(tx *gorm.DB) (mutation, error) {
		v, err := s.Versions.CreateVersion(ctx, tx, exerciseID, payload, userID, in.ExpectedVersion)
		if err != nil {
			return mutation{}, err
		}
		ex, err := repo.GetExercise(ctx, tx, exerciseID)
		if err != nil {
			return mutation{}, domain.Unavailable("exercise: reload", err)
		}
		if _, err := s.Audit.Record(ctx, tx, audit.Entry{
			EntityType:  domain.EntityExercise,
			EntityID:    exerciseID,
			ActorID:     userID,
			Kind:        domain.MutationUpdate,
			BeforeStamp: audit.Stamp(int64(v.Number - 1)),
			AfterStamp:  audit.Stamp(int64(v.Number)),
			Payload:     map[string]any{"version_id": v.ID, "number": v.Number, "definition": def},
		}); err != nil {
			return mutation{}, err
		}
		return mutation{
			status: http.StatusOK,
			value:  view(ex, v.ID, v.Number, def),
			events: []events.MutationEvent{{
				EntityType: domain.EntityExercise, EntityID: exerciseID, UserID: userID,
				Kind: domain.MutationUpdate, ExerciseID: exerciseID, Stamp: int64(v.Number),
			}},
		}, nil
	})
}

// Get returns the exercise with its current definition.
func (s *ExerciseService) Get(ctx context.Context, exerciseID string) (*ExerciseView, error) {
	ex, err := repo.GetExercise(ctx, s.DB, exerciseID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, domain.Unavailable("exercise: get", err)
	}
	v, err := s.Versions.GetVersion(ctx, s.DB, ex.CurrentVersionID)
	if err != nil {
		return nil, err
	}
	def, err := decodeDefinition(v.Payload)
	if err != nil {
		return nil, err
	}
	out := view(ex, v.ID, v.Number, def)
	return &out, nil
}

// ListPage returns a page of the catalog ordered by slug. A non-empty query
// ranks current definitions by similarity instead.
func (s *ExerciseService) ListPage(ctx context.Context, query string, page, pageSize int) ([]ExerciseView, int64, error) {
	ctx, span := otel.Tracer("services/ExerciseService").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
			attribute.Bool("search", strings.TrimSpace(query) != ""),
		),
	)
	defer span.End()

	page, pageSize, offset := utils.Paginate(page, pageSize, 20, 100)
	if strings.TrimSpace(query) != "" {
		return s.search(ctx, query, offset, pageSize)
	}

	total, err := repo.CountExercises(ctx, s.DB)
	if err != nil {
		return nil, 0, domain.Unavailable("exercise: count", err)
	}
	if total == 0 {
		return []ExerciseView{}, 0, nil
	}
	items, err := repo.ListExercisesPage(ctx, s.DB, offset, pageSize)
	if err != nil {
		return nil, 0, domain.Unavailable("exercise: list", err)
	}
	ids := make([]string, 0, len(items))
	for _, ex := range items {
		ids = append(ids, ex.CurrentVersionID)
	}
	versions, err := repo.GetVersionsByIDs(ctx, s.DB, ids)
	if err != nil {
		return nil, 0, domain.Unavailable("exercise: load versions", err)
	}
	out := make([]ExerciseView, 0, len(items))
	for i := range items {
		v := versions[items[i].CurrentVersionID]
		def, err := decodeDefinition(v.Payload)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, view(&items[i], v.ID, v.Number, def))
	}
	return out, total, nil
}

func (s *ExerciseService) search(ctx context.Context, query string, offset, limit int) ([]ExerciseView, int64, error) {
	current, err := repo.ListCurrentVersions(ctx, s.DB)
	if err != nil {
		return nil, 0, domain.Unavailable("exercise: load catalog", err)
	}
	docs := make([]search.Document, 0, len(current))
	defs := make(map[string]domain.ExerciseDefinition, len(current))
	byExercise := make(map[string]domain.ExerciseVersion, len(current))
	for _, v := range current {
		def, err := decodeDefinition(v.Payload)
		if err != nil {
			continue
		}
		defs[v.ExerciseID] = def
		byExercise[v.ExerciseID] = v
		docs = append(docs, search.Document{ID: v.ExerciseID, Name: def.Name, Description: def.Description, Muscles: def.TargetMuscles})
	}
	hits := search.NewIndex(docs, search.WithStopwords(search.DefaultStopwords)).TopK(query, len(docs))
	total := int64(len(hits))
	if offset >= len(hits) {
		return []ExerciseView{}, total, nil
	}
	hits = hits[offset:min(offset+limit, len(hits))]

	out := make([]ExerciseView, 0, len(hits))
	for _, h := range hits {
		ex, err := repo.GetExercise(ctx, s.DB, h.ID)
		if err != nil {
			return nil, 0, domain.Unavailable("exercise: load hit", err)
		}
		v := byExercise[h.ID]
		vw := view(ex, v.ID, v.Number, defs[h.ID])
		vw.Score = h.Score
		out = append(out, vw)
	}
	return out, total, nil
}

// History returns the whole chain of exerciseID, oldest first.
func (s *ExerciseService) History(ctx context.Context, exerciseID string) ([]domain.ExerciseVersion, error) {
	return s.Versions.History(ctx, s.DB, exerciseID)
}

// Version returns one historical version.
func (s *ExerciseService) Version(ctx context.Context, versionID string) (*domain.ExerciseVersion, error) {
	return s.Versions.GetVersion(ctx, s.DB, versionID)
}

func view(ex *domain.Exercise, versionID string, number int, def domain.ExerciseDefinition) ExerciseView {
	return ExerciseView{
		ID:         ex.ID,
		Slug:       ex.Slug,
		CreatedBy:  ex.CreatedBy,
		Version:    number,
		VersionID:  versionID,
		Definition: def,
		CreatedAt:  ex.CreatedAt,
		UpdatedAt:  ex.UpdatedAt,
	}
}

func decodeDefinition(b []byte) (domain.ExerciseDefinition, error) {
	var def domain.ExerciseDefinition
	if err := json.Unmarshal(b, &def); err != nil {
		return def, domain.Unavailable("exercise: decode definition", err)
	}
	return def, nil
}
