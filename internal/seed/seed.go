// Package seed loads a YAML fixture of exercises and logged sessions and
// writes it through the regular services, so seeded data is versioned,
// audited and counted in progression reports like any client write.
//
// Every write carries an idempotency key derived from its position in the
// fixture. Re-applying the same fixture within the ledger retention window
// replays instead of duplicating.
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
	"github.com/tbourn/go-setlogs-backend/internal/services"
)

// Fixture is the root of a seed file.
type Fixture struct {
	Exercises []Exercise `yaml:"exercises"`
	Sessions  []Session  `yaml:"sessions"`
}

// Exercise is a catalog entry. Revisions are applied in order as new
// versions on top of the initial definition.
type Exercise struct {
	Slug          string     `yaml:"slug"`
	Name          string     `yaml:"name"`
	Description   string     `yaml:"description"`
	TargetMuscles []string   `yaml:"target_muscles"`
	RepRange      *[2]int    `yaml:"rep_range"`
	CreatedBy     string     `yaml:"created_by"`
	Revisions     []Exercise `yaml:"revisions"`
}

// Session is one logged workout of a user.
type Session struct {
	User        string     `yaml:"user"`
	StartedAt   time.Time  `yaml:"started_at"`
	EndedAt     *time.Time `yaml:"ended_at"`
	Notes       string     `yaml:"notes"`
	ProgramRef  string     `yaml:"program_ref"`
	ProgramWeek *int       `yaml:"program_week"`
	ProgramDay  *int       `yaml:"program_day"`
	Sets        []Set      `yaml:"sets"`
}

// Set references its exercise by slug. Weight and RPE are decimal strings.
type Set struct {
	Exercise string `yaml:"exercise"`
	Reps     int    `yaml:"reps"`
	WeightKg string `yaml:"weight_kg"`
	RPE      string `yaml:"rpe"`
}

// Result counts what Apply wrote. Replayed counts writes the ledger served
// from an earlier run.
type Result struct {
	Exercises int
	Versions  int
	Sessions  int
	Sets      int
	Replayed  int
}

// Load decodes a fixture. Unknown fields are rejected.
func Load(r io.Reader) (*Fixture, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var f Fixture
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, errors.Wrap(err, "seed: decode fixture")
	}
	return &f, nil
}

// LoadFile opens and decodes the fixture at path.
func LoadFile(path string) (*Fixture, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "seed: open fixture")
	}
	defer fh.Close()
	return Load(fh)
}

// Services are the write paths Apply goes through.
type Services struct {
	Exercises *services.ExerciseService
	Sessions  *services.SessionService
	Sets      *services.SetService
}

// Apply writes f through svc. It stops at the first failing write.
func Apply(ctx context.Context, svc Services, f *Fixture) (Result, error) {
	var res Result
	slugs := make(map[string]string, len(f.Exercises))

	for i, ex := range f.Exercises {
		owner := ownerOr(ex.CreatedBy)
		in := exerciseInput(ex)
		out, err := svc.Exercises.Create(ctx, owner, in, keyed(fmt.Sprintf("seed:exercise:%d", i), in))
		if err != nil {
			return res, errors.Wrapf(err, "seed: exercise %d (%s)", i, ex.Name)
		}
		var view services.ExerciseView
		if err := out.Decode(&view); err != nil {
			return res, errors.Wrap(err, "seed: decode exercise")
		}
		res.count(out, &res.Exercises)
		slugs[view.Slug] = view.ID

		for j, rev := range ex.Revisions {
			upd := services.ExerciseUpdate{ExerciseInput: exerciseInput(rev), ExpectedVersion: view.Version}
			out, err := svc.Exercises.Update(ctx, owner, view.ID, upd, keyed(fmt.Sprintf("seed:exercise:%d:rev:%d", i, j), upd))
			if err != nil {
				return res, errors.Wrapf(err, "seed: exercise %d revision %d", i, j)
			}
			if err := out.Decode(&view); err != nil {
				return res, errors.Wrap(err, "seed: decode revision")
			}
			res.count(out, &res.Versions)
		}
	}

	for i, s := range f.Sessions {
		user := ownerOr(s.User)
		started := s.StartedAt
		in := services.SessionInput{
			StartedAt: &started, EndedAt: s.EndedAt, Notes: s.Notes,
			ProgramRef: s.ProgramRef, ProgramWeek: s.ProgramWeek, ProgramDay: s.ProgramDay,
		}
		out, err := svc.Sessions.Create(ctx, user, in, keyed(fmt.Sprintf("seed:session:%d", i), in))
		if err != nil {
			return res, errors.Wrapf(err, "seed: session %d", i)
		}
		var sess domain.Session
		if err := out.Decode(&sess); err != nil {
			return res, errors.Wrap(err, "seed: decode session")
		}
		res.count(out, &res.Sessions)

		for j, set := range s.Sets {
			in, err := setInput(set, slugs)
			if err != nil {
				return res, errors.Wrapf(err, "seed: session %d set %d", i, j)
			}
			out, err := svc.Sets.Create(ctx, user, sess.ID, in, keyed(fmt.Sprintf("seed:session:%d:set:%d", i, j), in))
			if err != nil {
				return res, errors.Wrapf(err, "seed: session %d set %d", i, j)
			}
			res.count(out, &res.Sets)
		}
	}

	log.Info().
		Int("exercises", res.Exercises).
		Int("versions", res.Versions).
		Int("sessions", res.Sessions).
		Int("sets", res.Sets).
		Int("replayed", res.Replayed).
		Msg("seed applied")
	return res, nil
}

func (r *Result) count(out services.Outcome, n *int) {
	if out.Replayed {
		r.Replayed++
		return
	}
	*n++
}

func ownerOr(u string) string {
	if u = strings.TrimSpace(u); u != "" {
		return u
	}
	return "seed"
}

func exerciseInput(ex Exercise) services.ExerciseInput {
	in := services.ExerciseInput{
		Slug:          ex.Slug,
		Name:          ex.Name,
		Description:   ex.Description,
		TargetMuscles: ex.TargetMuscles,
	}
	if ex.RepRange != nil {
		in.DefaultRepRange = &domain.RepRange{Min: ex.RepRange[0], Max: ex.RepRange[1]}
	}
	return in
}

func setInput(s Set, slugs map[string]string) (services.SetInput, error) {
	id, ok := slugs[s.Exercise]
	if !ok {
		return services.SetInput{}, fmt.Errorf("%w: unknown exercise %q", domain.ErrValidation, s.Exercise)
	}
	w, err := decimal.NewFromString(strings.TrimSpace(s.WeightKg))
	if err != nil {
		return services.SetInput{}, fmt.Errorf("%w: weight_kg %q", domain.ErrValidation, s.WeightKg)
	}
	in := services.SetInput{ExerciseID: id, Reps: s.Reps, WeightKg: w}
	if r := strings.TrimSpace(s.RPE); r != "" {
		d, err := decimal.NewFromString(r)
		if err != nil {
			return services.SetInput{}, fmt.Errorf("%w: rpe %q", domain.ErrValidation, s.RPE)
		}
		in.RPE = decimal.NullDecimal{Decimal: d, Valid: true}
	}
	return in, nil
}

// keyed builds the idempotency key and fingerprinted payload of one write.
func keyed(key string, v any) services.Idem {
	b, _ := json.Marshal(v)
	return services.Idem{Key: key, Payload: b}
}
