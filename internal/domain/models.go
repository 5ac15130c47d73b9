// Package domain defines the persistence models for the workout log: the
// versioned exercise catalog, training sessions, and the sets performed in
// them. These types are mapped with GORM and shared by the repository, core
// and service layers.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Entity lifecycle states. Deletion of a mutable entity is a terminal state
// transition; rows are never physically removed.
const (
	StatusActive  = "active"
	StatusDeleted = "deleted"
)

// Entity type names used by the audit log and the event bus.
const (
	EntityExercise = "exercise"
	EntitySession  = "session"
	EntitySet      = "set"
)

// Exercise is the logical catalog entry. Its definition lives in an
// append-only chain of ExerciseVersion rows; the exercise row only carries
// identity and the pointer to the current version.
//
// Fields:
//   - ID: stable UUID of the logical exercise.
//   - Slug: unique, URL-safe handle derived from the first name.
//   - CreatedBy: user that created the catalog entry.
//   - CurrentVersionID / CurrentNumber: pointer to the current version; both
//     are advanced together when a new version supersedes the old one.
type Exercise struct {
	ID               string    `json:"id"                 gorm:"type:char(36);primaryKey"`
	Slug             string    `json:"slug"               gorm:"type:varchar(128);not null;uniqueIndex:ux_exercises_slug"`
	CreatedBy        string    `json:"created_by"         gorm:"type:varchar(64);not null;index"`
	CurrentVersionID string    `json:"current_version_id" gorm:"type:char(36);not null"`
	CurrentNumber    int       `json:"current_number"     gorm:"not null;default:1"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName returns the database table name for Exercise.
func (Exercise) TableName() string { return "exercises" }

// RepRange is a suggested repetition range for an exercise.
type RepRange struct {
	Min int `json:"min" example:"8"`
	Max int `json:"max" example:"12"`
}

// ExerciseDefinition is the payload snapshot stored in every version.
type ExerciseDefinition struct {
	Name            string    `json:"name"                        example:"Bench Press"`
	Description     string    `json:"description,omitempty"       example:"Barbell press on a flat bench"`
	TargetMuscles   []string  `json:"target_muscles,omitempty"`
	DefaultRepRange *RepRange `json:"default_rep_range,omitempty"`
}

// ExerciseVersion is one immutable entry of an exercise's version chain.
// Exactly one version per exercise has SupersededAt == nil.
type ExerciseVersion struct {
	ID           string         `json:"id"                      gorm:"type:char(36);primaryKey"`
	ExerciseID   string         `json:"exercise_id"             gorm:"type:char(36);not null;uniqueIndex:ux_exercise_version_number,priority:1"`
	Number       int            `json:"number"                  gorm:"not null;uniqueIndex:ux_exercise_version_number,priority:2"`
	Payload      datatypes.JSON `json:"payload"                 gorm:"not null" swaggertype:"object"`
	CreatedBy    string         `json:"created_by"              gorm:"type:varchar(64);not null"`
	CreatedAt    time.Time      `json:"created_at"`
	SupersededAt *time.Time     `json:"superseded_at,omitempty" gorm:"index"`
}

// TableName returns the database table name for ExerciseVersion.
func (ExerciseVersion) TableName() string { return "exercise_versions" }

// Session is a training session owned by a user. It is a mutable entity
// guarded by LockStamp.
type Session struct {
	ID          string     `json:"id"                     gorm:"type:char(36);primaryKey"`
	UserID      string     `json:"user_id"                gorm:"type:varchar(64);not null;index:idx_user_sessions,priority:1"`
	StartedAt   time.Time  `json:"started_at"             gorm:"not null;index:idx_user_sessions,priority:2"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	Notes       string     `json:"notes,omitempty"        gorm:"type:text"`
	ProgramRef  string     `json:"program_ref,omitempty"  gorm:"type:varchar(64)"`
	ProgramWeek *int       `json:"program_week,omitempty"`
	ProgramDay  *int       `json:"program_day,omitempty"`
	Status      string     `json:"status"                 gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','deleted')"`
	LockStamp   int64      `json:"lock_stamp"             gorm:"not null;default:1"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// TableName returns the database table name for Session.
func (Session) TableName() string { return "sessions" }

// Set is one performed set within a session. ExerciseID is the logical
// exercise (progression partition); ExerciseVersionID pins the definition
// that was current when the set was logged.
type Set struct {
	ID                string              `json:"id"                  gorm:"type:char(36);primaryKey"`
	SessionID         string              `json:"session_id"          gorm:"type:char(36);not null;index:idx_session_sets,priority:1"`
	UserID            string              `json:"user_id"             gorm:"type:varchar(64);not null;index:idx_user_exercise_sets,priority:1"`
	ExerciseID        string              `json:"exercise_id"         gorm:"type:char(36);not null;index:idx_user_exercise_sets,priority:2;index:idx_session_sets,priority:2"`
	ExerciseVersionID string              `json:"exercise_version_id" gorm:"type:char(36);not null;index"`
	SetIndex          int                 `json:"set_index"           gorm:"not null;index:idx_session_sets,priority:3"`
	Reps              int                 `json:"reps"                gorm:"not null;check:reps > 0"`
	WeightKg          decimal.Decimal     `json:"weight_kg"           gorm:"type:varchar(32);not null" swaggertype:"string" example:"82.5"`
	RPE               decimal.NullDecimal `json:"rpe"                 gorm:"type:varchar(8)" swaggertype:"string" example:"8.5"`
	PerformedAt       time.Time           `json:"performed_at"        gorm:"not null;index:idx_user_exercise_sets,priority:3"`
	Status            string              `json:"status"              gorm:"type:varchar(16);not null;default:'active';check:status IN ('active','deleted')"`
	LockStamp         int64               `json:"lock_stamp"          gorm:"not null;default:1"`
	CreatedAt         time.Time           `json:"created_at"`
	UpdatedAt         time.Time           `json:"updated_at"`

	// Session is the parent session.
	Session Session `json:"-" gorm:"foreignKey:SessionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
	// Version is the pinned exercise definition.
	Version ExerciseVersion `json:"-" gorm:"foreignKey:ExerciseVersionID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:RESTRICT"`
}

// TableName returns the database table name for Set.
func (Set) TableName() string { return "sets" }
