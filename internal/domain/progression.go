package domain

import "time"

// ProgressionGeneration is the invalidation counter for one (user, exercise)
// partition. Every accepted set mutation in the partition advances it in the
// same transaction.
type ProgressionGeneration struct {
	UserID     string    `gorm:"type:varchar(64);primaryKey"`
	ExerciseID string    `gorm:"type:char(36);primaryKey"`
	Generation int64     `gorm:"not null;default:0"`
	UpdatedAt  time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (ProgressionGeneration) TableName() string { return "progression_generations" }

// ReportCacheEntry is a cached progression aggregate tagged with the
// generation it was computed at. Stale rows are left in place and replaced on
// the next miss.
type ReportCacheEntry struct {
	UserID     string    `gorm:"type:varchar(64);primaryKey"`
	ExerciseID string    `gorm:"type:char(36);primaryKey"`
	Window     string    `gorm:"column:report_window;type:varchar(32);primaryKey"`
	Generation int64     `gorm:"not null"`
	Payload    []byte    `gorm:"type:blob;not null"`
	ComputedAt time.Time `gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (ReportCacheEntry) TableName() string { return "report_cache" }
