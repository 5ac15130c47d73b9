package domain

import (
	"time"

	"gorm.io/datatypes"
)

// Audit mutation kinds.
const (
	MutationCreate = "create"
	MutationUpdate = "update"
	MutationDelete = "delete"
)

// AuditEntry is an insert-only record of one accepted mutation. Seq is the
// store-assigned creation order used when reading an entity's trail.
type AuditEntry struct {
	Seq         int64          `json:"seq"                    gorm:"primaryKey;autoIncrement"`
	ID          string         `json:"id"                     gorm:"type:char(36);not null;uniqueIndex"`
	EntityType  string         `json:"entity_type"            gorm:"type:varchar(32);not null;index:idx_audit_entity,priority:1"`
	EntityID    string         `json:"entity_id"              gorm:"type:char(36);not null;index:idx_audit_entity,priority:2"`
	ActorID     string         `json:"actor_id"               gorm:"type:varchar(64);not null;index"`
	Kind        string         `json:"kind"                   gorm:"type:varchar(16);not null;check:kind IN ('create','update','delete')"`
	BeforeStamp *int64         `json:"before_stamp,omitempty"`
	AfterStamp  *int64         `json:"after_stamp,omitempty"`
	Payload     datatypes.JSON `json:"payload,omitempty"      swaggertype:"object"`
	CreatedAt   time.Time      `json:"created_at"             gorm:"not null"`
}

// TableName implements the GORM tabler interface.
func (AuditEntry) TableName() string { return "audit_entries" }
