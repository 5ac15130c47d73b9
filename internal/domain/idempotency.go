package domain

import "time"

// Idempotency record states.
const (
	IdemPending   = "pending"
	IdemCompleted = "completed"
)

// IdempotencyRecord is the ledger row for one client-supplied key, unique
// per (user_id, key). A pending record is a placeholder owned by ClaimToken
// until LeaseExpiresAt; a completed record holds the exact response that
// every replay of the key returns.
type IdempotencyRecord struct {
	ID             string     `gorm:"type:char(36);primaryKey"`
	UserID         string     `gorm:"type:varchar(64);not null;uniqueIndex:ux_idem_user_key,priority:1"`
	Key            string     `gorm:"type:varchar(200);not null;uniqueIndex:ux_idem_user_key,priority:2"`
	Scope          string     `gorm:"type:varchar(128);not null"`
	Fingerprint    string     `gorm:"type:char(64);not null"`
	State          string     `gorm:"type:varchar(16);not null;index;check:state IN ('pending','completed')"`
	ClaimToken     string     `gorm:"type:char(36);not null"`
	LeaseExpiresAt time.Time  `gorm:"not null;index"`
	ResponseStatus int        `gorm:"not null;default:0"`
	ResponseType   string     `gorm:"type:varchar(64)"`
	ResponseBody   []byte     `gorm:"type:blob"`
	CreatedAt      time.Time  `gorm:"not null;index"`
	CompletedAt    *time.Time `gorm:"index"`
}

// TableName implements the GORM tabler interface.
func (IdempotencyRecord) TableName() string { return "idempotency_records" }
