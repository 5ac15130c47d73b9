// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the insert-only audit log queries.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/tbourn/go-setlogs-backend/internal/domain"
)

// InsertAudit appends an audit entry. Seq is assigned by the store.
func InsertAudit(ctx context.Context, db *gorm.DB, e *domain.AuditEntry) error {
	return db.WithContext(ctx).Create(e).Error
}

// ListAuditByEntity returns the trail of one entity in creation order.
func ListAuditByEntity(ctx context.Context, db *gorm.DB, entityType, entityID string) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	err := db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", entityType, entityID).
		Order("seq ASC").
		Find(&out).Error
	return out, err
}
