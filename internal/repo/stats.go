// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// FeedbackStats returns the number of a tenant's records (optionally filtered
// by status) and the greatest UpdatedAt among them. When there are no rows,
// the count is 0 and maxUpdatedAt is nil.
func FeedbackStats(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status) (count int64, maxUpdatedAt *time.Time, err error) {
	q := scopeTenantStatus(db.WithContext(ctx).Model(&domain.FeedbackRecord{}), tenantID, status)

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	q = scopeTenantStatus(db.WithContext(ctx).Model(&domain.FeedbackRecord{}), tenantID, status)
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}
