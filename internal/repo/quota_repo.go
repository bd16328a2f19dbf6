package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// ReserveUsage atomically adds one unit to the (tenant, kind, period)
// counter when the counter is below limit. A limit <= 0 means unlimited; the
// unit is still counted. It reports whether the unit was reserved.
func ReserveUsage(ctx context.Context, db *gorm.DB, tenantID, kind, period string, limit int64) (bool, error) {
	var reserved bool
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		seed := &domain.TenantUsage{TenantID: tenantID, Kind: kind, Period: period, UpdatedAt: now}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(seed).Error; err != nil {
			return err
		}

		q := tx.Model(&domain.TenantUsage{}).
			Where("tenant_id = ? AND kind = ? AND period = ?", tenantID, kind, period)
		if limit > 0 {
			q = q.Where("used < ?", limit)
		}
		res := q.Updates(map[string]any{
			"used":       gorm.Expr("used + 1"),
			"updated_at": now,
		})
		if res.Error != nil {
			return res.Error
		}
		reserved = res.RowsAffected == 1
		return nil
	})
	return reserved, err
}

// GetUsage returns the current counter value, 0 when no row exists.
func GetUsage(ctx context.Context, db *gorm.DB, tenantID, kind, period string) (int64, error) {
	var u domain.TenantUsage
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND kind = ? AND period = ?", tenantID, kind, period).
		Limit(1).Find(&u).Error
	return u.Used, err
}
