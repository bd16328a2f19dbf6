package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// GetIntegration returns the integration configured for (tenantID, provider).
func GetIntegration(ctx context.Context, db *gorm.DB, tenantID string, provider domain.Source) (*domain.Integration, error) {
	var in domain.Integration
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND provider = ?", tenantID, provider).
		First(&in).Error
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// UpsertIntegration creates or replaces the secret and active flag for
// (tenantID, provider).
func UpsertIntegration(ctx context.Context, db *gorm.DB, tenantID string, provider domain.Source, secret string, active bool) error {
	now := time.Now().UTC()
	in := &domain.Integration{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Provider:  provider,
		Secret:    secret,
		Active:    active,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{"secret", "active", "updated_at"}),
	}).Create(in).Error
}
