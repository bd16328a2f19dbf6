// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// FeedbackRecord model.
//
// The repository stays thin: it composes queries and conditional updates and
// leaves the state machine rules to the services and worker packages.
//
// Error semantics:
//   - Missing rows are reported as ErrNotFound.
//   - Unique violations on (source, source_id) are reported as ErrDuplicate.
//   - Conditional updates that match no row because the caller no longer
//     holds the lease are reported as ErrLeaseLost.
//   - Any other driver error is returned unchanged.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = gorm.ErrRecordNotFound

	// ErrDuplicate indicates a record with the same (source, source_id)
	// already exists.
	ErrDuplicate = errors.New("duplicate")

	// ErrLeaseLost is returned when a worker writes to a record whose lease it
	// no longer owns (reclaimed by the sweep and possibly claimed by another
	// worker).
	ErrLeaseLost = errors.New("lease lost")

	// ErrNotRetryable is returned by ResetForRetry when the record is not in
	// an exhausted failed state.
	ErrNotRetryable = errors.New("record is not retryable")
)

// Classification carries the outputs written when a record completes.
type Classification struct {
	Sentiment      domain.Sentiment
	SentimentScore float64
	Urgency        domain.Urgency
	Categories     []string
	Emotions       map[string]float64
}

// CreateFeedback inserts rec. The caller sets ID, status and timestamps.
func CreateFeedback(ctx context.Context, db *gorm.DB, rec *domain.FeedbackRecord) error {
	if err := db.WithContext(ctx).Create(rec).Error; err != nil {
		if IsDuplicate(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// IsDuplicate reports whether err is a unique-constraint violation across
// drivers that may not map to gorm.ErrDuplicatedKey.
func IsDuplicate(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || errors.Is(err, ErrDuplicate) {
		return true
	}
	// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint") ||
		strings.Contains(low, "constraint failed: unique") ||
		strings.Contains(low, "duplicate key")
}

// GetFeedback fetches a record by id. An empty tenantID skips the tenant
// filter (used by workers, which only know the id).
func GetFeedback(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.FeedbackRecord, error) {
	q := db.WithContext(ctx).Where("id = ?", id)
	if tenantID != "" {
		q = q.Where("tenant_id = ?", tenantID)
	}
	var rec domain.FeedbackRecord
	if err := q.First(&rec).Error; err != nil {
		return nil, err
	}
	return &rec, nil
}

// FindBySource returns the record ingested for (source, sourceID).
func FindBySource(ctx context.Context, db *gorm.DB, source domain.Source, sourceID string) (*domain.FeedbackRecord, error) {
	var rec domain.FeedbackRecord
	err := db.WithContext(ctx).
		Where("source = ? AND source_id = ?", source, sourceID).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListFeedbackPage returns a page of a tenant's records, newest first.
// An empty status lists every state.
func ListFeedbackPage(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status, offset, limit int) ([]domain.FeedbackRecord, error) {
	var out []domain.FeedbackRecord
	err := scopeTenantStatus(db.WithContext(ctx), tenantID, status).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CountFeedback counts a tenant's records, optionally filtered by status.
func CountFeedback(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status) (int64, error) {
	var n int64
	err := scopeTenantStatus(db.WithContext(ctx).Model(&domain.FeedbackRecord{}), tenantID, status).
		Count(&n).Error
	return n, err
}

func scopeTenantStatus(q *gorm.DB, tenantID string, status domain.Status) *gorm.DB {
	q = q.Where("tenant_id = ?", tenantID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	return q
}

// ClaimFeedback moves a record into processing under a new lease.
//
// The claim succeeds only from pending, or from a failed record that still
// has retries left and whose next attempt time has passed. It increments the
// attempt counter. The boolean is false when another worker owns the record
// or it is not claimable.
func ClaimFeedback(ctx context.Context, db *gorm.DB, id, token string, now, leaseUntil time.Time) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("id = ?", id).
		Where(
			db.Where("status = ?", domain.StatusPending).
				Or("status = ? AND retry_exhausted = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)",
					domain.StatusFailed, false, now),
		).
		Updates(map[string]any{
			"status":           domain.StatusProcessing,
			"is_processed":     false,
			"lease_token":      token,
			"lease_expires_at": leaseUntil,
			"attempts":         gorm.Expr("attempts + 1"),
			"updated_at":       now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// CompleteClassification writes classification outputs and marks the record
// completed in one statement, provided token still owns the lease.
func CompleteClassification(ctx context.Context, db *gorm.DB, id, token string, c Classification, now time.Time) error {
	return updateLeased(ctx, db, id, token, map[string]any{
		"status":           domain.StatusCompleted,
		"is_processed":     true,
		"sentiment":        c.Sentiment,
		"sentiment_score":  c.SentimentScore,
		"urgency":          c.Urgency,
		"categories":       datatypes.NewJSONSlice(c.Categories),
		"emotions":         datatypes.NewJSONType(c.Emotions),
		"classified_at":    now,
		"lease_token":      nil,
		"lease_expires_at": nil,
		"next_attempt_at":  nil,
		"last_error":       "",
		"updated_at":       now,
	})
}

// ScheduleRetry releases the lease and parks the record as a retryable
// failure until nextAt.
func ScheduleRetry(ctx context.Context, db *gorm.DB, id, token, lastErr string, nextAt, now time.Time) error {
	return updateLeased(ctx, db, id, token, map[string]any{
		"status":           domain.StatusFailed,
		"is_processed":     false,
		"retry_exhausted":  false,
		"next_attempt_at":  nextAt,
		"last_error":       lastErr,
		"lease_token":      nil,
		"lease_expires_at": nil,
		"updated_at":       now,
	})
}

// MarkFailed marks the record permanently failed.
func MarkFailed(ctx context.Context, db *gorm.DB, id, token, lastErr string, now time.Time) error {
	return updateLeased(ctx, db, id, token, map[string]any{
		"status":           domain.StatusFailed,
		"is_processed":     false,
		"retry_exhausted":  true,
		"next_attempt_at":  nil,
		"last_error":       lastErr,
		"lease_token":      nil,
		"lease_expires_at": nil,
		"updated_at":       now,
	})
}

func updateLeased(ctx context.Context, db *gorm.DB, id, token string, fields map[string]any) error {
	res := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("id = ? AND status = ? AND lease_token = ?", id, domain.StatusProcessing, token).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrLeaseLost
	}
	return nil
}

// ResetForRetry re-arms an exhausted failed record for another round of
// attempts. The record stays failed and becomes claimable immediately.
func ResetForRetry(ctx context.Context, db *gorm.DB, tenantID, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("id = ? AND tenant_id = ? AND status = ? AND retry_exhausted = ?", id, tenantID, domain.StatusFailed, true).
		Updates(map[string]any{
			"attempts":        0,
			"retry_exhausted": false,
			"next_attempt_at": nil,
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := GetFeedback(ctx, db, tenantID, id); err != nil {
			return err
		}
		return ErrNotRetryable
	}
	return nil
}

// ReclaimExpiredLeases returns records stuck in processing past their lease
// to pending and reports their ids. Each row is reclaimed with a conditional
// update so a worker that finishes concurrently keeps its result.
func ReclaimExpiredLeases(ctx context.Context, db *gorm.DB, now time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("status = ? AND lease_expires_at < ?", domain.StatusProcessing, now).
		Order("lease_expires_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}

	reclaimed := make([]string, 0, len(ids))
	for _, id := range ids {
		res := db.WithContext(ctx).
			Model(&domain.FeedbackRecord{}).
			Where("id = ? AND status = ? AND lease_expires_at < ?", id, domain.StatusProcessing, now).
			Updates(map[string]any{
				"status":           domain.StatusPending,
				"lease_token":      nil,
				"lease_expires_at": nil,
				"updated_at":       now,
			})
		if res.Error != nil {
			return reclaimed, res.Error
		}
		if res.RowsAffected == 1 {
			reclaimed = append(reclaimed, id)
		}
	}
	return reclaimed, nil
}

// ListRequeueCandidates returns ids of records that should be on the queue
// but may not be: pending records untouched since olderThan, and retryable
// failures whose next attempt is due before olderThan.
func ListRequeueCandidates(ctx context.Context, db *gorm.DB, olderThan time.Time, limit int) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("status = ? AND updated_at < ?", domain.StatusPending, olderThan).
		Or("status = ? AND retry_exhausted = ? AND next_attempt_at < ?", domain.StatusFailed, false, olderThan).
		Order("updated_at ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}

// MarkRequeued stamps records the sweep just put back on the queue so the
// next sweep leaves them alone for another grace period: pending records get
// a fresh updated_at and due retries get next_attempt_at = now, which keeps
// them claimable. Records claimed in the meantime are not touched.
func MarkRequeued(ctx context.Context, db *gorm.DB, ids []string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	err := db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("id IN ? AND status = ?", ids, domain.StatusPending).
		Update("updated_at", now).Error
	if err != nil {
		return err
	}
	return db.WithContext(ctx).
		Model(&domain.FeedbackRecord{}).
		Where("id IN ? AND status = ? AND retry_exhausted = ?", ids, domain.StatusFailed, false).
		Updates(map[string]any{"next_attempt_at": now, "updated_at": now}).Error
}
