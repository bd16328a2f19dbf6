// Package services – FeedbackService
//
// This file implements the operator-facing read and retry operations on
// stored feedback. All calls are tenant-scoped: a record that exists under
// another tenant is reported as ErrFeedbackNotFound.
package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
	"github.com/tbourn/go-feedback-pipeline/internal/utils"
)

// FeedbackRepo is the repository contract FeedbackService depends on.
type FeedbackRepo interface {
	GetFeedback(ctx context.Context, db *gorm.DB, tenantID, id string) (*domain.FeedbackRecord, error)
	CountFeedback(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status) (int64, error)
	ListFeedbackPage(ctx context.Context, db *gorm.DB, tenantID string, status domain.Status, offset, limit int) ([]domain.FeedbackRecord, error)
	ResetForRetry(ctx context.Context, db *gorm.DB, tenantID, id string, now time.Time) error
}

// FeedbackService serves the operator API.
type FeedbackService struct {
	DB    *gorm.DB
	Repo  FeedbackRepo
	Queue queue.Queue
	Now   func() time.Time

	// MaxPageSize caps page sizes; zero means 100.
	MaxPageSize int
}

// Get returns one record of the tenant.
func (s *FeedbackService) Get(ctx context.Context, tenantID, id string) (*domain.FeedbackRecord, error) {
	rec, err := s.Repo.GetFeedback(ctx, s.DB, tenantID, id)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListPage returns a page of the tenant's records, newest first, and the
// total count. An empty status lists every state.
func (s *FeedbackService) ListPage(ctx context.Context, tenantID string, status domain.Status, page, pageSize int) ([]domain.FeedbackRecord, int64, error) {
	ctx, span := otel.Tracer("services/feedback").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("status", string(status)),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	max := s.MaxPageSize
	if max <= 0 {
		max = 100
	}
	p := utils.Page{Number: page, Size: pageSize}.Clamp(20, max)

	total, err := s.Repo.CountFeedback(ctx, s.DB, tenantID, status)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.FeedbackRecord{}, 0, nil
	}
	items, err := s.Repo.ListFeedbackPage(ctx, s.DB, tenantID, status, p.Offset(), p.Size)
	return items, total, err
}

// Retry re-arms a permanently failed record and enqueues it. Records in any
// other state yield ErrNotRetryable.
func (s *FeedbackService) Retry(ctx context.Context, tenantID, id string) (*domain.FeedbackRecord, error) {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now()
	}
	if err := s.Repo.ResetForRetry(ctx, s.DB, tenantID, id, now); err != nil {
		switch {
		case errors.Is(err, repo.ErrNotFound):
			return nil, ErrFeedbackNotFound
		case errors.Is(err, repo.ErrNotRetryable):
			return nil, ErrNotRetryable
		}
		return nil, err
	}
	if s.Queue != nil && !s.Queue.TryEnqueue(id) {
		queueFullTotal.Inc()
		log.Warn().Str("component", "feedback").Str("feedback_id", id).Msg("queue full on manual retry; left for the sweep")
	}
	return s.Get(ctx, tenantID, id)
}
