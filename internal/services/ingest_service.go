// Package services – IngestService
//
// IngestService is the single entry point for new feedback, whether it came
// from a provider webhook or the manual API. It enforces idempotency on
// (source, source_id), consults the quota collaborator, persists the record
// as pending and hands its id to the classification queue.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

// QuotaAlerter is told when a tenant's ingestion is refused.
type QuotaAlerter interface {
	QuotaExceeded(ctx context.Context, tenantID, kind string) (domain.AlertEvent, bool)
}

// IngestService persists and enqueues normalized records.
type IngestService struct {
	DB *gorm.DB
	// Quota is optional; nil means unlimited.
	Quota QuotaChecker
	Queue queue.Queue
	// Alerts is optional.
	Alerts QuotaAlerter
	Now    func() time.Time
}

func (s *IngestService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// Ingest stores rec for tenantID.
//
// The boolean result is true when a new record was created. A redelivery of
// an already stored (source, source_id) returns the stored record and false,
// without consuming quota or touching the queue.
//
// Errors: ErrInvalidRecord, ErrQuotaExceeded, ErrSourceConflict and
// ErrPersistence (wrapping the store error).
func (s *IngestService) Ingest(ctx context.Context, tenantID string, rec *domain.FeedbackRecord) (*domain.FeedbackRecord, bool, error) {
	ctx, span := otel.Tracer("services/ingest").Start(ctx, "Ingest",
		trace.WithAttributes(
			attribute.String("tenant.id", tenantID),
			attribute.String("feedback.source", string(rec.Source)),
		),
	)
	defer span.End()

	out, created, err := s.ingest(ctx, tenantID, rec)
	result := "created"
	switch {
	case err != nil:
		result = resultLabel(err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case !created:
		result = "duplicate"
	}
	ingestedTotal.WithLabelValues(string(rec.Source), result).Inc()
	if out != nil {
		span.SetAttributes(attribute.String("feedback.id", out.ID), attribute.Bool("feedback.duplicate", !created))
	}
	return out, created, err
}

func (s *IngestService) ingest(ctx context.Context, tenantID string, rec *domain.FeedbackRecord) (*domain.FeedbackRecord, bool, error) {
	tenantID = strings.TrimSpace(tenantID)
	if tenantID == "" {
		return nil, false, fmt.Errorf("%w: tenant id is required", ErrInvalidRecord)
	}
	rec.TenantID = tenantID
	rec.Normalize()
	if err := rec.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}

	if rec.SourceID != nil {
		existing, err := repo.FindBySource(ctx, s.DB, rec.Source, *rec.SourceID)
		switch {
		case err == nil:
			return s.duplicateOf(existing, tenantID)
		case !errors.Is(err, repo.ErrNotFound):
			return nil, false, fmt.Errorf("%w: lookup source ref: %v", ErrPersistence, err)
		}
	}

	if s.Quota != nil {
		ok, err := s.Quota.CheckAndReserve(ctx, tenantID, QuotaKindFeedback)
		if err != nil {
			return nil, false, fmt.Errorf("%w: quota: %v", ErrPersistence, err)
		}
		if !ok {
			if s.Alerts != nil {
				s.Alerts.QuotaExceeded(ctx, tenantID, QuotaKindFeedback)
			}
			return nil, false, ErrQuotaExceeded
		}
	}

	now := s.now()
	rec.ID = uuid.NewString()
	rec.Status = domain.StatusPending
	rec.IsProcessed = false
	rec.CreatedAt = now
	rec.UpdatedAt = now

	if err := repo.CreateFeedback(ctx, s.DB, rec); err != nil {
		if errors.Is(err, repo.ErrDuplicate) && rec.SourceID != nil {
			// Lost an insert race with a concurrent redelivery.
			existing, ferr := repo.FindBySource(ctx, s.DB, rec.Source, *rec.SourceID)
			if ferr == nil {
				return s.duplicateOf(existing, tenantID)
			}
		}
		return nil, false, fmt.Errorf("%w: insert: %v", ErrPersistence, err)
	}

	if s.Queue != nil && !s.Queue.TryEnqueue(rec.ID) {
		queueFullTotal.Inc()
		log.Warn().
			Str("component", "ingest").
			Str("tenant_id", tenantID).
			Str("feedback_id", rec.ID).
			Msg("classification queue full; record left for the sweep")
	}
	return rec, true, nil
}

func (s *IngestService) duplicateOf(existing *domain.FeedbackRecord, tenantID string) (*domain.FeedbackRecord, bool, error) {
	if existing.TenantID != tenantID {
		return nil, false, ErrSourceConflict
	}
	return existing, false, nil
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRecord):
		return "invalid"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota"
	case errors.Is(err, ErrSourceConflict):
		return "conflict"
	default:
		return "error"
	}
}
