// Package worker runs classification: a pool of goroutines that take record
// ids off the queue and drive each record through its state machine, and a
// reconciler that repairs what crashes and full queues leave behind.
//
// A worker owns a record only while it holds the lease written by the claim.
// Every later write is conditioned on that lease token, so a worker whose
// lease was reclaimed cannot overwrite the result of the worker that took
// over.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/classify"
	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

// Outcome is what Process did with a record.
type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeRetry     Outcome = "retry"
	OutcomeFailed    Outcome = "failed"
	// OutcomeLost means the lease was reclaimed before the result was
	// written; the result was dropped.
	OutcomeLost Outcome = "lost"
	// OutcomeSkipped means the record was not claimable (already owned,
	// finished, or not yet due).
	OutcomeSkipped Outcome = "skipped"
	// OutcomeAbandoned means the worker stopped mid-flight; the lease will
	// expire and the sweep will return the record to pending.
	OutcomeAbandoned Outcome = "abandoned"
)

// AlertEvaluator receives records after their state change is committed.
type AlertEvaluator interface {
	Evaluate(ctx context.Context, rec *domain.FeedbackRecord) []domain.AlertEvent
	ClassificationFailed(ctx context.Context, rec *domain.FeedbackRecord, cause error) domain.AlertEvent
}

// Pool classifies queued records.
type Pool struct {
	DB         *gorm.DB
	Queue      queue.Queue
	Classifier classify.Classifier
	// Limiter paces classifier calls across all workers; nil means no limit.
	Limiter   *rate.Limiter
	Policy    RetryPolicy
	Alerts    AlertEvaluator
	Publisher fanout.Publisher

	Concurrency  int
	Timeout      time.Duration
	LeaseTimeout time.Duration
	MaxAttempts  int
	Now          func() time.Time
}

func (p *Pool) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now().UTC()
}

func (p *Pool) logger() zerolog.Logger {
	return log.With().Str("component", "worker").Logger()
}

// Run starts Concurrency workers and blocks until ctx ends or the queue is
// closed.
func (p *Pool) Run(ctx context.Context) error {
	n := p.Concurrency
	if n < 1 {
		n = 1
	}
	lg := p.logger()
	lg.Info().Int("concurrency", n).Msg("starting classification workers")

	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < n; i++ {
		workerID := i + 1
		g.Go(func() error { return p.loop(ctx, workerID) })
	}
	err := g.Wait()
	lg.Info().Msg("classification workers stopped")
	return err
}

func (p *Pool) loop(ctx context.Context, workerID int) error {
	lg := p.logger().With().Int("worker_id", workerID).Logger()
	for {
		id, err := p.Queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrClosed) || ctx.Err() != nil {
				return nil
			}
			lg.Warn().Err(err).Msg("dequeue failed")
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}
		p.processSafely(ctx, lg, id)
	}
}

func (p *Pool) processSafely(ctx context.Context, lg zerolog.Logger, id string) {
	defer func() {
		if r := recover(); r != nil {
			lg.Error().Str("feedback_id", id).Interface("panic", r).Msg("classification panic; lease left to expire")
		}
	}()
	outcome, err := p.Process(ctx, id)
	if err != nil {
		lg.Error().Err(err).Str("feedback_id", id).Str("outcome", string(outcome)).Msg("process feedback")
		return
	}
	lg.Debug().Str("feedback_id", id).Str("outcome", string(outcome)).Msg("processed feedback")
}

// Process claims the record, classifies it and commits the result. It
// returns an error only for store failures; classifier failures are folded
// into the record's state and reported through the outcome.
func (p *Pool) Process(ctx context.Context, id string) (Outcome, error) {
	ctx, span := otel.Tracer("worker").Start(ctx, "Process",
		trace.WithAttributes(attribute.String("feedback.id", id)))
	defer span.End()

	outcome, err := p.process(ctx, id)
	classificationsTotal.WithLabelValues(string(outcome)).Inc()
	span.SetAttributes(attribute.String("outcome", string(outcome)))
	if err != nil {
		span.RecordError(err)
	}
	return outcome, err
}

func (p *Pool) process(ctx context.Context, id string) (Outcome, error) {
	now := p.now()
	lease := p.LeaseTimeout
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	token := uuid.NewString()

	ok, err := repo.ClaimFeedback(ctx, p.DB, id, token, now, now.Add(lease))
	if err != nil {
		return OutcomeSkipped, fmt.Errorf("claim %s: %w", id, err)
	}
	if !ok {
		return OutcomeSkipped, nil
	}
	rec, err := repo.GetFeedback(ctx, p.DB, "", id)
	if err != nil {
		return OutcomeAbandoned, fmt.Errorf("load %s: %w", id, err)
	}

	if p.Limiter != nil {
		if err := p.Limiter.Wait(ctx); err != nil {
			return OutcomeAbandoned, nil
		}
	}

	res, cerr := p.classify(ctx, rec)
	if ctx.Err() != nil {
		return OutcomeAbandoned, nil
	}
	if cerr != nil {
		return p.fail(ctx, rec, token, classify.AsError(cerr))
	}
	return p.complete(ctx, rec, token, res)
}

func (p *Pool) classify(ctx context.Context, rec *domain.FeedbackRecord) (*classify.Result, error) {
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	res, err := p.Classifier.Classify(cctx, classify.Request{
		Content:  rec.Content,
		Rating:   rec.Rating,
		Language: rec.Language,
	})
	classifyDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	if err := classify.ValidateResult(res); err != nil {
		return nil, err
	}
	return res, nil
}

func (p *Pool) complete(ctx context.Context, rec *domain.FeedbackRecord, token string, res *classify.Result) (Outcome, error) {
	urgency := classify.DeriveUrgency(res.Sentiment, res.SentimentScore, rec.Rating)
	if res.Urgency != nil {
		urgency = *res.Urgency
	}
	categories := res.Categories
	if categories == nil {
		categories = []string{}
	}
	emotions := res.Emotions
	if emotions == nil {
		emotions = map[string]float64{}
	}

	now := p.now()
	err := repo.CompleteClassification(ctx, p.DB, rec.ID, token, repo.Classification{
		Sentiment:      res.Sentiment,
		SentimentScore: res.SentimentScore,
		Urgency:        urgency,
		Categories:     categories,
		Emotions:       emotions,
	}, now)
	lg := p.logger()
	if errors.Is(err, repo.ErrLeaseLost) {
		lg.Warn().Str("feedback_id", rec.ID).Msg("lease lost before completion; result dropped")
		return OutcomeLost, nil
	}
	if err != nil {
		return OutcomeAbandoned, fmt.Errorf("complete %s: %w", rec.ID, err)
	}

	score := res.SentimentScore
	rec.Status = domain.StatusCompleted
	rec.IsProcessed = true
	rec.Sentiment = res.Sentiment
	rec.SentimentScore = &score
	rec.Urgency = urgency
	rec.Categories = categories
	rec.ClassifiedAt = &now

	if p.Alerts != nil {
		p.Alerts.Evaluate(ctx, rec)
	}
	if p.Publisher != nil {
		if err := p.Publisher.Publish(ctx, fanout.ClassifiedEvent(rec, now)); err != nil {
			lg.Warn().Err(err).Str("feedback_id", rec.ID).Msg("publish classified event")
		}
	}
	return OutcomeCompleted, nil
}

func (p *Pool) fail(ctx context.Context, rec *domain.FeedbackRecord, token string, cause *classify.Error) (Outcome, error) {
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	now := p.now()
	lg := p.logger().With().
		Str("feedback_id", rec.ID).
		Str("tenant_id", rec.TenantID).
		Int("attempt", rec.Attempts).
		Str("error_kind", string(cause.Kind)).
		Logger()

	if cause.Retryable() && rec.Attempts < maxAttempts {
		delay := p.Policy.Backoff(rec.Attempts, cause)
		err := repo.ScheduleRetry(ctx, p.DB, rec.ID, token, cause.Error(), now.Add(delay), now)
		if errors.Is(err, repo.ErrLeaseLost) {
			return OutcomeLost, nil
		}
		if err != nil {
			return OutcomeAbandoned, fmt.Errorf("schedule retry %s: %w", rec.ID, err)
		}
		id, q := rec.ID, p.Queue
		time.AfterFunc(delay, func() {
			if q != nil {
				q.TryEnqueue(id)
			}
		})
		lg.Info().Dur("retry_in", delay).Msg("classification failed; retry scheduled")
		return OutcomeRetry, nil
	}

	err := repo.MarkFailed(ctx, p.DB, rec.ID, token, cause.Error(), now)
	if errors.Is(err, repo.ErrLeaseLost) {
		return OutcomeLost, nil
	}
	if err != nil {
		return OutcomeAbandoned, fmt.Errorf("mark failed %s: %w", rec.ID, err)
	}
	rec.Status = domain.StatusFailed
	rec.RetryExhausted = true
	rec.LastError = cause.Error()
	lg.Warn().Msg("classification failed permanently")

	if p.Alerts != nil {
		p.Alerts.ClassificationFailed(ctx, rec, cause)
	}
	return OutcomeFailed, nil
}
