package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/go-feedback-pipeline/internal/alerts"
	"github.com/tbourn/go-feedback-pipeline/internal/classify"
	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:worker_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One connection keeps shared-cache sqlite from reporting table locks
	// when several workers write at once.
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func intp(i int) *int { return &i }

func seedPending(t *testing.T, db *gorm.DB, tenant, content string, rating *int, at time.Time) *domain.FeedbackRecord {
	t.Helper()
	rec := &domain.FeedbackRecord{
		ID:           uuid.NewString(),
		TenantID:     tenant,
		Source:       domain.SourceAppStore,
		Content:      content,
		Rating:       rating,
		Language:     "en",
		Status:       domain.StatusPending,
		OriginalData: datatypes.JSON(`{"body":"x"}`),
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

func load(t *testing.T, db *gorm.DB, id string) *domain.FeedbackRecord {
	t.Helper()
	rec, err := repo.GetFeedback(context.Background(), db, "", id)
	if err != nil {
		t.Fatalf("load %s: %v", id, err)
	}
	return rec
}

type stubClassifier struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req classify.Request) (*classify.Result, error)
}

func (s *stubClassifier) Classify(ctx context.Context, req classify.Request) (*classify.Result, error) {
	s.calls.Add(1)
	return s.fn(ctx, req)
}

func negative(score float64) func(context.Context, classify.Request) (*classify.Result, error) {
	return func(context.Context, classify.Request) (*classify.Result, error) {
		return &classify.Result{
			Sentiment:      domain.SentimentNegative,
			SentimentScore: score,
			Categories:     []string{"bug"},
			Emotions:       map[string]float64{"frustration": 0.9},
		}, nil
	}
}

type capture struct {
	mu     sync.Mutex
	events []fanout.Event
}

func (c *capture) Publish(_ context.Context, ev fanout.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capture) count(typ fanout.EventType, alert domain.AlertType) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, ev := range c.events {
		if ev.Type != typ {
			continue
		}
		if typ == fanout.EventAlert && ev.Alert.Type != alert {
			continue
		}
		n++
	}
	return n
}

type clock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *clock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *clock) add(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newPool(t *testing.T, db *gorm.DB, cls classify.Classifier) (*Pool, *capture, *clock) {
	t.Helper()
	clk := &clock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	pub := &capture{}
	ev := alerts.New(time.Hour, 5, 50, pub)
	ev.Now = clk.now
	return &Pool{
		DB:           db,
		Queue:        queue.NewMemory(16),
		Classifier:   cls,
		Policy:       RetryPolicy{Base: time.Millisecond, Max: time.Millisecond},
		Alerts:       ev,
		Publisher:    pub,
		Concurrency:  1,
		Timeout:      time.Second,
		LeaseTimeout: time.Minute,
		MaxAttempts:  3,
		Now:          clk.now,
	}, pub, clk
}

func TestProcess_CompletesAndPublishes(t *testing.T) {
	db := newTestDB(t)
	p, pub, clk := newPool(t, db, &stubClassifier{fn: negative(-0.9)})
	rec := seedPending(t, db, "t1", "crashes on launch", intp(1), clk.now())

	out, err := p.Process(context.Background(), rec.ID)
	if err != nil || out != OutcomeCompleted {
		t.Fatalf("Process = %q, %v", out, err)
	}

	got := load(t, db, rec.ID)
	if got.Status != domain.StatusCompleted || !got.IsProcessed {
		t.Fatalf("status = %q processed=%v", got.Status, got.IsProcessed)
	}
	if got.Sentiment != domain.SentimentNegative || got.SentimentScore == nil || *got.SentimentScore != -0.9 {
		t.Fatalf("sentiment = %q %v", got.Sentiment, got.SentimentScore)
	}
	if got.Urgency != domain.UrgencyHigh {
		t.Fatalf("derived urgency = %q; want high", got.Urgency)
	}
	if got.LeaseToken != nil || got.ClassifiedAt == nil || got.Attempts != 1 {
		t.Fatalf("bookkeeping: lease=%v classified=%v attempts=%d", got.LeaseToken, got.ClassifiedAt, got.Attempts)
	}
	if len(got.Categories) != 1 || got.Emotions.Data()["frustration"] != 0.9 {
		t.Fatalf("categories=%v emotions=%v", got.Categories, got.Emotions.Data())
	}
	if pub.count(fanout.EventFeedbackClassified, "") != 1 {
		t.Fatalf("expected one classified event")
	}
	if pub.count(fanout.EventAlert, domain.AlertUrgentFeedback) != 1 {
		t.Fatalf("expected one urgent_feedback alert")
	}
}

func TestProcess_ClassifierUrgencyWins(t *testing.T) {
	db := newTestDB(t)
	low := domain.UrgencyLow
	cls := &stubClassifier{fn: func(context.Context, classify.Request) (*classify.Result, error) {
		return &classify.Result{Sentiment: domain.SentimentNegative, SentimentScore: -0.9, Urgency: &low}, nil
	}}
	p, _, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "meh", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeCompleted {
		t.Fatalf("outcome = %q", out)
	}
	if got := load(t, db, rec.ID); got.Urgency != domain.UrgencyLow {
		t.Fatalf("urgency = %q; want low", got.Urgency)
	}
}

func TestProcess_SkipsUnclaimable(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: negative(-0.2)}
	p, _, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "ok", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeCompleted {
		t.Fatalf("first outcome = %q", out)
	}
	// A duplicate queue entry for a finished record does nothing.
	if out, err := p.Process(context.Background(), rec.ID); out != OutcomeSkipped || err != nil {
		t.Fatalf("second outcome = %q, %v", out, err)
	}
	if out, _ := p.Process(context.Background(), uuid.NewString()); out != OutcomeSkipped {
		t.Fatalf("unknown id outcome = %q", out)
	}
	if cls.calls.Load() != 1 {
		t.Fatalf("classifier calls = %d; want 1", cls.calls.Load())
	}
}

func TestProcess_RateLimitedThenSucceeds(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{}
	cls.fn = func(ctx context.Context, req classify.Request) (*classify.Result, error) {
		if cls.calls.Load() <= 3 {
			return nil, &classify.Error{Kind: classify.KindRateLimited, RetryAfter: 2 * time.Millisecond}
		}
		return negative(-0.3)(ctx, req)
	}
	p, pub, clk := newPool(t, db, cls)
	p.MaxAttempts = 5
	rec := seedPending(t, db, "t1", "slow sync", nil, clk.now())

	for i := 1; i <= 3; i++ {
		out, err := p.Process(context.Background(), rec.ID)
		if err != nil || out != OutcomeRetry {
			t.Fatalf("attempt %d: %q, %v", i, out, err)
		}
		got := load(t, db, rec.ID)
		if got.Status != domain.StatusFailed || got.RetryExhausted || got.NextAttemptAt == nil {
			t.Fatalf("attempt %d: status=%q exhausted=%v next=%v", i, got.Status, got.RetryExhausted, got.NextAttemptAt)
		}
		if got.Attempts != i {
			t.Fatalf("attempts = %d; want %d", got.Attempts, i)
		}
		// Not due yet.
		if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeSkipped {
			t.Fatalf("early claim outcome = %q", out)
		}
		clk.add(time.Second)
	}

	out, err := p.Process(context.Background(), rec.ID)
	if err != nil || out != OutcomeCompleted {
		t.Fatalf("final attempt: %q, %v", out, err)
	}
	got := load(t, db, rec.ID)
	if got.Status != domain.StatusCompleted || got.Attempts != 4 || got.LastError != "" || got.NextAttemptAt != nil {
		t.Fatalf("final record: %+v", got)
	}
	if pub.count(fanout.EventFeedbackClassified, "") != 1 {
		t.Fatalf("expected exactly one classified event")
	}
	if pub.count(fanout.EventAlert, domain.AlertIntegrationError) != 0 {
		t.Fatalf("transient failures must not raise integration_error")
	}
}

func TestProcess_PermanentFailure(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: func(context.Context, classify.Request) (*classify.Result, error) {
		return nil, &classify.Error{Kind: classify.KindInvalidInput, Err: errors.New("content too long")}
	}}
	p, pub, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	out, err := p.Process(context.Background(), rec.ID)
	if err != nil || out != OutcomeFailed {
		t.Fatalf("Process = %q, %v", out, err)
	}
	got := load(t, db, rec.ID)
	if got.Status != domain.StatusFailed || !got.RetryExhausted || got.IsProcessed {
		t.Fatalf("record: status=%q exhausted=%v processed=%v", got.Status, got.RetryExhausted, got.IsProcessed)
	}
	if got.LastError == "" || got.Sentiment != "" {
		t.Fatalf("last_error=%q sentiment=%q", got.LastError, got.Sentiment)
	}
	if pub.count(fanout.EventAlert, domain.AlertIntegrationError) != 1 {
		t.Fatalf("expected one integration_error alert")
	}
	clk.add(time.Hour)
	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeSkipped {
		t.Fatalf("exhausted record must not be claimable, got %q", out)
	}
}

func TestProcess_InvalidResponseIsPermanent(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: func(context.Context, classify.Request) (*classify.Result, error) {
		return &classify.Result{Sentiment: domain.SentimentPositive, SentimentScore: 3}, nil
	}}
	p, _, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeFailed {
		t.Fatalf("outcome = %q; want failed", out)
	}
	if got := load(t, db, rec.ID); got.SentimentScore != nil {
		t.Fatalf("out-of-range score must not be stored")
	}
}

func TestProcess_MaxAttemptsExhausted(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: func(context.Context, classify.Request) (*classify.Result, error) {
		return nil, &classify.Error{Kind: classify.KindServiceUnavailable}
	}}
	p, pub, clk := newPool(t, db, cls)
	p.MaxAttempts = 2
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeRetry {
		t.Fatalf("first outcome = %q", out)
	}
	clk.add(time.Second)
	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeFailed {
		t.Fatalf("second outcome = %q", out)
	}
	got := load(t, db, rec.ID)
	if !got.RetryExhausted || got.Attempts != 2 {
		t.Fatalf("exhausted=%v attempts=%d", got.RetryExhausted, got.Attempts)
	}
	if pub.count(fanout.EventAlert, domain.AlertIntegrationError) != 1 {
		t.Fatalf("expected integration_error once")
	}
}

func TestProcess_TimeoutIsRetryable(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: func(ctx context.Context, _ classify.Request) (*classify.Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	p, _, clk := newPool(t, db, cls)
	p.Timeout = 10 * time.Millisecond
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeRetry {
		t.Fatalf("outcome = %q; want retry", out)
	}
	if got := load(t, db, rec.ID); got.LastError == "" {
		t.Fatalf("expected last_error to record the timeout")
	}
}

func TestProcess_LeaseLostDropsResult(t *testing.T) {
	db := newTestDB(t)
	var clk *clock
	cls := &stubClassifier{}
	cls.fn = func(ctx context.Context, req classify.Request) (*classify.Result, error) {
		if cls.calls.Load() == 1 {
			// While this call is slow, the sweep reclaims the lease and a
			// second worker finishes the record.
			later := clk.now().Add(2 * time.Minute)
			ids, err := repo.ReclaimExpiredLeases(ctx, db, later, 10)
			if err != nil || len(ids) != 1 {
				t.Errorf("reclaim: %v %v", ids, err)
				return negative(-0.9)(ctx, req)
			}
			ok, err := repo.ClaimFeedback(ctx, db, ids[0], "other-worker", later, later.Add(time.Minute))
			if err != nil || !ok {
				t.Errorf("second claim: %v %v", ok, err)
			}
			err = repo.CompleteClassification(ctx, db, ids[0], "other-worker", repo.Classification{
				Sentiment:      domain.SentimentPositive,
				SentimentScore: 0.7,
				Urgency:        domain.UrgencyLow,
				Categories:     []string{"praise"},
				Emotions:       map[string]float64{},
			}, later)
			if err != nil {
				t.Errorf("second complete: %v", err)
			}
		}
		return negative(-0.9)(ctx, req)
	}
	p, pub, c := newPool(t, db, cls)
	clk = c
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	out, err := p.Process(context.Background(), rec.ID)
	if err != nil || out != OutcomeLost {
		t.Fatalf("Process = %q, %v", out, err)
	}
	got := load(t, db, rec.ID)
	if got.Sentiment != domain.SentimentPositive || got.Attempts != 2 {
		t.Fatalf("stale worker overwrote result: sentiment=%q attempts=%d", got.Sentiment, got.Attempts)
	}
	if pub.count(fanout.EventFeedbackClassified, "") != 0 {
		t.Fatalf("lost result must not be published")
	}
}

func TestProcess_CancelledLeavesLease(t *testing.T) {
	db := newTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cls := &stubClassifier{fn: func(c context.Context, _ classify.Request) (*classify.Result, error) {
		cancel()
		return nil, c.Err()
	}}
	p, _, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	if out, _ := p.Process(ctx, rec.ID); out != OutcomeAbandoned {
		t.Fatalf("outcome = %q; want abandoned", out)
	}
	got := load(t, db, rec.ID)
	if got.Status != domain.StatusProcessing || got.LeaseExpiresAt == nil {
		t.Fatalf("status=%q lease=%v", got.Status, got.LeaseExpiresAt)
	}
}

func TestPool_RunDrainsQueue(t *testing.T) {
	db := newTestDB(t)
	p, pub, clk := newPool(t, db, &stubClassifier{fn: negative(-0.1)})
	p.Concurrency = 3

	var ids []string
	for i := 0; i < 6; i++ {
		rec := seedPending(t, db, "t1", fmt.Sprintf("item %d", i), nil, clk.now())
		ids = append(ids, rec.ID)
		if !p.Queue.TryEnqueue(rec.ID) {
			t.Fatalf("enqueue %d", i)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := repo.CountFeedback(context.Background(), db, "t1", domain.StatusCompleted)
		if err != nil {
			t.Fatalf("count: %v", err)
		}
		if n == int64(len(ids)) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("only %d of %d records completed", n, len(ids))
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after cancel")
	}
	if pub.count(fanout.EventFeedbackClassified, "") != len(ids) {
		t.Fatalf("classified events = %d", pub.count(fanout.EventFeedbackClassified, ""))
	}
}

func TestPool_RunStopsOnClosedQueue(t *testing.T) {
	db := newTestDB(t)
	p, _, _ := newPool(t, db, &stubClassifier{fn: negative(0)})
	p.Concurrency = 2
	done := make(chan error, 1)
	go func() { done <- p.Run(context.Background()) }()
	p.Queue.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop after Close")
	}
}

func TestProcess_RetryReenqueues(t *testing.T) {
	db := newTestDB(t)
	cls := &stubClassifier{fn: func(context.Context, classify.Request) (*classify.Result, error) {
		return nil, &classify.Error{Kind: classify.KindTimeout}
	}}
	p, _, clk := newPool(t, db, cls)
	rec := seedPending(t, db, "t1", "x", nil, clk.now())

	if out, _ := p.Process(context.Background(), rec.ID); out != OutcomeRetry {
		t.Fatalf("outcome = %q", out)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	id, err := p.Queue.Dequeue(ctx)
	if err != nil || id != rec.ID {
		t.Fatalf("retry was not re-enqueued: %q %v", id, err)
	}
}
