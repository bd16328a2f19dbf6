package worker

import (
	"context"
	"testing"
	"time"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/queue"
)

func drain(q queue.Queue) map[string]bool {
	out := map[string]bool{}
	for q.Depth() > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
		id, err := q.Dequeue(ctx)
		cancel()
		if err != nil {
			break
		}
		out[id] = true
	}
	return out
}

func TestReconciler_Sweep(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	stalePending := seedPending(t, db, "t1", "stale", nil, now.Add(-10*time.Minute))
	freshPending := seedPending(t, db, "t1", "fresh", nil, now.Add(-10*time.Second))

	expired := seedPending(t, db, "t1", "crashed worker", nil, now.Add(-time.Hour))
	if err := db.Model(&domain.FeedbackRecord{}).Where("id = ?", expired.ID).Updates(map[string]any{
		"status":           domain.StatusProcessing,
		"lease_token":      "dead",
		"lease_expires_at": now.Add(-time.Minute),
		"updated_at":       now.Add(-time.Hour),
	}).Error; err != nil {
		t.Fatalf("seed expired: %v", err)
	}

	live := seedPending(t, db, "t1", "in flight", nil, now.Add(-time.Hour))
	if err := db.Model(&domain.FeedbackRecord{}).Where("id = ?", live.ID).Updates(map[string]any{
		"status":           domain.StatusProcessing,
		"lease_token":      "alive",
		"lease_expires_at": now.Add(time.Minute),
	}).Error; err != nil {
		t.Fatalf("seed live: %v", err)
	}

	overdue := seedPending(t, db, "t1", "retry due", nil, now.Add(-time.Hour))
	if err := db.Model(&domain.FeedbackRecord{}).Where("id = ?", overdue.ID).Updates(map[string]any{
		"status":          domain.StatusFailed,
		"next_attempt_at": now.Add(-5 * time.Minute),
	}).Error; err != nil {
		t.Fatalf("seed overdue: %v", err)
	}

	exhausted := seedPending(t, db, "t1", "gave up", nil, now.Add(-time.Hour))
	if err := db.Model(&domain.FeedbackRecord{}).Where("id = ?", exhausted.ID).Updates(map[string]any{
		"status":          domain.StatusFailed,
		"retry_exhausted": true,
	}).Error; err != nil {
		t.Fatalf("seed exhausted: %v", err)
	}

	q := queue.NewMemory(32)
	r := &Reconciler{DB: db, Queue: q, PendingGrace: 2 * time.Minute, Now: func() time.Time { return now }}

	res, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Reclaimed != 1 {
		t.Fatalf("reclaimed = %d; want 1", res.Reclaimed)
	}

	got := load(t, db, expired.ID)
	if got.Status != domain.StatusPending || got.LeaseToken != nil {
		t.Fatalf("expired lease not reclaimed: status=%q", got.Status)
	}
	if load(t, db, live.ID).Status != domain.StatusProcessing {
		t.Fatalf("live lease must be left alone")
	}

	queued := drain(q)
	for _, id := range []string{expired.ID, stalePending.ID, overdue.ID} {
		if !queued[id] {
			t.Fatalf("expected %s on the queue; got %v", id, queued)
		}
	}
	for _, id := range []string{freshPending.ID, live.ID, exhausted.ID} {
		if queued[id] {
			t.Fatalf("did not expect %s on the queue", id)
		}
	}
}

func TestReconciler_SweepCountsDropped(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		seedPending(t, db, "t1", "old", nil, now.Add(-time.Hour))
	}
	r := &Reconciler{DB: db, Queue: queue.NewMemory(1), Now: func() time.Time { return now }}

	res, err := r.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if res.Requeued != 1 || res.Dropped != 2 {
		t.Fatalf("result = %+v", res)
	}
}

func TestReconciler_DoesNotRequeueTwiceWithinGrace(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	stale := seedPending(t, db, "t1", "backlogged", nil, now.Add(-10*time.Minute))

	q := queue.NewMemory(8)
	r := &Reconciler{DB: db, Queue: q, PendingGrace: 2 * time.Minute, Now: func() time.Time { return now }}

	res, err := r.Sweep(context.Background())
	if err != nil || res.Requeued != 1 {
		t.Fatalf("first sweep = %+v, %v", res, err)
	}
	res, err = r.Sweep(context.Background())
	if err != nil || res.Requeued != 0 {
		t.Fatalf("second sweep = %+v, %v; want nothing requeued", res, err)
	}
	if q.Depth() != 1 {
		t.Fatalf("queue depth = %d; want 1", q.Depth())
	}

	now = now.Add(3 * time.Minute)
	res, err = r.Sweep(context.Background())
	if err != nil || res.Requeued != 1 {
		t.Fatalf("sweep after grace = %+v, %v", res, err)
	}
	if got := drain(q); !got[stale.ID] || len(got) != 1 {
		t.Fatalf("queued = %v", got)
	}
}

func TestReconciler_RunStopsOnCancel(t *testing.T) {
	db := newTestDB(t)
	r := &Reconciler{DB: db, Queue: queue.NewMemory(4), Interval: 5 * time.Millisecond}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Run did not stop")
	}
}
