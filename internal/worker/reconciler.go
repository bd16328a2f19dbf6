package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-feedback-pipeline/internal/queue"
	"github.com/tbourn/go-feedback-pipeline/internal/repo"
)

// Reconciler periodically repairs records the queue lost track of:
//   - processing records whose lease expired go back to pending and are
//     enqueued;
//   - pending records untouched for PendingGrace, and retryable failures
//     overdue by PendingGrace, are enqueued again.
//
// Requeued records are stamped so a still-queued id is not pushed again on
// every sweep while the backlog drains. Enqueuing an id that is already
// queued is harmless; the second claim finds nothing to do.
type Reconciler struct {
	DB           *gorm.DB
	Queue        queue.Queue
	PendingGrace time.Duration
	Interval     time.Duration
	BatchSize    int
	Now          func() time.Time
}

// SweepResult reports what one sweep did.
type SweepResult struct {
	Reclaimed int
	Requeued  int
	Dropped   int // ids that did not fit in the queue
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	now := time.Now().UTC()
	if r.Now != nil {
		now = r.Now()
	}
	batch := r.BatchSize
	if batch <= 0 {
		batch = 500
	}
	grace := r.PendingGrace
	if grace <= 0 {
		grace = 2 * time.Minute
	}

	reclaimed, err := repo.ReclaimExpiredLeases(ctx, r.DB, now, batch)
	res.Reclaimed = len(reclaimed)
	sweepReclaimedTotal.Add(float64(len(reclaimed)))
	for _, id := range reclaimed {
		if !r.Queue.TryEnqueue(id) {
			res.Dropped++
		}
	}
	if err != nil {
		return res, err
	}

	ids, err := repo.ListRequeueCandidates(ctx, r.DB, now.Add(-grace), batch)
	if err != nil {
		return res, err
	}
	queued := make([]string, 0, len(ids))
	for _, id := range ids {
		if r.Queue.TryEnqueue(id) {
			queued = append(queued, id)
		} else {
			res.Dropped++
		}
	}
	res.Requeued = len(queued)
	sweepRequeuedTotal.Add(float64(res.Requeued))
	return res, repo.MarkRequeued(ctx, r.DB, queued, now)
}

// Run sweeps every Interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	interval := r.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}
	lg := log.With().Str("component", "reconciler").Logger()
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			res, err := r.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				lg.Error().Err(err).Msg("sweep failed")
				continue
			}
			if res.Reclaimed+res.Requeued+res.Dropped > 0 {
				lg.Info().
					Int("reclaimed", res.Reclaimed).
					Int("requeued", res.Requeued).
					Int("dropped", res.Dropped).
					Msg("sweep")
			}
		}
	}
}
