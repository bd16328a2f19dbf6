// Package queue carries feedback record ids from the ingest path to the
// classification workers.
//
// The queue holds ids only; the record store remains the source of truth.
// Losing queued ids (process restart, Redis flush) is recoverable because
// the reconciliation sweep re-enqueues every record that should be queued.
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ErrClosed is returned by blocking operations after Close.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded FIFO of record ids.
type Queue interface {
	// TryEnqueue adds id without blocking and reports whether it fit.
	TryEnqueue(id string) bool
	// Enqueue blocks until id fits, ctx ends, or the queue closes.
	Enqueue(ctx context.Context, id string) error
	// Dequeue blocks until an id is available, ctx ends, or the queue closes.
	Dequeue(ctx context.Context) (string, error)
	Depth() int
	Capacity() int
	Close() error
}

// DefaultCapacity is used when a non-positive capacity is requested.
const DefaultCapacity = 1024

type memory struct {
	ch        chan string
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemory returns an in-process queue backed by a buffered channel.
func NewMemory(capacity int) Queue {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &memory{
		ch:   make(chan string, capacity),
		done: make(chan struct{}),
	}
}

func (q *memory) TryEnqueue(id string) bool {
	if id == "" || q.closed() {
		return false
	}
	select {
	case q.ch <- id:
		return true
	default:
		return false
	}
}

func (q *memory) Enqueue(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("empty id")
	}
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- id:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrClosed
	}
}

func (q *memory) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-q.done:
		return "", ErrClosed
	}
}

func (q *memory) Depth() int    { return len(q.ch) }
func (q *memory) Capacity() int { return cap(q.ch) }

// Close wakes blocked callers. The channel itself stays open so late
// producers never panic.
func (q *memory) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}

func (q *memory) closed() bool {
	select {
	case <-q.done:
		return true
	default:
		return false
	}
}

// NewDepthGauge exposes the queue depth as feedback_queue_depth. The caller
// registers it.
func NewDepthGauge(q Queue) prometheus.GaugeFunc {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "feedback_queue_depth",
		Help: "Record ids waiting for a classification worker.",
	}, func() float64 { return float64(q.Depth()) })
}
