package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisQueue shares one queue between several feedbackd instances. Ids are
// LPUSHed and BRPOPed from a single list, so ordering is FIFO per list.
type RedisQueue struct {
	rdb      goredis.UniversalClient
	key      string
	capacity int
	poll     time.Duration
	closed   atomic.Bool
}

// NewRedis wraps rdb. capacity bounds LLEN; TryEnqueue refuses beyond it.
func NewRedis(rdb goredis.UniversalClient, key string, capacity int) (*RedisQueue, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, fmt.Errorf("redis queue key required")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RedisQueue{rdb: rdb, key: key, capacity: capacity, poll: time.Second}, nil
}

// Dial connects to addr and verifies the connection with PING.
func Dial(ctx context.Context, addr, key string, capacity int) (*RedisQueue, error) {
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedis(rdb, key, capacity)
}

func (q *RedisQueue) TryEnqueue(id string) bool {
	if id == "" || q.closed.Load() {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	ok, err := q.push(ctx, id)
	if err != nil {
		log.Warn().Err(err).Str("component", "queue").Str("feedback_id", id).Msg("redis enqueue failed")
		return false
	}
	return ok
}

func (q *RedisQueue) Enqueue(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("empty id")
	}
	t := time.NewTicker(100 * time.Millisecond)
	defer t.Stop()
	for {
		if q.closed.Load() {
			return ErrClosed
		}
		ok, err := q.push(ctx, id)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}

// push checks capacity and pushes. The check and the push are separate
// round trips, so the bound is approximate under concurrent producers.
func (q *RedisQueue) push(ctx context.Context, id string) (bool, error) {
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return false, err
	}
	if n >= int64(q.capacity) {
		return false, nil
	}
	if err := q.rdb.LPush(ctx, q.key, id).Err(); err != nil {
		return false, err
	}
	return true, nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		if q.closed.Load() {
			return "", ErrClosed
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		res, err := q.rdb.BRPop(ctx, q.poll, q.key).Result()
		switch {
		case errors.Is(err, goredis.Nil):
			continue
		case err != nil:
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", err
		}
		// BRPOP replies with [key, value].
		if len(res) == 2 {
			return res[1], nil
		}
	}
}

func (q *RedisQueue) Depth() int {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	n, err := q.rdb.LLen(ctx, q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (q *RedisQueue) Capacity() int { return q.capacity }

func (q *RedisQueue) Close() error {
	if q.closed.Swap(true) {
		return nil
	}
	return q.rdb.Close()
}
