package fanout

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// RedisBus carries events between instances over one Pub/Sub channel.
// Each instance publishes to Redis and forwards everything it receives to
// its local Hub, so a dashboard connected to any instance sees every
// tenant event.
type RedisBus struct {
	rdb     goredis.UniversalClient
	channel string
}

// NewRedisBus wraps rdb. channel defaults to "feedback:events".
func NewRedisBus(rdb goredis.UniversalClient, channel string) (*RedisBus, error) {
	if rdb == nil {
		return nil, fmt.Errorf("redis client required")
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		channel = "feedback:events"
	}
	return &RedisBus{rdb: rdb, channel: channel}, nil
}

// DialRedisBus connects to addr and verifies it with PING.
func DialRedisBus(ctx context.Context, addr, channel string) (*RedisBus, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("missing redis address")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: addr, DialTimeout: 5 * time.Second})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisBus(rdb, channel)
}

// Channel returns the Pub/Sub channel name.
func (b *RedisBus) Channel() string { return b.channel }

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

// StartForwarder subscribes and calls onEvent for every decoded message
// until ctx ends. It returns once the subscription is confirmed.
func (b *RedisBus) StartForwarder(ctx context.Context, onEvent func(Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.rdb.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					log.Warn().Err(err).Str("component", "fanout").Msg("bad redis event payload")
					continue
				}
				onEvent(ev)
			}
		}
	}()
	return nil
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.TenantID == "" || ev.Type == "" {
		return Event{}, fmt.Errorf("event missing tenant or type")
	}
	return ev, nil
}

func (b *RedisBus) Close() error { return b.rdb.Close() }
