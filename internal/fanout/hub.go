package fanout

import (
	"context"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var droppedEvents = prometheus.NewCounter(prometheus.CounterOpts{
	Name: "feedback_fanout_dropped_total",
	Help: "Events dropped because a subscriber buffer was full.",
})

func init() {
	prometheus.MustRegister(droppedEvents)
}

// DefaultBuffer is the per-subscriber buffer used when none is given.
const DefaultBuffer = 32

type subscriber struct {
	ch chan Event
}

// Hub fans events out to in-process subscribers keyed by tenant.
type Hub struct {
	mu     sync.RWMutex
	buffer int
	subs   map[string]map[*subscriber]struct{}
}

// NewHub returns an empty hub. buffer <= 0 selects DefaultBuffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Hub{buffer: buffer, subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers a listener for tenantID. The returned cancel func
// unsubscribes and closes the channel; it is safe to call more than once.
func (h *Hub) Subscribe(tenantID string) (<-chan Event, func()) {
	tenantID = strings.TrimSpace(tenantID)
	s := &subscriber{ch: make(chan Event, h.buffer)}

	h.mu.Lock()
	set, ok := h.subs[tenantID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[tenantID] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if set, ok := h.subs[tenantID]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.subs, tenantID)
				}
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Subscribers reports how many listeners tenantID has.
func (h *Hub) Subscribers(tenantID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[tenantID])
}

// Publish delivers ev to the tenant's subscribers without blocking.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver is Publish without a context, suitable as a bus callback.
func (h *Hub) Deliver(ev Event) {
	if ev.TenantID == "" {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.TenantID] {
		select {
		case s.ch <- ev:
		default:
			droppedEvents.Inc()
			log.Warn().
				Str("component", "fanout").
				Str("tenant_id", ev.TenantID).
				Str("event_type", string(ev.Type)).
				Msg("dropping event; subscriber buffer full")
		}
	}
}
