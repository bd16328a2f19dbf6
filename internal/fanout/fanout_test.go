package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	goredis "github.com/redis/go-redis/v9"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

func TestHub_DeliversPerTenant(t *testing.T) {
	h := NewHub(4)
	a, cancelA := h.Subscribe("t1")
	defer cancelA()
	b, cancelB := h.Subscribe("t2")
	defer cancelB()

	_ = h.Publish(context.Background(), Event{ID: "e1", Type: EventAlert, TenantID: "t1"})

	select {
	case ev := <-a:
		if ev.ID != "e1" {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatalf("t1 subscriber did not receive event")
	}
	select {
	case ev := <-b:
		t.Fatalf("t2 must not see t1 events, got %+v", ev)
	default:
	}
}

func TestHub_DropsWhenFull(t *testing.T) {
	h := NewHub(1)
	ch, cancel := h.Subscribe("t1")
	defer cancel()

	before := testutil.ToFloat64(droppedEvents)
	h.Deliver(Event{ID: "1", Type: EventAlert, TenantID: "t1"})
	h.Deliver(Event{ID: "2", Type: EventAlert, TenantID: "t1"})
	if got := testutil.ToFloat64(droppedEvents) - before; got != 1 {
		t.Fatalf("dropped delta = %v; want 1", got)
	}
	if ev := <-ch; ev.ID != "1" {
		t.Fatalf("expected first event to be kept, got %s", ev.ID)
	}
}

func TestHub_CancelClosesAndUnsubscribes(t *testing.T) {
	h := NewHub(0)
	ch, cancel := h.Subscribe("t1")
	if h.Subscribers("t1") != 1 {
		t.Fatalf("expected one subscriber")
	}
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatalf("channel should be closed")
	}
	if h.Subscribers("t1") != 0 {
		t.Fatalf("expected no subscribers after cancel")
	}
	h.Deliver(Event{Type: EventAlert, TenantID: "t1"})
}

type recPub struct {
	events []Event
	err    error
}

func (r *recPub) Publish(_ context.Context, ev Event) error {
	r.events = append(r.events, ev)
	return r.err
}

func TestMulti(t *testing.T) {
	a := &recPub{}
	b := &recPub{err: errors.New("down")}
	c := &recPub{}
	err := Multi{a, nil, b, c}.Publish(context.Background(), Event{TenantID: "t"})
	if err == nil || err.Error() != "down" {
		t.Fatalf("expected first error, got %v", err)
	}
	if len(a.events) != 1 || len(c.events) != 1 {
		t.Fatalf("every publisher should be called")
	}
}

func TestEventConstructors(t *testing.T) {
	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	alert := AlertEvent(domain.AlertEvent{ID: "a1", TenantID: "t1", Type: domain.AlertUrgentFeedback, CreatedAt: now})
	if alert.Type != EventAlert || alert.TenantID != "t1" || alert.Alert.ID != "a1" || alert.ID == "" {
		t.Fatalf("unexpected alert event %+v", alert)
	}

	score := -0.7
	rec := &domain.FeedbackRecord{ID: "f1", TenantID: "t1", Source: domain.SourceZendesk,
		Sentiment: domain.SentimentNegative, SentimentScore: &score, Urgency: domain.UrgencyHigh,
		Content: "secret body", CustomerEmail: "a@b.c"}
	ev := ClassifiedEvent(rec, now)
	raw, _ := json.Marshal(ev)
	var back map[string]any
	_ = json.Unmarshal(raw, &back)
	fb := back["feedback"].(map[string]any)
	if fb["id"] != "f1" || fb["urgency"] != "high" {
		t.Fatalf("unexpected summary %v", fb)
	}
	if _, leaked := fb["content"]; leaked {
		t.Fatalf("summary must not carry content")
	}
	if Channel("t1") != "feedback:t1" {
		t.Fatalf("Channel = %q", Channel("t1"))
	}
}

func TestDecodeEvent(t *testing.T) {
	if _, err := decodeEvent(`{"type":"alert"}`); err == nil {
		t.Fatalf("expected error for event without tenant")
	}
	if _, err := decodeEvent(`nope`); err == nil {
		t.Fatalf("expected error for bad JSON")
	}
	ev, err := decodeEvent(`{"id":"e","type":"alert","tenant_id":"t"}`)
	if err != nil || ev.TenantID != "t" {
		t.Fatalf("decode: %+v %v", ev, err)
	}
}

func TestNewRedisBus(t *testing.T) {
	if _, err := NewRedisBus(nil, ""); err == nil {
		t.Fatalf("expected error for nil client")
	}
	rdb := goredis.NewClient(&goredis.Options{Addr: "127.0.0.1:1"})
	defer rdb.Close()
	b, err := NewRedisBus(rdb, "")
	if err != nil || b.Channel() != "feedback:events" {
		t.Fatalf("NewRedisBus: %v %v", b, err)
	}
	if err := b.StartForwarder(context.Background(), nil); err == nil {
		t.Fatalf("expected error for nil callback")
	}
	if _, err := DialRedisBus(context.Background(), " ", "x"); err == nil {
		t.Fatalf("expected error for empty address")
	}
}
