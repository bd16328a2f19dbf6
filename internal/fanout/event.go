// Package fanout delivers pipeline events to whoever is listening: live
// dashboards on this instance, and other instances through Redis Pub/Sub.
//
// Delivery is best effort. A slow subscriber loses events instead of
// stalling the worker that produced them.
package fanout

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// EventType names the kind of payload an Event carries.
type EventType string

const (
	EventAlert              EventType = "alert"
	EventFeedbackClassified EventType = "feedback.classified"
)

// Event is the envelope published on the tenant's channel.
type Event struct {
	ID        string             `json:"id"`
	Type      EventType          `json:"type"`
	TenantID  string             `json:"tenant_id"`
	Alert     *domain.AlertEvent `json:"alert,omitempty"`
	Feedback  *FeedbackSummary   `json:"feedback,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
}

// FeedbackSummary is the slice of a classified record pushed to dashboards.
// Content and customer details stay in the store.
type FeedbackSummary struct {
	ID             string           `json:"id"`
	Source         domain.Source    `json:"source"`
	Sentiment      domain.Sentiment `json:"sentiment"`
	SentimentScore *float64         `json:"sentiment_score,omitempty"`
	Urgency        domain.Urgency   `json:"urgency"`
	Categories     []string         `json:"categories,omitempty"`
	Rating         *int             `json:"rating,omitempty"`
}

// Publisher accepts events for delivery.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Channel returns the logical channel name for a tenant.
func Channel(tenantID string) string { return "feedback:" + tenantID }

// AlertEvent wraps an alert.
func AlertEvent(a domain.AlertEvent) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      EventAlert,
		TenantID:  a.TenantID,
		Alert:     &a,
		CreatedAt: a.CreatedAt,
	}
}

// ClassifiedEvent announces that rec finished classification.
func ClassifiedEvent(rec *domain.FeedbackRecord, now time.Time) Event {
	return Event{
		ID:       uuid.NewString(),
		Type:     EventFeedbackClassified,
		TenantID: rec.TenantID,
		Feedback: &FeedbackSummary{
			ID:             rec.ID,
			Source:         rec.Source,
			Sentiment:      rec.Sentiment,
			SentimentScore: rec.SentimentScore,
			Urgency:        rec.Urgency,
			Categories:     []string(rec.Categories),
			Rating:         rec.Rating,
		},
		CreatedAt: now,
	}
}

// Multi publishes to every publisher and returns the first error.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var first error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) error { return nil }
