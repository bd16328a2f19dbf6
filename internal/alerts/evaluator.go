// Package alerts turns classified records and pipeline failures into alert
// events.
//
// Rules:
//   - urgent_feedback: a negative record with score <= -0.5 or rating <= 2.
//     Severity is critical for rating 1 or score <= -0.8, otherwise high.
//   - sentiment_spike: more negative records in the trailing window than
//     Baseline * (1 + ThresholdPct/100). After firing, the tenant's spike
//     rule stays quiet until one full window has passed.
//   - integration_error: a record failed classification for good.
//   - quota_exceeded: ingestion was refused by the quota collaborator; at
//     most one per window per tenant.
//
// The evaluator never writes to the record store. Window state lives in
// memory, so each instance evaluates spikes over the records it classified.
package alerts

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-feedback-pipeline/internal/classify"
	"github.com/tbourn/go-feedback-pipeline/internal/domain"
	"github.com/tbourn/go-feedback-pipeline/internal/fanout"
)

var alertsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "feedback_alerts_total",
		Help: "Alerts emitted, by type.",
	},
	[]string{"type"},
)

func init() {
	prometheus.MustRegister(alertsTotal)
}

// Defaults applied by New when a field is zero.
const (
	DefaultWindow       = time.Hour
	DefaultBaseline     = 5
	DefaultThresholdPct = 50
)

type hit struct {
	id string
	at time.Time
}

type tenantState struct {
	negatives       []hit
	spikeQuietUntil time.Time
	quotaQuietUntil time.Time
}

// Evaluator applies the alert rules. It is safe for concurrent use.
type Evaluator struct {
	Window       time.Duration
	Baseline     int
	ThresholdPct float64
	Publisher    fanout.Publisher
	Now          func() time.Time

	mu      sync.Mutex
	tenants map[string]*tenantState
}

// New returns an evaluator publishing through pub.
func New(window time.Duration, baseline int, thresholdPct float64, pub fanout.Publisher) *Evaluator {
	if window <= 0 {
		window = DefaultWindow
	}
	if baseline <= 0 {
		baseline = DefaultBaseline
	}
	if thresholdPct < 0 {
		thresholdPct = DefaultThresholdPct
	}
	if pub == nil {
		pub = fanout.Discard{}
	}
	return &Evaluator{
		Window:       window,
		Baseline:     baseline,
		ThresholdPct: thresholdPct,
		Publisher:    pub,
		Now:          func() time.Time { return time.Now().UTC() },
		tenants:      make(map[string]*tenantState),
	}
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

func (e *Evaluator) state(tenantID string) *tenantState {
	if e.tenants == nil {
		e.tenants = make(map[string]*tenantState)
	}
	st, ok := e.tenants[tenantID]
	if !ok {
		st = &tenantState{}
		e.tenants[tenantID] = st
	}
	return st
}

// threshold is the count a window must exceed to count as a spike.
func (e *Evaluator) threshold() float64 {
	return float64(e.Baseline) * (1 + e.ThresholdPct/100)
}

// Evaluate runs the record rules against a completed record and publishes
// whatever fires. It returns the emitted alerts.
func (e *Evaluator) Evaluate(ctx context.Context, rec *domain.FeedbackRecord) []domain.AlertEvent {
	if rec == nil || rec.Status != domain.StatusCompleted {
		return nil
	}
	now := e.now()
	var out []domain.AlertEvent

	if sev, ok := urgentSeverity(rec); ok {
		out = append(out, e.newAlert(rec.TenantID, domain.AlertUrgentFeedback, sev, []string{rec.ID}, map[string]any{
			"source":    rec.Source,
			"sentiment": rec.Sentiment,
			"score":     derefScore(rec.SentimentScore),
			"rating":    rec.Rating,
		}, now))
	}

	if rec.Sentiment == domain.SentimentNegative {
		if a, ok := e.trackNegative(rec, now); ok {
			out = append(out, a)
		}
	}

	e.publish(ctx, out)
	return out
}

func (e *Evaluator) trackNegative(rec *domain.FeedbackRecord, now time.Time) (domain.AlertEvent, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.state(rec.TenantID)
	cutoff := now.Add(-e.Window)
	kept := st.negatives[:0]
	for _, h := range st.negatives {
		if h.at.After(cutoff) {
			kept = append(kept, h)
		}
	}
	st.negatives = append(kept, hit{id: rec.ID, at: now})

	if now.Before(st.spikeQuietUntil) {
		return domain.AlertEvent{}, false
	}
	count := len(st.negatives)
	if float64(count) <= e.threshold() {
		return domain.AlertEvent{}, false
	}
	st.spikeQuietUntil = now.Add(e.Window)

	related := make([]string, 0, count)
	for _, h := range st.negatives {
		related = append(related, h.id)
	}
	sev := domain.UrgencyHigh
	if float64(count) > 2*e.threshold() {
		sev = domain.UrgencyCritical
	}
	return e.newAlert(rec.TenantID, domain.AlertSentimentSpike, sev, related, map[string]any{
		"negative_count": count,
		"window":         e.Window.String(),
		"baseline":       e.Baseline,
		"threshold_pct":  e.ThresholdPct,
	}, now), true
}

// ClassificationFailed reports a record that will not be classified without
// operator action.
func (e *Evaluator) ClassificationFailed(ctx context.Context, rec *domain.FeedbackRecord, cause error) domain.AlertEvent {
	meta := map[string]any{
		"source":   rec.Source,
		"attempts": rec.Attempts,
	}
	if cause != nil {
		meta["error"] = cause.Error()
		var ce *classify.Error
		if errors.As(cause, &ce) {
			meta["error_kind"] = ce.Kind
		}
	}
	a := e.newAlert(rec.TenantID, domain.AlertIntegrationError, domain.UrgencyMedium, []string{rec.ID}, meta, e.now())
	e.publish(ctx, []domain.AlertEvent{a})
	return a
}

// QuotaExceeded reports a refused ingestion. It returns false when the
// tenant already got a quota alert in the current window.
func (e *Evaluator) QuotaExceeded(ctx context.Context, tenantID, kind string) (domain.AlertEvent, bool) {
	now := e.now()
	e.mu.Lock()
	st := e.state(tenantID)
	if now.Before(st.quotaQuietUntil) {
		e.mu.Unlock()
		return domain.AlertEvent{}, false
	}
	st.quotaQuietUntil = now.Add(e.Window)
	e.mu.Unlock()

	a := e.newAlert(tenantID, domain.AlertQuotaExceeded, domain.UrgencyHigh, nil, map[string]any{"kind": kind}, now)
	e.publish(ctx, []domain.AlertEvent{a})
	return a, true
}

func (e *Evaluator) newAlert(tenantID string, typ domain.AlertType, sev domain.Urgency, related []string, meta map[string]any, now time.Time) domain.AlertEvent {
	if related == nil {
		related = []string{}
	}
	return domain.AlertEvent{
		ID:                 uuid.NewString(),
		TenantID:           tenantID,
		Type:               typ,
		Severity:           sev,
		RelatedFeedbackIDs: related,
		Metadata:           meta,
		CreatedAt:          now,
	}
}

func (e *Evaluator) publish(ctx context.Context, alerts []domain.AlertEvent) {
	for _, a := range alerts {
		alertsTotal.WithLabelValues(string(a.Type)).Inc()
		if e.Publisher == nil {
			continue
		}
		if err := e.Publisher.Publish(ctx, fanout.AlertEvent(a)); err != nil {
			log.Warn().Err(err).
				Str("component", "alerts").
				Str("tenant_id", a.TenantID).
				Str("alert_type", string(a.Type)).
				Msg("publish alert failed")
		}
	}
}

func urgentSeverity(rec *domain.FeedbackRecord) (domain.Urgency, bool) {
	if rec.Sentiment != domain.SentimentNegative {
		return "", false
	}
	score := derefScore(rec.SentimentScore)
	lowRating := rec.Rating != nil && *rec.Rating <= 2
	if score > -0.5 && !lowRating {
		return "", false
	}
	if (rec.Rating != nil && *rec.Rating == 1) || score <= -0.8 {
		return domain.UrgencyCritical, true
	}
	return domain.UrgencyHigh, true
}

func derefScore(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}
