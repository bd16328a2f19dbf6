package domain

import "time"

// AlertType names the rule that produced an AlertEvent.
type AlertType string

const (
	AlertSentimentSpike   AlertType = "sentiment_spike"
	AlertUrgentFeedback   AlertType = "urgent_feedback"
	AlertIntegrationError AlertType = "integration_error"
	AlertQuotaExceeded    AlertType = "quota_exceeded"
	AlertCustom           AlertType = "custom"
)

// AlertEvent is an ephemeral notification produced by the alert evaluator.
// It is published once and never stored by this service.
type AlertEvent struct {
	ID                 string         `json:"id"`
	TenantID           string         `json:"tenant_id"`
	Type               AlertType      `json:"type"`
	Severity           Urgency        `json:"severity"`
	RelatedFeedbackIDs []string       `json:"related_feedback_ids"`
	Metadata           map[string]any `json:"metadata,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
}
