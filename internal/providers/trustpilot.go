package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var trustpilotSchema = mustSchema("trustpilot", `{
  "type": "object",
  "required": ["events"],
  "properties": {"events": {"type": "array", "minItems": 1}}
}`)

// Trustpilot parses service review webhooks. A delivery may batch several
// events; the first review event is ingested.
type Trustpilot struct{}

func (Trustpilot) Source() domain.Source { return domain.SourceTrustpilot }

func (Trustpilot) Signature() Signature {
	return Signature{Header: "X-Trustpilot-Signature", Hash: hmacSHA256, Encoding: EncodingBase64}
}

type trustpilotPayload struct {
	Events []struct {
		EventName string `json:"eventName"`
		EventData struct {
			ID       flexString `json:"id"`
			Title    string     `json:"title"`
			Text     string     `json:"text"`
			Stars    flexInt    `json:"stars"`
			Language string     `json:"language"`
			Consumer struct {
				Name string `json:"name"`
			} `json:"consumer"`
		} `json:"eventData"`
	} `json:"events"`
}

func (a Trustpilot) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var p trustpilotPayload
	if err := parseEnvelope(a.Source(), trustpilotSchema, payload, &p); err != nil {
		return nil, err
	}
	for _, ev := range p.Events {
		if ev.EventName != "service-review-created" && ev.EventName != "service-review-updated" {
			continue
		}
		d := ev.EventData
		content := firstNonEmpty(d.Text, d.Title)
		if strings.TrimSpace(content) == "" {
			return nil, invalid(a.Source(), "events.eventData.text", "review has no text")
		}
		rec := newRecord(a.Source(), string(d.ID), content, payload)
		rec.Title = d.Title
		rec.Rating = rating(d.Stars)
		rec.Language = normalizeLanguage(d.Language)
		rec.CustomerName = d.Consumer.Name
		return rec, nil
	}
	return nil, invalid(a.Source(), "events.eventName", "no service review event")
}
