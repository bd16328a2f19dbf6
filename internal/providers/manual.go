package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var manualSchema = mustSchema("manual", `{
  "type": "object",
  "required": ["content"],
  "properties": {
    "content": {"type": "string"},
    "rating": {"type": ["integer", "null"], "minimum": 1, "maximum": 5},
    "source_id": {"type": ["string", "null"]}
  }
}`)

// Manual parses feedback entered through the API. It has no webhook
// signature and is only reachable through the authenticated API.
type Manual struct{}

func (Manual) Source() domain.Source { return domain.SourceManual }

func (Manual) Signature() Signature { return Signature{} }

// ManualEntry is the JSON body accepted for manual submissions.
type ManualEntry struct {
	Content       string  `json:"content" example:"Checkout failed twice on iOS"`
	Title         string  `json:"title,omitempty"`
	Rating        *int    `json:"rating,omitempty" example:"2"`
	CustomerName  string  `json:"customer_name,omitempty"`
	CustomerEmail string  `json:"customer_email,omitempty"`
	Language      string  `json:"language,omitempty" example:"en"`
	SourceID      *string `json:"source_id,omitempty"`
}

func (a Manual) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var e ManualEntry
	if err := parseEnvelope(a.Source(), manualSchema, payload, &e); err != nil {
		return nil, err
	}
	if strings.TrimSpace(e.Content) == "" {
		return nil, invalid(a.Source(), "content", "must not be empty")
	}
	sourceID := ""
	if e.SourceID != nil {
		sourceID = *e.SourceID
	}
	rec := newRecord(a.Source(), sourceID, e.Content, payload)
	rec.Title = e.Title
	if e.Rating != nil {
		rec.Rating = rating(flexInt{Value: *e.Rating, Set: true})
	}
	rec.CustomerName = e.CustomerName
	rec.CustomerEmail = e.CustomerEmail
	rec.Language = normalizeLanguage(e.Language)
	return rec, nil
}
