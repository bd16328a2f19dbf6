package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var zendeskSchema = mustSchema("zendesk", `{
  "type": "object",
  "required": ["ticket"],
  "properties": {
    "ticket": {
      "type": "object",
      "required": ["id"],
      "properties": {"id": {"type": ["string", "integer"]}}
    }
  }
}`)

// Zendesk parses ticket payloads sent by a Zendesk webhook trigger.
type Zendesk struct{}

func (Zendesk) Source() domain.Source { return domain.SourceZendesk }

func (Zendesk) Signature() Signature {
	return Signature{
		Header:          "X-Zendesk-Webhook-Signature",
		TimestampHeader: "X-Zendesk-Webhook-Signature-Timestamp",
		Hash:            hmacSHA256,
		Encoding:        EncodingBase64,
	}
}

type zendeskPayload struct {
	Ticket struct {
		ID              flexString `json:"id"`
		Subject         string     `json:"subject"`
		Description     string     `json:"description"`
		LatestComment   string     `json:"latest_comment"`
		LatestCommentID flexString `json:"latest_comment_id"`
		Locale          string     `json:"requester_locale"`
		Requester       struct {
			Name  string `json:"name"`
			Email string `json:"email"`
		} `json:"requester"`
		Satisfaction *struct {
			Score   string `json:"score"`
			Comment string `json:"comment"`
		} `json:"satisfaction_rating"`
	} `json:"ticket"`
}

func (a Zendesk) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var p zendeskPayload
	if err := parseEnvelope(a.Source(), zendeskSchema, payload, &p); err != nil {
		return nil, err
	}
	t := p.Ticket

	content := firstNonEmpty(t.LatestComment, t.Description)
	if t.Satisfaction != nil && content == "" {
		content = t.Satisfaction.Comment
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid(a.Source(), "ticket.description", "ticket has no body")
	}

	sourceID := string(t.ID)
	if t.LatestCommentID != "" {
		sourceID += ":" + string(t.LatestCommentID)
	}
	rec := newRecord(a.Source(), sourceID, content, payload)
	rec.Title = t.Subject
	rec.CustomerName = t.Requester.Name
	rec.CustomerEmail = t.Requester.Email
	rec.Language = normalizeLanguage(t.Locale)
	if t.Satisfaction != nil {
		// CSAT is binary in Zendesk; map it onto the star scale.
		switch strings.ToLower(t.Satisfaction.Score) {
		case "good":
			rec.Rating = rating(flexInt{Value: 5, Set: true})
		case "bad":
			rec.Rating = rating(flexInt{Value: 1, Set: true})
		}
	}
	return rec, nil
}
