package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var freshdeskSchema = mustSchema("freshdesk", `{
  "type": "object",
  "required": ["freshdesk_webhook"],
  "properties": {"freshdesk_webhook": {"type": "object", "required": ["ticket_id"]}}
}`)

// Freshdesk parses automation-rule webhooks. Freshdesk does not sign
// requests itself, so the rule is configured to send an HMAC header.
type Freshdesk struct{}

func (Freshdesk) Source() domain.Source { return domain.SourceFreshdesk }

func (Freshdesk) Signature() Signature {
	return Signature{Header: "X-Freshdesk-Signature", Hash: hmacSHA256, Encoding: EncodingHex}
}

type freshdeskPayload struct {
	Webhook struct {
		TicketID     flexString `json:"ticket_id"`
		Subject      string     `json:"ticket_subject"`
		Description  string     `json:"ticket_description"`
		ContactName  string     `json:"ticket_contact_name"`
		ContactEmail string     `json:"ticket_contact_email"`
		Satisfaction flexInt    `json:"ticket_satisfaction_rating"`
	} `json:"freshdesk_webhook"`
}

func (a Freshdesk) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var p freshdeskPayload
	if err := parseEnvelope(a.Source(), freshdeskSchema, payload, &p); err != nil {
		return nil, err
	}
	w := p.Webhook
	content := plainText(w.Description)
	if strings.TrimSpace(content) == "" {
		return nil, invalid(a.Source(), "freshdesk_webhook.ticket_description", "ticket has no body")
	}
	rec := newRecord(a.Source(), string(w.TicketID), content, payload)
	rec.Title = w.Subject
	rec.CustomerName = w.ContactName
	rec.CustomerEmail = w.ContactEmail
	rec.Rating = rating(w.Satisfaction)
	return rec, nil
}
