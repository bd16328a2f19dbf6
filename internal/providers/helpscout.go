package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var helpScoutSchema = mustSchema("helpscout", `{
  "type": "object",
  "required": ["id"],
  "properties": {"id": {"type": ["string", "integer"]}}
}`)

// HelpScout parses conversation webhooks. Threads arrive newest first.
type HelpScout struct{}

func (HelpScout) Source() domain.Source { return domain.SourceHelpScout }

func (HelpScout) Signature() Signature {
	return Signature{Header: "X-HelpScout-Signature", Hash: hmacSHA1, Encoding: EncodingBase64}
}

type helpScoutPayload struct {
	ID              flexString `json:"id"`
	Subject         string     `json:"subject"`
	Preview         string     `json:"preview"`
	PrimaryCustomer struct {
		First string `json:"first"`
		Last  string `json:"last"`
		Email string `json:"email"`
	} `json:"primaryCustomer"`
	Embedded struct {
		Threads []struct {
			ID   flexString `json:"id"`
			Type string     `json:"type"`
			Body string     `json:"body"`
		} `json:"threads"`
	} `json:"_embedded"`
}

func (a HelpScout) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var p helpScoutPayload
	if err := parseEnvelope(a.Source(), helpScoutSchema, payload, &p); err != nil {
		return nil, err
	}

	sourceID := string(p.ID)
	content := ""
	for _, th := range p.Embedded.Threads {
		if th.Type == "customer" && strings.TrimSpace(th.Body) != "" {
			content = plainText(th.Body)
			sourceID += ":" + string(th.ID)
			break
		}
	}
	if content == "" {
		content = p.Preview
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid(a.Source(), "_embedded.threads", "no customer thread")
	}

	rec := newRecord(a.Source(), sourceID, content, payload)
	rec.Title = p.Subject
	rec.CustomerName = strings.TrimSpace(p.PrimaryCustomer.First + " " + p.PrimaryCustomer.Last)
	rec.CustomerEmail = p.PrimaryCustomer.Email
	return rec, nil
}
