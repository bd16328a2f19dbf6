package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var intercomSchema = mustSchema("intercom", `{
  "type": "object",
  "required": ["topic", "data"],
  "properties": {
    "topic": {"type": "string"},
    "data": {
      "type": "object",
      "required": ["item"],
      "properties": {"item": {"type": "object"}}
    }
  }
}`)

// Intercom parses conversation notifications. Only customer-authored
// conversation messages and conversation ratings become feedback.
type Intercom struct{}

func (Intercom) Source() domain.Source { return domain.SourceIntercom }

func (Intercom) Signature() Signature {
	return Signature{Header: "X-Hub-Signature", Hash: hmacSHA1, Encoding: EncodingHex, Prefix: "sha1="}
}

type intercomAuthor struct {
	Type  string `json:"type"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type intercomPart struct {
	ID       flexString     `json:"id"`
	PartType string         `json:"part_type"`
	Body     string         `json:"body"`
	Author   intercomAuthor `json:"author"`
}

type intercomNotification struct {
	Topic string `json:"topic"`
	Data  struct {
		Item struct {
			Type   string     `json:"type"`
			ID     flexString `json:"id"`
			Title  string     `json:"title"`
			Source struct {
				Subject string         `json:"subject"`
				Body    string         `json:"body"`
				Author  intercomAuthor `json:"author"`
			} `json:"source"`
			ConversationParts struct {
				Parts []intercomPart `json:"conversation_parts"`
			} `json:"conversation_parts"`
			ConversationRating *struct {
				Rating flexInt `json:"rating"`
				Remark string  `json:"remark"`
			} `json:"conversation_rating"`
			Contacts struct {
				Contacts []intercomAuthor `json:"contacts"`
			} `json:"contacts"`
		} `json:"item"`
	} `json:"data"`
}

func (a Intercom) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var n intercomNotification
	if err := parseEnvelope(a.Source(), intercomSchema, payload, &n); err != nil {
		return nil, err
	}
	item := n.Data.Item
	if item.Type != "" && item.Type != "conversation" {
		return nil, invalid(a.Source(), "data.item.type", "not a conversation")
	}
	convID := string(item.ID)

	var (
		sourceID, content string
		author            = item.Source.Author
		stars             flexInt
	)
	switch n.Topic {
	case "conversation.user.created":
		sourceID = convID
		content = plainText(item.Source.Body)
	case "conversation.user.replied":
		part, ok := lastUserComment(item.ConversationParts.Parts)
		if !ok {
			return nil, invalid(a.Source(), "data.item.conversation_parts", "no customer reply in notification")
		}
		sourceID = convID + ":" + string(part.ID)
		content = plainText(part.Body)
		author = part.Author
	case "conversation.rating.added":
		if item.ConversationRating == nil {
			return nil, invalid(a.Source(), "data.item.conversation_rating", "missing rating")
		}
		sourceID = convID + ":rating"
		content = item.ConversationRating.Remark
		stars = item.ConversationRating.Rating
	default:
		return nil, invalid(a.Source(), "topic", "not a conversation message: "+n.Topic)
	}
	if strings.TrimSpace(content) == "" {
		return nil, invalid(a.Source(), "body", "conversation message has no text")
	}

	rec := newRecord(a.Source(), sourceID, content, payload)
	rec.Title = firstNonEmpty(item.Title, item.Source.Subject)
	rec.Rating = rating(stars)
	rec.CustomerName = author.Name
	rec.CustomerEmail = author.Email
	if rec.CustomerName == "" && len(item.Contacts.Contacts) > 0 {
		rec.CustomerName = item.Contacts.Contacts[0].Name
		rec.CustomerEmail = item.Contacts.Contacts[0].Email
	}
	return rec, nil
}

// lastUserComment picks the newest comment written by a user or lead.
func lastUserComment(parts []intercomPart) (intercomPart, bool) {
	for i := len(parts) - 1; i >= 0; i-- {
		p := parts[i]
		if p.PartType != "comment" {
			continue
		}
		if p.Author.Type == "user" || p.Author.Type == "lead" || p.Author.Type == "contact" {
			return p, true
		}
	}
	return intercomPart{}, false
}
