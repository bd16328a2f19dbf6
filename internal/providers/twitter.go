package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var twitterSchema = mustSchema("twitter", `{
  "type": "object",
  "required": ["for_user_id"],
  "properties": {"tweet_create_events": {"type": "array"}}
}`)

// Twitter parses Account Activity API deliveries. Tweets written by the
// subscribed account itself are not feedback.
type Twitter struct{}

func (Twitter) Source() domain.Source { return domain.SourceTwitter }

func (Twitter) Signature() Signature {
	return Signature{Header: "X-Twitter-Webhooks-Signature", Hash: hmacSHA256, Encoding: EncodingBase64, Prefix: "sha256="}
}

type twitterPayload struct {
	ForUserID string `json:"for_user_id"`
	Tweets    []struct {
		IDStr    string `json:"id_str"`
		Text     string `json:"text"`
		Lang     string `json:"lang"`
		Extended *struct {
			FullText string `json:"full_text"`
		} `json:"extended_tweet"`
		User struct {
			IDStr      string `json:"id_str"`
			Name       string `json:"name"`
			ScreenName string `json:"screen_name"`
		} `json:"user"`
	} `json:"tweet_create_events"`
}

func (a Twitter) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var p twitterPayload
	if err := parseEnvelope(a.Source(), twitterSchema, payload, &p); err != nil {
		return nil, err
	}
	for _, tw := range p.Tweets {
		if tw.User.IDStr != "" && tw.User.IDStr == p.ForUserID {
			continue
		}
		text := tw.Text
		if tw.Extended != nil && tw.Extended.FullText != "" {
			text = tw.Extended.FullText
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		rec := newRecord(a.Source(), tw.IDStr, text, payload)
		rec.Language = normalizeLanguage(tw.Lang)
		rec.CustomerName = firstNonEmpty(tw.User.Name, tw.User.ScreenName)
		return rec, nil
	}
	return nil, invalid(a.Source(), "tweet_create_events", "no mention from another account")
}
