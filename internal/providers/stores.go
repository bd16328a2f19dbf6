package providers

import (
	"strings"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var appStoreSchema = mustSchema("app_store", `{
  "type": "object",
  "required": ["data"],
  "properties": {
    "data": {
      "type": "object",
      "required": ["id", "attributes"],
      "properties": {"attributes": {"type": "object"}}
    }
  }
}`)

var googlePlaySchema = mustSchema("google_play", `{
  "type": "object",
  "required": ["reviewId", "comments"],
  "properties": {"comments": {"type": "array"}}
}`)

// AppStore parses App Store Connect customerReviews resources relayed by a
// review monitor.
type AppStore struct{}

func (AppStore) Source() domain.Source { return domain.SourceAppStore }

func (AppStore) Signature() Signature {
	return Signature{Header: "X-Signature", Hash: hmacSHA256, Encoding: EncodingHex, Prefix: "sha256="}
}

type appStoreReview struct {
	Data struct {
		ID         flexString `json:"id"`
		Attributes struct {
			Rating           flexInt `json:"rating"`
			Title            string  `json:"title"`
			Body             string  `json:"body"`
			ReviewerNickname string  `json:"reviewerNickname"`
		} `json:"attributes"`
	} `json:"data"`
}

func (a AppStore) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var r appStoreReview
	if err := parseEnvelope(a.Source(), appStoreSchema, payload, &r); err != nil {
		return nil, err
	}
	attr := r.Data.Attributes
	// A star-only review still has a title worth classifying.
	content := firstNonEmpty(attr.Body, attr.Title)
	if strings.TrimSpace(content) == "" {
		return nil, invalid(a.Source(), "data.attributes.body", "review has no text")
	}
	rec := newRecord(a.Source(), string(r.Data.ID), content, payload)
	rec.Title = attr.Title
	rec.Rating = rating(attr.Rating)
	rec.CustomerName = attr.ReviewerNickname
	return rec, nil
}

// GooglePlay parses Play Developer API review resources.
type GooglePlay struct{}

func (GooglePlay) Source() domain.Source { return domain.SourceGooglePlay }

func (GooglePlay) Signature() Signature {
	return Signature{Header: "X-Goog-Signature", Hash: hmacSHA256, Encoding: EncodingHex}
}

type googlePlayReview struct {
	ReviewID   string `json:"reviewId"`
	AuthorName string `json:"authorName"`
	Comments   []struct {
		UserComment *struct {
			Text             string  `json:"text"`
			StarRating       flexInt `json:"starRating"`
			ReviewerLanguage string  `json:"reviewerLanguage"`
		} `json:"userComment"`
	} `json:"comments"`
}

func (a GooglePlay) Parse(payload []byte) (*domain.FeedbackRecord, error) {
	var r googlePlayReview
	if err := parseEnvelope(a.Source(), googlePlaySchema, payload, &r); err != nil {
		return nil, err
	}
	for _, c := range r.Comments {
		uc := c.UserComment
		if uc == nil || strings.TrimSpace(uc.Text) == "" {
			continue
		}
		rec := newRecord(a.Source(), r.ReviewID, uc.Text, payload)
		rec.Rating = rating(uc.StarRating)
		rec.Language = normalizeLanguage(uc.ReviewerLanguage)
		rec.CustomerName = r.AuthorName
		return rec, nil
	}
	return nil, invalid(a.Source(), "comments.userComment.text", "review has no user comment")
}
