// Package domain defines the persistence models for canonical feedback
// records and their supporting tables. These types are mapped with GORM and
// shared by the repository, service and worker layers.
package domain

import (
	"errors"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Source identifies the provider a feedback record was ingested from.
type Source string

const (
	SourceIntercom   Source = "intercom"
	SourceZendesk    Source = "zendesk"
	SourceFreshdesk  Source = "freshdesk"
	SourceHelpScout  Source = "helpscout"
	SourceAppStore   Source = "app_store"
	SourceGooglePlay Source = "google_play"
	SourceTrustpilot Source = "trustpilot"
	SourceTwitter    Source = "twitter"
	SourceManual     Source = "manual"
)

// Sentiment is the polarity label returned by classification.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
	SentimentMixed    Sentiment = "mixed"
)

// Valid reports whether s is one of the known sentiment labels.
func (s Sentiment) Valid() bool {
	switch s {
	case SentimentPositive, SentimentNegative, SentimentNeutral, SentimentMixed:
		return true
	}
	return false
}

// Urgency grades how quickly a record needs attention. It is also used as
// the alert severity scale.
type Urgency string

const (
	UrgencyLow      Urgency = "low"
	UrgencyMedium   Urgency = "medium"
	UrgencyHigh     Urgency = "high"
	UrgencyCritical Urgency = "critical"
)

// Valid reports whether u is one of the known urgency levels.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical:
		return true
	}
	return false
}

// Status is the processing state of a record.
//
// Allowed transitions:
//
//	pending    -> processing
//	processing -> completed | failed
//	failed     -> processing          (retry, while not exhausted)
//	processing -> pending             (lease reclaim only)
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// DefaultLanguage is applied when a provider does not report a language.
const DefaultLanguage = "en"

// Validation errors returned by FeedbackRecord.Validate.
var (
	ErrEmptyContent          = errors.New("content is required")
	ErrRatingOutOfRange      = errors.New("rating must be between 1 and 5")
	ErrScoreOutOfRange       = errors.New("sentiment score must be between -1 and 1")
	ErrOriginalDataImmutable = errors.New("original data is immutable")
)

// FeedbackRecord is the canonical, provider-agnostic representation of one
// piece of customer feedback.
//
// Fields:
//   - ID: UUID assigned once by the ingest service.
//   - Source / SourceID: provider tag and provider-native id. The pair is
//     unique; a nil SourceID (manual entry without a key) never collides.
//   - Content .. Language: normalized content produced by a provider adapter.
//   - Sentiment .. ClassifiedAt: classification outputs, empty until completed.
//   - Status / IsProcessed: processing state; IsProcessed mirrors completed.
//   - Attempts .. LastError: worker bookkeeping (lease and retry schedule).
//   - OriginalData: the untouched provider payload.
type FeedbackRecord struct {
	ID       string  `json:"id"        gorm:"type:char(36);primaryKey"`
	TenantID string  `json:"tenant_id" gorm:"type:varchar(64);not null;index:idx_feedback_tenant_created,priority:1"`
	Source   Source  `json:"source"    gorm:"type:varchar(32);not null;uniqueIndex:ux_feedback_source_ref,priority:1"`
	SourceID *string `json:"source_id,omitempty" gorm:"type:varchar(255);uniqueIndex:ux_feedback_source_ref,priority:2"`

	Content       string `json:"content"        gorm:"type:text;not null"`
	Title         string `json:"title,omitempty" gorm:"type:varchar(512)"`
	Rating        *int   `json:"rating,omitempty" gorm:"check:chk_feedback_rating,rating IS NULL OR (rating >= 1 AND rating <= 5)"`
	CustomerName  string `json:"customer_name,omitempty"  gorm:"type:varchar(255)"`
	CustomerEmail string `json:"customer_email,omitempty" gorm:"type:varchar(320)"`
	Language      string `json:"language"       gorm:"type:varchar(16);not null;default:'en'"`

	Sentiment      Sentiment                              `json:"sentiment,omitempty"       gorm:"type:varchar(16)"`
	SentimentScore *float64                               `json:"sentiment_score,omitempty" gorm:"check:chk_feedback_score,sentiment_score IS NULL OR (sentiment_score >= -1 AND sentiment_score <= 1)"`
	Urgency        Urgency                                `json:"urgency,omitempty"         gorm:"type:varchar(16)"`
	Categories     datatypes.JSONSlice[string]            `json:"categories,omitempty"`
	Emotions       datatypes.JSONType[map[string]float64] `json:"emotions"`
	ClassifiedAt   *time.Time                             `json:"classified_at,omitempty"`

	Status      Status `json:"processing_status" gorm:"type:varchar(16);not null;default:'pending';index:idx_feedback_status_updated,priority:1;index:idx_feedback_status_lease,priority:1"`
	IsProcessed bool   `json:"is_processed"      gorm:"not null;default:false"`

	Attempts       int        `json:"attempts"                gorm:"not null;default:0"`
	LeaseToken     *string    `json:"-"                       gorm:"type:char(36)"`
	LeaseExpiresAt *time.Time `json:"-"                       gorm:"index:idx_feedback_status_lease,priority:2"`
	NextAttemptAt  *time.Time `json:"next_attempt_at,omitempty"`
	RetryExhausted bool       `json:"retry_exhausted"         gorm:"not null;default:false"`
	LastError      string     `json:"last_error,omitempty"    gorm:"type:text"`

	OriginalData datatypes.JSON `json:"original_data" gorm:"not null"`

	CreatedAt time.Time `json:"created_at" gorm:"index:idx_feedback_tenant_created,priority:2"`
	UpdatedAt time.Time `json:"updated_at" gorm:"index:idx_feedback_status_updated,priority:2"`
}

// TableName returns the database table name for FeedbackRecord.
func (FeedbackRecord) TableName() string { return "feedback_records" }

// Normalize trims free-text fields and applies defaults. It never touches
// OriginalData.
func (r *FeedbackRecord) Normalize() {
	r.Content = strings.TrimSpace(r.Content)
	r.Title = strings.TrimSpace(r.Title)
	r.CustomerName = strings.TrimSpace(r.CustomerName)
	r.CustomerEmail = strings.ToLower(strings.TrimSpace(r.CustomerEmail))
	if strings.TrimSpace(r.Language) == "" {
		r.Language = DefaultLanguage
	}
	if r.SourceID != nil && strings.TrimSpace(*r.SourceID) == "" {
		r.SourceID = nil
	}
	if r.Status == "" {
		r.Status = StatusPending
	}
	r.IsProcessed = r.Status == StatusCompleted
}

// Validate checks the content and range invariants of the record.
func (r *FeedbackRecord) Validate() error {
	if strings.TrimSpace(r.Content) == "" {
		return ErrEmptyContent
	}
	if r.Rating != nil && (*r.Rating < 1 || *r.Rating > 5) {
		return ErrRatingOutOfRange
	}
	if r.SentimentScore != nil && (*r.SentimentScore < -1 || *r.SentimentScore > 1) {
		return ErrScoreOutOfRange
	}
	return nil
}

// BeforeUpdate rejects any update that would rewrite the provider payload.
func (r *FeedbackRecord) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("OriginalData") {
		return ErrOriginalDataImmutable
	}
	return nil
}
