// Package classify is the boundary to the external classification service.
//
// The service itself is opaque; this package defines the request/response
// contract, the error taxonomy workers use to decide between retrying and
// giving up, and two clients: a JSON HTTP client for a dedicated
// classification API and an LLM-backed client built on langchaingo.
package classify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// Request is what the classifier sees of a record.
type Request struct {
	Content  string `json:"content"`
	Rating   *int   `json:"rating,omitempty"`
	Language string `json:"language"`
}

// Result is the classifier output. Urgency is optional; when absent the
// worker derives it with DeriveUrgency.
type Result struct {
	Sentiment      domain.Sentiment   `json:"sentiment"`
	SentimentScore float64            `json:"sentiment_score"`
	Urgency        *domain.Urgency    `json:"urgency,omitempty"`
	Categories     []string           `json:"categories"`
	Emotions       map[string]float64 `json:"emotions"`
}

// Classifier classifies one record.
type Classifier interface {
	Classify(ctx context.Context, req Request) (*Result, error)
}

// Kind categorizes classification failures.
type Kind string

const (
	KindRateLimited        Kind = "rate_limited"
	KindTimeout            Kind = "timeout"
	KindServiceUnavailable Kind = "service_unavailable"
	KindInvalidInput       Kind = "invalid_input"
	KindInvalidResponse    Kind = "invalid_response"
)

// Retryable reports whether a failure of this kind may succeed later.
func (k Kind) Retryable() bool {
	switch k {
	case KindRateLimited, KindTimeout, KindServiceUnavailable:
		return true
	}
	return false
}

// Error is returned by classifiers for every failure.
type Error struct {
	Kind       Kind
	RetryAfter time.Duration // hint from the service, zero when absent
	Err        error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return "classify: " + string(e.Kind)
	}
	return fmt.Sprintf("classify: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the worker should schedule another attempt.
func (e *Error) Retryable() bool { return e.Kind.Retryable() }

// AsError extracts a *Error from err. Errors that did not come from a
// classifier are treated as service_unavailable, except a context deadline
// which is a timeout.
func AsError(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindServiceUnavailable, Err: err}
}

// ValidateResult rejects outputs outside the allowed ranges. A classifier
// that answers with a bad score has answered, so the failure is permanent.
func ValidateResult(r *Result) error {
	if r == nil {
		return &Error{Kind: KindInvalidResponse, Err: errors.New("empty result")}
	}
	if !r.Sentiment.Valid() {
		return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("unknown sentiment %q", r.Sentiment)}
	}
	if r.SentimentScore < -1 || r.SentimentScore > 1 {
		return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("sentiment score %v out of range", r.SentimentScore)}
	}
	if r.Urgency != nil && !r.Urgency.Valid() {
		return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("unknown urgency %q", *r.Urgency)}
	}
	for label, c := range r.Emotions {
		if c < 0 || c > 1 {
			return &Error{Kind: KindInvalidResponse, Err: fmt.Errorf("emotion %q confidence %v out of range", label, c)}
		}
	}
	return nil
}

// DeriveUrgency picks an urgency when the classifier did not return one.
// Precedence: strongly negative sentiment, then a low star rating, then
// medium.
func DeriveUrgency(sentiment domain.Sentiment, score float64, rating *int) domain.Urgency {
	if sentiment == domain.SentimentNegative && score < -0.5 {
		return domain.UrgencyHigh
	}
	if rating != nil && *rating <= 2 {
		return domain.UrgencyHigh
	}
	return domain.UrgencyMedium
}
