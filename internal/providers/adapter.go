// Package providers turns provider-specific webhook payloads into canonical
// feedback records.
//
// Every provider is one Adapter: a pure, stateless parser plus the signing
// scheme its webhooks use. Adapters never perform I/O. They degrade
// gracefully on missing optional fields and fail with a *ValidationError
// only when the record's content cannot be derived.
//
// Adapters are dispatched by tag through a Registry; adding a provider means
// adding one Adapter and registering it.
package providers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"gorm.io/datatypes"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

var (
	// ErrUnknownProvider is returned by Registry.Lookup for an unregistered tag.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMalformed indicates a body that is not valid JSON.
	ErrMalformed = errors.New("malformed payload")

	// ErrValidation is the sentinel every *ValidationError unwraps to.
	ErrValidation = errors.New("payload validation failed")
)

// ValidationError reports that a payload was well-formed JSON but did not
// carry what the adapter needs to build a record.
type ValidationError struct {
	Provider domain.Source
	Field    string
	Reason   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Field, e.Reason)
}

// Unwrap lets callers match with errors.Is(err, ErrValidation).
func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(p domain.Source, field, reason string) error {
	return &ValidationError{Provider: p, Field: field, Reason: reason}
}

// Adapter parses one provider's payloads.
type Adapter interface {
	// Source is the tag used in webhook routes and stored on records.
	Source() domain.Source
	// Signature describes how the provider signs webhook bodies. The zero
	// value means the source is not reachable through webhooks.
	Signature() Signature
	// Parse builds a record skeleton from payload. The returned record
	// carries Source, SourceID, content fields and OriginalData; identity,
	// tenant and processing state are filled in by the ingest service.
	Parse(payload []byte) (*domain.FeedbackRecord, error)
}

// Registry maps provider tags to adapters.
type Registry struct {
	adapters map[domain.Source]Adapter
}

// NewRegistry builds a registry from the given adapters. Later adapters
// replace earlier ones with the same tag.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[domain.Source]Adapter, len(adapters))}
	for _, a := range adapters {
		r.adapters[a.Source()] = a
	}
	return r
}

// DefaultRegistry returns a registry with every built-in provider.
func DefaultRegistry() *Registry {
	return NewRegistry(
		Intercom{},
		Zendesk{},
		Freshdesk{},
		HelpScout{},
		AppStore{},
		GooglePlay{},
		Trustpilot{},
		Twitter{},
		Manual{},
	)
}

// Lookup returns the adapter registered for tag (case-insensitive).
func (r *Registry) Lookup(tag string) (Adapter, error) {
	a, ok := r.adapters[domain.Source(strings.ToLower(strings.TrimSpace(tag)))]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, tag)
	}
	return a, nil
}

// Sources lists the registered tags in sorted order.
func (r *Registry) Sources() []domain.Source {
	out := make([]domain.Source, 0, len(r.adapters))
	for s := range r.adapters {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// newRecord builds the skeleton shared by all adapters. originalData is kept
// byte-for-byte.
func newRecord(src domain.Source, sourceID, content string, originalData []byte) *domain.FeedbackRecord {
	rec := &domain.FeedbackRecord{
		Source:       src,
		Content:      strings.TrimSpace(content),
		Language:     domain.DefaultLanguage,
		OriginalData: datatypes.JSON(bytes.Clone(originalData)),
	}
	if id := strings.TrimSpace(sourceID); id != "" {
		rec.SourceID = &id
	}
	return rec
}

// decodeJSON unmarshals payload into dst, mapping syntax errors to
// ErrMalformed.
func decodeJSON(payload []byte, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return nil
}

// flexString accepts a JSON string or number (providers disagree on whether
// ids are numeric).
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

// flexInt accepts a JSON number or numeric string; anything else decodes to
// "absent".
type flexInt struct {
	Value int
	Set   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(b); err != nil {
		return nil
	}
	str := strings.TrimSpace(string(s))
	if str == "" {
		return nil
	}
	if n, err := strconv.Atoi(str); err == nil {
		f.Value, f.Set = n, true
		return nil
	}
	if v, err := strconv.ParseFloat(str, 64); err == nil {
		f.Value, f.Set = int(v), true
	}
	return nil
}

// rating returns a pointer to v when it is a valid 1..5 star value.
func rating(v flexInt) *int {
	if !v.Set || v.Value < 1 || v.Value > 5 {
		return nil
	}
	r := v.Value
	return &r
}

// normalizeLanguage reduces a provider language tag ("en-GB", "pt_BR") to
// its base language, falling back to the default.
func normalizeLanguage(tag string) string {
	tag = strings.ReplaceAll(strings.TrimSpace(tag), "_", "-")
	if tag == "" {
		return domain.DefaultLanguage
	}
	t, err := language.Parse(tag)
	if err != nil {
		return domain.DefaultLanguage
	}
	base, conf := t.Base()
	if conf == language.No || base.String() == "und" {
		return domain.DefaultLanguage
	}
	return base.String()
}

var tagRE = regexp.MustCompile(`<[^>]*>`)

// plainText strips markup from HTML bodies (Intercom, Help Scout) and
// collapses whitespace.
func plainText(s string) string {
	s = tagRE.ReplaceAllString(s, " ")
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
