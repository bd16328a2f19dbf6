package providers

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/tbourn/go-feedback-pipeline/internal/domain"
)

// mustSchema compiles an in-memory envelope schema. Schemas are package
// constants, so a compile error is a programming error.
func mustSchema(name, src string) *jsonschema.Schema {
	doc, err := jsonschema.UnmarshalJSON(strings.NewReader(src))
	if err != nil {
		panic(fmt.Sprintf("providers: schema %s: %v", name, err))
	}
	url := "mem://providers/" + name + ".json"
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		panic(fmt.Sprintf("providers: schema %s: %v", name, err))
	}
	return c.MustCompile(url)
}

// parseEnvelope checks payload against the provider's envelope schema, then
// decodes it into dst.
func parseEnvelope(src domain.Source, sch *jsonschema.Schema, payload []byte, dst any) error {
	if len(bytes.TrimSpace(payload)) == 0 {
		return fmt.Errorf("%w: empty body", ErrMalformed)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err := sch.Validate(inst); err != nil {
		return invalid(src, "payload", schemaReason(err))
	}
	return decodeJSON(payload, dst)
}

// schemaReason flattens a validation error to its first line; the full tree
// is noisy in API responses.
func schemaReason(err error) string {
	msg := err.Error()
	if i := strings.IndexByte(msg, '\n'); i > 0 {
		rest := strings.TrimSpace(msg[i+1:])
		if rest != "" {
			return rest
		}
		return msg[:i]
	}
	return msg
}
