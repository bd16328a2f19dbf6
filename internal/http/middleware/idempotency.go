// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements Idempotency-Key support for manual feedback
// submission. The key is validated, stashed on the context for the handler
// (which stores it as the record's source_id), and optionally checked
// against earlier submissions of the same tenant so replays skip rate
// limiting.
package middleware

import (
	"context"
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey is the request header carrying the client's key.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdemKey    = "idem.key"
	ctxKeyIdemReplay = "idem.replay"
	ctxKeyRateBypass = "rate.bypass"
)

// GetIdempotencyKey returns the validated key stored by IdempotencyValidator.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxKeyIdemKey)
	if !ok {
		return "", false
	}
	s, _ := v.(string)
	return s, s != ""
}

// IsReplay reports whether the key was already used by this tenant.
func IsReplay(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyIdemReplay)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// IdempotencyOptions configures key validation.
type IdempotencyOptions struct {
	// MaxLen caps the accepted key length. Values <= 0 default to 200.
	MaxLen int
	// Pattern restricts allowed characters. Nil uses ^[A-Za-z0-9._~\-:]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether tenantID already submitted feedback under
// key. Errors are ignored by the middleware; the ingest path deduplicates
// regardless.
type IdempotencyLookup func(ctx context.Context, tenantID, key string) (exists bool, err error)

// IdempotencyValidator validates the Idempotency-Key header when present.
// Invalid keys are rejected with 400. Keys already used by the tenant named
// in the :tenantId path parameter mark the request as a replay and let it
// bypass the rate limiter.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = 200
	}
	pat := opts.Pattern
	if pat == nil {
		pat = regexp.MustCompile(`^[A-Za-z0-9._~\-:]+$`)
	}

	return func(c *gin.Context) {
		key := c.GetHeader(HeaderIdempotencyKey)
		if key == "" {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			rid, _ := c.Get(requestIDKey)
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"request_id": asString(rid),
				"code":       "bad_idempotency_key",
				"message":    "invalid Idempotency-Key",
			})
			return
		}
		c.Set(ctxKeyIdemKey, key)

		if lookup != nil {
			if exists, _ := lookup(c.Request.Context(), c.Param("tenantId"), key); exists {
				c.Set(ctxKeyIdemReplay, true)
				c.Set(ctxKeyRateBypass, true)
			}
		}

		c.Next()
	}
}
