// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements RedactingLogger, an access logger for the webhook
// surface. It logs request headers, which providers use for signatures and
// delivery ids, after scrubbing them: credential headers and every
// *-Signature header are masked outright, and emails, phone numbers and
// UUIDs are pattern-redacted elsewhere. Bodies are never logged.
package middleware

import (
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// RedactOptions lists extra header names to mask (case-insensitive).
type RedactOptions struct {
	MaskHeaders []string
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	// Digits only, so UUID hex segments never match.
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redact scrubs PII patterns. UUIDs go first so the phone pattern cannot eat
// their digit groups.
func redact(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

// RedactingLogger logs one line per request with scrubbed query and headers.
// Level follows the status: error for 5xx, warn for 4xx, info otherwise.
func RedactingLogger(opts RedactOptions) gin.HandlerFunc {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
		"x-api-key":     {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}
	masked := func(name string) bool {
		name = strings.ToLower(name)
		if _, ok := mask[name]; ok {
			return true
		}
		return strings.Contains(name, "signature")
	}

	return func(c *gin.Context) {
		start := time.Now()

		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		headers := make(map[string]string, len(c.Request.Header))
		for k, vv := range c.Request.Header {
			if masked(k) {
				headers[k] = "[REDACTED]"
				continue
			}
			headers[k] = redact(strings.Join(vv, ", "))
		}

		c.Next()

		status := c.Writer.Status()
		reqID := c.Writer.Header().Get(requestIDHeader)
		if reqID == "" {
			reqID = c.GetHeader(requestIDHeader)
		}

		ev := log.Info()
		switch {
		case status >= 500:
			ev = log.Error()
		case status >= 400:
			ev = log.Warn()
		}
		ev.
			Str("request_id", reqID).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("tenant_id", c.Param("tenantId")).
			Str("provider", c.Param("provider")).
			Str("query", redact(c.Request.URL.RawQuery)).
			Int("status", status).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start)).
			Interface("headers", headers).
			Msg("http_request")
	}
}
