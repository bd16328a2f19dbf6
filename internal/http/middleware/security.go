// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file provides SecurityHeaders: conservative response headers for a
// JSON API running behind a reverse proxy. HSTS is opt-in and only sent on
// HTTPS requests.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// exposedHeaders are made readable to browser clients: the correlation id,
// the list ETag and the rate limiter's Retry-After.
var exposedHeaders = []string{"X-Request-ID", "ETag", "Retry-After"}

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	EnableHSTS   bool          // only when traffic is HTTPS end-to-end
	HSTSMaxAge   time.Duration // defaults to 180 days
	NoStore      bool          // Cache-Control: no-store plus legacy Pragma/Expires
	EnablePolicy bool          // Permissions-Policy and X-Permitted-Cross-Domain-Policies
}

// SecurityHeaders always sets nosniff, frame denial and no-referrer, adds the
// optional groups selected in opt, and appends exposedHeaders to
// Access-Control-Expose-Headers without duplicating existing entries.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	maxAge := int(opt.HSTSMaxAge.Seconds())
	if maxAge <= 0 {
		maxAge = int((180 * 24 * time.Hour).Seconds())
	}
	hsts := "max-age=" + strconv.Itoa(maxAge) + "; includeSubDomains; preload"

	return func(c *gin.Context) {
		h := c.Writer.Header()

		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")

		if opt.EnablePolicy {
			h.Set("Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=()")
			h.Set("X-Permitted-Cross-Domain-Policies", "none")
		}
		if opt.NoStore {
			h.Set("Cache-Control", "no-store")
			h.Set("Pragma", "no-cache")
			h.Set("Expires", "0")
		}
		if opt.EnableHSTS && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}

		exposeHeaders(h)
		c.Next()
	}
}

func exposeHeaders(h http.Header) {
	const hdr = "Access-Control-Expose-Headers"
	cur := h.Get(hdr)
	have := make(map[string]bool)
	for _, v := range strings.Split(cur, ",") {
		if v = strings.TrimSpace(v); v != "" {
			have[strings.ToLower(v)] = true
		}
	}
	for _, name := range exposedHeaders {
		if have[strings.ToLower(name)] {
			continue
		}
		if cur == "" {
			cur = name
		} else {
			cur += ", " + name
		}
	}
	h.Set(hdr, cur)
}

// isHTTPS reports whether the request arrived over TLS directly or through a
// proxy that set X-Forwarded-Proto: https.
func isHTTPS(r *http.Request) bool {
	if r.TLS != nil {
		return true
	}
	return strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
