// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// SecurityHeaders hardens JSON responses and assigns per-route cache
// policies. Chat data is private to its two participants, so nothing the API
// returns may land in a shared cache; message history stays revalidatable
// through its ETag.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Cache-Control values for private API responses.
const (
	// CacheNoStore keeps a response out of every cache.
	CacheNoStore = "private, no-store"
	// CacheRevalidate lets the client keep a copy but forces an
	// If-None-Match round trip before reuse.
	CacheRevalidate = "private, no-cache"
)

// SecurityOptions configures SecurityHeaders.
type SecurityOptions struct {
	// HSTSMaxAge > 0 sends Strict-Transport-Security on HTTPS requests.
	HSTSMaxAge time.Duration
	// CacheControl maps a registered route pattern (c.FullPath(), e.g.
	// /api/v1/conversations/:id/messages) to its Cache-Control value.
	// Unlisted routes get no Cache-Control header.
	CacheControl map[string]string
}

// SecurityHeaders sets nosniff, frame denial, no-referrer and a restrictive
// Permissions-Policy on every response, then the route's cache policy and,
// when enabled and the request arrived over HTTPS, HSTS.
func SecurityHeaders(opt SecurityOptions) gin.HandlerFunc {
	var hsts string
	if secs := int64(opt.HSTSMaxAge / time.Second); secs > 0 {
		hsts = "max-age=" + strconv.FormatInt(secs, 10) + "; includeSubDomains"
	}

	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Permissions-Policy", "camera=(), microphone=(), geolocation=(), payment=()")

		if cc, ok := opt.CacheControl[c.FullPath()]; ok && cc != "" {
			h.Set("Cache-Control", cc)
			if strings.Contains(cc, "no-store") {
				h.Set("Pragma", "no-cache")
			}
		}

		if hsts != "" && isHTTPS(c.Request) {
			h.Set("Strict-Transport-Security", hsts)
		}
		c.Next()
	}
}

// isHTTPS reports whether the request used TLS directly or via a proxy that
// set X-Forwarded-Proto.
func isHTTPS(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
