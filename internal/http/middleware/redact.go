package middleware

import (
	"net/http"
	"regexp"
	"strings"
)

// RedactOptions configures what the access logger scrubs.
type RedactOptions struct {
	// MaskHeaders are replaced wholesale with [REDACTED] in addition to
	// Authorization, Cookie and Set-Cookie.
	MaskHeaders []string
	// LogHeaders includes the (redacted) request headers in access logs.
	LogHeaders bool
}

var (
	uuidRE  = regexp.MustCompile(`(?i)\b[0-9a-f]{8}\-[0-9a-f]{4}\-[1-5][0-9a-f]{3}\-[89ab][0-9a-f]{3}\-[0-9a-f]{12}\b`)
	emailRE = regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`)
	phoneRE = regexp.MustCompile(`\b(?:\+?\d{1,3}[ .-]?)?(?:\(?\d{2,4}\)?[ .-]?)?\d{3,4}[ .-]?\d{4}\b`)
)

// redactor scrubs identifiers, emails and phone numbers out of strings that
// end up in logs (query strings, headers).
type redactor struct {
	mask       map[string]struct{}
	logHeaders bool
}

func newRedactor(opts RedactOptions) *redactor {
	mask := map[string]struct{}{
		"authorization": {},
		"cookie":        {},
		"set-cookie":    {},
	}
	for _, h := range opts.MaskHeaders {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			mask[h] = struct{}{}
		}
	}
	return &redactor{mask: mask, logHeaders: opts.LogHeaders}
}

func (r *redactor) text(s string) string {
	if s == "" {
		return s
	}
	s = uuidRE.ReplaceAllString(s, "[REDACTED:id]")
	s = emailRE.ReplaceAllString(s, "[REDACTED:email]")
	return phoneRE.ReplaceAllString(s, "[REDACTED:phone]")
}

func (r *redactor) headers(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		if _, ok := r.mask[strings.ToLower(k)]; ok {
			out[k] = "[REDACTED]"
			continue
		}
		out[k] = r.text(strings.Join(vv, ", "))
	}
	return out
}
