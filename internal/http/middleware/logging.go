// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file carries the request correlation id, the access log and panic
// recovery:
//
//   - RequestID reuses X-Request-ID or mints a UUID, and echoes it back.
//   - Logger builds a request-scoped zerolog.Logger (request id, caller,
//     route, redacted query), attaches it to both the Gin context and the
//     request context, and writes one access line when the handler returns.
//     A websocket handshake returns only when the socket closes, so it is
//     logged as a "websocket session" with its lifetime instead.
//   - Recovery turns a panic into the JSON 500 envelope.
//
// Order: RequestID, Identity, Logger, Recovery.
package middleware

import (
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"
	loggerKey       = "logger"

	maxQueryLogLength = 2048
)

// RequestID attaches (or propagates) a correlation id per request.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// Logger writes a structured access log. The level follows the outcome:
// error for 5xx or recorded Gin errors, warn for 4xx, info otherwise.
// opts controls what gets scrubbed from the query string and headers.
func Logger(opts ...RedactOptions) gin.HandlerFunc {
	var o RedactOptions
	if len(opts) > 0 {
		o = opts[0]
	}
	red := newRedactor(o)

	return func(c *gin.Context) {
		start := time.Now()

		rid, _ := c.Get(requestIDKey)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}

		lc := log.With().
			Str("request_id", asString(rid)).
			Str("method", c.Request.Method).
			Str("path", path).
			Str("remote_ip", c.ClientIP())
		if uid, ok := UserID(c); ok {
			lc = lc.Int64("user_id", uid)
		}
		if q := c.Request.URL.RawQuery; q != "" {
			lc = lc.Str("query", truncate(red.text(q), maxQueryLogLength))
		}
		if red.logHeaders {
			lc = lc.Interface("headers", red.headers(c.Request.Header))
		}
		l := lc.Logger()

		c.Set(loggerKey, &l)
		c.Request = c.Request.WithContext(l.WithContext(c.Request.Context()))

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if isUpgrade(c.Request) && status == http.StatusOK && len(c.Errors) == 0 {
			l.Info().
				Int("status", http.StatusSwitchingProtocols).
				Dur("duration", latency).
				Msg("websocket session")
			return
		}

		ev := l.With().
			Int("status", status).
			Dur("latency", latency).
			Int64("bytes_in", c.Request.ContentLength).
			Int("bytes_out", c.Writer.Size()).
			Logger()
		switch {
		case len(c.Errors) > 0:
			ev.Error().Str("errors", c.Errors.String()).Msg("request")
		case status >= 500:
			ev.Error().Msg("request")
		case status >= 400:
			ev.Warn().Msg("request")
		default:
			ev.Info().Msg("request")
		}
	}
}

// Recovery logs a panic with its stack and, if nothing was written yet,
// answers with the internal_error envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			abortJSON(c, http.StatusInternalServerError, "internal_error", "internal server error")
		}()
		c.Next()
	}
}

// LoggerFrom returns the request-scoped logger set by Logger, or the
// global logger when Logger did not run.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Logger()
	return &l
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

// truncate cuts s to max bytes and appends an ellipsis; max <= 0 keeps s.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
