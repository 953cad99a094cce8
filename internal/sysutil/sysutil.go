// Package sysutil holds process-level helpers used at startup: log level
// selection, logger construction and small environment-string utilities.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultService is the service field stamped on log lines when none is given.
const DefaultService = "insta-chat"

// SetLogLevel configures the global zerolog level from a string and returns
// the level applied. Supported values (case-insensitive): debug, info,
// warn/warning, error, fatal, panic. Anything else selects info.
func SetLogLevel(lvl string) zerolog.Level {
	level := zerolog.InfoLevel
	switch strings.ToLower(strings.TrimSpace(lvl)) {
	case "debug":
		level = zerolog.DebugLevel
	case "warn", "warning":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	case "fatal":
		level = zerolog.FatalLevel
	case "panic":
		level = zerolog.PanicLevel
	}
	zerolog.SetGlobalLevel(level)
	return level
}

// NewLogger builds the process logger. With pretty set, output goes through
// a zerolog.ConsoleWriter (colors disabled when NO_COLOR is truthy);
// otherwise lines are JSON. Every line carries a timestamp and the service
// name.
func NewLogger(w io.Writer, pretty bool, service string) zerolog.Logger {
	if w == nil {
		w = os.Stderr
	}
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.RFC3339,
			NoColor:    IsTruthy(os.Getenv("NO_COLOR")),
		}
	}
	return zerolog.New(w).With().
		Timestamp().
		Str("service", FirstNonEmpty(service, DefaultService)).
		Logger()
}

// IsTruthy reports whether an environment variable string should be considered true.
// Accepted values (case-insensitive): "1", "true", "yes", "y", "on".
func IsTruthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

// FirstNonEmpty returns the first value that is not blank, unchanged.
// If all values are blank, it returns "".
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
