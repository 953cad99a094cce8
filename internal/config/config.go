// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server timeouts,
// logging, the SQLite path, rate limiting, the real-time hub, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "insta-chat")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// RealtimeConfig tunes the websocket transport and the event hub.
type RealtimeConfig struct {
	WriteWait     time.Duration // WS_WRITE_WAIT
	PongWait      time.Duration // WS_PONG_WAIT
	PingPeriod    time.Duration // derived: 9/10 of PongWait
	MaxFrameBytes int64         // WS_MAX_FRAME_BYTES
	SendBuffer    int           // WS_SEND_BUFFER (outbound frames per connection)

	// StrictIdentity makes the hub ignore payload identities that do not match
	// the connection's authenticated user. Off by default for wire parity.
	StrictIdentity bool          // REALTIME_STRICT_IDENTITY
	PersistTimeout time.Duration // REALTIME_PERSIST_TIMEOUT
	EventRPS       float64       // REALTIME_EVENT_RPS (0 disables the per-session limiter)
	EventBurst     int           // REALTIME_EVENT_BURST
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool   // pretty console logs in dev
	APIBasePath string // base path for API routes

	// App
	DBPath              string // SQLite path
	MessageHistoryLimit int    // rows returned by a history load
	MaxMessageRunes     int    // cap on a single message text

	// Rate limiting (HTTP); an RPS of 0 disables that budget
	RateRPS        float64 // RATE_RPS: API calls per caller
	RateBurst      int     // RATE_BURST
	SendRPS        float64 // RATE_SEND_RPS: message sends per caller
	SendBurst      int     // RATE_SEND_BURST
	HandshakeRPS   float64 // RATE_WS_RPS: websocket handshakes per client IP
	HandshakeBurst int     // RATE_WS_BURST

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration // how long a given Idempotency-Key is valid

	// Real-time
	Realtime RealtimeConfig

	// Observability
	OTEL OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "5000"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:              getenv("DB_PATH", "app.db"),
		MessageHistoryLimit: getint("MESSAGE_HISTORY_LIMIT", 500),
		MaxMessageRunes:     getint("MAX_MESSAGE_RUNES", 4000),

		// Rate limiting
		RateRPS:        getfloat("RATE_RPS", 5.0),
		RateBurst:      getint("RATE_BURST", 10),
		SendRPS:        getfloat("RATE_SEND_RPS", 2.0),
		SendBurst:      getint("RATE_SEND_BURST", 10),
		HandshakeRPS:   getfloat("RATE_WS_RPS", 0.5),
		HandshakeBurst: getint("RATE_WS_BURST", 5),

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Real-time
		Realtime: RealtimeConfig{
			WriteWait:      getdur("WS_WRITE_WAIT", 10*time.Second),
			PongWait:       getdur("WS_PONG_WAIT", 60*time.Second),
			MaxFrameBytes:  int64(getint("WS_MAX_FRAME_BYTES", 64<<10)),
			SendBuffer:     getint("WS_SEND_BUFFER", 256),
			StrictIdentity: getbool("REALTIME_STRICT_IDENTITY", false),
			PersistTimeout: getdur("REALTIME_PERSIST_TIMEOUT", 5*time.Second),
			EventRPS:       getfloat("REALTIME_EVENT_RPS", 20),
			EventBurst:     getint("REALTIME_EVENT_BURST", 40),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "insta-chat"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}
	cfg.Realtime.PingPeriod = (cfg.Realtime.PongWait * 9) / 10

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.MessageHistoryLimit < 1 {
		return cfg, errors.New("MESSAGE_HISTORY_LIMIT must be >= 1")
	}
	if cfg.MaxMessageRunes < 1 {
		return cfg, errors.New("MAX_MESSAGE_RUNES must be >= 1")
	}
	if cfg.RateRPS < 0 || cfg.SendRPS < 0 || cfg.HandshakeRPS < 0 {
		return cfg, errors.New("RATE_RPS, RATE_SEND_RPS and RATE_WS_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 || cfg.SendBurst < 1 || cfg.HandshakeBurst < 1 {
		return cfg, errors.New("RATE_BURST, RATE_SEND_BURST and RATE_WS_BURST must be >= 1")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
	}
	if cfg.Realtime.WriteWait <= 0 || cfg.Realtime.PongWait <= 0 || cfg.Realtime.PersistTimeout <= 0 {
		return cfg, errors.New("WS_WRITE_WAIT, WS_PONG_WAIT and REALTIME_PERSIST_TIMEOUT must be positive durations")
	}
	if cfg.Realtime.MaxFrameBytes <= 0 {
		return cfg, errors.New("WS_MAX_FRAME_BYTES must be > 0")
	}
	if cfg.Realtime.SendBuffer < 1 {
		return cfg, errors.New("WS_SEND_BUFFER must be >= 1")
	}
	if cfg.Realtime.EventRPS < 0 {
		return cfg, errors.New("REALTIME_EVENT_RPS must be >= 0")
	}
	if cfg.Realtime.EventBurst < 1 {
		return cfg, errors.New("REALTIME_EVENT_BURST must be >= 1")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
