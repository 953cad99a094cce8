// Package httpapi wires the HTTP transport (Gin) to application services,
// middleware, the real-time hub and route handlers. It centralizes
// cross-cutting concerns such as tracing, correlation IDs, caller identity,
// logging/redaction, panic recovery, metrics, CORS, security headers,
// idempotency, rate limiting and compression.
//
// Design goals:
//   - Put observability first (OTel + Prometheus)
//   - Safe-by-default middleware ordering (RequestID → identity → logging → recovery)
//   - Deterministic, minimal router setup; all dependencies injected
//   - Production-ready CORS and security header posture
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/config"
	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/http/handlers"
	"github.com/shaurya4531/insta-chat-appv2/internal/http/middleware"
	"github.com/shaurya4531/insta-chat-appv2/internal/realtime"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
	"github.com/shaurya4531/insta-chat-appv2/internal/services"
)

// socketPath is the websocket endpoint. It is mounted outside the API base
// path and excluded from compression.
const socketPath = "/ws"

// userRepoShim adapts the repository free functions to the services.UserRepo
// interface expected by the UserService.
type userRepoShim struct{}

// CreateUser proxies repo.CreateUser.
func (userRepoShim) CreateUser(ctx context.Context, db *gorm.DB, username, displayName, avatarURL, passwordHash string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, username, displayName, avatarURL, passwordHash)
}

// GetUser proxies repo.GetUser.
func (userRepoShim) GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// FindUserByHandle proxies repo.FindUserByHandle.
func (userRepoShim) FindUserByHandle(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	return repo.FindUserByHandle(ctx, db, username)
}

// ListOtherUsers proxies repo.ListOtherUsers.
func (userRepoShim) ListOtherUsers(ctx context.Context, db *gorm.DB, exclude int64, limit int) ([]domain.User, error) {
	return repo.ListOtherUsers(ctx, db, exclude, limit)
}

// UpdateUserProfile proxies repo.UpdateUserProfile.
func (userRepoShim) UpdateUserProfile(ctx context.Context, db *gorm.DB, id int64, displayName, avatarURL string) error {
	return repo.UpdateUserProfile(ctx, db, id, displayName, avatarURL)
}

// conversationRepoShim adapts the repository free functions to the
// services.ConversationRepo interface.
type conversationRepoShim struct{}

// GetOrCreateConversation proxies repo.GetOrCreateConversation.
func (conversationRepoShim) GetOrCreateConversation(ctx context.Context, db *gorm.DB, a, b int64) (*domain.Conversation, bool, error) {
	return repo.GetOrCreateConversation(ctx, db, a, b)
}

// GetConversation proxies repo.GetConversation.
func (conversationRepoShim) GetConversation(ctx context.Context, db *gorm.DB, id int64) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}

// ListConversationsForUser proxies repo.ListConversationsForUser.
func (conversationRepoShim) ListConversationsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Conversation, error) {
	return repo.ListConversationsForUser(ctx, db, userID)
}

// GetUser proxies repo.GetUser.
func (conversationRepoShim) GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}

// RegisterRoutes attaches all middleware and HTTP endpoints to the given Gin
// engine, builds the services and the real-time hub over db, and mounts the
// versioned public API under cfg.APIBasePath and the websocket at /ws. The
// hub is returned so the caller can close it on shutdown.
//
// Middleware order matters:
//  1. OpenTelemetry: trace everything
//  2. RequestID: generate/propagate correlation id
//  3. Identity: resolve X-User-ID before anything logs or rate limits
//  4. Logger: structured logs with PII scrubbing
//  5. Recovery: capture panics after logger
//  6. Body size limiter
//  7. Metrics
//  8. Idempotency validator (before rate limiter to allow bypass on replay)
//  9. Rate limiter (send, API and handshake budgets; replays are free)
//  10. CORS and Security headers (per-route Cache-Control)
//  11. Compression (JSON routes only)
func RegisterRoutes(r *gin.Engine, db *gorm.DB, cfg config.Config) *realtime.Hub {
	r.HandleMethodNotAllowed = true

	// Dependency injection: services ← repo/db
	userSvc := services.NewUserService(db, userRepoShim{})
	convSvc := services.NewConversationService(db, conversationRepoShim{})
	msgSvc := services.NewMessageService(db, cfg.MaxMessageRunes, cfg.MessageHistoryLimit)
	idemSvc := services.NewIdempotencyService(db, cfg.IdempotencyTTL)

	rt := cfg.Realtime
	hub := realtime.NewHub(msgSvc, convSvc, realtime.Options{
		StrictIdentity: rt.StrictIdentity,
		PersistTimeout: rt.PersistTimeout,
		EventRPS:       rt.EventRPS,
		EventBurst:     rt.EventBurst,
	})
	transport := realtime.NewTransport(hub, realtime.TransportOptions{
		WriteWait:     rt.WriteWait,
		PongWait:      rt.PongWait,
		PingPeriod:    rt.PingPeriod,
		MaxFrameBytes: rt.MaxFrameBytes,
		SendBuffer:    rt.SendBuffer,
		CheckOrigin:   originChecker(cfg.CORS.AllowedOrigins),
	})

	// 1) Trace all HTTP requests
	r.Use(otelgin.Middleware(cfg.OTEL.ServiceName))

	// 2) Correlate requests and logs
	r.Use(middleware.RequestID())

	// 3) Caller identity (X-User-ID or ?user_id=)
	r.Use(middleware.Identity())

	// 4) Structured logging with redaction
	r.Use(middleware.Logger(middleware.RedactOptions{
		MaskHeaders: []string{
			"X-API-Key",
		},
	}))

	// 5) Panic recovery to JSON 500 (with request id)
	r.Use(middleware.Recovery())

	// 6) Global body size limit (1 MiB)
	r.Use(limitBody(1 << 20))

	// 7) Prometheus metrics and /metrics endpoint
	r.Use(middleware.Metrics())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// 8) Idempotency validation (before rate limiting)
	r.Use(middleware.IdempotencyValidator(
		middleware.IdempotencyOptions{
			MaxLen: 200,
		},
		idemSvc.Exists,
	))

	// 9) Token buckets: sends and API calls per caller, handshakes per IP
	rl := middleware.NewRateLimiter(middleware.RateLimitOptions{
		API:        middleware.RatePolicy{RPS: cfg.RateRPS, Burst: cfg.RateBurst},
		Send:       middleware.RatePolicy{RPS: cfg.SendRPS, Burst: cfg.SendBurst},
		Handshake:  middleware.RatePolicy{RPS: cfg.HandshakeRPS, Burst: cfg.HandshakeBurst},
		SocketPath: socketPath,
	})
	r.Use(rl.Handler())

	// 10) CORS posture (safe defaults: allow all if none configured)
	if len(cfg.CORS.AllowedOrigins) == 0 {
		// Force ACAO: * even for requests without an Origin header (helps tests and simple health checks).
		r.Use(func(c *gin.Context) {
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowAllOrigins:  true,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After", "X-RateLimit-Policy"},
			AllowCredentials: false, // must remain false with AllowAllOrigins
			MaxAge:           12 * time.Hour,
		}))
	} else {
		// Echo ACAO with the request Origin when it is in the allowlist (in addition to gin-contrib/cors).
		allowed := make(map[string]struct{}, len(cfg.CORS.AllowedOrigins))
		for _, o := range cfg.CORS.AllowedOrigins {
			allowed[o] = struct{}{}
		}
		r.Use(func(c *gin.Context) {
			if origin := c.GetHeader("Origin"); origin != "" {
				if _, ok := allowed[origin]; ok {
					h := c.Writer.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Add("Vary", "Origin")
				}
			}
			c.Next()
		})
		r.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.CORS.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", middleware.HeaderUserID, middleware.HeaderIdempotencyKey, "If-None-Match"},
			ExposeHeaders:    []string{"X-Request-ID", "Content-Length", "ETag", "Idempotency-Replayed", "Retry-After", "X-RateLimit-Policy"},
			AllowCredentials: false,
			MaxAge:           12 * time.Hour,
		}))
	}

	// Security headers. Profiles and conversation lists are never stored;
	// history may be cached privately but is revalidated through its ETag.
	apiBase := cfg.APIBasePath // e.g. "/api/v1"
	sec := middleware.SecurityOptions{
		CacheControl: map[string]string{
			joinPath(apiBase, "/users"):                      middleware.CacheNoStore,
			joinPath(apiBase, "/users/me"):                   middleware.CacheNoStore,
			joinPath(apiBase, "/conversations"):              middleware.CacheNoStore,
			joinPath(apiBase, "/conversations/:id/messages"): middleware.CacheRevalidate,
		},
	}
	if cfg.Security.EnableHSTS {
		sec.HSTSMaxAge = cfg.Security.HSTSMaxAge
	}
	r.Use(middleware.SecurityHeaders(sec))

	// 11) Compression; the websocket handshake must reach the upgrader untouched.
	r.Use(gzip.Gzip(gzip.DefaultCompression, gzip.WithExcludedPaths([]string{socketPath, "/metrics"})))

	// Fallbacks
	r.NoRoute(func(c *gin.Context) {
		handlers.Fail(c, http.StatusNotFound, handlers.ErrCodeNotFound, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		handlers.Fail(c, http.StatusMethodNotAllowed, handlers.ErrCodeMethodNotAllowed, "method not allowed")
	})

	// Liveness/health
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "connections": hub.Len(), "online": hub.Presence().Len()})
	})

	h := handlers.New(handlers.Deps{
		Users:         userSvc,
		Conversations: convSvc,
		Messages:      msgSvc,
		Idem:          idemSvc,
		Live:          hub,
		Socket:        transport,
	})

	// Real-time
	r.GET(socketPath, h.Socket)

	// Public API
	api := groupWithPrefix(r, apiBase)
	{
		api.POST("/users", h.Register)
		api.GET("/users/by-handle/:handle", h.FindUser)
	}

	// Caller-scoped API
	me := api.Group("", middleware.RequireUser())
	{
		// Users
		me.GET("/users", h.ListUsers)
		me.GET("/users/me", h.Me)
		me.PUT("/users/me", h.UpdateProfile)

		// Conversations
		me.POST("/conversations", h.OpenConversation)
		me.GET("/conversations", h.ListConversations)

		// Messages
		me.GET("/conversations/:id/messages", h.ListMessages)
		me.POST("/conversations/:id/messages", h.PostMessage)
	}

	return hub
}

// originChecker accepts websocket handshakes from the CORS allowlist, or
// from anywhere when the allowlist is empty. Requests without an Origin
// header (non-browser clients) are always accepted.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// limitBody returns a Gin middleware that caps the request body size for all
// endpoints to maxBytes using http.MaxBytesReader. Requests exceeding the cap
// will cause downstream body reads to error.
func limitBody(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// groupWithPrefix mounts a group at prefix, treating "/" (or empty) as root.
func groupWithPrefix(r *gin.Engine, prefix string) *gin.RouterGroup {
	if prefix == "" || prefix == "/" {
		return r.Group("")
	}
	return r.Group(prefix)
}

// joinPath appends p to the API base, treating "/" (or empty) as root.
func joinPath(base, p string) string {
	if base == "" || base == "/" {
		return p
	}
	return base + p
}
