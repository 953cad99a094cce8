package middleware

import (
	"math"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// Policy names, also used as the "policy" label and X-RateLimit-Policy value.
const (
	PolicyAPI       = "api"
	PolicySend      = "send"
	PolicyHandshake = "handshake"
)

// headerRatePolicy names the budget that rejected a request.
const headerRatePolicy = "X-RateLimit-Policy"

var rateLimited = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_rate_limited_total",
		Help: "Requests rejected by the rate limiter, by policy.",
	},
	[]string{"policy"},
)

func init() {
	prometheus.MustRegister(rateLimited)
}

// RatePolicy is one token-bucket budget. RPS <= 0 disables the policy.
type RatePolicy struct {
	RPS   float64
	Burst int
}

// RateLimitOptions splits traffic into independent budgets:
//
//   - Send: posting a chat message, per caller (user id, else client IP)
//   - Handshake: websocket upgrades on SocketPath, per client IP; the
//     ?user_id= on a handshake is unauthenticated and never selects a bucket
//   - API: everything else, per caller
//
// A caller that hits the send budget can still load history and reconnect.
type RateLimitOptions struct {
	API        RatePolicy
	Send       RatePolicy
	Handshake  RatePolicy
	SocketPath string
	// IdleTTL evicts buckets unused for this long. Defaults to 10m.
	IdleTTL time.Duration
}

type bucketKey struct {
	policy string
	caller string
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter holds the buckets for every (policy, caller) pair. It is safe
// for concurrent use.
type RateLimiter struct {
	opts RateLimitOptions
	now  func() time.Time

	mu        sync.Mutex
	buckets   map[bucketKey]*bucket
	nextSweep time.Time
}

// NewRateLimiter builds a limiter. Burst values below 1 are raised to 1.
func NewRateLimiter(opts RateLimitOptions) *RateLimiter {
	for _, p := range []*RatePolicy{&opts.API, &opts.Send, &opts.Handshake} {
		if p.Burst < 1 {
			p.Burst = 1
		}
	}
	if opts.IdleTTL <= 0 {
		opts.IdleTTL = 10 * time.Minute
	}
	return &RateLimiter{
		opts:    opts,
		now:     time.Now,
		buckets: make(map[bucketKey]*bucket),
	}
}

// Handler enforces the budgets. Idempotent replays flagged by
// IdempotencyValidator are never charged: they create no message.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) {
			c.Next()
			return
		}
		name, policy, caller := rl.classify(c)
		if policy.RPS <= 0 {
			c.Next()
			return
		}
		ok, wait := rl.take(bucketKey{policy: name, caller: caller}, policy)
		if ok {
			c.Next()
			return
		}

		rateLimited.WithLabelValues(name).Inc()
		LoggerFrom(c).Debug().Str("policy", name).Str("caller", caller).Dur("retry_after", wait).Msg("rate limited")
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds(wait)))
		c.Header(headerRatePolicy, name)
		abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
	}
}

// classify picks the policy for a request and the caller key within it.
func (rl *RateLimiter) classify(c *gin.Context) (string, RatePolicy, string) {
	if rl.opts.SocketPath != "" && c.Request.URL.Path == rl.opts.SocketPath {
		return PolicyHandshake, rl.opts.Handshake, "ip:" + c.ClientIP()
	}
	caller := callerKey(c)
	if isSendRoute(c) {
		return PolicySend, rl.opts.Send, caller
	}
	return PolicyAPI, rl.opts.API, caller
}

// take spends one token, or reports how long until one is available.
func (rl *RateLimiter) take(k bucketKey, p RatePolicy) (bool, time.Duration) {
	now := rl.now()
	lim := rl.limiter(k, p, now)

	r := lim.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second
	}
	if d := r.DelayFrom(now); d > 0 {
		r.CancelAt(now)
		return false, d
	}
	return true, 0
}

func (rl *RateLimiter) limiter(k bucketKey, p RatePolicy, now time.Time) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.After(rl.nextSweep) {
		for key, b := range rl.buckets {
			if now.Sub(b.seen) >= rl.opts.IdleTTL {
				delete(rl.buckets, key)
			}
		}
		rl.nextSweep = now.Add(rl.opts.IdleTTL)
	}

	b, ok := rl.buckets[k]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(rate.Limit(p.RPS), p.Burst)}
		rl.buckets[k] = b
	}
	b.seen = now
	return b.lim
}

// Len returns the number of live buckets.
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// IsRateBypass reports whether IdempotencyValidator matched a stored send.
func IsRateBypass(c *gin.Context) bool {
	st, ok := idempotencyState(c)
	return ok && st.Replay
}

func callerKey(c *gin.Context) string {
	if uid, ok := UserID(c); ok {
		return "user:" + strconv.FormatInt(uid, 10)
	}
	return "ip:" + c.ClientIP()
}

// isSendRoute matches POST .../conversations/:id/messages under any base path.
func isSendRoute(c *gin.Context) bool {
	return c.Request.Method == http.MethodPost &&
		strings.HasSuffix(c.FullPath(), "/conversations/:id/messages")
}

func retryAfterSeconds(d time.Duration) int {
	s := int(math.Ceil(d.Seconds()))
	if s < 1 {
		return 1
	}
	return s
}
