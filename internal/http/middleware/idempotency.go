package middleware

import (
	"context"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// HeaderIdempotencyKey lets a client retry a message send without creating
// a second message.
const HeaderIdempotencyKey = "Idempotency-Key"

const (
	ctxKeyIdempotency = "idempotency"

	defaultIdemMaxLen = 200
)

var defaultIdemPattern = regexp.MustCompile(`^[A-Za-z0-9._~:\-]+$`)

// IdempotencyState is what the validator learned about a request's key.
type IdempotencyState struct {
	Key string
	// ConversationID is the :id route parameter the key is scoped to.
	ConversationID int64
	// Replay is set when a live record already exists for
	// (caller, conversation, key).
	Replay bool
}

// IdempotencyOptions bounds the accepted keys.
type IdempotencyOptions struct {
	// MaxLen defaults to 200.
	MaxLen int
	// Pattern defaults to ^[A-Za-z0-9._~:\-]+$.
	Pattern *regexp.Regexp
}

// IdempotencyLookup reports whether a send with this key is already stored
// and still within its TTL.
type IdempotencyLookup func(ctx context.Context, userID, conversationID int64, key string, now time.Time) (bool, error)

// IdempotencyValidator handles Idempotency-Key on POST requests to routes
// with a conversation :id. Elsewhere the header is ignored. A key that is too
// long or has characters outside the pattern is rejected with 400. For a
// known caller, lookup decides whether the request is a replay; a lookup
// error is logged and the request proceeds as a fresh send.
func IdempotencyValidator(opts IdempotencyOptions, lookup IdempotencyLookup) gin.HandlerFunc {
	maxLen := opts.MaxLen
	if maxLen <= 0 {
		maxLen = defaultIdemMaxLen
	}
	pat := opts.Pattern
	if pat == nil {
		pat = defaultIdemPattern
	}

	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.Next()
			return
		}
		key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))
		convID, _ := strconv.ParseInt(c.Param("id"), 10, 64)
		if key == "" || convID <= 0 {
			c.Next()
			return
		}
		if len(key) > maxLen || !pat.MatchString(key) {
			abortJSON(c, http.StatusBadRequest, "bad_idempotency_key", "invalid Idempotency-Key")
			return
		}

		st := IdempotencyState{Key: key, ConversationID: convID}
		if uid, ok := UserID(c); ok && lookup != nil {
			found, err := lookup(c.Request.Context(), uid, convID, key, time.Now().UTC())
			if err != nil {
				LoggerFrom(c).Warn().Err(err).Int64("conversation_id", convID).Msg("idempotency lookup failed")
			}
			st.Replay = found && err == nil
		}
		c.Set(ctxKeyIdempotency, st)
		c.Next()
	}
}

// GetIdempotencyKey returns the validated key, if the request carried one.
func GetIdempotencyKey(c *gin.Context) (string, bool) {
	st, ok := idempotencyState(c)
	return st.Key, ok && st.Key != ""
}

// IsReplay reports whether the request repeats a stored send.
func IsReplay(c *gin.Context) bool {
	st, ok := idempotencyState(c)
	return ok && st.Replay
}

func idempotencyState(c *gin.Context) (IdempotencyState, bool) {
	v, ok := c.Get(ctxKeyIdempotency)
	if !ok {
		return IdempotencyState{}, false
	}
	st, ok := v.(IdempotencyState)
	return st, ok
}
