package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// HeaderUserID carries the caller's numeric user id. It is trusted as
	// sent; there is no authentication behind it.
	HeaderUserID = "X-User-ID"

	userIDKey = "userID"
)

// Identity parses the caller id from X-User-ID, falling back to the user_id
// query parameter (browsers cannot set headers on a websocket handshake), and
// stores it in the Gin context. Requests without an id pass through
// anonymously; a malformed id is rejected with 400.
func Identity() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		if raw == "" {
			raw = strings.TrimSpace(c.Query("user_id"))
		}
		if raw == "" {
			c.Next()
			return
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			abortJSON(c, http.StatusBadRequest, "bad_request", "X-User-ID must be a positive integer")
			return
		}
		c.Set(userIDKey, id)
		c.Next()
	}
}

// UserID returns the caller id stored by Identity.
func UserID(c *gin.Context) (int64, bool) {
	v, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok && id > 0
}

// RequireUser aborts with 401 when the request carries no caller id.
func RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := UserID(c); !ok {
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "X-User-ID header required")
			return
		}
		c.Next()
	}
}
