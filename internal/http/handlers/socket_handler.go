package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaurya4531/insta-chat-appv2/internal/http/middleware"
)

// Socket upgrades GET /ws into a real-time connection. The caller's
// X-User-ID (or ?user_id=) becomes the connection identity when present;
// browsers cannot set headers on a websocket handshake, so the query form is
// the usual one.
func (h *Handlers) Socket(c *gin.Context) {
	if h.socket == nil {
		fail(c, http.StatusServiceUnavailable, ErrCodeInternal, "real-time transport disabled")
		return
	}
	uid, _ := middleware.UserID(c)
	h.socket.ServeWS(c.Writer, c.Request, uid)
}
