// Message HTTP handlers.
//
// This file exposes REST endpoints for conversation messages:
//   - POST /conversations/{id}/messages   (send a message as the caller)
//   - GET  /conversations/{id}/messages   (history, oldest first)
//
// Handlers are transport-thin:
//   - validate inputs and check membership
//   - delegate to application services (MessageService)
//   - fan persisted writes out to connected clients
//   - implement conditional responses (ETag) and idempotency semantics
//
// Opening a history is also an acknowledgement: every message the peer sent
// is marked read before the page is built, and the peer's clients receive
// messages_read when anything changed.
//
// Idempotency:
// If the client supplies an Idempotency-Key header and a previous successful
// result exists for (user, conversation, key), the handler returns that
// recorded message and sets `Idempotency-Replayed: true`.
package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/http/middleware"
)

//
// DTOs
//

// PostMessageRequest is the JSON payload for sending a message.
type PostMessageRequest struct {
	// Text is trimmed and NFC-normalized by the service. It must be non-empty.
	Text string `json:"text"`
}

// PostMessageResponse wraps the stored message.
type PostMessageResponse struct {
	Message *domain.Message `json:"message"`
}

// ListMessagesResponse contains a conversation history.
type ListMessagesResponse struct {
	ConversationID int64            `json:"conversation_id"`
	Messages       []domain.Message `json:"messages"`
	// Marked is how many peer messages this request flagged as read.
	Marked int64 `json:"marked"`
}

const (
	headerReplayed = "Idempotency-Replayed"
	maxHistory     = 500
)

// PostMessage stores a message from the caller and broadcasts new_message to
// the conversation room.
func (h *Handlers) PostMessage(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okID := callerID(c)
	if !okID {
		return
	}
	convID, okID := pathID(c, "id")
	if !okID {
		return
	}

	var req PostMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}

	if _, err := h.convs.EnsureParticipant(ctx, convID, uid); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}

	idemKey, _ := middleware.GetIdempotencyKey(c)
	if idemKey != "" && h.idem != nil {
		if msgID, found, err := h.idem.Lookup(ctx, uid, convID, idemKey); err == nil && found {
			if prev, err := h.msgs.Get(ctx, msgID); err == nil {
				c.Header(headerReplayed, "true")
				ok(c, http.StatusCreated, PostMessageResponse{Message: prev})
				return
			}
		}
	}

	m, err := h.msgs.Send(ctx, convID, uid, req.Text)
	if err != nil {
		failService(c, err, ErrCodeSendFailed)
		return
	}

	if idemKey != "" && h.idem != nil {
		if err := h.idem.Remember(ctx, uid, convID, idemKey, m.ID, http.StatusCreated); err != nil {
			lg := middleware.LoggerFrom(c)
			lg.Warn().Err(err).Int64("message_id", m.ID).Msg("idempotency record failed")
		}
	}

	if h.live != nil {
		h.live.PublishMessage(m)
	}
	ok(c, http.StatusCreated, PostMessageResponse{Message: m})
}

// ListMessages returns the history of a conversation the caller belongs to,
// marking the peer's messages read first.
func (h *Handlers) ListMessages(c *gin.Context) {
	ctx := c.Request.Context()
	uid, okID := callerID(c)
	if !okID {
		return
	}
	convID, okID := pathID(c, "id")
	if !okID {
		return
	}

	if _, err := h.convs.EnsureParticipant(ctx, convID, uid); err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}

	marked, err := h.msgs.MarkRead(ctx, convID, uid)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	if marked > 0 && h.live != nil {
		h.live.PublishRead(convID, uid)
	}

	// ETag pre-check (best effort), taken after the read receipt.
	if count, maxID, unread, err := h.msgs.Stats(ctx, convID); err == nil {
		etag := fmt.Sprintf(`W/"messages:%d:%d:%d:%d"`, convID, count, maxID, unread)
		c.Header("ETag", etag)
		if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
			c.Status(http.StatusNotModified)
			return
		}
	}

	items, err := h.msgs.List(ctx, convID, clampLimit(c, 0, maxHistory))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListMessagesResponse{
		ConversationID: convID,
		Messages:       items,
		Marked:         marked,
	})
}
