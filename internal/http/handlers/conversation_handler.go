// Conversation HTTP handlers.
//
//   - POST /conversations   (get or create the conversation with a peer)
//   - GET  /conversations   (the caller's conversations, most recent first)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/shaurya4531/insta-chat-appv2/internal/realtime"
	"github.com/shaurya4531/insta-chat-appv2/internal/services"
)

// OpenConversationRequest names the peer to talk to.
type OpenConversationRequest struct {
	PeerID int64 `json:"peer_id"`
}

// ConversationResponse describes the opened conversation from the caller's
// side. Room is the address to pass to join_room.
type ConversationResponse struct {
	services.ConversationSummary
	Room       string `json:"room"`
	PeerOnline bool   `json:"peer_online"`
}

// ListConversationsResponse wraps the conversation list.
type ListConversationsResponse struct {
	Conversations []services.ConversationSummary `json:"conversations"`
}

// OpenConversation returns the single conversation between the caller and
// peer_id, creating it on first use.
func (h *Handlers) OpenConversation(c *gin.Context) {
	uid, okID := callerID(c)
	if !okID {
		return
	}
	var req OpenConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PeerID <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "peer_id must be a positive integer")
		return
	}

	ctx := c.Request.Context()
	conv, err := h.convs.GetOrCreate(ctx, uid, req.PeerID)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	peer, err := h.users.Get(ctx, req.PeerID)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}

	resp := ConversationResponse{
		ConversationSummary: services.ConversationSummary{
			ID:            conv.ID,
			OtherID:       peer.ID,
			OtherUsername: peer.Username,
			OtherDisplay:  peer.DisplayOrUsername(),
			OtherAvatar:   peer.AvatarURL,
			CreatedAt:     conv.CreatedAt,
		},
		Room: realtime.RoomName(conv.ID),
	}
	if h.live != nil {
		resp.PeerOnline = h.live.IsOnline(peer.ID)
	}
	ok(c, http.StatusOK, resp)
}

// ListConversations returns the caller's conversations.
func (h *Handlers) ListConversations(c *gin.Context) {
	uid, okID := callerID(c)
	if !okID {
		return
	}
	items, err := h.convs.ListForUser(c.Request.Context(), uid)
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	ok(c, http.StatusOK, ListConversationsResponse{Conversations: items})
}
