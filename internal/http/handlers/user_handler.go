// User HTTP handlers.
//
//   - POST /users                     (register; the handle is generated)
//   - GET  /users                     (other users, newest first, with presence)
//   - GET  /users/by-handle/{handle}  (exact handle lookup)
//   - PUT  /users/me                  (edit display name and avatar)
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// RegisterRequest is the JSON payload for creating an account.
type RegisterRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
	Password    string `json:"password"`
}

// UpdateProfileRequest is the JSON payload for PUT /users/me. A blank display
// name keeps the current one; the avatar is always replaced.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// UserView is a user as listed to another user.
type UserView struct {
	domain.User
	Online bool `json:"online"`
}

// ListUsersResponse wraps the users list.
type ListUsersResponse struct {
	Users []UserView `json:"users"`
}

const (
	defaultUserLimit = 50
	maxUserLimit     = 50
)

// Register creates an account with a generated user_NNNN handle.
func (h *Handlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.users.Register(c.Request.Context(), req.DisplayName, req.AvatarURL, req.Password)
	if err != nil {
		failService(c, err, ErrCodeCreateFailed)
		return
	}
	ok(c, http.StatusCreated, u)
}

// ListUsers returns up to 50 users other than the caller.
func (h *Handlers) ListUsers(c *gin.Context) {
	uid, okID := callerID(c)
	if !okID {
		return
	}
	users, err := h.users.ListOthers(c.Request.Context(), uid, clampLimit(c, defaultUserLimit, maxUserLimit))
	if err != nil {
		failService(c, err, ErrCodeListFailed)
		return
	}
	out := make([]UserView, 0, len(users))
	for _, u := range users {
		v := UserView{User: u}
		if h.live != nil {
			v.Online = h.live.IsOnline(u.ID)
		}
		out = append(out, v)
	}
	ok(c, http.StatusOK, ListUsersResponse{Users: out})
}

// FindUser resolves an exact handle.
func (h *Handlers) FindUser(c *gin.Context) {
	handle := strings.TrimSpace(c.Param("handle"))
	if handle == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "handle required")
		return
	}
	u, err := h.users.FindByHandle(c.Request.Context(), handle)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	v := UserView{User: *u}
	if h.live != nil {
		v.Online = h.live.IsOnline(u.ID)
	}
	ok(c, http.StatusOK, v)
}

// Me returns the caller's own profile.
func (h *Handlers) Me(c *gin.Context) {
	uid, okID := callerID(c)
	if !okID {
		return
	}
	u, err := h.users.Get(c.Request.Context(), uid)
	if err != nil {
		failService(c, err, ErrCodeInternal)
		return
	}
	ok(c, http.StatusOK, u)
}

// UpdateProfile edits the caller's display name and avatar.
func (h *Handlers) UpdateProfile(c *gin.Context) {
	uid, okID := callerID(c)
	if !okID {
		return
	}
	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), uid, req.DisplayName, req.AvatarURL)
	if err != nil {
		failService(c, err, ErrCodeUpdateFailed)
		return
	}
	ok(c, http.StatusOK, u)
}
