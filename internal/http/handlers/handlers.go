package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/http/middleware"
	"github.com/shaurya4531/insta-chat-appv2/internal/services"
	"github.com/shaurya4531/insta-chat-appv2/internal/utils"
)

//
// Service contracts (context-aware)
//

// UserService covers account registration, lookup and profile edits.
type UserService interface {
	Register(ctx context.Context, displayName, avatarURL, password string) (*domain.User, error)
	Get(ctx context.Context, id int64) (*domain.User, error)
	FindByHandle(ctx context.Context, username string) (*domain.User, error)
	ListOthers(ctx context.Context, userID int64, limit int) ([]domain.User, error)
	UpdateProfile(ctx context.Context, userID int64, displayName, avatarURL string) (*domain.User, error)
}

// ConversationService resolves two-party conversations and membership.
type ConversationService interface {
	GetOrCreate(ctx context.Context, a, b int64) (*domain.Conversation, error)
	EnsureParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error)
	ListForUser(ctx context.Context, userID int64) ([]services.ConversationSummary, error)
}

// MessageService stores and reads conversation messages.
type MessageService interface {
	Send(ctx context.Context, conversationID, senderID int64, text string) (*domain.Message, error)
	Get(ctx context.Context, id int64) (*domain.Message, error)
	List(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)
	MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error)
	Stats(ctx context.Context, conversationID int64) (count, maxID, unread int64, err error)
}

// IdempotencyStore remembers the message produced for an Idempotency-Key.
type IdempotencyStore interface {
	Lookup(ctx context.Context, userID, conversationID int64, key string) (messageID int64, found bool, err error)
	Remember(ctx context.Context, userID, conversationID int64, key string, messageID int64, status int) error
}

// Realtime fans persisted writes out to connected clients and answers
// presence questions.
type Realtime interface {
	PublishMessage(m *domain.Message) int
	PublishRead(conversationID, readerID int64) int
	IsOnline(userID int64) bool
}

// SocketServer upgrades a request into a real-time connection and blocks
// until it ends.
type SocketServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, identity int64)
}

// Deps groups the collaborators of Handlers. Idem, Live and Socket are
// optional.
type Deps struct {
	Users         UserService
	Conversations ConversationService
	Messages      MessageService
	Idem          IdempotencyStore
	Live          Realtime
	Socket        SocketServer
}

// Handlers groups the HTTP endpoints of the chat API.
type Handlers struct {
	users  UserService
	convs  ConversationService
	msgs   MessageService
	idem   IdempotencyStore
	live   Realtime
	socket SocketServer
}

// New constructs Handlers from its dependencies.
func New(d Deps) *Handlers {
	return &Handlers{
		users:  d.Users,
		convs:  d.Conversations,
		msgs:   d.Messages,
		idem:   d.Idem,
		live:   d.Live,
		socket: d.Socket,
	}
}

// callerID returns the user id set by middleware.Identity, writing a 401 when
// the request is anonymous.
func callerID(c *gin.Context) (int64, bool) {
	uid, ok := middleware.UserID(c)
	if !ok {
		fail(c, http.StatusUnauthorized, ErrCodeUnauthorized, "X-User-ID header required")
		return 0, false
	}
	return uid, true
}

// pathID parses a positive integer path parameter, writing a 400 otherwise.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, name+" must be a positive integer")
		return 0, false
	}
	return id, true
}

// clampLimit parses the limit query parameter and bounds it to [1, max];
// def is returned when it is absent or invalid.
func clampLimit(c *gin.Context, def, max int) int {
	return utils.Limit(c.Query("limit"), def, max)
}
