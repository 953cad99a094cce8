// Package services – ConversationService
//
// This file implements ConversationService, which resolves the single
// conversation between two users and answers membership questions for the
// HTTP handlers and the real-time hub.
//
// Service-level errors (ErrSelfConversation, ErrConversationNotFound,
// ErrNotParticipant) are returned for predictable cases so callers can map
// them consistently.
package services

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// ConversationRepo defines the repository contract required by
// ConversationService.
type ConversationRepo interface {
	// GetOrCreateConversation returns the row for the normalized pair,
	// inserting it when missing.
	GetOrCreateConversation(ctx context.Context, db *gorm.DB, a, b int64) (*domain.Conversation, bool, error)

	// GetConversation fetches a conversation by id.
	GetConversation(ctx context.Context, db *gorm.DB, id int64) (*domain.Conversation, error)

	// ListConversationsForUser returns the user's conversations, most recent
	// first, with participants preloaded.
	ListConversationsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Conversation, error)

	// GetUser is used to reject conversations with unknown users.
	GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error)
}

// ConversationSummary is one row of a user's conversation list, seen from
// that user's side.
type ConversationSummary struct {
	ID            int64     `json:"id"`
	OtherID       int64     `json:"other_id"`
	OtherUsername string    `json:"other_username"`
	OtherDisplay  string    `json:"other_display"`
	OtherAvatar   string    `json:"other_avatar"`
	CreatedAt     time.Time `json:"created_at"`
}

// ConversationService provides conversation lookup and creation.
type ConversationService struct {
	DB   *gorm.DB
	Repo ConversationRepo
}

// NewConversationService constructs a ConversationService.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{DB: db, Repo: r}
}

// GetOrCreate returns the conversation between a and b regardless of argument
// order. Both users must exist and differ.
func (s *ConversationService) GetOrCreate(ctx context.Context, a, b int64) (*domain.Conversation, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "GetOrCreate",
		trace.WithAttributes(attribute.Int64("user.a", a), attribute.Int64("user.b", b)),
	)
	defer span.End()

	if a == b {
		return nil, ErrSelfConversation
	}
	for _, id := range []int64{a, b} {
		if _, err := s.Repo.GetUser(ctx, s.DB, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, ErrUserNotFound
			}
			return nil, err
		}
	}
	c, created, err := s.Repo.GetOrCreateConversation(ctx, s.DB, a, b)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int64("conversation.id", c.ID), attribute.Bool("conversation.created", created))
	return c, nil
}

// Get returns the conversation or ErrConversationNotFound.
func (s *ConversationService) Get(ctx context.Context, id int64) (*domain.Conversation, error) {
	c, err := s.Repo.GetConversation(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrConversationNotFound
	}
	return c, err
}

// EnsureParticipant loads the conversation and checks that userID is one of
// its two members.
func (s *ConversationService) EnsureParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error) {
	c, err := s.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !c.Has(userID) {
		return nil, ErrNotParticipant
	}
	return c, nil
}

// ListForUser returns the user's conversations, most recent first, each
// described from the user's side.
func (s *ConversationService) ListForUser(ctx context.Context, userID int64) ([]ConversationSummary, error) {
	ctx, span := otel.Tracer("services/ConversationService").Start(ctx, "ListForUser",
		trace.WithAttributes(attribute.Int64("user.id", userID)),
	)
	defer span.End()

	rows, err := s.Repo.ListConversationsForUser(ctx, s.DB, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ConversationSummary, 0, len(rows))
	for _, c := range rows {
		sum := ConversationSummary{ID: c.ID, OtherID: c.Other(userID), CreatedAt: c.CreatedAt}
		peer := c.Member2
		if c.User2 == userID {
			peer = c.Member1
		}
		if peer != nil {
			sum.OtherUsername = peer.Username
			sum.OtherDisplay = peer.DisplayOrUsername()
			sum.OtherAvatar = peer.AvatarURL
		}
		out = append(out, sum)
	}
	span.SetAttributes(attribute.Int("conversations.count", len(out)))
	return out, nil
}
