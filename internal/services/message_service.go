// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// owns the lifecycle of conversation messages. It validates text, persists a
// message together with a sender check in one transaction, lists histories
// and applies bulk read receipts.
//
// Observability: all public methods are OpenTelemetry-instrumented; spans
// include conversation and user identifiers.
package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
)

// MessageService coordinates message persistence and history reads.
type MessageService struct {
	DB *gorm.DB

	// MaxMessageRunes caps a single message; 0 disables the check.
	MaxMessageRunes int
	// HistoryLimit is used by List when the caller passes limit <= 0.
	HistoryLimit int
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, maxRunes, historyLimit int) *MessageService {
	return &MessageService{DB: db, MaxMessageRunes: maxRunes, HistoryLimit: historyLimit}
}

// NormalizeText trims surrounding whitespace and applies Unicode NFC.
func NormalizeText(text string) string {
	return norm.NFC.String(strings.TrimSpace(text))
}

// Send validates text, checks that the sender and conversation exist and
// inserts the message, all in one transaction. The returned message has its
// sender populated.
func (s *MessageService) Send(ctx context.Context, conversationID, senderID int64, text string) (*domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "Send",
		trace.WithAttributes(
			attribute.Int64("conversation.id", conversationID),
			attribute.Int64("user.id", senderID),
		),
	)
	defer span.End()

	text = NormalizeText(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}
	if s.MaxMessageRunes > 0 && utf8.RuneCountInString(text) > s.MaxMessageRunes {
		return nil, ErrMessageTooLong
	}

	var out *domain.Message
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sender, err := repo.GetUser(ctx, tx, senderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrUserNotFound
			}
			return err
		}
		if _, err := repo.GetConversation(ctx, tx, conversationID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrConversationNotFound
			}
			return err
		}
		m, err := repo.InsertMessage(ctx, tx, conversationID, senderID, text)
		if err != nil {
			return err
		}
		m.Sender = sender
		out = m
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int64("message.id", out.ID))
	return out, nil
}

// Get returns a single message with its sender.
func (s *MessageService) Get(ctx context.Context, id int64) (*domain.Message, error) {
	return repo.GetMessage(ctx, s.DB, id)
}

// List returns the conversation history in send order.
func (s *MessageService) List(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "List",
		trace.WithAttributes(
			attribute.Int64("conversation.id", conversationID),
			attribute.Int("limit", limit),
		),
	)
	defer span.End()

	if limit <= 0 {
		limit = s.HistoryLimit
	}
	return repo.ListMessages(ctx, s.DB, conversationID, limit)
}

// MarkRead flags every message in the conversation that readerID did not
// send as read, returning how many changed.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error) {
	ctx, span := otel.Tracer("services/MessageService").Start(ctx, "MarkRead",
		trace.WithAttributes(
			attribute.Int64("conversation.id", conversationID),
			attribute.Int64("user.id", readerID),
		),
	)
	defer span.End()

	n, err := repo.MarkRead(ctx, s.DB, conversationID, readerID)
	if err != nil {
		span.RecordError(err)
		return 0, err
	}
	span.SetAttributes(attribute.Int64("messages.marked", n))
	return n, nil
}

// Stats returns (count, max id, unread) for ETag generation.
func (s *MessageService) Stats(ctx context.Context, conversationID int64) (count, maxID, unread int64, err error) {
	return repo.MessagesStats(ctx, s.DB, conversationID)
}
