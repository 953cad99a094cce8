// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// DefaultHistoryLimit caps ListMessages when the caller passes limit <= 0.
const DefaultHistoryLimit = 500

// InsertMessage appends an unread message to a conversation. The timestamp
// is taken in UTC at insert time; the id is assigned by the database.
func InsertMessage(ctx context.Context, db *gorm.DB, conversationID, senderID int64, text string) (*domain.Message, error) {
	m := &domain.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		Text:           text,
		Timestamp:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(m).Error; err != nil {
		return nil, err
	}
	return m, nil
}

// GetMessage fetches a message by id with its sender preloaded.
func GetMessage(ctx context.Context, db *gorm.DB, id int64) (*domain.Message, error) {
	var m domain.Message
	if err := db.WithContext(ctx).Preload("Sender").Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns up to limit messages of a conversation in ascending id
// order, with senders preloaded. limit <= 0 means DefaultHistoryLimit.
func ListMessages(ctx context.Context, db *gorm.DB, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	var out []domain.Message
	err := db.WithContext(ctx).
		Preload("Sender").
		Where("conversation_id = ?", conversationID).
		Order("id ASC").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// MarkRead flags every message in the conversation not authored by
// excludeSender as read, and returns the number of rows touched. Messages
// already read are left out of the count.
func MarkRead(ctx context.Context, db *gorm.DB, conversationID, excludeSender int64) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, excludeSender, false).
		Update("is_read", true)
	return res.RowsAffected, res.Error
}
