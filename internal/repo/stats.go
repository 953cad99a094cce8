// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate queries used for
// conditional responses (ETag generation) in the HTTP layer.
package repo

import (
	"context"

	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// MessagesStats returns aggregate metadata for a conversation: the number of
// messages, the highest message id and how many are still unread. Ids only
// grow and reads only flip is_read, so the triple changes whenever the
// visible history does.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID int64) (count, maxID, unread int64, err error) {
	var row struct {
		Count  int64
		MaxID  int64
		Unread int64
	}
	err = db.WithContext(ctx).
		Model(&domain.Message{}).
		Select("COUNT(*) AS count, COALESCE(MAX(id), 0) AS max_id, COALESCE(SUM(CASE WHEN is_read THEN 0 ELSE 1 END), 0) AS unread").
		Where("conversation_id = ?", conversationID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, 0, err
	}
	return row.Count, row.MaxID, row.Unread, nil
}
