package domain

import "time"

// Idempotency represents a recorded result of a previously processed send,
// keyed by (user_id, conversation_id, key). A retried POST with the same key
// replays the stored message instead of inserting a duplicate.
type Idempotency struct {
	ID             string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	UserID         int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_user_conversation_key,priority:1"`
	ConversationID int64     `gorm:"type:INTEGER NOT NULL;uniqueIndex:ux_user_conversation_key,priority:2"`
	Key            string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_user_conversation_key,priority:3"`
	MessageID      int64     `gorm:"type:INTEGER NOT NULL"`
	Status         int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt      time.Time `gorm:"type:DATETIME NOT NULL;autoCreateTime"`
	ExpiresAt      time.Time `gorm:"type:DATETIME NOT NULL;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
