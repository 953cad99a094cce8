// Package domain defines the persistence models for users, two-party
// conversations, and messages. These types are mapped with GORM and form the
// core data layer of the chat application.
package domain

import (
	"time"
)

// User is a registered account. Username is the public handle (user_NNNN)
// and is unique; DisplayName is free text and may be empty.
//
// Fields:
//   - ID: auto-increment integer primary key.
//   - Username: unique handle used by find-by-handle.
//   - DisplayName / AvatarURL: profile fields shown next to messages.
//   - PasswordHash: encoded argon2id hash; never serialized.
//   - CreatedAt: set by GORM on insert.
type User struct {
	ID           int64     `json:"id"           gorm:"primaryKey;autoIncrement"`
	Username     string    `json:"username"     gorm:"type:varchar(64);not null;uniqueIndex:ux_users_username"`
	DisplayName  string    `json:"display_name" gorm:"type:varchar(255);not null;default:''"`
	AvatarURL    string    `json:"avatar_url"   gorm:"type:text;not null;default:''"`
	PasswordHash string    `json:"-"            gorm:"type:text;not null"`
	CreatedAt    time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// DisplayOrUsername returns the display name, or the handle when none is set.
func (u User) DisplayOrUsername() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// Conversation is the durable record of a two-party chat. The pair is stored
// normalized (User1 < User2) and is unique, so one pair maps to one row.
type Conversation struct {
	ID        int64     `json:"id"      gorm:"primaryKey;autoIncrement"`
	User1     int64     `json:"user1"   gorm:"not null;uniqueIndex:ux_conversation_pair,priority:1;check:chk_conversation_order,user1 < user2"`
	User2     int64     `json:"user2"   gorm:"not null;uniqueIndex:ux_conversation_pair,priority:2;index:idx_conversation_user2"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	Member1 *User `json:"-" gorm:"foreignKey:User1;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Member2 *User `json:"-" gorm:"foreignKey:User2;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Conversation.
func (Conversation) TableName() string { return "conversations" }

// Has reports whether userID is one of the two participants.
func (c Conversation) Has(userID int64) bool {
	return c.User1 == userID || c.User2 == userID
}

// Other returns the participant that is not userID.
func (c Conversation) Other(userID int64) int64 {
	if c.User1 == userID {
		return c.User2
	}
	return c.User1
}

// Message is a single text sent within a conversation. IDs grow strictly in
// insertion order, which is also the display order of a history.
type Message struct {
	ID             int64     `json:"id"              gorm:"primaryKey;autoIncrement;index:idx_conversation_msgs,priority:2"`
	ConversationID int64     `json:"conversation_id" gorm:"not null;index:idx_conversation_msgs,priority:1"`
	SenderID       int64     `json:"sender_id"       gorm:"not null;index"`
	Text           string    `json:"text"            gorm:"type:text;not null"`
	Timestamp      time.Time `json:"timestamp"       gorm:"not null"`
	IsRead         bool      `json:"is_read"         gorm:"not null;default:false"`

	// Sender is populated when the history or a fresh send preloads it.
	Sender       *User         `json:"sender,omitempty" gorm:"foreignKey:SenderID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	Conversation *Conversation `json:"-"                gorm:"foreignKey:ConversationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Message.
func (Message) TableName() string { return "messages" }
