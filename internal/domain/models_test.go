package domain

import (
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:domain_models?mode=memory&cache=shared&_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	return db
}

func TestTableNames(t *testing.T) {
	cases := map[string]string{
		(User{}).TableName():         "users",
		(Conversation{}).TableName(): "conversations",
		(Message{}).TableName():      "messages",
		(Idempotency{}).TableName():  "idempotency",
	}
	for got, want := range cases {
		if got != want {
			t.Fatalf("TableName() = %q; want %q", got, want)
		}
	}
}

func TestUser_DisplayOrUsername(t *testing.T) {
	if got := (User{Username: "user_0001"}).DisplayOrUsername(); got != "user_0001" {
		t.Fatalf("fallback = %q", got)
	}
	if got := (User{Username: "user_0001", DisplayName: "Ann"}).DisplayOrUsername(); got != "Ann" {
		t.Fatalf("display = %q", got)
	}
}

func TestConversation_HasAndOther(t *testing.T) {
	c := Conversation{User1: 3, User2: 9}
	if !c.Has(3) || !c.Has(9) || c.Has(4) {
		t.Fatalf("Has mismatch for %+v", c)
	}
	if c.Other(3) != 9 || c.Other(9) != 3 {
		t.Fatalf("Other mismatch for %+v", c)
	}
}

func TestMigrations_Indexes_Constraints_AndCascades(t *testing.T) {
	db := newDomainDB(t)

	if err := db.AutoMigrate(&User{}, &Conversation{}, &Message{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()

	for _, tbl := range []any{&User{}, &Conversation{}, &Message{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&User{}, "ux_users_username") {
		t.Fatalf("expected unique index ux_users_username on users")
	}
	if !m.HasIndex(&Conversation{}, "ux_conversation_pair") {
		t.Fatalf("expected unique index ux_conversation_pair on conversations")
	}
	if !m.HasIndex(&Message{}, "idx_conversation_msgs") {
		t.Fatalf("expected index idx_conversation_msgs on messages")
	}

	now := time.Now().UTC()
	a := &User{Username: "user_0001", PasswordHash: "x", CreatedAt: now}
	b := &User{Username: "user_0002", PasswordHash: "x", CreatedAt: now}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("insert a: %v", err)
	}
	if err := db.Create(b).Error; err != nil {
		t.Fatalf("insert b: %v", err)
	}
	if err := db.Create(&User{Username: "user_0001", PasswordHash: "x"}).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate username")
	}

	// user1 < user2 is enforced by a CHECK constraint.
	if err := db.Create(&Conversation{User1: b.ID, User2: a.ID}).Error; err == nil {
		t.Fatalf("expected check violation for unordered pair")
	}
	conv := &Conversation{User1: a.ID, User2: b.ID, CreatedAt: now}
	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("insert conversation: %v", err)
	}
	if err := db.Create(&Conversation{User1: a.ID, User2: b.ID}).Error; err == nil {
		t.Fatalf("expected unique violation on duplicate pair")
	}

	msg := &Message{ConversationID: conv.ID, SenderID: a.ID, Text: "hi", Timestamp: now}
	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("insert message: %v", err)
	}
	if msg.ID == 0 || msg.IsRead {
		t.Fatalf("unexpected message after insert: %+v", msg)
	}

	// Unknown conversation is rejected by the foreign key.
	if err := db.Create(&Message{ConversationID: conv.ID + 100, SenderID: a.ID, Text: "x", Timestamp: now}).Error; err == nil {
		t.Fatalf("expected foreign key violation for unknown conversation")
	}

	// CASCADE: deleting the conversation removes its messages.
	if err := db.Delete(&Conversation{}, conv.ID).Error; err != nil {
		t.Fatalf("delete conversation: %v", err)
	}
	var cnt int64
	if err := db.Model(&Message{}).Where("conversation_id = ?", conv.ID).Count(&cnt).Error; err != nil {
		t.Fatalf("count messages: %v", err)
	}
	if cnt != 0 {
		t.Fatalf("expected messages to cascade-delete, got count=%d", cnt)
	}
}
