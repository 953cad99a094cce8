// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - GetOrCreateConversation(ctx, db, a, b) -> *domain.Conversation, created, error
//     Normalizes the pair to (min, max) and returns the single row for it,
//     inserting one when missing. A concurrent insert of the same pair is
//     resolved by re-reading the winner's row.
//
//   - GetConversation(ctx, db, id) -> *domain.Conversation, error
//     Fetches a conversation by id, or ErrNotFound.
//
//   - ListConversationsForUser(ctx, db, userID) -> []domain.Conversation, error
//     Every conversation the user takes part in, most recent first, with
//     both participants preloaded.
//
// Usage:
//
//	conv, _, err := repo.GetOrCreateConversation(ctx, db, 7, 3)
//	// conv.User1 == 3, conv.User2 == 7
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// OrderedPair returns (a, b) sorted ascending.
func OrderedPair(a, b int64) (int64, int64) {
	if a > b {
		return b, a
	}
	return a, b
}

// GetOrCreateConversation returns the conversation between a and b, creating
// it when absent. created reports whether this call inserted the row.
// Callers must reject a == b before calling; the CHECK constraint rejects it too.
func GetOrCreateConversation(ctx context.Context, db *gorm.DB, a, b int64) (conv *domain.Conversation, created bool, err error) {
	u1, u2 := OrderedPair(a, b)

	if c, err := findPair(ctx, db, u1, u2); err == nil {
		return c, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	c := &domain.Conversation{User1: u1, User2: u2, CreatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the race; the other writer's row is the conversation.
			existing, rerr := findPair(ctx, db, u1, u2)
			return existing, false, rerr
		}
		return nil, false, err
	}
	return c, true, nil
}

func findPair(ctx context.Context, db *gorm.DB, u1, u2 int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user1 = ? AND user2 = ?", u1, u2).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetConversation fetches a single conversation by id. If the record does not
// exist, it returns ErrNotFound.
func GetConversation(ctx context.Context, db *gorm.DB, id int64) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversationsForUser returns every conversation userID takes part in,
// ordered by creation time descending (ties broken by id descending).
// Both participants are preloaded.
func ListConversationsForUser(ctx context.Context, db *gorm.DB, userID int64) ([]domain.Conversation, error) {
	var out []domain.Conversation
	err := db.WithContext(ctx).
		Preload("Member1").
		Preload("Member2").
		Where("user1 = ? OR user2 = ?", userID, userID).
		Order("created_at DESC, id DESC").
		Find(&out).Error
	return out, err
}
