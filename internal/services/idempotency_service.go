package services

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
)

// IdempotencyService remembers which message an (user, conversation,
// Idempotency-Key) triple produced so that retried HTTP sends replay the
// original message instead of storing a duplicate.
type IdempotencyService struct {
	DB  *gorm.DB
	TTL time.Duration
}

// NewIdempotencyService constructs an IdempotencyService; ttl <= 0 means 24h.
func NewIdempotencyService(db *gorm.DB, ttl time.Duration) *IdempotencyService {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &IdempotencyService{DB: db, TTL: ttl}
}

// Lookup returns the message id recorded for the triple, if still valid.
func (s *IdempotencyService) Lookup(ctx context.Context, userID, conversationID int64, key string) (int64, bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, time.Now().UTC())
	if errors.Is(err, repo.ErrNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rec.MessageID, true, nil
}

// Exists is the middleware-facing form of Lookup.
func (s *IdempotencyService) Exists(ctx context.Context, userID, conversationID int64, key string, now time.Time) (bool, error) {
	rec, err := repo.GetIdempotency(ctx, s.DB, userID, conversationID, key, now)
	if err != nil {
		return false, nil
	}
	return rec != nil, nil
}

// Remember records messageID for the triple. A concurrent request that
// already recorded the same key is not an error.
func (s *IdempotencyService) Remember(ctx context.Context, userID, conversationID int64, key string, messageID int64, status int) error {
	_, err := repo.CreateIdempotency(ctx, s.DB, userID, conversationID, key, messageID, status, s.TTL)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil
	}
	return err
}

// Purge deletes expired records and returns how many were removed.
func (s *IdempotencyService) Purge(ctx context.Context) (int64, error) {
	return repo.PurgeExpiredIdempotency(ctx, s.DB, time.Now().UTC())
}
