package services

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
)

func newServiceDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "svc.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	return db
}

// gateway forwards to the repo package, like the router's shim.
type gateway struct{}

func (gateway) CreateUser(ctx context.Context, db *gorm.DB, u, d, a, h string) (*domain.User, error) {
	return repo.CreateUser(ctx, db, u, d, a, h)
}
func (gateway) GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	return repo.GetUser(ctx, db, id)
}
func (gateway) FindUserByHandle(ctx context.Context, db *gorm.DB, u string) (*domain.User, error) {
	return repo.FindUserByHandle(ctx, db, u)
}
func (gateway) ListOtherUsers(ctx context.Context, db *gorm.DB, ex int64, limit int) ([]domain.User, error) {
	return repo.ListOtherUsers(ctx, db, ex, limit)
}
func (gateway) UpdateUserProfile(ctx context.Context, db *gorm.DB, id int64, d, a string) error {
	return repo.UpdateUserProfile(ctx, db, id, d, a)
}
func (gateway) GetOrCreateConversation(ctx context.Context, db *gorm.DB, a, b int64) (*domain.Conversation, bool, error) {
	return repo.GetOrCreateConversation(ctx, db, a, b)
}
func (gateway) GetConversation(ctx context.Context, db *gorm.DB, id int64) (*domain.Conversation, error) {
	return repo.GetConversation(ctx, db, id)
}
func (gateway) ListConversationsForUser(ctx context.Context, db *gorm.DB, uid int64) ([]domain.Conversation, error) {
	return repo.ListConversationsForUser(ctx, db, uid)
}

func mustUser(t *testing.T, db *gorm.DB, handle, display string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, handle, display, "", "h")
	if err != nil {
		t.Fatalf("create user %q: %v", handle, err)
	}
	return u
}
