// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// CreateUser inserts a user with the given handle and profile fields.
// A taken handle yields ErrDuplicate.
func CreateUser(ctx context.Context, db *gorm.DB, username, displayName, avatarURL, passwordHash string) (*domain.User, error) {
	u := &domain.User{
		Username:     username,
		DisplayName:  displayName,
		AvatarURL:    avatarURL,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(u).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return u, nil
}

// GetUser fetches a user by id, or ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// FindUserByHandle fetches a user by exact username, or ErrNotFound.
func FindUserByHandle(ctx context.Context, db *gorm.DB, username string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("username = ?", username).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// ListOtherUsers returns up to limit users other than exclude, newest first.
func ListOtherUsers(ctx context.Context, db *gorm.DB, exclude int64, limit int) ([]domain.User, error) {
	var out []domain.User
	q := db.WithContext(ctx).Where("id <> ?", exclude).Order("id DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// UpdateUserProfile overwrites display name and avatar. It returns
// ErrNotFound when no such user exists.
func UpdateUserProfile(ctx context.Context, db *gorm.DB, id int64, displayName, avatarURL string) error {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ?", id).
		Updates(map[string]any{"display_name": displayName, "avatar_url": avatarURL})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
