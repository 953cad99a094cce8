// Package services – UserService
//
// This file implements UserService, which owns account creation and profile
// edits. Registration hashes the password with argon2id and allocates a
// random user_NNNN handle, retrying on collisions.
package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
)

// UserRepo defines the repository contract required by UserService.
type UserRepo interface {
	// CreateUser inserts a user; a taken username yields repo.ErrDuplicate.
	CreateUser(ctx context.Context, db *gorm.DB, username, displayName, avatarURL, passwordHash string) (*domain.User, error)

	// GetUser fetches a user by id.
	GetUser(ctx context.Context, db *gorm.DB, id int64) (*domain.User, error)

	// FindUserByHandle fetches a user by exact username.
	FindUserByHandle(ctx context.Context, db *gorm.DB, username string) (*domain.User, error)

	// ListOtherUsers returns users other than exclude, newest first.
	ListOtherUsers(ctx context.Context, db *gorm.DB, exclude int64, limit int) ([]domain.User, error)

	// UpdateUserProfile overwrites display name and avatar.
	UpdateUserProfile(ctx context.Context, db *gorm.DB, id int64, displayName, avatarURL string) error
}

// UserService provides account operations.
type UserService struct {
	DB   *gorm.DB
	Repo UserRepo

	// MinPasswordRunes is the shortest accepted password.
	MinPasswordRunes int
	// HandleAttempts bounds how many generated handles Register tries.
	HandleAttempts int
	// DisplayMaxLen caps stored display names by rune length.
	DisplayMaxLen int

	// handleNumber returns the numeric part of a generated handle.
	handleNumber func() int
}

// NewUserService constructs a UserService with default registration rules.
func NewUserService(db *gorm.DB, r UserRepo) *UserService {
	return &UserService{
		DB:               db,
		Repo:             r,
		MinPasswordRunes: 3,
		HandleAttempts:   20,
		DisplayMaxLen:    64,
		handleNumber:     func() int { return rand.Intn(10000) },
	}
}

// Register creates an account with a generated handle. Blank display names
// are stored empty so clients fall back to the handle.
func (s *UserService) Register(ctx context.Context, displayName, avatarURL, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "Register")
	defer span.End()

	if utf8.RuneCountInString(password) < s.MinPasswordRunes {
		return nil, ErrPasswordTooShort
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	displayName = s.normalizeDisplay(displayName)
	avatarURL = strings.TrimSpace(avatarURL)

	for i := 0; i < s.HandleAttempts; i++ {
		handle := fmt.Sprintf("user_%04d", s.handleNumber())
		u, err := s.Repo.CreateUser(ctx, s.DB, handle, displayName, avatarURL, hash)
		if errors.Is(err, repo.ErrDuplicate) {
			continue
		}
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.Int64("user.id", u.ID))
		return u, nil
	}
	return nil, ErrHandleExhausted
}

// Create inserts a user under an explicit handle.
func (s *UserService) Create(ctx context.Context, username, displayName, avatarURL, passwordHash string) (*domain.User, error) {
	u, err := s.Repo.CreateUser(ctx, s.DB, strings.TrimSpace(username), s.normalizeDisplay(displayName), strings.TrimSpace(avatarURL), passwordHash)
	if errors.Is(err, repo.ErrDuplicate) {
		return nil, ErrHandleTaken
	}
	return u, err
}

// Get returns the user or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, id int64) (*domain.User, error) {
	u, err := s.Repo.GetUser(ctx, s.DB, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// FindByHandle resolves a username, or ErrUserNotFound.
func (s *UserService) FindByHandle(ctx context.Context, username string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/UserService").Start(ctx, "FindByHandle",
		trace.WithAttributes(attribute.String("user.handle", username)),
	)
	defer span.End()

	u, err := s.Repo.FindUserByHandle(ctx, s.DB, strings.TrimSpace(username))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	return u, err
}

// ListOthers returns up to limit users other than userID, newest first.
func (s *UserService) ListOthers(ctx context.Context, userID int64, limit int) ([]domain.User, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.Repo.ListOtherUsers(ctx, s.DB, userID, limit)
}

// UpdateProfile edits display name and avatar. A blank display name keeps
// the current one.
func (s *UserService) UpdateProfile(ctx context.Context, userID int64, displayName, avatarURL string) (*domain.User, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	displayName = s.normalizeDisplay(displayName)
	if displayName == "" {
		displayName = current.DisplayName
	}
	avatarURL = strings.TrimSpace(avatarURL)

	if err := s.Repo.UpdateUserProfile(ctx, s.DB, userID, displayName, avatarURL); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	current.DisplayName = displayName
	current.AvatarURL = avatarURL
	return current, nil
}

// normalizeDisplay NFC-normalizes, trims, collapses whitespace and clips.
func (s *UserService) normalizeDisplay(v string) string {
	v = whitespaceRE.ReplaceAllString(strings.TrimSpace(norm.NFC.String(v)), " ")
	if s.DisplayMaxLen > 0 && utf8.RuneCountInString(v) > s.DisplayMaxLen {
		v = string([]rune(v)[:s.DisplayMaxLen])
	}
	return v
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)
