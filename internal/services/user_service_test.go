package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
)

var handleRE = regexp.MustCompile(`^user_\d{4}$`)

func TestUserService_Register_GeneratesHandle_AndHashes(t *testing.T) {
	db := newServiceDB(t)
	s := NewUserService(db, gateway{})

	u, err := s.Register(context.Background(), "  Ann   Lee ", " http://a/p.png ", "pwd")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if !handleRE.MatchString(u.Username) {
		t.Fatalf("unexpected handle %q", u.Username)
	}
	if u.DisplayName != "Ann Lee" || u.AvatarURL != "http://a/p.png" {
		t.Fatalf("profile not normalized: %+v", u)
	}
	if ok, err := verifyPassword("pwd", u.PasswordHash); err != nil || !ok {
		t.Fatalf("stored hash does not verify: %v %v", ok, err)
	}
}

func TestUserService_Register_PasswordTooShort(t *testing.T) {
	s := NewUserService(nil, gateway{})
	if _, err := s.Register(context.Background(), "", "", "ab"); !errors.Is(err, ErrPasswordTooShort) {
		t.Fatalf("expected ErrPasswordTooShort, got %v", err)
	}
}

func TestUserService_Register_RetriesOnCollision(t *testing.T) {
	db := newServiceDB(t)
	mustUser(t, db, "user_0007", "")

	s := NewUserService(db, gateway{})
	seq := []int{7, 7, 8}
	s.handleNumber = func() int {
		n := seq[0]
		seq = seq[1:]
		return n
	}
	u, err := s.Register(context.Background(), "", "", "pwd")
	if err != nil || u.Username != "user_0008" {
		t.Fatalf("Register: u=%+v err=%v", u, err)
	}
}

func TestUserService_Register_Exhausted(t *testing.T) {
	db := newServiceDB(t)
	mustUser(t, db, "user_0001", "")

	s := NewUserService(db, gateway{})
	s.HandleAttempts = 3
	s.handleNumber = func() int { return 1 }
	if _, err := s.Register(context.Background(), "", "", "pwd"); !errors.Is(err, ErrHandleExhausted) {
		t.Fatalf("expected ErrHandleExhausted, got %v", err)
	}
}

func TestUserService_Create_HandleTaken(t *testing.T) {
	db := newServiceDB(t)
	s := NewUserService(db, gateway{})
	ctx := context.Background()

	if _, err := s.Create(ctx, "alice", "Alice", "", "h"); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create(ctx, "alice", "Other", "", "h"); !errors.Is(err, ErrHandleTaken) {
		t.Fatalf("expected ErrHandleTaken, got %v", err)
	}
}

func TestUserService_FindByHandle_And_Get(t *testing.T) {
	db := newServiceDB(t)
	s := NewUserService(db, gateway{})
	ctx := context.Background()
	u := mustUser(t, db, "user_1234", "")

	got, err := s.FindByHandle(ctx, " user_1234 ")
	if err != nil || got.ID != u.ID {
		t.Fatalf("FindByHandle: %+v %v", got, err)
	}
	if _, err := s.FindByHandle(ctx, "nobody"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := s.Get(ctx, u.ID+1); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_ListOthers_DefaultLimit(t *testing.T) {
	db := newServiceDB(t)
	s := NewUserService(db, gateway{})
	me := mustUser(t, db, "user_0001", "")
	for _, h := range []string{"user_0002", "user_0003"} {
		mustUser(t, db, h, "")
	}
	out, err := s.ListOthers(context.Background(), me.ID, 0)
	if err != nil || len(out) != 2 || out[0].Username != "user_0003" {
		t.Fatalf("ListOthers: %+v %v", out, err)
	}
}

func TestUserService_UpdateProfile_BlankKeepsDisplay(t *testing.T) {
	db := newServiceDB(t)
	s := NewUserService(db, gateway{})
	ctx := context.Background()
	u := mustUser(t, db, "user_0001", "Original")

	got, err := s.UpdateProfile(ctx, u.ID, "   ", "http://img")
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if got.DisplayName != "Original" || got.AvatarURL != "http://img" {
		t.Fatalf("unexpected profile: %+v", got)
	}

	got, err = s.UpdateProfile(ctx, u.ID, "Renamed", "")
	if err != nil || got.DisplayName != "Renamed" || got.AvatarURL != "" {
		t.Fatalf("second update: %+v %v", got, err)
	}

	if _, err := s.UpdateProfile(ctx, u.ID+5, "x", ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUserService_NormalizeDisplay_ClipsAndNFC(t *testing.T) {
	s := NewUserService(nil, gateway{})
	s.DisplayMaxLen = 5
	if got := s.normalizeDisplay(strings.Repeat("\u00e9", 8)); got != strings.Repeat("\u00e9", 5) {
		t.Fatalf("clip: %q", got)
	}
	// "e" + combining acute composes into a single rune.
	if got := s.normalizeDisplay("e\u0301"); got != "\u00e9" {
		t.Fatalf("nfc: %q", got)
	}
}
