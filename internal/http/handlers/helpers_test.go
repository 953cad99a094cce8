package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
	"github.com/shaurya4531/insta-chat-appv2/internal/http/middleware"
	"github.com/shaurya4531/insta-chat-appv2/internal/repo"
	"github.com/shaurya4531/insta-chat-appv2/internal/services"
)

// ---------- test plumbing ----------

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "handlers.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

func seedUser(t *testing.T, db *gorm.DB, handle string) *domain.User {
	t.Helper()
	u, err := repo.CreateUser(context.Background(), db, handle, "", "", "x")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

// fakeUsers is an in-memory UserService.
type fakeUsers struct {
	byID      map[int64]*domain.User
	err       error
	lastLimit int
}

func newFakeUsers(us ...*domain.User) *fakeUsers {
	f := &fakeUsers{byID: map[int64]*domain.User{}}
	for _, u := range us {
		f.byID[u.ID] = u
	}
	return f
}

func (f *fakeUsers) Register(_ context.Context, display, avatar, password string) (*domain.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if len(password) < 3 {
		return nil, services.ErrPasswordTooShort
	}
	id := int64(len(f.byID) + 1)
	u := &domain.User{ID: id, Username: "user_" + strconv.FormatInt(1000+id, 10), DisplayName: display, AvatarURL: avatar}
	f.byID[id] = u
	return u, nil
}

func (f *fakeUsers) Get(_ context.Context, id int64) (*domain.User, error) {
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) FindByHandle(_ context.Context, handle string) (*domain.User, error) {
	for _, u := range f.byID {
		if u.Username == handle {
			return u, nil
		}
	}
	return nil, services.ErrUserNotFound
}

func (f *fakeUsers) ListOthers(_ context.Context, uid int64, limit int) ([]domain.User, error) {
	f.lastLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.User
	for id := int64(1); id <= int64(len(f.byID)); id++ {
		if u, ok := f.byID[id]; ok && id != uid {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, uid int64, display, avatar string) (*domain.User, error) {
	u, ok := f.byID[uid]
	if !ok {
		return nil, services.ErrUserNotFound
	}
	if display != "" {
		u.DisplayName = display
	}
	u.AvatarURL = avatar
	return u, nil
}

// fakeConvs is an in-memory ConversationService.
type fakeConvs struct {
	byID map[int64]*domain.Conversation
	next int64
}

func newFakeConvs(cs ...*domain.Conversation) *fakeConvs {
	f := &fakeConvs{byID: map[int64]*domain.Conversation{}, next: 100}
	for _, c := range cs {
		f.byID[c.ID] = c
	}
	return f
}

func (f *fakeConvs) GetOrCreate(_ context.Context, a, b int64) (*domain.Conversation, error) {
	if a == b {
		return nil, services.ErrSelfConversation
	}
	u1, u2 := repo.OrderedPair(a, b)
	for _, c := range f.byID {
		if c.User1 == u1 && c.User2 == u2 {
			return c, nil
		}
	}
	f.next++
	c := &domain.Conversation{ID: f.next, User1: u1, User2: u2}
	f.byID[c.ID] = c
	return c, nil
}

func (f *fakeConvs) EnsureParticipant(_ context.Context, id, uid int64) (*domain.Conversation, error) {
	c, ok := f.byID[id]
	if !ok {
		return nil, services.ErrConversationNotFound
	}
	if !c.Has(uid) {
		return nil, services.ErrNotParticipant
	}
	return c, nil
}

func (f *fakeConvs) ListForUser(_ context.Context, uid int64) ([]services.ConversationSummary, error) {
	var out []services.ConversationSummary
	for _, c := range f.byID {
		if c.Has(uid) {
			out = append(out, services.ConversationSummary{ID: c.ID, OtherID: c.Other(uid)})
		}
	}
	return out, nil
}

// fakeLive records fan-out calls.
type fakeLive struct {
	mu       sync.Mutex
	messages []*domain.Message
	reads    [][2]int64
	online   map[int64]bool
}

func (f *fakeLive) PublishMessage(m *domain.Message) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = append(f.messages, m)
	return 2
}

func (f *fakeLive) PublishRead(conv, reader int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads = append(f.reads, [2]int64{conv, reader})
	return 2
}

func (f *fakeLive) IsOnline(uid int64) bool { return f.online[uid] }

// newRouter mounts h the way the API router does, minus cross-cutting
// middleware that is tested elsewhere.
func newRouter(h *Handlers) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Identity())
	r.Use(middleware.IdempotencyValidator(middleware.IdempotencyOptions{}, nil))
	r.POST("/users", h.Register)
	r.GET("/users", h.ListUsers)
	r.GET("/users/me", h.Me)
	r.PUT("/users/me", h.UpdateProfile)
	r.GET("/users/by-handle/:handle", h.FindUser)
	r.POST("/conversations", h.OpenConversation)
	r.GET("/conversations", h.ListConversations)
	r.GET("/conversations/:id/messages", h.ListMessages)
	r.POST("/conversations/:id/messages", h.PostMessage)
	r.GET("/ws", h.Socket)
	return r
}

// do performs a request as uid (0 means anonymous).
func do(r http.Handler, method, path string, uid int64, body string, hdr ...string) *httptest.ResponseRecorder {
	var rd *bytes.Buffer
	if body != "" {
		rd = bytes.NewBufferString(body)
	} else {
		rd = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != 0 {
		req.Header.Set(middleware.HeaderUserID, strconv.FormatInt(uid, 10))
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("json: %v (%s)", err, w.Body.String())
	}
	return v
}

func wantCode(t *testing.T, w *httptest.ResponseRecorder, status int, code string) {
	t.Helper()
	if w.Code != status {
		t.Fatalf("status=%d want %d body=%s", w.Code, status, w.Body.String())
	}
	if code == "" {
		return
	}
	if er := decode[ErrorResponse](t, w); er.Code != code {
		t.Fatalf("code=%q want %q", er.Code, code)
	}
}
