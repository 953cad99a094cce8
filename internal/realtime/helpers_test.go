package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// fakePeer records every payload it is sent.
type fakePeer struct {
	id string

	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func newFakePeer(id string) *fakePeer { return &fakePeer{id: id} }

func (p *fakePeer) ID() string { return p.id }

func (p *fakePeer) Send(b []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail || p.closed {
		return ErrPeerClosed
	}
	p.frames = append(p.frames, append([]byte(nil), b...))
	return nil
}

func (p *fakePeer) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

func (p *fakePeer) setFail(v bool) {
	p.mu.Lock()
	p.fail = v
	p.mu.Unlock()
}

// received returns the decoded frames, optionally filtered by event name.
func (p *fakePeer) received(t *testing.T, events ...string) []Frame {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Frame, 0, len(p.frames))
	for _, raw := range p.frames {
		f, err := DecodeFrame(raw)
		require.NoError(t, err)
		if len(events) == 0 || contains(events, f.Event) {
			out = append(out, f)
		}
	}
	return out
}

func (p *fakePeer) reset() {
	p.mu.Lock()
	p.frames = nil
	p.mu.Unlock()
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func decodeAs[T any](t *testing.T, f Frame) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(f.Data, &v))
	return v
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	b, err := Encode(event, data)
	require.NoError(t, err)
	return b
}

// fakeStore is an in-memory MessageStore.
type fakeStore struct {
	mu       sync.Mutex
	nextID   int64
	messages []domain.Message
	sendErr  error
	readErr  error
	reads    int
}

func (s *fakeStore) Send(_ context.Context, conv, sender int64, text string) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sendErr != nil {
		return nil, s.sendErr
	}
	s.nextID++
	m := domain.Message{
		ID:             s.nextID,
		ConversationID: conv,
		SenderID:       sender,
		Text:           text,
		Sender:         &domain.User{ID: sender, Username: "user"},
	}
	s.messages = append(s.messages, m)
	return &m, nil
}

func (s *fakeStore) MarkRead(_ context.Context, conv, reader int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	s.reads++
	var n int64
	for i := range s.messages {
		m := &s.messages[i]
		if m.ConversationID == conv && m.SenderID != reader && !m.IsRead {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

// fakeMembers allows only the listed (conversation, user) pairs.
type fakeMembers map[int64][]int64

var errNotMember = errors.New("not a participant")

func (m fakeMembers) EnsureParticipant(_ context.Context, conv, uid int64) (*domain.Conversation, error) {
	for _, u := range m[conv] {
		if u == uid {
			return &domain.Conversation{ID: conv}, nil
		}
	}
	return nil, errNotMember
}

func connect(t *testing.T, h *Hub, p Peer, identity int64) *Session {
	t.Helper()
	s, err := h.Connect(p, identity)
	require.NoError(t, err)
	return s
}
