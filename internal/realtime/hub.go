package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// MessageStore persists the write events handled by the hub.
type MessageStore interface {
	// Send validates and stores a message, returning it with its sender.
	Send(ctx context.Context, conversationID, senderID int64, text string) (*domain.Message, error)
	// MarkRead flags every message not sent by readerID as read.
	MarkRead(ctx context.Context, conversationID, readerID int64) (int64, error)
}

// Membership answers conversation participancy; only consulted in strict
// identity mode.
type Membership interface {
	EnsureParticipant(ctx context.Context, conversationID, userID int64) (*domain.Conversation, error)
}

// Options tunes a Hub.
type Options struct {
	// StrictIdentity rejects payload identities that differ from the
	// session's authenticated identity and requires participancy for
	// join, send and read. When false, payload ids are trusted as sent
	// by the client, which lets any connection act as any user.
	StrictIdentity bool
	// PersistTimeout bounds each storage call made for an event.
	PersistTimeout time.Duration
	// EventRPS and EventBurst configure the per-session token bucket;
	// EventRPS <= 0 disables it.
	EventRPS   float64
	EventBurst int
	// Logger defaults to the global zerolog logger.
	Logger *zerolog.Logger
}

// SessionState is the per-connection position in the hub state machine.
type SessionState int

const (
	StateUnregistered SessionState = iota
	StateRegistered
	StateJoined
)

func (s SessionState) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateJoined:
		return "joined"
	default:
		return "unregistered"
	}
}

// Session is the hub-side state of one connection. Frames for a session are
// handled one at a time by its transport, which gives per-connection order.
type Session struct {
	peer     Peer
	identity int64
	limiter  *rate.Limiter

	mu     sync.Mutex
	userID int64
	closed bool
}

// Peer returns the connection behind the session.
func (s *Session) Peer() Peer { return s.peer }

// Identity returns the authenticated user injected by the transport, or 0.
func (s *Session) Identity() int64 { return s.identity }

// UserID returns the user the session registered as, or 0.
func (s *Session) UserID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Hub is the real-time event state machine. It owns the presence registry
// and the room router for its lifetime.
type Hub struct {
	presence *Presence
	rooms    *Rooms
	store    MessageStore
	members  Membership
	opts     Options
	log      zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	closed   bool
}

// NewHub constructs a Hub. members may be nil when StrictIdentity is off.
func NewHub(store MessageStore, members Membership, opts Options) *Hub {
	if opts.PersistTimeout <= 0 {
		opts.PersistTimeout = 5 * time.Second
	}
	if opts.EventBurst < 1 {
		opts.EventBurst = 1
	}
	lg := log.Logger
	if opts.Logger != nil {
		lg = *opts.Logger
	}
	return &Hub{
		presence: NewPresence(),
		rooms:    NewRooms(),
		store:    store,
		members:  members,
		opts:     opts,
		log:      lg.With().Str("component", "realtime").Logger(),
		sessions: make(map[string]*Session),
	}
}

// Presence exposes the registry (read-mostly use by handlers and tests).
func (h *Hub) Presence() *Presence { return h.presence }

// Rooms exposes the router.
func (h *Hub) Rooms() *Rooms { return h.rooms }

// Connect attaches a peer. identity is the authenticated user established by
// the transport, or 0 when none was supplied.
func (h *Hub) Connect(p Peer, identity int64) (*Session, error) {
	s := &Session{peer: p, identity: identity}
	if h.opts.EventRPS > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(h.opts.EventRPS), h.opts.EventBurst)
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrHubClosed
	}
	h.sessions[p.ID()] = s
	h.mu.Unlock()

	connections.Inc()
	h.log.Debug().Str("peer", p.ID()).Int64("identity", identity).Msg("connected")
	return s, nil
}

// State reports where the session is in the state machine.
func (h *Hub) State(s *Session) SessionState {
	if s.UserID() == 0 {
		return StateUnregistered
	}
	if len(h.rooms.RoomsOf(s.peer)) > 0 {
		return StateJoined
	}
	return StateRegistered
}

// Handle decodes one inbound frame and applies it. Errors are returned for
// the caller to log; none of them is sent back to the client.
func (h *Hub) Handle(ctx context.Context, s *Session, raw []byte) error {
	f, err := DecodeFrame(raw)
	if err != nil {
		events.WithLabelValues("invalid", "rejected").Inc()
		return err
	}
	err = h.Dispatch(ctx, s, f)
	events.WithLabelValues(metricEvent(f.Event), outcome(err)).Inc()
	return err
}

// Dispatch applies an already decoded frame.
func (h *Hub) Dispatch(ctx context.Context, s *Session, f Frame) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrSessionClosed
	}
	if s.limiter != nil && !s.limiter.Allow() {
		return ErrRateLimited
	}

	switch f.Event {
	case EventRegisterSocket:
		var p registerPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		return h.register(s, int64(p.UserID))

	case EventJoinRoom:
		var p roomPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		return h.join(ctx, s, string(p.Room))

	case EventLeaveRoom:
		var p roomPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		h.rooms.Leave(string(p.Room), s.peer)
		return nil

	case EventTyping, EventStopTyping:
		var p typingPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		return h.typing(s, f.Event, int64(p.ConvID), int64(p.UserID))

	case EventSendMessage:
		var p sendPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		return h.send(ctx, s, int64(p.ConvID), int64(p.SenderID), p.Text)

	case EventMessageRead:
		var p readPayload
		if err := f.decodeData(&p); err != nil {
			return err
		}
		return h.markRead(ctx, s, int64(p.ConvID), int64(p.UserID))

	case EventDisconnect:
		h.Disconnect(s)
		return ErrSessionClosed

	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
}

func (h *Hub) register(s *Session, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user_id must be positive", ErrBadFrame)
	}
	if err := h.checkIdentity(s, userID); err != nil {
		return err
	}

	// Presence changes happen under s.mu so a concurrent Disconnect either
	// sees the new entry and removes it, or wins and we bail out.
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	prev := s.userID
	s.userID = userID
	var offline int64
	if prev != 0 && prev != userID {
		if uid, ok := h.presence.Unregister(s.peer); ok {
			offline = uid
		}
	}
	replaced := h.presence.Register(userID, s.peer)
	s.mu.Unlock()

	if offline != 0 {
		h.announce(offline, StatusOffline)
	}
	if replaced != nil {
		h.log.Debug().Int64("user_id", userID).Str("peer", replaced.ID()).Msg("presence replaced by newer connection")
	}
	onlineUsers.Set(float64(h.presence.Len()))
	h.announce(userID, StatusOnline)
	return nil
}

func (h *Hub) join(ctx context.Context, s *Session, room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		return fmt.Errorf("%w: room is required", ErrBadFrame)
	}
	uid := s.UserID()
	if uid == 0 {
		return ErrNotRegistered
	}
	if h.opts.StrictIdentity {
		conv, ok := conversationOf(room)
		if !ok {
			return fmt.Errorf("%w: room %q is not a conversation", ErrBadFrame, room)
		}
		if err := h.ensureParticipant(ctx, conv, uid); err != nil {
			return err
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	h.rooms.Join(room, s.peer)
	return nil
}

func (h *Hub) typing(s *Session, event string, convID, userID int64) error {
	if convID <= 0 {
		return fmt.Errorf("%w: conv_id is required", ErrBadFrame)
	}
	if err := h.checkIdentity(s, userID); err != nil {
		return err
	}
	payload, err := Encode(event, TypingUpdate{ConvID: convID, UserID: userID})
	if err != nil {
		return err
	}
	h.rooms.Broadcast(RoomName(convID), payload, s.peer.ID())
	return nil
}

func (h *Hub) send(ctx context.Context, s *Session, convID, senderID int64, text string) error {
	if strings.TrimSpace(text) == "" {
		h.log.Debug().Int64("conv_id", convID).Msg("empty message dropped")
		return nil
	}
	if convID <= 0 || senderID <= 0 {
		return fmt.Errorf("%w: conv_id and sender_id are required", ErrBadFrame)
	}
	if err := h.checkIdentity(s, senderID); err != nil {
		return err
	}
	if h.opts.StrictIdentity {
		if err := h.ensureParticipant(ctx, convID, senderID); err != nil {
			return err
		}
	}

	ctx, span := otel.Tracer("realtime/Hub").Start(ctx, EventSendMessage,
		trace.WithAttributes(
			attribute.Int64("conversation.id", convID),
			attribute.Int64("user.id", senderID),
		),
	)
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	start := time.Now()
	msg, err := h.store.Send(pctx, convID, senderID, text)
	cancel()
	persistLatency.WithLabelValues(EventSendMessage).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.log.Warn().Err(err).Int64("conv_id", convID).Int64("sender_id", senderID).Msg("send_message not persisted; broadcast skipped")
		return err
	}
	span.SetAttributes(
		attribute.Int64("message.id", msg.ID),
		attribute.Int("deliveries", h.PublishMessage(msg)),
	)
	return nil
}

func (h *Hub) markRead(ctx context.Context, s *Session, convID, readerID int64) error {
	if convID <= 0 || readerID <= 0 {
		return fmt.Errorf("%w: conv_id and user_id are required", ErrBadFrame)
	}
	if err := h.checkIdentity(s, readerID); err != nil {
		return err
	}
	if h.opts.StrictIdentity {
		if err := h.ensureParticipant(ctx, convID, readerID); err != nil {
			return err
		}
	}

	ctx, span := otel.Tracer("realtime/Hub").Start(ctx, EventMessageRead,
		trace.WithAttributes(
			attribute.Int64("conversation.id", convID),
			attribute.Int64("user.id", readerID),
		),
	)
	defer span.End()

	pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	start := time.Now()
	n, err := h.store.MarkRead(pctx, convID, readerID)
	cancel()
	persistLatency.WithLabelValues(EventMessageRead).Observe(time.Since(start).Seconds())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.log.Warn().Err(err).Int64("conv_id", convID).Int64("reader_id", readerID).Msg("message_read not persisted; broadcast skipped")
		return err
	}
	span.SetAttributes(
		attribute.Int64("messages.marked", n),
		attribute.Int("deliveries", h.PublishRead(convID, readerID)),
	)
	return nil
}

// PublishMessage broadcasts a persisted message to its conversation room,
// sender included. Callers must only pass durably stored messages.
func (h *Hub) PublishMessage(m *domain.Message) int {
	payload, err := Encode(EventNewMessage, NewMessageFrom(m))
	if err != nil {
		h.log.Error().Err(err).Int64("message_id", m.ID).Msg("encode new_message")
		return 0
	}
	return h.rooms.Broadcast(RoomName(m.ConversationID), payload, "")
}

// PublishRead broadcasts a read receipt to the conversation room.
func (h *Hub) PublishRead(convID, readerID int64) int {
	payload, err := Encode(EventMessagesRead, MessagesRead{ConvID: convID, ReaderID: readerID})
	if err != nil {
		return 0
	}
	return h.rooms.Broadcast(RoomName(convID), payload, "")
}

// IsOnline reports whether userID has a registered connection.
func (h *Hub) IsOnline(userID int64) bool {
	_, ok := h.presence.Lookup(userID)
	return ok
}

// Disconnect removes the session: presence entry (announcing offline when it
// still owned one), every room membership, and the session itself. It is
// safe to call more than once.
func (h *Hub) Disconnect(s *Session) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	if uid, ok := h.presence.Unregister(s.peer); ok {
		onlineUsers.Set(float64(h.presence.Len()))
		h.announce(uid, StatusOffline)
	}
	h.rooms.LeaveAll(s.peer)

	h.mu.Lock()
	if cur, ok := h.sessions[s.peer.ID()]; ok && cur == s {
		delete(h.sessions, s.peer.ID())
	}
	h.mu.Unlock()

	connections.Dec()
	h.log.Debug().Str("peer", s.peer.ID()).Msg("disconnected")
}

// Len returns the number of connected sessions.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close disconnects every session, closes peers that own a transport and
// refuses further connections.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	all := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		all = append(all, s)
	}
	h.mu.Unlock()

	for _, s := range all {
		h.Disconnect(s)
		if c, ok := s.peer.(closer); ok {
			c.Close()
		}
	}
}

// announce sends online_update to every connected session.
func (h *Hub) announce(userID int64, status string) {
	payload, err := Encode(EventOnlineUpdate, OnlineUpdate{UserID: userID, Status: status})
	if err != nil {
		return
	}
	h.mu.RLock()
	targets := make([]Peer, 0, len(h.sessions))
	for _, s := range h.sessions {
		targets = append(targets, s.peer)
	}
	h.mu.RUnlock()

	for _, p := range targets {
		if err := p.Send(payload); err != nil {
			deliveries.WithLabelValues(deliveryDropped).Inc()
			continue
		}
		deliveries.WithLabelValues(deliveryOK).Inc()
	}
}

func (h *Hub) checkIdentity(s *Session, claimed int64) error {
	if !h.opts.StrictIdentity {
		return nil
	}
	if s.identity == 0 || claimed != s.identity {
		return ErrIdentityMismatch
	}
	return nil
}

func (h *Hub) ensureParticipant(ctx context.Context, convID, userID int64) error {
	if h.members == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(ctx, h.opts.PersistTimeout)
	defer cancel()
	_, err := h.members.EnsureParticipant(pctx, convID, userID)
	return err
}

func metricEvent(name string) string {
	switch name {
	case EventRegisterSocket, EventJoinRoom, EventLeaveRoom, EventTyping, EventStopTyping,
		EventSendMessage, EventMessageRead, EventDisconnect:
		return name
	}
	return "unknown"
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrSessionClosed):
		return "ok"
	case errors.Is(err, ErrRateLimited):
		return "dropped"
	case errors.Is(err, ErrBadFrame), errors.Is(err, ErrUnknownEvent),
		errors.Is(err, ErrNotRegistered), errors.Is(err, ErrIdentityMismatch):
		return "rejected"
	}
	return "error"
}
