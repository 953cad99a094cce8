package realtime

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shaurya4531/insta-chat-appv2/internal/domain"
)

// Inbound event names.
const (
	EventRegisterSocket = "register_socket"
	EventJoinRoom       = "join_room"
	EventLeaveRoom      = "leave_room"
	EventTyping         = "typing"
	EventStopTyping     = "stop_typing"
	EventSendMessage    = "send_message"
	EventMessageRead    = "message_read"
	EventDisconnect     = "disconnect"
)

// Outbound event names. typing and stop_typing reuse the inbound names.
const (
	EventOnlineUpdate = "online_update"
	EventNewMessage   = "new_message"
	EventMessagesRead = "messages_read"
)

// Presence statuses carried by online_update.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Frame is the wire envelope: {"event": "...", "data": {...}}.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// DecodeFrame parses an inbound envelope.
func DecodeFrame(raw []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	f.Event = strings.TrimSpace(f.Event)
	if f.Event == "" {
		return Frame{}, fmt.Errorf("%w: missing event", ErrBadFrame)
	}
	return f, nil
}

// decodeData unmarshals the frame payload into v. An absent payload leaves v
// zero-valued.
func (f Frame) decodeData(v any) error {
	if len(f.Data) == 0 || bytes.Equal(f.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFrame, f.Event, err)
	}
	return nil
}

// Encode builds an outbound envelope.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

// ID is a user or conversation id that accepts a JSON number or a numeric
// string on input and always encodes as a number.
type ID int64

// UnmarshalJSON implements json.Unmarshaler.
func (id *ID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*id = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid id %s", b)
	}
	*id = ID(n)
	return nil
}

// RoomKey is a room address; it accepts a string or a number on input.
type RoomKey string

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoomKey) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*r = RoomKey(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid room %s", b)
	}
	*r = RoomKey(n.String())
	return nil
}

// RoomName returns the room address of a conversation.
func RoomName(conversationID int64) string {
	return strconv.FormatInt(conversationID, 10)
}

// conversationOf parses a room address back into a conversation id.
func conversationOf(room string) (int64, bool) {
	id, err := strconv.ParseInt(room, 10, 64)
	return id, err == nil && id > 0
}

// Inbound payloads.

type registerPayload struct {
	UserID ID `json:"user_id"`
}

type roomPayload struct {
	Room RoomKey `json:"room"`
}

type typingPayload struct {
	ConvID ID `json:"conv_id"`
	UserID ID `json:"user_id"`
}

type sendPayload struct {
	ConvID   ID     `json:"conv_id"`
	SenderID ID     `json:"sender_id"`
	Text     string `json:"text"`
}

type readPayload struct {
	ConvID ID `json:"conv_id"`
	UserID ID `json:"user_id"`
}

// Outbound payloads.

// OnlineUpdate announces a presence change to every connection.
type OnlineUpdate struct {
	UserID int64  `json:"user_id"`
	Status string `json:"status"`
}

// TypingUpdate is sent for both typing and stop_typing.
type TypingUpdate struct {
	ConvID int64 `json:"conv_id"`
	UserID int64 `json:"user_id"`
}

// NewMessage is the broadcast form of a persisted message.
type NewMessage struct {
	ID             int64  `json:"id"`
	ConvID         int64  `json:"conv_id"`
	SenderID       int64  `json:"sender_id"`
	SenderUsername string `json:"sender_username"`
	SenderDisplay  string `json:"sender_display"`
	SenderAvatar   string `json:"sender_avatar"`
	Text           string `json:"text"`
	Timestamp      string `json:"timestamp"`
	IsRead         int    `json:"is_read"`
}

// MessagesRead announces a bulk read receipt.
type MessagesRead struct {
	ConvID   int64 `json:"conv_id"`
	ReaderID int64 `json:"reader_id"`
}

// NewMessageFrom converts a persisted message, with its sender loaded when
// available, into the wire payload.
func NewMessageFrom(m *domain.Message) NewMessage {
	out := NewMessage{
		ID:        m.ID,
		ConvID:    m.ConversationID,
		SenderID:  m.SenderID,
		Text:      m.Text,
		Timestamp: m.Timestamp.UTC().Format(time.RFC3339Nano),
	}
	if m.IsRead {
		out.IsRead = 1
	}
	if s := m.Sender; s != nil {
		out.SenderUsername = s.Username
		out.SenderDisplay = s.DisplayOrUsername()
		out.SenderAvatar = s.AvatarURL
	}
	return out
}
