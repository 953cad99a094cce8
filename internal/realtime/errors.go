// Package realtime implements in-process message delivery and presence for
// two-party conversations: a presence registry, a conversation room router,
// the event hub state machine, the JSON wire codec, and the websocket
// transport that feeds it.
package realtime

import "errors"

var (
	// ErrPeerClosed is returned by Peer.Send after the peer was closed.
	ErrPeerClosed = errors.New("realtime: peer closed")

	// ErrSendBufferFull is returned when a slow consumer overflowed its
	// outbound buffer; the peer is closed as a consequence.
	ErrSendBufferFull = errors.New("realtime: send buffer full")

	// ErrBadFrame is returned for frames that are not a valid envelope or
	// whose payload does not match the event.
	ErrBadFrame = errors.New("realtime: malformed frame")

	// ErrUnknownEvent is returned for an envelope with an unsupported event name.
	ErrUnknownEvent = errors.New("realtime: unknown event")

	// ErrNotRegistered is returned when an event requires a registered session.
	ErrNotRegistered = errors.New("realtime: session not registered")

	// ErrIdentityMismatch is returned in strict identity mode when a payload
	// names a user other than the connection's authenticated identity.
	ErrIdentityMismatch = errors.New("realtime: payload identity does not match connection")

	// ErrRateLimited is returned when a session exceeds its event budget.
	ErrRateLimited = errors.New("realtime: event rate exceeded")

	// ErrSessionClosed is returned for frames on a session that already
	// disconnected, and by the explicit disconnect event.
	ErrSessionClosed = errors.New("realtime: session closed")

	// ErrHubClosed is returned by Connect after Close.
	ErrHubClosed = errors.New("realtime: hub closed")
)
