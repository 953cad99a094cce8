package realtime

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TransportOptions tunes the websocket endpoint.
type TransportOptions struct {
	WriteWait     time.Duration
	PongWait      time.Duration
	PingPeriod    time.Duration
	MaxFrameBytes int64
	SendBuffer    int
	// CheckOrigin defaults to accepting every origin; CORS is enforced by
	// the HTTP stack for the JSON routes only.
	CheckOrigin func(r *http.Request) bool
}

// Transport upgrades HTTP requests to websocket connections and pumps their
// frames into a Hub.
type Transport struct {
	hub      *Hub
	upgrader websocket.Upgrader
	opts     TransportOptions
	log      zerolog.Logger
}

// NewTransport binds a transport to hub.
func NewTransport(hub *Hub, opts TransportOptions) *Transport {
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingPeriod <= 0 || opts.PingPeriod >= opts.PongWait {
		opts.PingPeriod = opts.PongWait * 9 / 10
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 << 10
	}
	check := opts.CheckOrigin
	if check == nil {
		check = func(*http.Request) bool { return true }
	}
	return &Transport{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     check,
		},
		opts: opts,
		log:  log.Logger.With().Str("component", "ws").Logger(),
	}
}

// ServeWS upgrades the request and runs the connection's read loop until the
// client goes away, the heartbeat lapses, or the hub closes it. identity is
// the authenticated caller, or 0 when the request carried none.
func (t *Transport) ServeWS(w http.ResponseWriter, r *http.Request, identity int64) {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		t.log.Debug().Err(err).Msg("upgrade failed")
		return
	}

	client := NewClient(ws, ClientOptions{
		WriteWait:  t.opts.WriteWait,
		PingPeriod: t.opts.PingPeriod,
		SendBuffer: t.opts.SendBuffer,
	})
	session, err := t.hub.Connect(client, identity)
	if err != nil {
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "shutting down"),
			time.Now().Add(time.Second))
		_ = ws.Close()
		return
	}
	client.Start()

	defer func() {
		t.hub.Disconnect(session)
		client.Close()
	}()

	ws.SetReadLimit(t.opts.MaxFrameBytes)
	_ = ws.SetReadDeadline(time.Now().Add(t.opts.PongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(t.opts.PongWait))
	})

	ctx := r.Context()
	for {
		kind, raw, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Debug().Err(err).Str("peer", client.ID()).Msg("read loop ended")
			}
			return
		}
		if kind != websocket.TextMessage && kind != websocket.BinaryMessage {
			continue
		}
		if err := t.hub.Handle(ctx, session, raw); err != nil {
			if errors.Is(err, ErrSessionClosed) {
				return
			}
			t.log.Debug().Err(err).Str("peer", client.ID()).Msg("frame dropped")
		}
	}
}
