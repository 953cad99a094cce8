package realtime

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn, event string) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		f, err := DecodeFrame(raw)
		require.NoError(t, err)
		if f.Event == event {
			return f
		}
	}
}

func TestTransport_EndToEnd(t *testing.T) {
	store := &fakeStore{}
	hub := NewHub(store, nil, Options{})
	tr := NewTransport(hub, TransportOptions{
		WriteWait:  time.Second,
		PongWait:   5 * time.Second,
		SendBuffer: 8,
	})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr.ServeWS(w, r, 0)
	}))
	defer srv.Close()
	defer hub.Close()

	a := dialWS(t, srv)
	b := dialWS(t, srv)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame(t, EventRegisterSocket, map[string]any{"user_id": 1})))
	readEvent(t, a, EventOnlineUpdate)
	require.NoError(t, b.WriteMessage(websocket.TextMessage, frame(t, EventRegisterSocket, map[string]any{"user_id": 2})))
	for _, c := range []*websocket.Conn{a, b} {
		require.NoError(t, c.WriteMessage(websocket.TextMessage, frame(t, EventJoinRoom, map[string]any{"room": "5"})))
	}

	// Frames on one connection are handled in order, so once b's join has
	// been applied the send below reaches both peers.
	require.Eventually(t, func() bool { return len(hub.Rooms().Members("5")) == 2 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, frame(t, EventSendMessage, map[string]any{"conv_id": 5, "sender_id": 1, "text": "hi"})))
	for _, c := range []*websocket.Conn{a, b} {
		nm := decodeAs[NewMessage](t, readEvent(t, c, EventNewMessage))
		require.Equal(t, "hi", nm.Text)
		require.EqualValues(t, 5, nm.ConvID)
	}

	require.NoError(t, a.Close())
	off := decodeAs[OnlineUpdate](t, readEvent(t, b, EventOnlineUpdate))
	for off.Status != StatusOffline {
		off = decodeAs[OnlineUpdate](t, readEvent(t, b, EventOnlineUpdate))
	}
	require.EqualValues(t, 1, off.UserID)
	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestTransport_RejectsAfterHubClose(t *testing.T) {
	hub := NewHub(&fakeStore{}, nil, Options{})
	hub.Close()
	tr := NewTransport(hub, TransportOptions{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tr.ServeWS(w, r, 0)
	}))
	defer srv.Close()

	conn := dialWS(t, srv)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.True(t, websocket.IsCloseError(err, websocket.CloseTryAgainLater), "err=%v", err)
}

func TestClient_SendAfterClose(t *testing.T) {
	var client *Client
	ready := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		up := websocket.Upgrader{}
		ws, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client = NewClient(ws, ClientOptions{SendBuffer: 1})
		close(ready)
	}))
	defer srv.Close()

	dialWS(t, srv)
	<-ready
	require.NotEmpty(t, client.ID())

	require.NoError(t, client.Send([]byte("a")))
	require.ErrorIs(t, client.Send([]byte("b")), ErrSendBufferFull, "no writer running, buffer of one overflows")
	<-client.Done()
	require.ErrorIs(t, client.Send([]byte("c")), ErrPeerClosed)
}
