package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// ClientOptions tunes the write side of a Client.
type ClientOptions struct {
	WriteWait  time.Duration
	PingPeriod time.Duration
	SendBuffer int
}

func (o ClientOptions) withDefaults() ClientOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = 54 * time.Second
	}
	if o.SendBuffer < 1 {
		o.SendBuffer = 256
	}
	return o
}

// Client wraps a websocket and serializes outbound writes through a buffered
// queue drained by a single writer goroutine. It implements Peer and is safe
// for concurrent use.
type Client struct {
	id   string
	ws   *websocket.Conn
	opts ClientOptions

	send chan []byte
	done chan struct{}
	once sync.Once
}

// NewClient wraps ws. Start must be called to launch the writer.
func NewClient(ws *websocket.Conn, opts ClientOptions) *Client {
	opts = opts.withDefaults()
	return &Client{
		id:   uuid.NewString(),
		ws:   ws,
		opts: opts,
		send: make(chan []byte, opts.SendBuffer),
		done: make(chan struct{}),
	}
}

// ID returns the connection id.
func (c *Client) ID() string { return c.id }

// Start launches the write loop. Call it exactly once.
func (c *Client) Start() {
	go c.writeLoop()
}

// Send enqueues payload without blocking. A full queue marks the client as a
// slow consumer and closes it.
func (c *Client) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrPeerClosed
	default:
	}
	select {
	case <-c.done:
		return ErrPeerClosed
	case c.send <- payload:
		return nil
	default:
		c.closeWith(websocket.ClosePolicyViolation, "send buffer full")
		return ErrSendBufferFull
	}
}

// Close shuts the connection down with a normal closure.
func (c *Client) Close() {
	c.closeWith(websocket.CloseGoingAway, "server closing")
}

// Done is closed once the client has been closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// The send channel is never closed, so a concurrent Send can not panic.
func (c *Client) closeWith(code int, reason string) {
	c.once.Do(func() {
		close(c.done)
		deadline := time.Now().Add(c.opts.WriteWait)
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
		_ = c.ws.Close()
	})
}

func (c *Client) writeLoop() {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			if err := c.write(websocket.TextMessage, msg); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "write failed")
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				c.closeWith(websocket.CloseAbnormalClosure, "ping failed")
				return
			}
		}
	}
}

func (c *Client) write(kind int, payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(kind, payload)
}
