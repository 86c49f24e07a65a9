package wsconn

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

const (
	defaultSendBuffer = 32
	defaultPingEvery  = 15 * time.Second
	writeWait         = 10 * time.Second
)

// Conn is a websocket connection with a buffered outbound queue drained by
// WritePump. Send never blocks: a slow peer loses messages instead of
// stalling the room that broadcasts to it.
type Conn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	closing   chan []byte
	done      chan struct{}
	closeOnce sync.Once
	pingEvery time.Duration
	pongWait  time.Duration
}

type Option func(*Conn)

func WithSendBuffer(n int) Option {
	return func(c *Conn) {
		if n > 0 {
			c.send = make(chan []byte, n)
		}
	}
}

func WithPingInterval(d time.Duration) Option {
	return func(c *Conn) {
		if d > 0 {
			c.pingEvery = d
			c.pongWait = 2 * d
		}
	}
}

// New wraps ws. ws may be nil, in which case the connection only queues
// messages (used by tests that inspect Outbox).
func New(ws *websocket.Conn, opts ...Option) *Conn {
	c := &Conn{
		id:        uuid.NewString(),
		ws:        ws,
		send:      make(chan []byte, defaultSendBuffer),
		closing:   make(chan []byte, 1),
		done:      make(chan struct{}),
		pingEvery: defaultPingEvery,
		pongWait:  2 * defaultPingEvery,
	}
	for _, opt := range opts {
		opt(c)
	}

	if ws != nil {
		ws.SetReadDeadline(time.Now().Add(c.pongWait))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(c.pongWait))
		})
	}

	return c
}

func (c *Conn) ID() string {
	return c.id
}

// Send marshals v and queues it for the write pump.
func (c *Conn) Send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	return c.SendRaw(data)
}

// SendRaw queues an already encoded message. Broadcasts encode once and
// share the bytes.
func (c *Conn) SendRaw(data []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrClosed
	default:
		return ErrBufferFull
	}
}

// Outbox exposes the queued messages.
func (c *Conn) Outbox() <-chan []byte {
	return c.send
}

// ReadJSON reads the next message into v.
func (c *Conn) ReadJSON(v any) error {
	if c.ws == nil {
		return ErrClosed
	}

	return c.ws.ReadJSON(v)
}

// WritePump writes queued messages and keepalive pings until the
// connection is closed or a write fails.
func (c *Conn) WritePump() {
	if c.ws == nil {
		return
	}

	ticker := time.NewTicker(c.pingEvery)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case msg := <-c.closing:
			c.flush()
			c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes whatever is queued without waiting for more.
func (c *Conn) flush() {
	for {
		select {
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// CloseWithCode asks the write pump to deliver the queued messages and a
// close frame, then close the connection. Without a websocket it closes at
// once.
func (c *Conn) CloseWithCode(code int, text string) error {
	if c.ws == nil {
		return c.Close()
	}

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	select {
	case c.closing <- websocket.FormatCloseMessage(code, text):
	default:
	}

	return nil
}

func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.ws != nil {
			err = c.ws.Close()
		}
	})

	return err
}

func (c *Conn) Done() <-chan struct{} {
	return c.done
}
