package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/sharetube/watchparty/internal/heartbeat"
	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/reconciler"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrNotPermitted = errors.New("not permitted by control policy")
	ErrStopped      = errors.New("client stopped")
)

const writeWait = 5 * time.Second

type Config struct {
	// URL is the server base URL, http(s) or ws(s).
	URL               string
	RoomID            string
	Token             string
	HeartbeatInterval time.Duration
	Reconciler        reconciler.Config
	Clock             clock.Clock
	Dialer            *websocket.Dialer
}

// Client is one room member. All reconciler and player mutations happen on
// the goroutine running Run; other methods only queue work for it.
type Client struct {
	cfg    Config
	logger *slog.Logger
	player player.Player
	rec    *reconciler.Reconciler
	hb     *heartbeat.Broadcaster

	writeMu sync.Mutex
	ws      *websocket.Conn

	localMu     sync.Mutex
	local       []player.Event
	localSignal chan struct{}

	cmds       chan func()
	joined     chan struct{}
	joinedOnce sync.Once
	done       chan struct{}

	mu   sync.RWMutex
	view view
}

type view struct {
	selfID    string
	hostID    string
	applied   int64
	members   []protocol.Member
	chat      []protocol.ChatMessage
	lastError *protocol.Error
}

func New(p player.Player, cfg Config, logger *slog.Logger) *Client {
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.Reconciler.Clock == nil {
		cfg.Reconciler.Clock = cfg.Clock
	}
	if cfg.Dialer == nil {
		cfg.Dialer = websocket.DefaultDialer
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		cfg:         cfg,
		logger:      logger,
		player:      p,
		rec:         reconciler.New(p, cfg.Reconciler, logger),
		localSignal: make(chan struct{}, 1),
		cmds:        make(chan func()),
		joined:      make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.hb = heartbeat.New(p, c.sendHeartbeat, cfg.HeartbeatInterval, cfg.Clock, logger)

	return c
}

// Notify hands a player event to the event loop. It never blocks, so it
// may be called from player callbacks on any goroutine, the loop included.
func (c *Client) Notify(ev player.Event) {
	c.localMu.Lock()
	c.local = append(c.local, ev)
	c.localMu.Unlock()

	select {
	case c.localSignal <- struct{}{}:
	default:
	}
}

func (c *Client) drainLocal() []player.Event {
	c.localMu.Lock()
	defer c.localMu.Unlock()

	events := c.local
	c.local = nil

	return events
}

// Joined is closed once the first room snapshot has been applied.
func (c *Client) Joined() <-chan struct{} {
	return c.joined
}

// Done is closed when Run returns.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func wsURL(base, token string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid server url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid server url scheme %q", u.Scheme)
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	if token != "" {
		q := u.Query()
		q.Set("token", token)
		u.RawQuery = q.Encode()
	}

	return u.String(), nil
}

// Run connects, joins the room and processes events until ctx is done or the
// connection drops. Leaving the room on ctx cancellation is best effort.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.done)

	target, err := wsURL(c.cfg.URL, c.cfg.Token)
	if err != nil {
		return err
	}

	ws, _, err := c.cfg.Dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", c.cfg.URL, err)
	}

	c.writeMu.Lock()
	c.ws = ws
	c.writeMu.Unlock()

	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", c.cfg.RoomID))
	defer c.shutdown(ctx)

	inbound := make(chan protocol.Envelope)
	readErr := make(chan error, 1)
	go c.readLoop(ws, inbound, readErr)

	if err := c.write(protocol.TypeJoin, protocol.JoinInput{RoomID: c.cfg.RoomID}); err != nil {
		return fmt.Errorf("failed to join: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("connection lost: %w", err)
		case env := <-inbound:
			c.handleEnvelope(ctx, env)
		case <-c.localSignal:
			for _, ev := range c.drainLocal() {
				c.handleLocal(ctx, ev)
			}
		case fn := <-c.cmds:
			fn()
		}
		c.refreshView()
	}
}

func (c *Client) readLoop(ws *websocket.Conn, inbound chan<- protocol.Envelope, readErr chan<- error) {
	for {
		var env protocol.Envelope
		if err := ws.ReadJSON(&env); err != nil {
			readErr <- err
			return
		}

		select {
		case inbound <- env:
		case <-c.done:
			return
		}
	}
}

func (c *Client) shutdown(ctx context.Context) {
	c.hb.Stop()

	if ctx.Err() != nil && c.rec.RoomID() != "" {
		if err := c.write(protocol.TypeLeave, protocol.LeaveInput{RoomID: c.cfg.RoomID}); err != nil {
			c.logger.DebugContext(ctx, "failed to send leave", "error", err)
		}
	}

	c.writeMu.Lock()
	if c.ws != nil {
		c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.ws.Close()
		c.ws = nil
	}
	c.writeMu.Unlock()

	c.rec.Reset()
	c.refreshView()
	c.logger.InfoContext(ctx, "left room")
}

func (c *Client) write(msgType string, payload any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.ws == nil {
		return ErrNotConnected
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(protocol.NewOutput(msgType, payload))
}

func (c *Client) sendHeartbeat(beat heartbeat.Beat) error {
	return c.write(protocol.TypeHeartbeatSync, protocol.HeartbeatInput{
		RoomID:   c.cfg.RoomID,
		Position: beat.Position,
		Playing:  beat.Playing,
	})
}

// syncHeartbeat runs the broadcaster exactly while this member is host.
func (c *Client) syncHeartbeat(ctx context.Context) {
	if c.rec.IsHost() {
		if !c.hb.Running() {
			c.logger.InfoContext(ctx, "became host, starting heartbeat")
		}
		c.hb.Start(ctx)
		return
	}

	if c.hb.Running() {
		c.logger.InfoContext(ctx, "no longer host, stopping heartbeat")
	}
	c.hb.Stop()
}

// do runs fn on the event loop and waits for its result.
func (c *Client) do(ctx context.Context, fn func() error) error {
	errCh := make(chan error, 1)
	select {
	case c.cmds <- func() { errCh <- fn() }:
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Load loads a source locally and announces it to the room. YouTube URLs
// are recognized; anything else is played as a file.
func (c *Client) Load(ctx context.Context, source string) error {
	return c.do(ctx, func() error {
		in, ok, err := c.rec.LocalLoad(source)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPermitted
		}

		return c.write(protocol.TypeControl, in)
	})
}

func (c *Client) Chat(ctx context.Context, text string) error {
	return c.do(ctx, func() error {
		return c.write(protocol.TypeChat, protocol.ChatInput{RoomID: c.cfg.RoomID, Text: text})
	})
}

// Promote hands the host role to memberID.
func (c *Client) Promote(ctx context.Context, memberID string) error {
	return c.do(ctx, func() error {
		return c.write(protocol.TypePromote, protocol.PromoteInput{RoomID: c.cfg.RoomID, MemberID: memberID})
	})
}

// Resync asks the server for a fresh snapshot.
func (c *Client) Resync(ctx context.Context) error {
	return c.do(ctx, func() error {
		return c.write(protocol.TypeSyncRequest, protocol.SyncRequestInput{RoomID: c.cfg.RoomID})
	})
}
