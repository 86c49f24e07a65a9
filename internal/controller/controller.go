package controller

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"

	"github.com/sharetube/watchparty/internal/identity"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

type iRoomService interface {
	Join(context.Context, *room.JoinParams) (room.JoinResponse, error)
	Leave(context.Context, *room.LeaveParams) (room.LeaveResponse, error)
	Control(context.Context, *room.ControlParams) (room.ControlResponse, error)
	HeartbeatSync(context.Context, *room.HeartbeatParams) (room.HeartbeatResponse, error)
	Chat(context.Context, *room.ChatParams) (room.ChatResponse, error)
	Promote(context.Context, *room.PromoteParams) (room.PromoteResponse, error)
	GetState(ctx context.Context, roomID, memberID string) (protocol.SyncState, error)
}

type iIdentityResolver interface {
	Resolve(token string) identity.Identity
	Parse(token string) (identity.Identity, error)
}

type Config struct {
	// ClientOrigin restricts CORS and websocket origins. "*" or empty
	// allows any.
	ClientOrigin string
	SendBuffer   int
	PingInterval time.Duration
	Clock        clock.Clock
	// Stats, when set, adds gauges to the /healthz response.
	Stats func() map[string]int
}

type controller struct {
	roomService  iRoomService
	identity     iIdentityResolver
	upgrader     websocket.Upgrader
	validate     *validator.Validator
	wsmux        *wsrouter.WSRouter
	clock        clock.Clock
	clientOrigin string
	sendBuffer   int
	pingInterval time.Duration
	stats        func() map[string]int
	logger       *slog.Logger
}

func NewController(roomService iRoomService, identity iIdentityResolver, cfg Config, logger *slog.Logger) *controller {
	c := &controller{
		roomService:  roomService,
		identity:     identity,
		validate:     validator.NewValidator(),
		clock:        cfg.Clock,
		clientOrigin: cfg.ClientOrigin,
		sendBuffer:   cfg.SendBuffer,
		pingInterval: cfg.PingInterval,
		stats:        cfg.Stats,
		logger:       logger,
	}
	if c.clock == nil {
		c.clock = clock.New()
	}

	c.upgrader = websocket.Upgrader{
		CheckOrigin: c.checkOrigin,
	}
	c.wsmux = c.getWSRouter()

	return c
}

func (c *controller) checkOrigin(r *http.Request) bool {
	if c.clientOrigin == "" || c.clientOrigin == "*" {
		return true
	}

	origin := r.Header.Get("Origin")
	return origin == "" || origin == c.clientOrigin
}
