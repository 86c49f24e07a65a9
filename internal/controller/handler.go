package controller

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/sharetube/watchparty/internal/identity"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

func (c *controller) serveWS(w http.ResponseWriter, r *http.Request) {
	ident := c.identity.Resolve(identity.FromRequest(r))

	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return
	}

	conn := wsconn.New(ws, wsconn.WithSendBuffer(c.sendBuffer), wsconn.WithPingInterval(c.pingInterval))
	go conn.WritePump()

	// leave on disconnect must still reach the store after the peer is gone
	ctx := ctxlogger.AppendCtx(context.WithoutCancel(r.Context()),
		slog.String("conn_id", conn.ID()),
		slog.String("member_id", ident.ID),
	)
	sess := &session{identity: ident}
	ctx = withSession(ctx, sess)

	c.logger.InfoContext(ctx, "connected", "guest", ident.IsGuest)
	defer c.disconnect(ctx, conn, sess)

	if err := c.wsmux.ServeConn(ctx, conn); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
			c.logger.InfoContext(ctx, "connection closed unexpectedly", "error", err)
			return
		}

		c.logger.DebugContext(ctx, "connection closed", "error", err)
	}
}

// disconnect removes the member from its room, as an explicit leave would.
func (c *controller) disconnect(ctx context.Context, conn *wsconn.Conn, sess *session) {
	if sess.roomID != "" {
		if err := c.leaveRoom(ctx, conn, sess); err != nil && !errors.Is(err, room.ErrNotInRoom) {
			c.logger.WarnContext(ctx, "failed to leave room on disconnect", "error", err)
		}
	}

	conn.Close()
	c.logger.InfoContext(ctx, "disconnected")
}
