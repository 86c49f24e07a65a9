package controller

import (
	"context"
	"encoding/json"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

// broadcast is fire and forget: a member whose queue is full misses the
// message and recovers from the next heartbeat or a sync-request.
func (c *controller) broadcast(ctx context.Context, conns []*wsconn.Conn, out protocol.Output) {
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(out)
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to encode message", "type", out.Type, "error", err)
		return
	}

	for _, conn := range conns {
		if err := conn.SendRaw(data); err != nil {
			c.logger.WarnContext(ctx, "failed to send message", "type", out.Type, "target_conn_id", conn.ID(), "error", err)
		}
	}
}

func (c *controller) writeToConn(ctx context.Context, conn *wsconn.Conn, out protocol.Output) {
	if err := conn.Send(out); err != nil {
		c.logger.WarnContext(ctx, "failed to send message", "type", out.Type, "error", err)
	}
}
