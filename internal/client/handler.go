package client

import (
	"context"
	"log/slog"

	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/reconciler"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
)

func (c *Client) handleEnvelope(ctx context.Context, env protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.TypeSyncState:
		err = c.handleSyncState(ctx, env)
	case protocol.TypeChatHistory:
		err = c.handleChatHistory(env)
	case protocol.TypeControl:
		err = c.handleControl(ctx, env)
	case protocol.TypeHeartbeatSync:
		err = c.handleHeartbeat(ctx, env)
	case protocol.TypeChat:
		err = c.handleChat(env)
	case protocol.TypeMemberJoined, protocol.TypeMemberLeft:
		err = c.handleMembers(env)
	case protocol.TypeHostChanged:
		err = c.handleHostChanged(ctx, env)
	case protocol.TypeError:
		err = c.handleError(ctx, env)
	case protocol.TypePong:
	default:
		c.logger.DebugContext(ctx, "unknown message type", "type", env.Type)
	}

	if err != nil {
		c.logger.WarnContext(ctx, "failed to handle message", "type", env.Type, "error", err)
	}
}

func (c *Client) handleSyncState(ctx context.Context, env protocol.Envelope) error {
	state, err := protocol.Decode[protocol.SyncState](env)
	if err != nil {
		return err
	}

	res, err := c.rec.HandleSnapshot(state)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.members = state.Members
	c.mu.Unlock()
	c.refreshView()

	c.joinedOnce.Do(func() {
		c.logger.InfoContext(ctxlogger.AppendCtx(ctx, slog.String("member_id", state.SelfID)),
			"joined room", "host_id", state.HostID, "revision", state.Revision)
		close(c.joined)
	})
	c.logger.DebugContext(ctx, "snapshot applied", "revision", state.Revision, "result", res)

	c.syncHeartbeat(ctx)
	return nil
}

func (c *Client) handleChatHistory(env protocol.Envelope) error {
	history, err := protocol.Decode[[]protocol.ChatMessage](env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.chat = history
	c.mu.Unlock()

	return nil
}

func (c *Client) handleControl(ctx context.Context, env protocol.Envelope) error {
	ev, err := protocol.Decode[protocol.ControlEvent](env)
	if err != nil {
		return err
	}

	res, err := c.rec.HandleControl(ev)
	if err != nil {
		return err
	}

	c.logger.DebugContext(ctx, "control received", "action", ev.Action, "revision", ev.Revision, "by", ev.By, "result", res)
	return nil
}

func (c *Client) handleHeartbeat(ctx context.Context, env protocol.Envelope) error {
	ev, err := protocol.Decode[protocol.HeartbeatEvent](env)
	if err != nil {
		return err
	}

	res, err := c.rec.HandleHeartbeat(ev)
	if err != nil {
		return err
	}

	if res == reconciler.NeedResync {
		c.logger.InfoContext(ctx, "missed a control, requesting snapshot", "revision", ev.Revision, "applied", c.rec.Applied())
		return c.write(protocol.TypeSyncRequest, protocol.SyncRequestInput{RoomID: c.cfg.RoomID})
	}

	c.syncHeartbeat(ctx)
	return nil
}

func (c *Client) handleChat(env protocol.Envelope) error {
	msg, err := protocol.Decode[protocol.ChatMessage](env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.chat = append(c.view.chat, msg)
	c.mu.Unlock()

	return nil
}

func (c *Client) handleMembers(env protocol.Envelope) error {
	ev, err := protocol.Decode[protocol.MemberEvent](env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.members = ev.Members
	c.mu.Unlock()

	return nil
}

func (c *Client) handleHostChanged(ctx context.Context, env protocol.Envelope) error {
	ev, err := protocol.Decode[protocol.HostChanged](env)
	if err != nil {
		return err
	}

	c.rec.SetHost(ev.HostID)
	c.logger.InfoContext(ctx, "host changed", "host_id", ev.HostID)

	c.syncHeartbeat(ctx)
	return nil
}

func (c *Client) handleError(ctx context.Context, env protocol.Envelope) error {
	e, err := protocol.Decode[protocol.Error](env)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.view.lastError = &e
	c.mu.Unlock()

	c.logger.WarnContext(ctx, "server error", "code", e.Code, "message", e.Message)
	return nil
}

func (c *Client) handleLocal(ctx context.Context, ev player.Event) {
	in, emit, err := c.rec.HandleLocal(ev)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to handle player event", "event", ev.Kind, "error", err)
		return
	}
	if !emit {
		return
	}

	if err := c.write(protocol.TypeControl, in); err != nil {
		c.logger.WarnContext(ctx, "failed to send control", "action", in.Action, "error", err)
	}
}
