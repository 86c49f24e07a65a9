package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

func (c *controller) handleJoin(ctx context.Context, conn *wsconn.Conn, input protocol.JoinInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID == input.RoomID {
		return room.ErrAlreadyJoined
	}
	if sess.roomID != "" {
		if err := c.leaveRoom(ctx, conn, sess); err != nil {
			return fmt.Errorf("failed to leave previous room: %w", err)
		}
	}

	joinResp, err := c.roomService.Join(ctx, &room.JoinParams{
		RoomID:  input.RoomID,
		ID:      sess.identity.ID,
		Name:    sess.identity.Name,
		IsGuest: sess.identity.IsGuest,
		Conn:    conn,
	})
	if errors.Is(err, room.ErrAlreadyJoined) {
		// the identity is already in this room on another connection
		c.handleError(ctx, conn, err)
		if err := conn.CloseWithCode(websocket.ClosePolicyViolation, "already connected"); err != nil {
			c.logger.DebugContext(ctx, "failed to close duplicate connection", "error", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to join room: %w", err)
	}
	sess.roomID = input.RoomID

	c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypeSyncState, joinResp.State))
	c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypeChatHistory, joinResp.ChatHistory))

	c.broadcast(ctx, joinResp.Conns, protocol.NewOutput(protocol.TypeMemberJoined, protocol.MemberEvent{
		Member:  joinResp.JoinedMember,
		Members: joinResp.Members,
	}))

	c.logger.InfoContext(ctx, "joined room", "room_id", input.RoomID, "host_id", joinResp.State.HostID)
	return nil
}

func (c *controller) handleLeave(ctx context.Context, conn *wsconn.Conn, input protocol.LeaveInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	return c.leaveRoom(ctx, conn, sess)
}

func (c *controller) leaveRoom(ctx context.Context, conn *wsconn.Conn, sess *session) error {
	roomID := sess.roomID
	sess.roomID = ""

	leaveResp, err := c.roomService.Leave(ctx, &room.LeaveParams{
		RoomID:   roomID,
		MemberID: sess.identity.ID,
		Conn:     conn,
	})
	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	c.logger.InfoContext(ctx, "left room", "room_id", roomID, "room_deleted", leaveResp.IsRoomDeleted)
	if leaveResp.IsRoomDeleted {
		return nil
	}

	c.broadcast(ctx, leaveResp.Conns, protocol.NewOutput(protocol.TypeMemberLeft, protocol.MemberEvent{
		Member:  leaveResp.RemovedMember,
		Members: leaveResp.Members,
	}))

	if leaveResp.HostChanged {
		c.logger.InfoContext(ctx, "host promoted", "room_id", roomID, "host_id", leaveResp.HostID)
		c.broadcast(ctx, leaveResp.Conns, protocol.NewOutput(protocol.TypeHostChanged, protocol.HostChanged{
			HostID: leaveResp.HostID,
		}))
	}

	return nil
}

func (c *controller) handlePromote(ctx context.Context, _ *wsconn.Conn, input protocol.PromoteInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	promoteResp, err := c.roomService.Promote(ctx, &room.PromoteParams{
		RoomID:     input.RoomID,
		SenderID:   sess.identity.ID,
		PromotedID: input.MemberID,
	})
	if err != nil {
		return fmt.Errorf("failed to promote member: %w", err)
	}

	if promoteResp.Changed {
		c.broadcast(ctx, promoteResp.Conns, protocol.NewOutput(protocol.TypeHostChanged, protocol.HostChanged{
			HostID: promoteResp.HostID,
		}))
	}

	return nil
}

func (c *controller) handleSyncRequest(ctx context.Context, conn *wsconn.Conn, input protocol.SyncRequestInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	state, err := c.roomService.GetState(ctx, input.RoomID, sess.identity.ID)
	if err != nil {
		return fmt.Errorf("failed to get room state: %w", err)
	}

	c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypeSyncState, state))
	return nil
}

func (c *controller) handleControl(ctx context.Context, conn *wsconn.Conn, input protocol.ControlInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	controlResp, err := c.roomService.Control(ctx, &room.ControlParams{
		RoomID:       input.RoomID,
		SenderID:     sess.identity.ID,
		Action:       input.Action,
		Position:     input.Position,
		Source:       input.Source,
		MediaKind:    input.MediaKind,
		BaseRevision: input.BaseRevision,
	})
	if err != nil {
		return fmt.Errorf("failed to apply control: %w", err)
	}

	// a dropped or stale control leaves the sender ahead of the room; resync it
	if controlResp.Dropped || !controlResp.Accepted {
		c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypeSyncState, controlResp.State))
		return nil
	}

	c.broadcast(ctx, controlResp.Conns, protocol.NewOutput(protocol.TypeControl, controlResp.Event))
	return nil
}

func (c *controller) handleHeartbeatSync(ctx context.Context, _ *wsconn.Conn, input protocol.HeartbeatInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	heartbeatResp, err := c.roomService.HeartbeatSync(ctx, &room.HeartbeatParams{
		RoomID:   input.RoomID,
		SenderID: sess.identity.ID,
		Position: input.Position,
		Playing:  input.Playing,
	})
	if err != nil {
		return fmt.Errorf("failed to apply heartbeat: %w", err)
	}

	if heartbeatResp.Accepted {
		c.broadcast(ctx, heartbeatResp.Conns, protocol.NewOutput(protocol.TypeHeartbeatSync, heartbeatResp.Event))
	}

	return nil
}

func (c *controller) handleChat(ctx context.Context, _ *wsconn.Conn, input protocol.ChatInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	sess := c.getSessionFromCtx(ctx)
	if sess.roomID != input.RoomID {
		return room.ErrNotInRoom
	}

	chatResp, err := c.roomService.Chat(ctx, &room.ChatParams{
		RoomID:   input.RoomID,
		SenderID: sess.identity.ID,
		Text:     input.Text,
	})
	if err != nil {
		return fmt.Errorf("failed to send chat message: %w", err)
	}

	c.broadcast(ctx, chatResp.Conns, protocol.NewOutput(protocol.TypeChat, chatResp.Message))
	return nil
}

func (c *controller) handlePing(ctx context.Context, conn *wsconn.Conn, input protocol.Ping) error {
	c.writeToConn(ctx, conn, protocol.NewOutput(protocol.TypePong, protocol.Pong{
		ClientTime: input.ClientTime,
		ServerTime: c.clock.Now().UnixMilli(),
	}))

	return nil
}
