package room

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/connection"
	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type JoinParams struct {
	RoomID  string
	ID      string
	Name    string
	IsGuest bool
	Conn    *wsconn.Conn
}

type JoinResponse struct {
	State        protocol.SyncState
	ChatHistory  []protocol.ChatMessage
	JoinedMember protocol.Member
	Members      []protocol.Member
	// Conns are the other members, who get member-joined.
	Conns []*wsconn.Conn
}

// Join registers the connection first so that any event fanned out after
// the member is added reaches it.
func (s service) Join(ctx context.Context, params *JoinParams) (JoinResponse, error) {
	if err := s.connRepo.Add(params.RoomID, params.ID, params.Conn); err != nil {
		if errors.Is(err, connection.ErrAlreadyExists) {
			return JoinResponse{}, ErrAlreadyJoined
		}

		s.logger.InfoContext(ctx, "failed to register connection", "error", err)
		return JoinResponse{}, err
	}

	member := room.Member{
		ID:       params.ID,
		Name:     params.Name,
		IsGuest:  params.IsGuest,
		JoinedAt: s.clock.Now(),
	}
	rm, err := s.roomRepo.AddMember(ctx, params.RoomID, member)
	if err != nil {
		s.connRepo.Remove(params.RoomID, params.ID, params.Conn)
		s.logger.InfoContext(ctx, "failed to add member", "error", err)
		return JoinResponse{}, err
	}

	history, err := s.roomRepo.ChatHistory(ctx, params.RoomID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get chat history", "error", err)
		s.rollbackJoin(ctx, params)
		return JoinResponse{}, err
	}

	chat := make([]protocol.ChatMessage, 0, len(history))
	for _, e := range history {
		chat = append(chat, toChatMessage(e))
	}

	s.logger.DebugContext(ctx, "member joined", "revision", rm.Revision, "host_id", rm.HostID, "members", len(rm.Members))

	return JoinResponse{
		State:        toSyncState(rm, params.ID),
		ChatHistory:  chat,
		JoinedMember: toMember(member),
		Members:      toMembers(rm.Members),
		Conns:        s.connRepo.ListRoom(params.RoomID, params.ID),
	}, nil
}

// rollbackJoin undoes a join that failed after the member was added, so no
// ghost member or connection is left behind.
func (s service) rollbackJoin(ctx context.Context, params *JoinParams) {
	if _, err := s.roomRepo.RemoveMember(ctx, params.RoomID, params.ID); err != nil {
		s.logger.WarnContext(ctx, "failed to roll back member", "error", err)
	}
	if err := s.connRepo.Remove(params.RoomID, params.ID, params.Conn); err != nil {
		s.logger.WarnContext(ctx, "failed to roll back connection", "error", err)
	}
}

type LeaveParams struct {
	RoomID   string
	MemberID string
	// Conn, when set, must be the connection the member is registered
	// with. A stale connection leaving is a no-op.
	Conn *wsconn.Conn
}

type LeaveResponse struct {
	RemovedMember protocol.Member
	Members       []protocol.Member
	HostChanged   bool
	HostID        string
	IsRoomDeleted bool
	Conns         []*wsconn.Conn
}

func (s service) Leave(ctx context.Context, params *LeaveParams) (LeaveResponse, error) {
	if err := s.connRepo.Remove(params.RoomID, params.MemberID, params.Conn); err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return LeaveResponse{}, ErrNotInRoom
		}

		return LeaveResponse{}, err
	}

	res, err := s.roomRepo.RemoveMember(ctx, params.RoomID, params.MemberID)
	if err != nil {
		if errors.Is(err, room.ErrRoomNotFound) || errors.Is(err, room.ErrMemberNotFound) {
			return LeaveResponse{}, ErrNotInRoom
		}

		s.logger.InfoContext(ctx, "failed to remove member", "error", err)
		return LeaveResponse{}, err
	}

	if res.RoomDeleted {
		s.logger.DebugContext(ctx, "room deleted")
		return LeaveResponse{
			RemovedMember: toMember(res.Removed),
			Members:       []protocol.Member{},
			IsRoomDeleted: true,
		}, nil
	}

	return LeaveResponse{
		RemovedMember: toMember(res.Removed),
		Members:       toMembers(res.Room.Members),
		HostChanged:   res.HostChanged,
		HostID:        res.Room.HostID,
		Conns:         s.connRepo.ListRoom(params.RoomID),
	}, nil
}

type PromoteParams struct {
	RoomID     string
	SenderID   string
	PromotedID string
}

type PromoteResponse struct {
	HostID  string
	Changed bool
	Conns   []*wsconn.Conn
}

// Promote hands the host role to another member. Only the host may do it.
func (s service) Promote(ctx context.Context, params *PromoteParams) (PromoteResponse, error) {
	res, err := s.roomRepo.Apply(ctx, params.RoomID, room.Mutation{
		IfRevision: room.AnyRevision,
		Change: func(r *room.Room) error {
			if !r.HasMember(params.SenderID) {
				return ErrNotInRoom
			}
			if r.HostID != params.SenderID {
				return ErrPermissionDenied
			}
			if !r.HasMember(params.PromotedID) {
				return ErrMemberNotFound
			}

			r.HostID = params.PromotedID
			return nil
		},
	})
	if err != nil {
		return PromoteResponse{}, fmt.Errorf("failed to promote member: %w", err)
	}

	changed := params.PromotedID != params.SenderID

	return PromoteResponse{
		HostID:  res.Room.HostID,
		Changed: changed,
		Conns:   s.connRepo.ListRoom(params.RoomID),
	}, nil
}

// GetState returns the snapshot a member resyncs from.
func (s service) GetState(ctx context.Context, roomID, memberID string) (protocol.SyncState, error) {
	rm, err := s.roomRepo.Snapshot(ctx, roomID)
	if err != nil {
		return protocol.SyncState{}, err
	}

	if !rm.HasMember(memberID) {
		return protocol.SyncState{}, ErrNotInRoom
	}

	return toSyncState(rm, memberID), nil
}
