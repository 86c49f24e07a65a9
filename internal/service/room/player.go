package room

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
)

type ControlParams struct {
	RoomID    string
	SenderID  string
	Action    protocol.Action
	Position  *float64
	Source    *string
	MediaKind *protocol.MediaKind
	// BaseRevision, when set, must match the room revision.
	BaseRevision *int64
}

type ControlResponse struct {
	Event protocol.ControlEvent
	// Accepted is false when BaseRevision was stale. State then holds the
	// current snapshot for the sender.
	Accepted bool
	State    protocol.SyncState
	// Dropped is true when host-only control rejected a non-host sender.
	// State then holds the snapshot the sender should return to.
	Dropped bool
	Conns   []*wsconn.Conn
}

func validPosition(p float64) bool {
	return !math.IsNaN(p) && !math.IsInf(p, 0) && p >= 0
}

func (s service) Control(ctx context.Context, params *ControlParams) (ControlResponse, error) {
	if params.Position != nil && !validPosition(*params.Position) {
		return ControlResponse{}, fmt.Errorf("%w: position must be a finite non-negative number", ErrMalformedPayload)
	}

	var (
		kind   room.MediaKind
		source string
		title  string
	)
	switch params.Action {
	case protocol.ActionLoad:
		if params.Source == nil || strings.TrimSpace(*params.Source) == "" {
			return ControlResponse{}, fmt.Errorf("%w: load requires source", ErrMalformedPayload)
		}
		if params.MediaKind == nil || !room.MediaKind(*params.MediaKind).Valid() {
			return ControlResponse{}, fmt.Errorf("%w: load requires media_kind", ErrMalformedPayload)
		}

		kind = room.MediaKind(*params.MediaKind)
		var err error
		source, err = normalizeSource(kind, *params.Source)
		if err != nil {
			return ControlResponse{}, err
		}
		title = s.fetchTitle(ctx, kind, source)
	case protocol.ActionPlay, protocol.ActionPause, protocol.ActionSeek:
		if params.Position == nil {
			return ControlResponse{}, fmt.Errorf("%w: %s requires position", ErrMalformedPayload, params.Action)
		}
	default:
		return ControlResponse{}, fmt.Errorf("%w: unknown action %q", ErrMalformedPayload, params.Action)
	}

	ifRevision := room.AnyRevision
	if params.BaseRevision != nil {
		ifRevision = *params.BaseRevision
	}

	res, err := s.roomRepo.Apply(ctx, params.RoomID, room.Mutation{
		IfRevision: ifRevision,
		Structural: true,
		Change: func(r *room.Room) error {
			if !r.HasMember(params.SenderID) {
				return ErrNotInRoom
			}
			if s.hostOnlyControl && r.HostID != params.SenderID {
				return errNotHost
			}

			switch params.Action {
			case protocol.ActionLoad:
				r.MediaKind = kind
				r.Source = source
				r.Title = title
				r.Position = 0
				r.Playing = false
			case protocol.ActionPlay:
				r.Position = *params.Position
				r.Playing = true
			case protocol.ActionPause:
				r.Position = *params.Position
				r.Playing = false
			case protocol.ActionSeek:
				r.Position = *params.Position
			}

			return nil
		},
	})
	if err != nil {
		if errors.Is(err, errNotHost) {
			s.logger.DebugContext(ctx, "control from non-host dropped", "action", params.Action)
			rm, err := s.roomRepo.Snapshot(ctx, params.RoomID)
			if err != nil {
				return ControlResponse{}, err
			}

			return ControlResponse{
				Dropped: true,
				State:   toSyncState(rm, params.SenderID),
			}, nil
		}

		return ControlResponse{}, err
	}

	if !res.Accepted {
		s.logger.DebugContext(ctx, "stale control rejected", "base_revision", ifRevision, "revision", res.Revision)
		return ControlResponse{
			Accepted: false,
			State:    toSyncState(res.Room, params.SenderID),
		}, nil
	}

	s.logger.DebugContext(ctx, "control applied", "action", params.Action, "revision", res.Revision)

	return ControlResponse{
		Event:    toControlEvent(res.Room, params.Action, params.SenderID),
		Accepted: true,
		Conns:    s.connRepo.ListRoom(params.RoomID, params.SenderID),
	}, nil
}

type HeartbeatParams struct {
	RoomID   string
	SenderID string
	Position float64
	Playing  bool
}

type HeartbeatResponse struct {
	Event protocol.HeartbeatEvent
	// Accepted is false when the sender is not the host.
	Accepted bool
	Conns    []*wsconn.Conn
}

// HeartbeatSync records the host's playback sample. It never bumps the
// revision; the event is stamped with the current one so viewers can tell
// whether they missed a control.
func (s service) HeartbeatSync(ctx context.Context, params *HeartbeatParams) (HeartbeatResponse, error) {
	if !validPosition(params.Position) {
		return HeartbeatResponse{}, fmt.Errorf("%w: position must be a finite non-negative number", ErrMalformedPayload)
	}

	res, err := s.roomRepo.Apply(ctx, params.RoomID, room.Mutation{
		IfRevision: room.AnyRevision,
		Change: func(r *room.Room) error {
			if !r.HasMember(params.SenderID) {
				return ErrNotInRoom
			}
			if r.HostID != params.SenderID {
				return errNotHost
			}

			r.Position = params.Position
			r.Playing = params.Playing
			return nil
		},
	})
	if err != nil {
		if errors.Is(err, errNotHost) {
			return HeartbeatResponse{Accepted: false}, nil
		}

		return HeartbeatResponse{}, err
	}

	return HeartbeatResponse{
		Event: protocol.HeartbeatEvent{
			Position: res.Room.Position,
			Playing:  res.Room.Playing,
			Revision: res.Revision,
			HostID:   res.Room.HostID,
		},
		Accepted: true,
		Conns:    s.connRepo.ListRoom(params.RoomID, params.SenderID),
	}, nil
}
