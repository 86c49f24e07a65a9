package protocol

import (
	"time"

	"github.com/sharetube/watchparty/pkg/validator"
)

type MediaKind string

const (
	MediaKindMP4     MediaKind = "MP4"
	MediaKindYouTube MediaKind = "YOUTUBE"
)

type Action string

const (
	ActionLoad  Action = "load"
	ActionPlay  Action = "play"
	ActionPause Action = "pause"
	ActionSeek  Action = "seek"
)

type Member struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	IsGuest bool   `json:"guest"`
}

type JoinInput struct {
	RoomID string `json:"room_id" validate:"required,max=128"`
}

type LeaveInput struct {
	RoomID string `json:"room_id" validate:"required"`
}

type SyncRequestInput struct {
	RoomID string `json:"room_id" validate:"required"`
}

// SyncState is the room snapshot sent to a member. Source is null until
// something has been loaded.
type SyncState struct {
	RoomID    string    `json:"room_id"`
	MediaKind MediaKind `json:"media_kind"`
	Source    *string   `json:"source"`
	Title     string    `json:"title,omitempty"`
	Position  float64   `json:"position"`
	Playing   bool      `json:"playing"`
	HostID    string    `json:"host_id"`
	Revision  int64     `json:"revision"`
	Members   []Member  `json:"members"`
	SelfID    string    `json:"self_id"`
}

type ControlInput struct {
	RoomID    string     `json:"room_id" validate:"required"`
	Action    Action     `json:"action" validate:"required,oneof=load play pause seek"`
	Position  *float64   `json:"position,omitempty" validate:"omitempty,finite,gte=0"`
	Source    *string    `json:"source,omitempty" validate:"omitempty,max=2048"`
	MediaKind *MediaKind `json:"media_kind,omitempty" validate:"omitempty,oneof=MP4 YOUTUBE"`
	// BaseRevision is the revision the sender last applied. When set the
	// control is rejected if the room has moved on.
	BaseRevision *int64 `json:"base_revision,omitempty" validate:"omitempty,gte=0"`
}

// ControlEvent carries the full playback state after the action so that a
// receiver can apply it without any earlier event.
type ControlEvent struct {
	Action    Action    `json:"action"`
	Revision  int64     `json:"revision"`
	Position  float64   `json:"position"`
	Playing   bool      `json:"playing"`
	MediaKind MediaKind `json:"media_kind"`
	Source    string    `json:"source"`
	Title     string    `json:"title,omitempty"`
	By        string    `json:"by"`
}

type HeartbeatInput struct {
	RoomID   string  `json:"room_id" validate:"required"`
	Position float64 `json:"position" validate:"finite,gte=0"`
	Playing  bool    `json:"playing"`
}

// HeartbeatEvent is stamped with the room revision current when the
// heartbeat was accepted.
type HeartbeatEvent struct {
	Position float64 `json:"position"`
	Playing  bool    `json:"playing"`
	Revision int64   `json:"revision"`
	HostID   string  `json:"host_id"`
}

type ChatInput struct {
	RoomID string `json:"room_id" validate:"required"`
	Text   string `json:"text" validate:"required"`
}

type ChatMessage struct {
	ID        string    `json:"id"`
	Author    Member    `json:"author"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type MemberEvent struct {
	Member  Member   `json:"member"`
	Members []Member `json:"members"`
}

type HostChanged struct {
	HostID string `json:"host_id"`
}

type PromoteInput struct {
	RoomID   string `json:"room_id" validate:"required"`
	MemberID string `json:"member_id" validate:"required"`
}

type Ping struct {
	ClientTime int64 `json:"client_time"`
}

type Pong struct {
	ClientTime int64 `json:"client_time"`
	ServerTime int64 `json:"server_time"`
}

const (
	CodeMalformedPayload = "MALFORMED_PAYLOAD"
	CodePermissionDenied = "PERMISSION_DENIED"
	CodeAlreadyJoined    = "ALREADY_JOINED"
	CodeNotInRoom        = "NOT_IN_ROOM"
	CodeUnknownType      = "UNKNOWN_TYPE"
	CodeInternal         = "INTERNAL"
)

type Error struct {
	Code    string                      `json:"code"`
	Message string                      `json:"message"`
	Errors  []validator.ValidationError `json:"errors,omitempty"`
}
