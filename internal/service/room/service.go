package room

import (
	"context"
	"errors"
	"log/slog"

	"github.com/benbjohnson/clock"

	"github.com/sharetube/watchparty/internal/repository/room"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

var (
	ErrMalformedPayload = errors.New("malformed payload")
	ErrPermissionDenied = errors.New("permission denied")
	ErrNotInRoom        = errors.New("not in room")
	ErrAlreadyJoined    = room.ErrMemberAlreadyJoined
	ErrRoomNotFound     = room.ErrRoomNotFound
	ErrMemberNotFound   = room.ErrMemberNotFound
)

// errNotHost aborts a mutation that only the host may perform and that is
// dropped silently otherwise.
var errNotHost = errors.New("sender is not host")

const defaultChatMaxLength = 1000

type iRoomRepo interface {
	AddMember(ctx context.Context, roomID string, member room.Member) (room.Room, error)
	Apply(ctx context.Context, roomID string, m room.Mutation) (room.ApplyResult, error)
	Snapshot(ctx context.Context, roomID string) (room.Room, error)
	RemoveMember(ctx context.Context, roomID, memberID string) (room.RemoveMemberResult, error)
	AppendChat(ctx context.Context, roomID string, msg room.ChatEntry) error
	ChatHistory(ctx context.Context, roomID string) ([]room.ChatEntry, error)
}

type iConnRepo interface {
	Add(roomID, memberID string, conn *wsconn.Conn) error
	Remove(roomID, memberID string, conn *wsconn.Conn) error
	ListRoom(roomID string, exclude ...string) []*wsconn.Conn
}

type iVideoData interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

type Config struct {
	// HostOnlyControl drops control messages from anyone but the host.
	HostOnlyControl bool
	ChatMaxLength   int
	// VideoData, when set, is used to fill in YouTube titles on load.
	VideoData iVideoData
	Clock     clock.Clock
}

type service struct {
	roomRepo        iRoomRepo
	connRepo        iConnRepo
	videoData       iVideoData
	clock           clock.Clock
	hostOnlyControl bool
	chatMaxLength   int
	logger          *slog.Logger
}

func NewService(roomRepo iRoomRepo, connRepo iConnRepo, cfg Config, logger *slog.Logger) *service {
	s := service{
		roomRepo:        roomRepo,
		connRepo:        connRepo,
		videoData:       cfg.VideoData,
		clock:           cfg.Clock,
		hostOnlyControl: cfg.HostOnlyControl,
		chatMaxLength:   cfg.ChatMaxLength,
		logger:          logger,
	}

	if s.clock == nil {
		s.clock = clock.New()
	}
	if s.chatMaxLength <= 0 {
		s.chatMaxLength = defaultChatMaxLength
	}

	return &s
}
