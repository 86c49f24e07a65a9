package room

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/repository/room"
	connInmemory "github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	roomInmemory "github.com/sharetube/watchparty/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/watchparty/internal/repository/room/redis"
	"github.com/sharetube/watchparty/pkg/wsconn"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

func ptr[T any](v T) *T {
	return &v
}

func newTestService(t *testing.T, cfg Config) *service {
	t.Helper()
	logger := slog.Default()
	if cfg.Clock == nil {
		cfg.Clock = clock.NewMock()
	}

	return NewService(roomInmemory.NewRepo(logger), connInmemory.NewRepo(logger), cfg, logger)
}

func join(t *testing.T, s *service, roomID, memberID string) (JoinResponse, *wsconn.Conn) {
	t.Helper()
	conn := wsconn.New(nil)
	resp, err := s.Join(context.Background(), &JoinParams{
		RoomID: roomID,
		ID:     memberID,
		Name:   strings.ToUpper(memberID),
		Conn:   conn,
	})
	require.NoError(t, err)

	return resp, conn
}

func TestJoinEmptyRoomBecomesHost(t *testing.T) {
	s := newTestService(t, Config{})

	resp, _ := join(t, s, "r", "h")
	assert.Equal(t, "h", resp.State.HostID)
	assert.Equal(t, "h", resp.State.SelfID)
	assert.Equal(t, protocol.MediaKindMP4, resp.State.MediaKind)
	assert.Nil(t, resp.State.Source)
	assert.False(t, resp.State.Playing)
	assert.Zero(t, resp.State.Position)
	assert.Empty(t, resp.Conns)
	assert.Empty(t, resp.ChatHistory)
}

func TestLateJoinerSeesLoadedSource(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	_, hostConn := join(t, s, "r", "h")

	ctrl, err := s.Control(ctx, &ControlParams{
		RoomID:    "r",
		SenderID:  "h",
		Action:    protocol.ActionLoad,
		Source:    ptr("a.mp4"),
		MediaKind: ptr(protocol.MediaKindMP4),
	})
	require.NoError(t, err)
	assert.True(t, ctrl.Accepted)
	assert.EqualValues(t, 1, ctrl.Event.Revision)
	assert.Empty(t, ctrl.Conns, "sender is not a recipient")

	resp, _ := join(t, s, "r", "v")
	require.NotNil(t, resp.State.Source)
	assert.Equal(t, "a.mp4", *resp.State.Source)
	assert.EqualValues(t, 1, resp.State.Revision)
	assert.Equal(t, "h", resp.State.HostID)
	assert.Equal(t, []*wsconn.Conn{hostConn}, resp.Conns)
	assert.Len(t, resp.Members, 2)
}

func TestDuplicateJoinRejected(t *testing.T) {
	s := newTestService(t, Config{})
	join(t, s, "r", "h")

	_, err := s.Join(context.Background(), &JoinParams{RoomID: "r", ID: "h", Conn: wsconn.New(nil)})
	assert.ErrorIs(t, err, ErrAlreadyJoined)
}

var errChatUnavailable = errors.New("chat unavailable")

type failingChatRepo struct {
	iRoomRepo
}

func (failingChatRepo) ChatHistory(ctx context.Context, roomID string) ([]room.ChatEntry, error) {
	return nil, errChatUnavailable
}

func TestJoinRollsBackWhenChatHistoryFails(t *testing.T) {
	logger := slog.Default()
	rooms := roomInmemory.NewRepo(logger)
	conns := connInmemory.NewRepo(logger)
	s := NewService(failingChatRepo{rooms}, conns, Config{Clock: clock.NewMock()}, logger)
	ctx := context.Background()

	_, err := s.Join(ctx, &JoinParams{RoomID: "r", ID: "h", Conn: wsconn.New(nil)})
	require.ErrorIs(t, err, errChatUnavailable)

	_, err = rooms.Snapshot(ctx, "r")
	assert.ErrorIs(t, err, ErrRoomNotFound)
	assert.Empty(t, conns.ListRoom("r"))

	// the same identity can join again once the store recovers
	s.roomRepo = rooms
	_, err = s.Join(ctx, &JoinParams{RoomID: "r", ID: "h", Conn: wsconn.New(nil)})
	assert.NoError(t, err)
}

func TestControlFanOutAndRevisions(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	join(t, s, "r", "h")
	_, viewerConn := join(t, s, "r", "v")

	play, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "h", Action: protocol.ActionPlay, Position: ptr(3.0)})
	require.NoError(t, err)
	assert.Equal(t, []*wsconn.Conn{viewerConn}, play.Conns)
	assert.True(t, play.Event.Playing)
	assert.Equal(t, 3.0, play.Event.Position)
	assert.Equal(t, "h", play.Event.By)

	seek, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "v", Action: protocol.ActionSeek, Position: ptr(20.0)})
	require.NoError(t, err)
	assert.Greater(t, seek.Event.Revision, play.Event.Revision)
	assert.True(t, seek.Event.Playing, "seek keeps playing flag")

	pause, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "h", Action: protocol.ActionPause, Position: ptr(21.0)})
	require.NoError(t, err)
	assert.False(t, pause.Event.Playing)
	assert.EqualValues(t, 3, pause.Event.Revision)
}

func TestControlStaleBaseRevision(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	join(t, s, "r", "h")

	first, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "h", Action: protocol.ActionPlay, Position: ptr(1.0), BaseRevision: ptr(int64(0))})
	require.NoError(t, err)
	require.True(t, first.Accepted)

	dup, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "h", Action: protocol.ActionPlay, Position: ptr(1.0), BaseRevision: ptr(int64(0))})
	require.NoError(t, err)
	assert.False(t, dup.Accepted)
	assert.EqualValues(t, 1, dup.State.Revision)
	assert.Empty(t, dup.Conns)
}

func TestControlMalformed(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	join(t, s, "r", "h")

	cases := []*ControlParams{
		{RoomID: "r", SenderID: "h", Action: protocol.ActionLoad, MediaKind: ptr(protocol.MediaKindMP4)},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionLoad, Source: ptr("a.mp4")},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionLoad, Source: ptr("nope"), MediaKind: ptr(protocol.MediaKindYouTube)},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionSeek},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionPlay, Position: ptr(math.NaN())},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionPause, Position: ptr(math.Inf(1))},
		{RoomID: "r", SenderID: "h", Action: protocol.ActionSeek, Position: ptr(-1.0)},
		{RoomID: "r", SenderID: "h", Action: "rewind", Position: ptr(1.0)},
	}
	for _, params := range cases {
		_, err := s.Control(ctx, params)
		assert.ErrorIs(t, err, ErrMalformedPayload)
	}

	state, err := s.GetState(ctx, "r", "h")
	require.NoError(t, err)
	assert.Zero(t, state.Revision)
}

func TestControlUnknownRoomAndNonMember(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()

	_, err := s.Control(ctx, &ControlParams{RoomID: "nope", SenderID: "h", Action: protocol.ActionSeek, Position: ptr(1.0)})
	assert.ErrorIs(t, err, ErrRoomNotFound)

	join(t, s, "r", "h")
	_, err = s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "x", Action: protocol.ActionSeek, Position: ptr(1.0)})
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestHostOnlyControl(t *testing.T) {
	s := newTestService(t, Config{HostOnlyControl: true})
	ctx := context.Background()
	join(t, s, "r", "h")
	join(t, s, "r", "v")

	resp, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "v", Action: protocol.ActionPlay, Position: ptr(1.0)})
	require.NoError(t, err)
	assert.True(t, resp.Dropped)
	assert.Empty(t, resp.Conns)
	assert.Equal(t, "v", resp.State.SelfID)
	assert.Equal(t, "h", resp.State.HostID)
	assert.False(t, resp.State.Playing)

	state, err := s.GetState(ctx, "r", "v")
	require.NoError(t, err)
	assert.False(t, state.Playing)
	assert.Zero(t, state.Revision)
}

type fakeVideoData struct {
	title string
}

func (f fakeVideoData) Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error) {
	return &ytvideodata.VideoData{Title: f.title + " " + videoID}, nil
}

func TestLoadYouTubeNormalizesSource(t *testing.T) {
	s := newTestService(t, Config{VideoData: fakeVideoData{title: "Video"}})
	ctx := context.Background()
	join(t, s, "r", "h")

	resp, err := s.Control(ctx, &ControlParams{
		RoomID:    "r",
		SenderID:  "h",
		Action:    protocol.ActionLoad,
		Source:    ptr("https://www.youtube.com/watch?v=dQw4w9WgXcQ&t=42"),
		MediaKind: ptr(protocol.MediaKindYouTube),
	})
	require.NoError(t, err)
	assert.Equal(t, "dQw4w9WgXcQ", resp.Event.Source)
	assert.Equal(t, protocol.MediaKindYouTube, resp.Event.MediaKind)
	assert.Equal(t, "Video dQw4w9WgXcQ", resp.Event.Title)
	assert.Zero(t, resp.Event.Position)
	assert.False(t, resp.Event.Playing)
}

func TestHeartbeatOnlyFromHost(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	_, hostConn := join(t, s, "r", "h")
	_, viewerConn := join(t, s, "r", "v")

	_, err := s.Control(ctx, &ControlParams{RoomID: "r", SenderID: "h", Action: protocol.ActionPlay, Position: ptr(0.0)})
	require.NoError(t, err)

	resp, err := s.HeartbeatSync(ctx, &HeartbeatParams{RoomID: "r", SenderID: "h", Position: 10, Playing: true})
	require.NoError(t, err)
	assert.True(t, resp.Accepted)
	assert.EqualValues(t, 1, resp.Event.Revision, "heartbeat does not bump revision")
	assert.Equal(t, 10.0, resp.Event.Position)
	assert.Equal(t, []*wsconn.Conn{viewerConn}, resp.Conns)

	resp, err = s.HeartbeatSync(ctx, &HeartbeatParams{RoomID: "r", SenderID: "v", Position: 99})
	require.NoError(t, err)
	assert.False(t, resp.Accepted)
	assert.NotContains(t, resp.Conns, hostConn)

	state, err := s.GetState(ctx, "r", "v")
	require.NoError(t, err)
	assert.Equal(t, 10.0, state.Position)
	assert.EqualValues(t, 1, state.Revision)

	_, err = s.HeartbeatSync(ctx, &HeartbeatParams{RoomID: "r", SenderID: "h", Position: math.NaN()})
	assert.ErrorIs(t, err, ErrMalformedPayload)
}

func TestLeavePromotesFirstRemaining(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	_, hostConn := join(t, s, "r", "h")
	_, v1Conn := join(t, s, "r", "v1")
	_, v2Conn := join(t, s, "r", "v2")

	_, err := s.Leave(ctx, &LeaveParams{RoomID: "r", MemberID: "h", Conn: v1Conn})
	assert.ErrorIs(t, err, ErrNotInRoom, "stale connection cannot remove member")

	resp, err := s.Leave(ctx, &LeaveParams{RoomID: "r", MemberID: "h", Conn: hostConn})
	require.NoError(t, err)
	assert.True(t, resp.HostChanged)
	assert.Equal(t, "v1", resp.HostID)
	assert.Equal(t, "h", resp.RemovedMember.ID)
	assert.ElementsMatch(t, []*wsconn.Conn{v1Conn, v2Conn}, resp.Conns)

	resp, err = s.Leave(ctx, &LeaveParams{RoomID: "r", MemberID: "v2", Conn: v2Conn})
	require.NoError(t, err)
	assert.False(t, resp.HostChanged)

	resp, err = s.Leave(ctx, &LeaveParams{RoomID: "r", MemberID: "v1", Conn: v1Conn})
	require.NoError(t, err)
	assert.True(t, resp.IsRoomDeleted)

	_, err = s.GetState(ctx, "r", "v1")
	assert.ErrorIs(t, err, ErrRoomNotFound)

	_, err = s.Leave(ctx, &LeaveParams{RoomID: "r", MemberID: "v1"})
	assert.ErrorIs(t, err, ErrNotInRoom)
}

func TestPromote(t *testing.T) {
	s := newTestService(t, Config{})
	ctx := context.Background()
	join(t, s, "r", "h")
	join(t, s, "r", "v")

	_, err := s.Promote(ctx, &PromoteParams{RoomID: "r", SenderID: "v", PromotedID: "v"})
	assert.ErrorIs(t, err, ErrPermissionDenied)

	_, err = s.Promote(ctx, &PromoteParams{RoomID: "r", SenderID: "h", PromotedID: "ghost"})
	assert.ErrorIs(t, err, ErrMemberNotFound)

	resp, err := s.Promote(ctx, &PromoteParams{RoomID: "r", SenderID: "h", PromotedID: "v"})
	require.NoError(t, err)
	assert.True(t, resp.Changed)
	assert.Equal(t, "v", resp.HostID)
	assert.Len(t, resp.Conns, 2)

	state, err := s.GetState(ctx, "r", "h")
	require.NoError(t, err)
	assert.Equal(t, "v", state.HostID)
	assert.Zero(t, state.Revision)
}

func TestChatEchoesToEveryone(t *testing.T) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s := newTestService(t, Config{Clock: mock, ChatMaxLength: 5})
	ctx := context.Background()
	join(t, s, "r", "h")
	join(t, s, "r", "v")

	resp, err := s.Chat(ctx, &ChatParams{RoomID: "r", SenderID: "v", Text: "  hi  "})
	require.NoError(t, err)
	assert.Equal(t, "hi", resp.Message.Text)
	assert.Equal(t, "V", resp.Message.Author.Name)
	assert.Equal(t, mock.Now().UTC(), resp.Message.Timestamp)
	assert.Len(t, resp.Conns, 2)

	_, err = s.Chat(ctx, &ChatParams{RoomID: "r", SenderID: "v", Text: "   "})
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = s.Chat(ctx, &ChatParams{RoomID: "r", SenderID: "v", Text: "toolong"})
	assert.ErrorIs(t, err, ErrMalformedPayload)
	_, err = s.Chat(ctx, &ChatParams{RoomID: "r", SenderID: "x", Text: "hey"})
	assert.ErrorIs(t, err, ErrNotInRoom)

	late, _ := join(t, s, "r", "late")
	require.Len(t, late.ChatHistory, 1)
	assert.Equal(t, "hi", late.ChatHistory[0].Text)

	data, err := json.Marshal(late.ChatHistory[0])
	require.NoError(t, err)
	assert.Contains(t, string(data), `"timestamp":"2024-05-01T12:00:00Z"`)
}

func TestServiceWithRedisStore(t *testing.T) {
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rc.Close() })

	logger := slog.Default()
	s := NewService(roomRedis.NewRepo(rc, time.Hour), connInmemory.NewRepo(logger), Config{}, logger)
	ctx := context.Background()

	join(t, s, "r", "h")
	_, err := s.Control(ctx, &ControlParams{
		RoomID:    "r",
		SenderID:  "h",
		Action:    protocol.ActionLoad,
		Source:    ptr("a.mp4"),
		MediaKind: ptr(protocol.MediaKindMP4),
	})
	require.NoError(t, err)

	resp, _ := join(t, s, "r", "v")
	require.NotNil(t, resp.State.Source)
	assert.Equal(t, "a.mp4", *resp.State.Source)
	assert.Equal(t, "h", resp.State.HostID)
}
