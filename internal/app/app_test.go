package app

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/benbjohnson/clock"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/identity"
	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/player/virtual"
	"github.com/sharetube/watchparty/internal/protocol"
	"github.com/sharetube/watchparty/internal/reconciler"
)

const (
	testSecret = "test-secret"
	waitFor    = 3 * time.Second
	tick       = 10 * time.Millisecond
)

func validConfig() *AppConfig {
	return &AppConfig{
		Secret:        testSecret,
		Port:          8080,
		Store:         StoreMemory,
		RoomTTL:       time.Hour,
		ChatMaxLength: 1000,
		ClientOrigin:  "*",
		SendBuffer:    64,
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*AppConfig)
		wantErr bool
	}{
		{"valid", func(*AppConfig) {}, false},
		{"port out of range", func(c *AppConfig) { c.Port = 70000 }, true},
		{"unknown store", func(c *AppConfig) { c.Store = "postgres" }, true},
		{"zero chat length", func(c *AppConfig) { c.ChatMaxLength = 0 }, true},
		{"zero send buffer", func(c *AppConfig) { c.SendBuffer = 0 }, true},
		{"redis without ttl", func(c *AppConfig) {
			c.Store = StoreRedis
			c.RoomTTL = 0
		}, true},
		{"memory without ttl", func(c *AppConfig) { c.RoomTTL = 0 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.modify(cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func newServer(t *testing.T, cfg *AppConfig) *httptest.Server {
	t.Helper()
	handler, cleanup, err := NewHandler(context.Background(), cfg, slog.Default())
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	t.Cleanup(func() {
		srv.Close()
		cleanup()
	})

	return srv
}

func TestNewHandlerRedisUnavailable(t *testing.T) {
	cfg := validConfig()
	cfg.Store = StoreRedis
	cfg.RedisHost = "127.0.0.1"
	cfg.RedisPort = 1

	_, _, err := NewHandler(context.Background(), cfg, slog.Default())
	assert.Error(t, err)
}

func TestHealthzReportsCounts(t *testing.T) {
	srv := newServer(t, validConfig())
	join(t, srv, "h", reconciler.PolicyAnyMember)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	var body struct {
		Status      string `json:"status"`
		Connections int    `json:"connections"`
		Rooms       int    `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Connections)
	assert.Equal(t, 1, body.Rooms)
}

type member struct {
	*client.Client
	sw     *player.Switcher
	mp4    *virtual.Element
	cancel context.CancelFunc
}

func join(t *testing.T, srv *httptest.Server, id string, policy reconciler.Policy) *member {
	t.Helper()
	token, err := identity.Sign(testSecret, id, strings.ToUpper(id), time.Minute)
	require.NoError(t, err)

	clk := clock.New()
	sw, mp4, yt := virtual.NewPlayer(clk)
	c := client.New(sw, client.Config{
		URL:               srv.URL,
		RoomID:            "room",
		Token:             token,
		HeartbeatInterval: 50 * time.Millisecond,
		Reconciler:        reconciler.Config{Policy: policy},
		Clock:             clk,
	}, slog.Default().With("member", id))
	mp4.SetOnEvent(c.Notify)
	yt.SetOnEvent(c.Notify)

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-c.Done()
	})

	select {
	case <-c.Joined():
	case <-c.Done():
		t.Fatalf("%s stopped before joining", id)
	case <-time.After(waitFor):
		t.Fatalf("%s did not join", id)
	}

	return &member{Client: c, sw: sw, mp4: mp4, cancel: cancel}
}

func drift(a, b *member) float64 {
	return math.Abs(a.sw.Position() - b.sw.Position())
}

func TestScenarioFirstMemberHosts(t *testing.T) {
	srv := newServer(t, validConfig())

	token, err := identity.Sign(testSecret, "h", "H", time.Minute)
	require.NoError(t, err)
	ws, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws?token="+token, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.WriteJSON(protocol.NewOutput(protocol.TypeJoin, protocol.JoinInput{RoomID: "room"})))

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(waitFor)))
	var env protocol.Envelope
	require.NoError(t, ws.ReadJSON(&env))
	require.Equal(t, protocol.TypeSyncState, env.Type)

	state, err := protocol.Decode[protocol.SyncState](env)
	require.NoError(t, err)
	assert.Equal(t, "h", state.HostID)
	assert.Equal(t, protocol.MediaKindMP4, state.MediaKind)
	assert.Nil(t, state.Source)
	assert.False(t, state.Playing)
	assert.Zero(t, state.Position)
}

func TestScenarioLateJoinerSeesLoadedSource(t *testing.T) {
	srv := newServer(t, validConfig())
	h := join(t, srv, "h", reconciler.PolicyAnyMember)
	require.NoError(t, h.Load(context.Background(), "a.mp4"))

	// the load is on the wire before the viewer connects
	time.Sleep(100 * time.Millisecond)
	v := join(t, srv, "v", reconciler.PolicyAnyMember)

	assert.Equal(t, "a.mp4", v.mp4.Source())
	assert.Equal(t, protocol.MediaKindMP4, v.sw.Kind())
	assert.Equal(t, int64(1), v.Applied())
}

func playingRoom(t *testing.T) (*member, *member) {
	t.Helper()
	srv := newServer(t, validConfig())
	h := join(t, srv, "h", reconciler.PolicyAnyMember)
	// the viewer never emits controls so its manual seeks stay local
	v := join(t, srv, "v", reconciler.PolicyHostOnly)
	startPlaying(t, h, v)

	return h, v
}

func startPlaying(t *testing.T, h, v *member) {
	t.Helper()
	require.NoError(t, h.Load(context.Background(), "a.mp4"))
	require.Eventually(t, func() bool {
		return v.mp4.Source() == "a.mp4"
	}, waitFor, tick)

	require.NoError(t, h.mp4.Play())
	require.Eventually(t, func() bool {
		return v.sw.IsPlaying() && v.Applied() == 2
	}, waitFor, tick)
}

func TestScenarioHeartbeatCorrectsDrift(t *testing.T) {
	h, v := playingRoom(t)

	// let the guard window of the remote play lapse
	time.Sleep(2 * reconciler.DefaultGuardWindow)
	v.mp4.SetCurrentTime(h.sw.Position() - 0.7)
	require.Greater(t, drift(h, v), reconciler.DefaultDriftThreshold)

	assert.Eventually(t, func() bool {
		return drift(h, v) < 0.1
	}, waitFor, tick)
	assert.Equal(t, int64(2), h.Applied())
}

func TestScenarioSmallDriftLeftAlone(t *testing.T) {
	h, v := playingRoom(t)

	time.Sleep(2 * reconciler.DefaultGuardWindow)
	v.mp4.SetCurrentTime(h.sw.Position() - 0.2)

	// several heartbeats pass without a correcting seek
	time.Sleep(300 * time.Millisecond)
	d := drift(h, v)
	assert.Greater(t, d, 0.1)
	assert.LessOrEqual(t, d, reconciler.DefaultDriftThreshold)
}

func TestScenarioHostOnlyControlRevertsViewer(t *testing.T) {
	cfg := validConfig()
	cfg.HostOnlyControl = true
	srv := newServer(t, cfg)
	h := join(t, srv, "h", reconciler.PolicyAnyMember)
	// the viewer believes anyone may control and emits its pause
	v := join(t, srv, "v", reconciler.PolicyAnyMember)
	startPlaying(t, h, v)

	time.Sleep(2 * reconciler.DefaultGuardWindow)
	v.mp4.Pause()

	assert.Eventually(t, func() bool {
		return v.sw.IsPlaying() && v.Applied() == 2
	}, waitFor, tick)

	// heartbeats keep the viewer on the room revision
	time.Sleep(300 * time.Millisecond)
	assert.True(t, v.sw.IsPlaying())
	assert.Equal(t, int64(2), v.Applied())
	assert.True(t, h.sw.IsPlaying())
	assert.Equal(t, int64(2), h.Applied())
}

func TestScenarioSwitchKindWhilePlaying(t *testing.T) {
	h, v := playingRoom(t)

	time.Sleep(2 * reconciler.DefaultGuardWindow)
	require.NoError(t, h.Load(context.Background(), "https://youtu.be/dQw4w9WgXcQ"))

	assert.Eventually(t, func() bool {
		return v.sw.Kind() == protocol.MediaKindYouTube && v.Applied() == 3
	}, waitFor, tick)

	// the pause of the file player is not broadcast as a control
	time.Sleep(300 * time.Millisecond)
	assert.Equal(t, int64(3), v.Applied())
	assert.Equal(t, int64(3), h.Applied())
	assert.False(t, v.sw.IsPlaying())
}

func TestScenarioHostDisconnectPromotes(t *testing.T) {
	srv := newServer(t, validConfig())
	h := join(t, srv, "h", reconciler.PolicyAnyMember)
	v := join(t, srv, "v", reconciler.PolicyAnyMember)
	w := join(t, srv, "w", reconciler.PolicyAnyMember)

	require.True(t, h.HeartbeatRunning())
	require.NoError(t, h.Load(context.Background(), "a.mp4"))
	require.Eventually(t, func() bool {
		return w.mp4.Source() == "a.mp4"
	}, waitFor, tick)

	h.cancel()
	<-h.Done()

	assert.Eventually(t, func() bool {
		return v.IsHost() && v.HeartbeatRunning()
	}, waitFor, tick)
	assert.Eventually(t, func() bool {
		return w.HostID() == "v"
	}, waitFor, tick)
	assert.False(t, w.HeartbeatRunning())

	// the new host drives the viewer
	require.NoError(t, v.mp4.Play())
	assert.Eventually(t, func() bool {
		return w.sw.IsPlaying()
	}, waitFor, tick)
}

func TestRedisStore(t *testing.T) {
	s := miniredis.RunT(t)
	port, err := strconv.Atoi(s.Port())
	require.NoError(t, err)

	cfg := validConfig()
	cfg.Store = StoreRedis
	cfg.RedisHost = s.Host()
	cfg.RedisPort = port
	srv := newServer(t, cfg)

	h := join(t, srv, "h", reconciler.PolicyAnyMember)
	require.NoError(t, h.Load(context.Background(), "https://youtu.be/dQw4w9WgXcQ"))
	require.NoError(t, h.Chat(context.Background(), "hi"))

	assert.Eventually(t, func() bool {
		return s.Exists("room:room") && s.Exists("room:room:chat")
	}, waitFor, tick)

	v := join(t, srv, "v", reconciler.PolicyAnyMember)
	assert.Equal(t, protocol.MediaKindYouTube, v.sw.Kind())
	assert.Eventually(t, func() bool {
		return len(v.ChatLog()) == 1
	}, waitFor, tick)

	h.cancel()
	<-h.Done()
	v.cancel()
	<-v.Done()
	assert.Eventually(t, func() bool {
		return !s.Exists("room:room")
	}, waitFor, tick)
}
