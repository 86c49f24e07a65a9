package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/client"
	"github.com/sharetube/watchparty/internal/heartbeat"
	"github.com/sharetube/watchparty/internal/player"
	"github.com/sharetube/watchparty/internal/player/virtual"
	"github.com/sharetube/watchparty/internal/reconciler"
	"github.com/sharetube/watchparty/pkg/logger"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	serverURL = configVar[string]{
		envKey:       "CLIENT_URL",
		flagKey:      "url",
		defaultValue: "http://localhost:8080",
		usage:        "Server base URL",
	}
	roomID = configVar[string]{
		envKey:       "CLIENT_ROOM",
		flagKey:      "room",
		defaultValue: "lobby",
		usage:        "Room to join",
	}
	token = configVar[string]{
		envKey:       "CLIENT_TOKEN",
		flagKey:      "token",
		defaultValue: "",
		usage:        "Identity token; empty joins as a guest",
	}
	driftThreshold = configVar[float64]{
		envKey:       "CLIENT_DRIFT_THRESHOLD",
		flagKey:      "drift-threshold",
		defaultValue: reconciler.DefaultDriftThreshold,
		usage:        "Seconds of drift tolerated before seeking to the host",
	}
	guardWindow = configVar[time.Duration]{
		envKey:       "CLIENT_GUARD_WINDOW",
		flagKey:      "guard-window",
		defaultValue: reconciler.DefaultGuardWindow,
		usage:        "How long player events after a remote change count as echoes",
	}
	heartbeatInterval = configVar[time.Duration]{
		envKey:       "CLIENT_HEARTBEAT_INTERVAL",
		flagKey:      "heartbeat-interval",
		defaultValue: heartbeat.DefaultInterval,
		usage:        "Heartbeat period while host",
	}
	policy = configVar[string]{
		envKey:       "CLIENT_POLICY",
		flagKey:      "policy",
		defaultValue: string(reconciler.PolicyAnyMember),
		usage:        "Who turns local player events into controls: any or host",
	}
	rate = configVar[float64]{
		envKey:       "CLIENT_RATE",
		flagKey:      "rate",
		defaultValue: 1,
		usage:        "Playback rate of the simulated player",
	}
	logLevel = configVar[string]{
		envKey:       "CLIENT_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadConfig() (client.Config, float64, string, error) {
	pflag.String(serverURL.flagKey, serverURL.defaultValue, serverURL.usage)
	pflag.String(roomID.flagKey, roomID.defaultValue, roomID.usage)
	pflag.String(token.flagKey, token.defaultValue, token.usage)
	pflag.Float64(driftThreshold.flagKey, driftThreshold.defaultValue, driftThreshold.usage)
	pflag.Duration(guardWindow.flagKey, guardWindow.defaultValue, guardWindow.usage)
	pflag.Duration(heartbeatInterval.flagKey, heartbeatInterval.defaultValue, heartbeatInterval.usage)
	pflag.String(policy.flagKey, policy.defaultValue, policy.usage)
	pflag.Float64(rate.flagKey, rate.defaultValue, rate.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(serverURL)
	bind(roomID)
	bind(token)
	bind(driftThreshold)
	bind(guardWindow)
	bind(heartbeatInterval)
	bind(policy)
	bind(rate)
	bind(logLevel)

	p, err := reconciler.ParsePolicy(viper.GetString(policy.flagKey))
	if err != nil {
		return client.Config{}, 0, "", err
	}

	cfg := client.Config{
		URL:               viper.GetString(serverURL.flagKey),
		RoomID:            viper.GetString(roomID.flagKey),
		Token:             viper.GetString(token.flagKey),
		HeartbeatInterval: viper.GetDuration(heartbeatInterval.flagKey),
		Reconciler: reconciler.Config{
			DriftThreshold: viper.GetFloat64(driftThreshold.flagKey),
			GuardWindow:    viper.GetDuration(guardWindow.flagKey),
			Policy:         p,
		},
	}

	return cfg, viper.GetFloat64(rate.flagKey), viper.GetString(logLevel.flagKey), nil
}

func main() {
	cfg, playbackRate, level, err := loadConfig()
	if err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	l, err := logger.New(logger.Config{Level: level, Format: logger.FormatText, Output: os.Stderr})
	if err != nil {
		log.Fatalf("failed to create logger: %s", err)
	}
	slog.SetDefault(l)

	clk := clock.New()
	sw, mp4, yt := virtual.NewPlayer(clk, virtual.WithRate(playbackRate))
	cfg.Clock = clk

	c := client.New(sw, cfg, l)
	mp4.SetOnEvent(c.Notify)
	yt.SetOnEvent(c.Notify)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go commandLoop(ctx, c, sw, l)

	if err := c.Run(ctx); err != nil {
		log.Fatal(err)
	}
}

// commandLoop drives the simulated player from stdin, one command per line.
func commandLoop(ctx context.Context, c *client.Client, p player.Player, l *slog.Logger) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if err := runCommand(ctx, c, p, scanner.Text()); err != nil {
			l.ErrorContext(ctx, "command failed", "error", err)
		}
	}
}

var errUsage = errors.New("usage: play | pause | seek <seconds> | load <url> | chat <text> | promote <member-id> | resync | status")

func runCommand(ctx context.Context, c *client.Client, p player.Player, line string) error {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case "":
		return nil
	case "play":
		return p.Play()
	case "pause":
		return p.Pause()
	case "seek":
		t, err := strconv.ParseFloat(arg, 64)
		if err != nil {
			return errUsage
		}
		return p.SeekTo(t)
	case "load":
		return c.Load(ctx, arg)
	case "chat":
		return c.Chat(ctx, arg)
	case "promote":
		return c.Promote(ctx, arg)
	case "resync":
		return c.Resync(ctx)
	case "status":
		fmt.Printf("self=%s host=%s revision=%d position=%.2f playing=%t\n",
			c.SelfID(), c.HostID(), c.Applied(), p.Position(), p.IsPlaying())
		return nil
	default:
		return errUsage
	}
}
