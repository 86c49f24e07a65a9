package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sharetube/watchparty/internal/controller"
	"github.com/sharetube/watchparty/internal/identity"
	connInmemory "github.com/sharetube/watchparty/internal/repository/connection/inmemory"
	roomRepository "github.com/sharetube/watchparty/internal/repository/room"
	roomInmemory "github.com/sharetube/watchparty/internal/repository/room/inmemory"
	roomRedis "github.com/sharetube/watchparty/internal/repository/room/redis"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/logger"
	"github.com/sharetube/watchparty/pkg/redisclient"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

type AppConfig struct {
	Secret          string        `json:"-"`
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	LogLevel        string        `json:"log_level"`
	LogFormat       string        `json:"log_format"`
	Store           string        `json:"store"`
	RedisHost       string        `json:"redis_host"`
	RedisPort       int           `json:"redis_port"`
	RedisPassword   string        `json:"-"`
	RoomTTL         time.Duration `json:"room_ttl"`
	HostOnlyControl bool          `json:"host_only_control"`
	ChatMaxLength   int           `json:"chat_max_length"`
	ClientOrigin    string        `json:"client_origin"`
	FetchVideoMeta  bool          `json:"fetch_video_meta"`
	SendBuffer      int           `json:"send_buffer"`
}

func (cfg *AppConfig) Validate() error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 0 and 65535")
	}
	if cfg.Store != StoreMemory && cfg.Store != StoreRedis {
		return fmt.Errorf("store must be one of [%s %s]", StoreMemory, StoreRedis)
	}
	if cfg.ChatMaxLength < 1 {
		return fmt.Errorf("chat max length must be greater than 0")
	}
	if cfg.SendBuffer < 1 {
		return fmt.Errorf("send buffer must be greater than 0")
	}
	if cfg.Store == StoreRedis && cfg.RoomTTL <= 0 {
		return fmt.Errorf("room ttl must be positive with the redis store")
	}

	return nil
}

// NewHandler wires stores, service and controller. The returned cleanup
// releases the redis connection, if any.
func NewHandler(ctx context.Context, cfg *AppConfig, logger *slog.Logger) (http.Handler, func() error, error) {
	var (
		roomRepo  roomRepository.Repo
		roomCount func() int
		cleanup   = func() error { return nil }
	)
	switch cfg.Store {
	case StoreRedis:
		rc, err := redisclient.NewRedisClient(ctx, &redisclient.Config{
			Host:     cfg.RedisHost,
			Port:     cfg.RedisPort,
			Password: cfg.RedisPassword,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create redis client: %w", err)
		}

		roomRepo = roomRedis.NewRepo(rc, cfg.RoomTTL)
		cleanup = rc.Close
	default:
		mem := roomInmemory.NewRepo(logger)
		roomRepo = mem
		roomCount = mem.RoomCount
	}

	roomCfg := room.Config{
		HostOnlyControl: cfg.HostOnlyControl,
		ChatMaxLength:   cfg.ChatMaxLength,
	}
	if cfg.FetchVideoMeta {
		roomCfg.VideoData = ytvideodata.NewClient(nil)
	}

	connectionRepo := connInmemory.NewRepo(logger)
	roomService := room.NewService(roomRepo, connectionRepo, roomCfg, logger)
	c := controller.NewController(roomService, identity.NewVerifier(cfg.Secret), controller.Config{
		ClientOrigin: cfg.ClientOrigin,
		SendBuffer:   cfg.SendBuffer,
		Stats: func() map[string]int {
			stats := map[string]int{"connections": connectionRepo.Count()}
			if roomCount != nil {
				stats["rooms"] = roomCount()
			}
			return stats
		},
	}, logger)

	return c.GetMux(), cleanup, nil
}

func Run(ctx context.Context, cfg *AppConfig) error {
	l, err := logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.Format(cfg.LogFormat),
		AddSource: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	slog.SetDefault(l)

	handler, cleanup, err := NewHandler(ctx, cfg, l)
	if err != nil {
		return err
	}
	defer cleanup()

	server := &http.Server{Addr: fmt.Sprintf("%s:%d", cfg.Host, cfg.Port), Handler: handler}

	// graceful shutdown
	serverCtx, serverStopCtx := context.WithCancel(ctx)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		<-sig

		shutdownCtx, c := context.WithTimeout(serverCtx, 30*time.Second)
		defer c()

		go func() {
			<-shutdownCtx.Done()
			if shutdownCtx.Err() == context.DeadlineExceeded {
				log.Fatal("graceful shutdown timed out.. forcing exit.")
			}
		}()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Fatal(err)
		}
		serverStopCtx()
	}()

	l.InfoContext(serverCtx, "starting server", "address", server.Addr, "store", cfg.Store)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	<-serverCtx.Done()

	return nil
}
