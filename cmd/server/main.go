package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/sharetube/watchparty/internal/app"
)

type configVar[T any] struct {
	envKey       string
	flagKey      string
	defaultValue T
	usage        string
}

var (
	secret = configVar[string]{
		envKey:       "SERVER_SECRET",
		flagKey:      "secret",
		defaultValue: "",
		usage:        "JWT secret; empty admits everyone as a guest",
	}
	port = configVar[int]{
		envKey:       "SERVER_PORT",
		flagKey:      "port",
		defaultValue: 8080,
		usage:        "Server port",
	}
	host = configVar[string]{
		envKey:       "SERVER_HOST",
		flagKey:      "host",
		defaultValue: "0.0.0.0",
		usage:        "Server host",
	}
	logLevel = configVar[string]{
		envKey:       "SERVER_LOG_LEVEL",
		flagKey:      "log-level",
		defaultValue: "INFO",
		usage:        "Logging level",
	}
	logFormat = configVar[string]{
		envKey:       "SERVER_LOG_FORMAT",
		flagKey:      "log-format",
		defaultValue: "json",
		usage:        "Log format: json, text or zap",
	}
	store = configVar[string]{
		envKey:       "SERVER_STORE",
		flagKey:      "store",
		defaultValue: app.StoreMemory,
		usage:        "Room store: memory or redis",
	}
	roomTTL = configVar[time.Duration]{
		envKey:       "SERVER_ROOM_TTL",
		flagKey:      "room-ttl",
		defaultValue: 24 * time.Hour,
		usage:        "Idle room expiry in the redis store",
	}
	hostOnlyControl = configVar[bool]{
		envKey:       "SERVER_HOST_ONLY_CONTROL",
		flagKey:      "host-only-control",
		defaultValue: false,
		usage:        "Drop controls from members other than the host",
	}
	chatMaxLength = configVar[int]{
		envKey:       "SERVER_CHAT_MAX_LENGTH",
		flagKey:      "chat-max-length",
		defaultValue: 1000,
		usage:        "Maximum chat message length in characters",
	}
	clientOrigin = configVar[string]{
		envKey:       "SERVER_CLIENT_ORIGIN",
		flagKey:      "client-origin",
		defaultValue: "*",
		usage:        "Allowed browser origin",
	}
	fetchVideoMeta = configVar[bool]{
		envKey:       "SERVER_FETCH_VIDEO_META",
		flagKey:      "fetch-video-meta",
		defaultValue: true,
		usage:        "Fetch YouTube titles on load",
	}
	sendBuffer = configVar[int]{
		envKey:       "SERVER_SEND_BUFFER",
		flagKey:      "send-buffer",
		defaultValue: 32,
		usage:        "Outbound messages queued per connection",
	}
	redisPort = configVar[int]{
		envKey:       "REDIS_PORT",
		flagKey:      "redis-port",
		defaultValue: 6379,
		usage:        "Redis port",
	}
	redisHost = configVar[string]{
		envKey:       "REDIS_HOST",
		flagKey:      "redis-host",
		defaultValue: "localhost",
		usage:        "Redis host",
	}
	redisPassword = configVar[string]{
		envKey:       "REDIS_PASSWORD",
		flagKey:      "redis-password",
		defaultValue: "",
		usage:        "Redis password",
	}
)

func bind[T any](v configVar[T]) {
	viper.BindEnv(v.flagKey, v.envKey)
	viper.SetDefault(v.flagKey, v.defaultValue)
}

func loadAppConfig() *app.AppConfig {
	pflag.String(secret.flagKey, secret.defaultValue, secret.usage)
	pflag.Int(port.flagKey, port.defaultValue, port.usage)
	pflag.String(host.flagKey, host.defaultValue, host.usage)
	pflag.String(logLevel.flagKey, logLevel.defaultValue, logLevel.usage)
	pflag.String(logFormat.flagKey, logFormat.defaultValue, logFormat.usage)
	pflag.String(store.flagKey, store.defaultValue, store.usage)
	pflag.Duration(roomTTL.flagKey, roomTTL.defaultValue, roomTTL.usage)
	pflag.Bool(hostOnlyControl.flagKey, hostOnlyControl.defaultValue, hostOnlyControl.usage)
	pflag.Int(chatMaxLength.flagKey, chatMaxLength.defaultValue, chatMaxLength.usage)
	pflag.String(clientOrigin.flagKey, clientOrigin.defaultValue, clientOrigin.usage)
	pflag.Bool(fetchVideoMeta.flagKey, fetchVideoMeta.defaultValue, fetchVideoMeta.usage)
	pflag.Int(sendBuffer.flagKey, sendBuffer.defaultValue, sendBuffer.usage)
	pflag.Int(redisPort.flagKey, redisPort.defaultValue, redisPort.usage)
	pflag.String(redisHost.flagKey, redisHost.defaultValue, redisHost.usage)
	pflag.String(redisPassword.flagKey, redisPassword.defaultValue, redisPassword.usage)
	pflag.Parse()

	viper.BindPFlags(pflag.CommandLine)

	bind(secret)
	bind(port)
	bind(host)
	bind(logLevel)
	bind(logFormat)
	bind(store)
	bind(roomTTL)
	bind(hostOnlyControl)
	bind(chatMaxLength)
	bind(clientOrigin)
	bind(fetchVideoMeta)
	bind(sendBuffer)
	bind(redisPort)
	bind(redisHost)
	bind(redisPassword)

	config := &app.AppConfig{
		Secret:          viper.GetString(secret.flagKey),
		Host:            viper.GetString(host.flagKey),
		Port:            viper.GetInt(port.flagKey),
		LogLevel:        viper.GetString(logLevel.flagKey),
		LogFormat:       viper.GetString(logFormat.flagKey),
		Store:           viper.GetString(store.flagKey),
		RoomTTL:         viper.GetDuration(roomTTL.flagKey),
		HostOnlyControl: viper.GetBool(hostOnlyControl.flagKey),
		ChatMaxLength:   viper.GetInt(chatMaxLength.flagKey),
		ClientOrigin:    viper.GetString(clientOrigin.flagKey),
		FetchVideoMeta:  viper.GetBool(fetchVideoMeta.flagKey),
		SendBuffer:      viper.GetInt(sendBuffer.flagKey),
		RedisPort:       viper.GetInt(redisPort.flagKey),
		RedisHost:       viper.GetString(redisHost.flagKey),
		RedisPassword:   viper.GetString(redisPassword.flagKey),
	}

	return config
}

func main() {
	ctx := context.Background()

	appConfig := loadAppConfig()
	if err := appConfig.Validate(); err != nil {
		log.Fatalf("invalid config: %s", err)
	}

	jsonConfig, _ := json.MarshalIndent(appConfig, "", "  ")
	fmt.Printf("starting app with config: %s\n", jsonConfig)

	log.Fatal(app.Run(ctx, appConfig))
}
