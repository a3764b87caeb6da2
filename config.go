package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	ListenAddr string `env:"ROOMBOT_ADDR"`
	DBPath     string `env:"ROOMBOT_DB" envDefault:"roombot.db"`

	RoomURL string `env:"ROOMBOT_ROOM_URL" envDefault:"wss://highrise.game/web/botapi"`
	RoomID  string `env:"ROOMBOT_ROOM_ID"`
	Token   string `env:"ROOMBOT_API_TOKEN"`

	// RoomConfig and Emotes are YAML files; empty means the embedded
	// defaults. Only the emote catalog is watched for changes.
	RoomConfig string `env:"ROOMBOT_ROOM_CONFIG"`
	Emotes     string `env:"ROOMBOT_EMOTES"`

	LogLevel        string        `env:"ROOMBOT_LOG_LEVEL" envDefault:"info"`
	Grace           time.Duration `env:"ROOMBOT_GRACE" envDefault:"2s"`
	CallTimeout     time.Duration `env:"ROOMBOT_CALL_TIMEOUT" envDefault:"3s"`
	ShutdownTimeout time.Duration `env:"ROOMBOT_SHUTDOWN_TIMEOUT" envDefault:"5s"`
}

// LoadConfig reads ROOMBOT_* variables, then lets flags in args override
// them.
func LoadConfig(args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = defaultAddr()
	}

	fs := flag.NewFlagSet("roombot", flag.ContinueOnError)
	fs.StringVar(&cfg.ListenAddr, "addr", cfg.ListenAddr, "Listen address for /health and /metrics")
	fs.StringVar(&cfg.DBPath, "db", cfg.DBPath, "SQLite audit database path")
	fs.StringVar(&cfg.RoomURL, "room-url", cfg.RoomURL, "Room server websocket URL")
	fs.StringVar(&cfg.RoomID, "room", cfg.RoomID, "Room id")
	fs.StringVar(&cfg.RoomConfig, "room-config", cfg.RoomConfig, "Room behavior YAML")
	fs.StringVar(&cfg.Emotes, "emotes", cfg.Emotes, "Emote catalog YAML, reloaded on change")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.DurationVar(&cfg.Grace, "grace", cfg.Grace, "How long a superseded loop may take to exit")
	fs.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "Timeout for each platform call made by a loop")
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "How long to wait for loops on shutdown")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if cfg.RoomID == "" || cfg.Token == "" {
		return Config{}, fmt.Errorf("room id and api token are required (ROOMBOT_ROOM_ID, ROOMBOT_API_TOKEN)")
	}
	return cfg, nil
}

func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}

func defaultAddr() string {
	// Railway, Render, etc. set PORT
	if port := os.Getenv("PORT"); port != "" {
		return ":" + port
	}
	return ":8090"
}
