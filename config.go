package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds process settings. Defaults come from the environment and are
// overridden by command-line flags.
type Config struct {
	DBPath        string
	Addr          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SessionTTL    time.Duration
	LogLevel      string
	LogFormat     string
}

func loadConfig() Config {
	return Config{
		DBPath:        envString("LIBRARY_DB", "library.db"),
		Addr:          envString("LIBRARY_ADDR", ":8080"),
		RedisAddr:     envString("LIBRARY_REDIS_ADDR", ""),
		RedisPassword: envString("LIBRARY_REDIS_PASSWORD", ""),
		RedisDB:       envInt("LIBRARY_REDIS_DB", 0),
		SessionTTL:    envDuration("LIBRARY_SESSION_TTL", 12*time.Hour),
		LogLevel:      envString("LIBRARY_LOG_LEVEL", "info"),
		LogFormat:     envString("LIBRARY_LOG_FORMAT", "text"),
	}
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// newLogger builds the process logger from the configured level and format.
func newLogger(cfg Config, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q", cfg.LogLevel)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.LogFormat) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("invalid log format %q", cfg.LogFormat)
}
