package config

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

// ServiceName is reported by the health endpoint and used as the default
// logging identity.
const ServiceName = "signal-broker"

const (
	envVarListenAddr           = "SIGNAL_BROKER_LISTEN_ADDR"
	envVarPort                 = "PORT"
	envVarRoomSecret           = "SIGNAL_BROKER_ROOM_SECRET"
	envVarVerbose              = "SIGNAL_BROKER_VERBOSE"
	envVarMode                 = "SIGNAL_BROKER_MODE"
	envVarLogFormat            = "SIGNAL_BROKER_LOG_FORMAT"
	envVarLogLevel             = "SIGNAL_BROKER_LOG_LEVEL"
	envVarShutdownTimeout      = "SIGNAL_BROKER_SHUTDOWN_TIMEOUT"
	envVarPingInterval         = "SIGNAL_BROKER_PING_INTERVAL"
	envVarMaxMessageBytes      = "SIGNAL_BROKER_MAX_MESSAGE_BYTES"
	envVarMaxMessagesPerSecond = "SIGNAL_BROKER_MAX_MESSAGES_PER_SECOND"
	envVarAllowedOrigins       = "SIGNAL_BROKER_ALLOWED_ORIGINS"
)

const (
	DefaultListenAddr      = ":4444"
	DefaultShutdown        = 10 * time.Second
	DefaultPingInterval    = 30 * time.Second
	DefaultMaxMessageBytes = int64(64 * 1024)
	// DefaultMaxMessagesPerSecond bounds inbound signaling frames per
	// connection. Handshake traffic is bursty but small; 100/sec leaves
	// generous headroom for a room full of peers renegotiating at once.
	DefaultMaxMessagesPerSecond      = 100
	DefaultMode                 Mode = ModeDev
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	LogFormat       LogFormat
	LogLevel        slog.Level
	Mode            Mode
	ShutdownTimeout time.Duration

	// RoomSecret, when non-empty, is required as the secret component of every
	// subscribed topic ("<room>/<secret>"). Empty disables the check.
	RoomSecret string

	// PingInterval is the keepalive probe period. A connection that has not
	// answered the previous probe by the next tick is force-closed.
	PingInterval time.Duration

	// MaxMessageBytes caps a single inbound signaling frame.
	MaxMessageBytes int64

	// MaxMessagesPerSecond is the per-connection inbound frame budget.
	// <= 0 disables rate limiting.
	MaxMessagesPerSecond int

	// AllowedOrigins restricts browser origins on the WebSocket upgrade.
	// Empty means allow all (peers connect from arbitrary deployments of the
	// editor); "*" is an explicit wildcard.
	AllowedOrigins []string
}

func Load() (Config, error) {
	return load(os.LookupEnv)
}

func load(lookup func(string) (string, bool)) (Config, error) {
	modeStr := envOrDefault(lookup, envVarMode, string(DefaultMode))
	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	verbose := false
	if raw, ok := lookup(envVarVerbose); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarVerbose, raw, err)
		}
		verbose = v
	}

	logFormat, err := parseLogFormat(envOrDefault(lookup, envVarLogFormat, defaultLogFormatForMode(mode)))
	if err != nil {
		return Config{}, err
	}

	logLevelDefault := defaultLogLevelForMode(mode)
	if verbose {
		logLevelDefault = "debug"
	}
	logLevel, err := parseLogLevel(envOrDefault(lookup, envVarLogLevel, logLevelDefault))
	if err != nil {
		return Config{}, err
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, "")
	if listenAddr == "" {
		// PORT is the conventional PaaS knob; LISTEN_ADDR wins when both are set.
		if port, ok := lookup(envVarPort); ok && strings.TrimSpace(port) != "" {
			p := strings.TrimSpace(port)
			if _, err := strconv.ParseUint(p, 10, 16); err != nil {
				return Config{}, fmt.Errorf("invalid %s %q: %w", envVarPort, port, err)
			}
			listenAddr = ":" + p
		} else {
			listenAddr = DefaultListenAddr
		}
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return Config{}, fmt.Errorf("invalid %s %q: %w", envVarListenAddr, listenAddr, err)
	}

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}

	pingInterval, err := envDurationOrDefault(lookup, envVarPingInterval, DefaultPingInterval)
	if err != nil {
		return Config{}, err
	}
	if pingInterval <= 0 {
		return Config{}, fmt.Errorf("invalid %s: must be positive", envVarPingInterval)
	}

	maxMessageBytes := DefaultMaxMessageBytes
	if raw, ok := lookup(envVarMaxMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxMessageBytes, raw, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("invalid %s: must be positive", envVarMaxMessageBytes)
		}
		maxMessageBytes = n
	}

	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxMessagesPerSecond, DefaultMaxMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins := parseAllowedOrigins(envOrDefault(lookup, envVarAllowedOrigins, ""))

	return Config{
		ListenAddr:           listenAddr,
		LogFormat:            logFormat,
		LogLevel:             logLevel,
		Mode:                 mode,
		ShutdownTimeout:      shutdownTimeout,
		RoomSecret:           envOrDefault(lookup, envVarRoomSecret, ""),
		PingInterval:         pingInterval,
		MaxMessageBytes:      maxMessageBytes,
		MaxMessagesPerSecond: maxMessagesPerSecond,
		AllowedOrigins:       allowedOrigins,
	}, nil
}

func NewLogger(cfg Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case LogFormatText:
		handler = slog.NewTextHandler(os.Stdout, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", cfg.LogFormat)
	}

	return slog.New(handler), nil
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func defaultLogFormatForMode(mode Mode) string {
	if mode == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode Mode) string {
	if mode == ModeProd {
		return "info"
	}
	return "debug"
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid %s %q (expected dev or prod)", envVarMode, raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func parseAllowedOrigins(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, strings.ToLower(strings.TrimSuffix(trimmed, "/")))
	}
	return out
}
