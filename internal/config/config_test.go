package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddr, cfg.ListenAddr)
	assert.Equal(t, ModeDev, cfg.Mode)
	assert.Equal(t, LogFormatText, cfg.LogFormat)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, DefaultShutdown, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultPingInterval, cfg.PingInterval)
	assert.Equal(t, DefaultMaxMessageBytes, cfg.MaxMessageBytes)
	assert.Equal(t, DefaultMaxMessagesPerSecond, cfg.MaxMessagesPerSecond)
	assert.Empty(t, cfg.RoomSecret)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestProdDefaults(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"SIGNAL_BROKER_MODE": "prod",
	}))
	require.NoError(t, err)

	assert.Equal(t, LogFormatJSON, cfg.LogFormat)
	assert.Equal(t, slog.LevelInfo, cfg.LogLevel)
}

func TestVerboseForcesDebug(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"SIGNAL_BROKER_MODE":    "prod",
		"SIGNAL_BROKER_VERBOSE": "true",
	}))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
}

func TestExplicitLevelBeatsVerbose(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"SIGNAL_BROKER_VERBOSE":   "true",
		"SIGNAL_BROKER_LOG_LEVEL": "warn",
	}))
	require.NoError(t, err)

	assert.Equal(t, slog.LevelWarn, cfg.LogLevel)
}

func TestPortEnv(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"PORT": "9001",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9001", cfg.ListenAddr)
}

func TestListenAddrBeatsPort(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"PORT":                      "9001",
		"SIGNAL_BROKER_LISTEN_ADDR": "127.0.0.1:4444",
	}))
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:4444", cfg.ListenAddr)
}

func TestRoomSecretAndKnobs(t *testing.T) {
	cfg, err := load(lookupFrom(map[string]string{
		"SIGNAL_BROKER_ROOM_SECRET":             "s3cret",
		"SIGNAL_BROKER_PING_INTERVAL":           "5s",
		"SIGNAL_BROKER_SHUTDOWN_TIMEOUT":        "3s",
		"SIGNAL_BROKER_MAX_MESSAGE_BYTES":       "1024",
		"SIGNAL_BROKER_MAX_MESSAGES_PER_SECOND": "7",
		"SIGNAL_BROKER_ALLOWED_ORIGINS":         "https://App.Example.com/, https://other.example.com",
	}))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.RoomSecret)
	assert.Equal(t, 5*time.Second, cfg.PingInterval)
	assert.Equal(t, 3*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, int64(1024), cfg.MaxMessageBytes)
	assert.Equal(t, 7, cfg.MaxMessagesPerSecond)
	assert.Equal(t, []string{"https://app.example.com", "https://other.example.com"}, cfg.AllowedOrigins)
}

func TestInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad mode", map[string]string{"SIGNAL_BROKER_MODE": "staging"}},
		{"bad port", map[string]string{"PORT": "not-a-port"}},
		{"port out of range", map[string]string{"PORT": "70000"}},
		{"bad listen addr", map[string]string{"SIGNAL_BROKER_LISTEN_ADDR": "no-port-here"}},
		{"bad verbose", map[string]string{"SIGNAL_BROKER_VERBOSE": "yep"}},
		{"bad ping interval", map[string]string{"SIGNAL_BROKER_PING_INTERVAL": "soon"}},
		{"zero ping interval", map[string]string{"SIGNAL_BROKER_PING_INTERVAL": "0s"}},
		{"bad log format", map[string]string{"SIGNAL_BROKER_LOG_FORMAT": "xml"}},
		{"bad log level", map[string]string{"SIGNAL_BROKER_LOG_LEVEL": "loud"}},
		{"bad max bytes", map[string]string{"SIGNAL_BROKER_MAX_MESSAGE_BYTES": "-1"}},
		{"bad rate", map[string]string{"SIGNAL_BROKER_MAX_MESSAGES_PER_SECOND": "fast"}},
		{"bad shutdown", map[string]string{"SIGNAL_BROKER_SHUTDOWN_TIMEOUT": "forever"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := load(lookupFrom(tt.env))
			assert.Error(t, err)
		})
	}
}

func TestNewLogger(t *testing.T) {
	for _, format := range []LogFormat{LogFormatText, LogFormatJSON} {
		logger, err := NewLogger(Config{LogFormat: format, LogLevel: slog.LevelInfo})
		require.NoError(t, err)
		require.NotNil(t, logger)
	}

	_, err := NewLogger(Config{LogFormat: "xml"})
	assert.Error(t, err)
}
