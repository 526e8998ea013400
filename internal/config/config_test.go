package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("GROUP_GAP_THRESHOLD", "")
	t.Setenv("BADGER_PATH", "")

	cfg := Load()

	require.Equal(t, "8080", cfg.ServerPort)
	require.Equal(t, 300*time.Second, cfg.GroupGapThreshold)
	require.Equal(t, 64, cfg.EventBufferSize)
	require.Empty(t, cfg.BadgerPath)
	require.False(t, cfg.NATSEnabled)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GROUP_GAP_THRESHOLD", "2m")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("EVENT_BUFFER_SIZE", "8")
	t.Setenv("NATS_STREAM_MAX_BYTES", "1048576")

	cfg := Load()

	require.Equal(t, "9090", cfg.ServerPort)
	require.Equal(t, 2*time.Minute, cfg.GroupGapThreshold)
	require.True(t, cfg.NATSEnabled)
	require.Equal(t, 8, cfg.EventBufferSize)
	require.Equal(t, int64(1048576), cfg.NATSStreamMaxBytes)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("EVENT_BUFFER_SIZE", "lots")
	t.Setenv("SNAPSHOT_INTERVAL", "soon")

	cfg := Load()

	require.Equal(t, 64, cfg.EventBufferSize)
	require.Equal(t, 30*time.Second, cfg.SnapshotInterval)
}

func TestLoad_AllowedOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://app.example , ,https://admin.example")

	cfg := Load()

	require.Equal(t, []string{"https://app.example", "https://admin.example"}, cfg.CORSAllowedOrigins)
}

func TestValidate(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOG_FORMAT", "")
	t.Setenv("NATS_CERT_FILE", "")
	t.Setenv("NATS_KEY_FILE", "")
	require.NoError(t, Load().Validate())

	cfg := Load()
	cfg.Environment = "production"
	cfg.EventBufferSize = 0
	cfg.NATSCertFile = "client.crt"
	cfg.LogFormat = "xml"

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"JWT_SECRET", "EVENT_BUFFER_SIZE", "NATS_KEY_FILE", "LOG_FORMAT"} {
		require.Contains(t, err.Error(), want)
	}
}
