package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "nats://localhost:4222", cfg.NATS.URL)
	assert.Equal(t, 30*time.Minute, cfg.Sessions.Lifespan)
	assert.Equal(t, 600*time.Second, cfg.Sessions.WaitMaxTimeout)
	assert.Equal(t, "validation-details", cfg.Blob.Container)
	assert.Equal(t, 1.0, cfg.Tracing.SampleRatio)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "argus.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats:
  url: nats://broker:4222
  notify_stream: NOTIFY_UAT
sessions:
  lifespan: 45m
  wait_max_timeout: 120s
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://broker:4222", cfg.NATS.URL)
	assert.Equal(t, "NOTIFY_UAT", cfg.NATS.NotifyStream)
	assert.Equal(t, 45*time.Minute, cfg.Sessions.Lifespan)
	assert.Equal(t, 120*time.Second, cfg.Sessions.WaitMaxTimeout)
	// Untouched fields keep defaults.
	assert.Equal(t, "ARGUS_ARRIVALS", cfg.NATS.ArrivalStream)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "argus.yaml")
	require.NoError(t, os.WriteFile(path, []byte("nats:\n  url: nats://broker:4222\n"), 0o600))

	t.Setenv("ARGUS_NATS__URL", "nats://override:4222")
	t.Setenv("ARGUS_SESSIONS__WAIT_MAX_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "nats://override:4222", cfg.NATS.URL)
	assert.Equal(t, 90*time.Second, cfg.Sessions.WaitMaxTimeout)
}
