package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnvDefaults(t *testing.T) {
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, 4, cfg.Search.MaxConcurrency)
	assert.Equal(t, 2, cfg.Scrape.MaxConcurrency)
	assert.Equal(t, 500, cfg.Scrape.PerHostGapMillis)
	assert.Equal(t, 2, cfg.Scrape.BreakerThreshold)
	assert.Equal(t, 0.05, cfg.Outreach.StealthFounderRatio)
	assert.Equal(t, 1024, cfg.Realtime.BusCapacity)
	assert.Equal(t, 5, cfg.Realtime.DisableAfterFailures)
	assert.Equal(t, 90*time.Second, cfg.Pipeline.ResearchTimeout())
	assert.Equal(t, 120*time.Second, cfg.Pipeline.DiscoveryTimeout())
}

func TestLoadFromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9090
storage:
  type: local
  local_path: /tmp/data
pipeline:
  batch_mode: true
  research_timeout_s: 30
outreach:
  stealth_founder_ratio: 0.10
`), 0o644))

	cfg, err := LoadFromEnv(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "local", cfg.Storage.Type)
	assert.True(t, cfg.Pipeline.BatchMode)
	assert.Equal(t, 30*time.Second, cfg.Pipeline.ResearchTimeout())
	assert.Equal(t, 0.10, cfg.Outreach.StealthFounderRatio)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SERVER_PORT", "7070")
	t.Setenv("STORAGE_TYPE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/pipeline")
	t.Setenv("REDIS_URL", "redis://localhost:6379")

	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Storage.Type)
	assert.Equal(t, "postgres://localhost/pipeline", cfg.Storage.DatabaseURL)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
}
