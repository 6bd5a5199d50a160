package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsWhenFileMissing(t *testing.T) {
	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 4, cfg.Stations.Count)
	assert.Equal(t, 60, cfg.Stations.PeriodLengthSeconds)
	assert.Equal(t, 15, cfg.Presence.HeartbeatTimeoutSeconds)
	assert.Equal(t, "public/events.json", cfg.Store.EventsPath)
}

func TestLoadConfigFileAndEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoreboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "8080"
stations:
  count: 6
store:
  repo: club/scoreboard-data
`), 0o644))

	t.Setenv("PORT", "9090")
	t.Setenv("STATION_COUNT", "")
	t.Setenv("GITHUB_TOKEN", "secret")

	cfg, err := loadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port, "env wins over file")
	assert.Equal(t, 6, cfg.Stations.Count, "file wins over default")
	assert.Equal(t, "club/scoreboard-data", cfg.Store.Repo)
	assert.Equal(t, "secret", cfg.Store.Token)
}

func TestLoadConfigRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scoreboard.yaml")
	require.NoError(t, os.WriteFile(path, []byte("port: [broken"), 0o644))

	_, err := loadConfig(path)
	assert.Error(t, err)
}
