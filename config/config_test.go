package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "5050", cfg.Server.HTTPPort)
	require.Equal(t, 60*time.Second, cfg.Presence.OfflineAfter)
	require.Equal(t, 15*time.Second, cfg.Presence.SessionCloseAfter)
	require.Equal(t, 24*time.Hour, cfg.Retention.Sessions)
	require.Equal(t, []string{"python", "antigravity", "lab_systems_agent"}, cfg.Tracker.NoiseProcesses)
	require.Empty(t, cfg.Database.Driver)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	path := filepath.Join(dir, "labguard.yaml")
	body := `
server:
  http_port: "8080"
presence:
  offline_after: 90s
database:
  driver: postgres
  dsn: postgres://file
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	t.Setenv("LABGUARD_DATABASE_DSN", "postgres://env")
	t.Setenv("LABGUARD_PRESENCE_SESSION_CLOSE_AFTER", "20s")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "8080", cfg.Server.HTTPPort)
	require.Equal(t, 90*time.Second, cfg.Presence.OfflineAfter)
	require.Equal(t, 20*time.Second, cfg.Presence.SessionCloseAfter)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://env", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Database.Driver = "oracle"
	cfg.Presence.OfflineAfter = 0
	err = cfg.Validate()
	require.ErrorContains(t, err, "unsupported database driver")
	require.ErrorContains(t, err, "presence.offline_after")
}
