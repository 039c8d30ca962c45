package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(body), 0o644))
	return dir
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := writeConfig(t, `
backend:
  base_url: http://192.168.100.1/cgi-bin/luci/admin/status/jammonitor
logging:
  level: debug
  format: json
  output: stderr
`)
	cfg := NewConfig("testing")
	require.NoError(t, cfg.Load("config", dir))
	require.NotNil(t, cfg.Logger)

	require.Equal(t, SourceBackend, cfg.Telemetry.Source)
	require.Equal(t, 3*time.Second, cfg.Telemetry.CollectInterval)
	require.Equal(t, 120, cfg.Telemetry.HistorySize)
	require.Equal(t, "1.1.1.1", cfg.Telemetry.PingTargets.Inet)
	require.Equal(t, 5*time.Second, cfg.Policy.PollInterval)
	require.Equal(t, 2*time.Minute, cfg.Policy.Window)
	require.Equal(t, 2*time.Second, cfg.Policy.SettleDelay)
	require.Equal(t, StoreMemory, cfg.Persistence.Type)
	require.Equal(t, 10*time.Second, cfg.Persistence.SnapshotInterval)
	require.Zero(t, cfg.Backend.Timeout)
	require.True(t, cfg.Components.Telemetry)
	require.Equal(t, "testing", cfg.Version)
}

func TestLoadOverrides(t *testing.T) {
	dir := writeConfig(t, `
backend:
  base_url: http://router.lan/jammonitor
telemetry:
  source: local
  history_size: 60
  ping_targets:
    inet: 9.9.9.9
    vps: 203.0.113.7
persistence:
  type: badger
  path: /tmp/jm
`)
	cfg := NewConfig("testing")
	require.NoError(t, cfg.Load("config", dir))
	require.Equal(t, SourceLocal, cfg.Telemetry.Source)
	require.Equal(t, 60, cfg.Telemetry.HistorySize)
	require.Equal(t, "9.9.9.9", cfg.Telemetry.PingTargets.Inet)
	require.Equal(t, "203.0.113.7", cfg.Telemetry.PingTargets.VPS)
	require.Equal(t, StoreBadger, cfg.Persistence.Type)
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := writeConfig(t, `
telemetry:
  source: carrier-pigeon
  wan_pattern: "lan[0-9"
persistence:
  type: badger
  snapshot_interval: 0s
`)
	cfg := NewConfig("testing")
	err := cfg.Load("config", dir)
	require.Error(t, err)
	require.ErrorContains(t, err, "backend.base_url is required")
	require.ErrorContains(t, err, "telemetry.source")
	require.ErrorContains(t, err, "wan_pattern")
	require.ErrorContains(t, err, "persistence.path")
	require.ErrorContains(t, err, "persistence.snapshot_interval")
}
