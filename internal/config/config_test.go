package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ZABBIX_RCA_CONFIG", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, ":2112", cfg.Server.MetricsAddress)
	assert.Equal(t, "data/events.db", cfg.Store.Path)
	assert.Equal(t, 5*time.Second, cfg.Store.QueryTimeout)
	assert.Equal(t, "http://localhost:11434", cfg.Model.BaseURL)
	assert.Equal(t, 5, cfg.Analysis.MaxContextResults)
	assert.Equal(t, 24, cfg.Analysis.TrendWindowHours)
	assert.False(t, cfg.Cache.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  address: ":9090"
  metricsAddress: ":9100"
store:
  path: /var/lib/rca/events.db
  queryTimeout: 2s
model:
  baseURL: http://ollama:11434
  name: mistral
  timeout: 30s
analysis:
  maxContextResults: 8
  trendWindowHours: 48
cache:
  enabled: true
  addr: valkey:6379
  analysisTTL: 10m
logging:
  level: debug
  json: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "/var/lib/rca/events.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Second, cfg.Store.QueryTimeout)
	assert.Equal(t, "mistral", cfg.Model.Name)
	assert.Equal(t, 30*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 8, cfg.Analysis.MaxContextResults)
	assert.Equal(t, 48, cfg.Analysis.TrendWindowHours)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, "valkey:6379", cfg.Cache.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Cache.AnalysisTTL)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.JSON)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
model:
  name: llama2
`)
	t.Setenv("ZABBIX_RCA_MODEL_NAME", "codellama")
	t.Setenv("ZABBIX_RCA_SERVER_ADDRESS", ":7070")
	t.Setenv("ZABBIX_RCA_CACHE_ENABLED", "true")
	t.Setenv("ZABBIX_RCA_RUN_TIMEOUT", "45s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "codellama", cfg.Model.Name)
	assert.Equal(t, ":7070", cfg.Server.Address)
	assert.True(t, cfg.Cache.Enabled)
	assert.Equal(t, 45*time.Second, cfg.Analysis.RunTimeout)
}

func TestLoadClampsAnalysisBounds(t *testing.T) {
	path := writeConfig(t, `
analysis:
  maxContextResults: -1
  trendWindowHours: 0
  recentEventsLimit: -5
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Analysis.MaxContextResults)
	assert.Equal(t, 24, cfg.Analysis.TrendWindowHours)
	assert.Equal(t, 10, cfg.Analysis.RecentEventsLimit)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestLoadBadYAML(t *testing.T) {
	path := writeConfig(t, "server: [not a mapping")
	_, err := Load(path)
	require.Error(t, err)
}
