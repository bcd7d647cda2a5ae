package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadOrDefaultFallsBackWhenFileMissing(t *testing.T) {
	cfg := LoadOrDefault(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.Equal(t, Default().Server.HTTPAddr, cfg.Server.HTTPAddr)
}

func TestLoadFromPathParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bliteserver.yaml")
	yamlBody := `
server:
  httpAddr: ":9090"
  rpcAddr: ":9091"
queryCache:
  enabled: true
  slidingExpirationSeconds: 60
  absoluteExpirationSeconds: 600
  maxSizeBytes: 1048576
  maxResultSetSize: 1000
transactions:
  timeoutSeconds: 120
embeddingWorker:
  enabled: true
  intervalSeconds: 15
  batchSize: 32
  staleTimeoutMinutes: 5
`
	require.NoError(t, os.WriteFile(path, []byte(yamlBody), 0o644))

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, ":9090", cfg.Server.HTTPAddr)
	require.True(t, cfg.QueryCache.Enabled)
	require.Equal(t, 60, cfg.QueryCache.SlidingExpirationSeconds)
	require.Equal(t, 120, cfg.Transactions.TimeoutSeconds)
	require.True(t, cfg.EmbeddingWorker.Enabled)
	require.Equal(t, 32, cfg.EmbeddingWorker.BatchSize)
}

func TestEnvOverlayWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bliteserver.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  httpAddr: \":9090\"\n"), 0o644))

	t.Setenv("BLITE_SERVER_HTTPADDR", ":7070")
	t.Setenv("BLITE_QUERYCACHE_ENABLED", "true")
	t.Setenv("BLITE_TRANSACTIONS_TIMEOUTSECONDS", "45")

	cfg, err := LoadFromPath(path)
	require.NoError(t, err)
	require.Equal(t, ":7070", cfg.Server.HTTPAddr)
	require.True(t, cfg.QueryCache.Enabled)
	require.Equal(t, 45, cfg.Transactions.TimeoutSeconds)
}

func TestValidateRejectsNonPositiveTimeout(t *testing.T) {
	cfg := Default()
	cfg.Transactions.TimeoutSeconds = 0
	require.Error(t, cfg.Validate())
}

func TestValidateRejectsEnabledWorkerWithoutInterval(t *testing.T) {
	cfg := Default()
	cfg.EmbeddingWorker.Enabled = true
	cfg.EmbeddingWorker.IntervalSeconds = 0
	require.Error(t, cfg.Validate())
}
