package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticekb/lattice/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	_ = os.Unsetenv("LATTICE_HOST")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 8585, cfg.Server.Port)
	assert.Equal(t, 1000, cfg.Index.MaxFeatures)
	assert.Equal(t, 0.1, cfg.Index.Threshold)
	assert.Equal(t, 10*time.Second, cfg.Enrich.Timeout)
	assert.Equal(t, 500, cfg.Inference.ProgressEvery)
	assert.Empty(t, cfg.Postgres.DSN)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("LATTICE_HOST", "0.0.0.0")
	t.Setenv("LATTICE_PORT", "9000")
	t.Setenv("LATTICE_MAX_FEATURES", "250")
	t.Setenv("LATTICE_ENRICH_TIMEOUT", "3s")

	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, 250, cfg.Index.MaxFeatures)
	assert.Equal(t, 3*time.Second, cfg.Enrich.Timeout)
}

func TestMalformedEnvValueKeepsDefault(t *testing.T) {
	t.Setenv("LATTICE_PORT", "not-a-number")
	cfg, err := config.Load("")
	require.NoError(t, err)
	assert.Equal(t, 8585, cfg.Server.Port)
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7070
index:
  max_features: 300
  top_k: 10
snapshot:
  graph_path: /tmp/graph.json
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, 300, cfg.Index.MaxFeatures)
	assert.Equal(t, 10, cfg.Index.TopK)
	assert.Equal(t, "/tmp/graph.json", cfg.Snapshot.GraphPath)

	// YAML left the host alone.
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

func TestEnvBeatsYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lattice.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 7070\n"), 0o644))
	t.Setenv("LATTICE_PORT", "7171")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7171, cfg.Server.Port)
}

func TestInvalidValuesRejected(t *testing.T) {
	t.Setenv("LATTICE_PORT", "70000")
	_, err := config.Load("")
	assert.Error(t, err)
}

func TestMissingYAMLFile(t *testing.T) {
	_, err := config.Load("/nonexistent/lattice.yaml")
	assert.Error(t, err)
}
