package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.ExecutionTimeout())
	assert.Equal(t, 3, cfg.Engine.MaxRetries)
	assert.Equal(t, 100, cfg.Engine.BatchSize)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
data_dir: /var/lib/weft
engine:
  max_retries: 5
log:
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/weft", cfg.DataDir)
	assert.Equal(t, 5, cfg.Engine.MaxRetries)
	assert.Equal(t, "json", cfg.Log.Format)
	// Untouched keys keep their defaults.
	assert.Equal(t, 30000, cfg.Engine.ExecutionTimeoutMS)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weft.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  workers: 2\n"), 0o644))

	t.Setenv("WEFT_ENGINE__WORKERS", "8")
	t.Setenv("WEFT_ENGINE__MAX_RETRIES", "1")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, 1, cfg.Engine.MaxRetries)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Engine.ExecutionTimeoutMS = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Log.Format = "xml"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Engine.Workers = 0
	assert.Error(t, cfg.Validate())
}

func TestLoadMissingFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
