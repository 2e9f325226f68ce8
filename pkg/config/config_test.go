package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "./data", cfg.Database.DataDir)
	assert.Equal(t, "0.0.0.0:3000", cfg.ListenAddr())
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entropy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database:
  data_dir: /var/lib/entropy
  sync_writes: true
http:
  address: 127.0.0.1
  port: 8080
logging:
  level: debug
  format: json
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/entropy", cfg.Database.DataDir)
	assert.True(t, cfg.Database.SyncWrites)
	assert.Equal(t, "127.0.0.1:8080", cfg.ListenAddr())
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "entropy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("http:\n  port: 8080\n"), 0o644))

	t.Setenv("ENTROPY_HTTP_PORT", "9999")
	t.Setenv("ENTROPY_IN_MEMORY", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.HTTP.Port)
	assert.True(t, cfg.Database.InMemory)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.HTTP.Port = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Database.DataDir = ""
	assert.Error(t, cfg.Validate())
	cfg.Database.InMemory = true
	assert.NoError(t, cfg.Validate())

	cfg = Default()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}
