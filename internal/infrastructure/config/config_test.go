package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err, "missing config file falls back to defaults")

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Ledger.Backend)
	assert.Equal(t, 7*365*24*time.Hour, cfg.Ledger.Retention)
	assert.Equal(t, 2*time.Second, cfg.PHI.ClassifierTimeout)
	assert.Equal(t, float64(25), cfg.Risk.Thresholds.Medium)
	assert.Equal(t, float64(50), cfg.Risk.Thresholds.High)
	assert.Equal(t, float64(75), cfg.Risk.Thresholds.Critical)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoad_FileOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: 9090
ledger:
  backend: postgres
  database_url: postgres://localhost/cbhc
risk:
  thresholds:
    medium: 20
    high: 40
    critical: 60
`
	require.NoError(t, os.WriteFile(path, []byte(raw), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Ledger.Backend)
	assert.Equal(t, "postgres://localhost/cbhc", cfg.Ledger.DatabaseURL)
	assert.Equal(t, float64(20), cfg.Risk.Thresholds.Medium)
	// Unset keys keep their defaults.
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CBHC_SERVER_PORT", "7070")
	t.Setenv("CBHC_ENVIRONMENT", "production")
	t.Setenv("CBHC_LEDGER_BACKEND", "memory")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, "memory", cfg.Ledger.Backend)
}
