package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/greenbank/points-engine/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 0.5, cfg.Ledger.ConversionRate)
	assert.Equal(t, int64(100), cfg.Ledger.WelcomeBonus)
	assert.Equal(t, time.Hour, cfg.AccessTTL())
	assert.Equal(t, []string{"*"}, cfg.Origins())
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	// GIVEN: A YAML file and a conflicting environment variable
	// WHEN: Loading
	// THEN: File values apply except where the environment overrides them

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "9090"
  allowed_origins: "http://localhost:3000, http://localhost:5173"
store:
  backend: sqlite
  sqlite_path: /tmp/points-test.db
`), 0o644))

	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("SERVER_PORT", "7070")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port, "environment wins")
	assert.Equal(t, "sqlite", cfg.Store.Backend)
	assert.Equal(t, "/tmp/points-test.db", cfg.Store.SQLitePath)
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:5173"}, cfg.Origins())
}

func TestLoad_Rejections(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	t.Run("unknown backend", func(t *testing.T) {
		t.Setenv("STORE_BACKEND", "oracle")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "backend")
	})

	t.Run("bad conversion rate", func(t *testing.T) {
		t.Setenv("POINTS_CONVERSION_RATE", "-1")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "conversion rate")
	})

	t.Run("missing secret", func(t *testing.T) {
		t.Setenv("JWT_SECRET", "")
		_, err := config.Load("")
		assert.ErrorContains(t, err, "JWT_SECRET")
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := config.Load("/does/not/exist.yaml")
		assert.Error(t, err)
	})
}
