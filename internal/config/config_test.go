package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "4000")
	t.Setenv("DATABASE_URL", "postgres://localhost/trivio")
	t.Setenv("SESSION_SECRET", "s3cret")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "4000", cfg.Port)
	assert.Equal(t, "postgres://localhost/trivio", cfg.DatabaseURL)
	assert.Equal(t, "s3cret", cfg.SessionSecret)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadFileWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: "5000"
postgres:
  url: postgres://filehost/db
session:
  secret: file-secret
redis:
  addr: localhost:6379
`), 0o600))

	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "postgres://envhost/db")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("REDIS_ADDR", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, "postgres://envhost/db", cfg.DatabaseURL)
	assert.Equal(t, "file-secret", cfg.SessionSecret)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
}

func TestLoadRequiresSecretAndDSN(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("REDIS_ADDR", "")

	_, err := Load("")
	assert.ErrorContains(t, err, "SESSION_SECRET")

	t.Setenv("DATABASE_URL", "")
	_, err = Load("")
	assert.ErrorContains(t, err, "DATABASE_URL")
}

func TestLoadDefaultPort(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/db")
	t.Setenv("SESSION_SECRET", "x")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultPort, cfg.Port)
}
