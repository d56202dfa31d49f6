package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_FileValues(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
database:
  dsn: "postgres://campus@localhost/campus"
auth:
  jwt_secret: "file-secret"
ledger:
  ttl: 48h
  purge_cron: "*/5 * * * *"
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "postgres://campus@localhost/campus", cfg.Database.DSN)
	assert.Equal(t, 48*time.Hour, cfg.Ledger.TTL)
	assert.Equal(t, "*/5 * * * *", cfg.Ledger.PurgeCron)
	// untouched sections keep their defaults
	assert.Equal(t, "fixed_window", cfg.Limiter.Strategy)
	assert.Equal(t, 20, cfg.Server.LiveFrameBurst)
}

func TestLoadConfig_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://file"
auth:
  jwt_secret: "file-secret"
`)
	t.Setenv("CAMPUS_DB_DSN", "postgres://env")
	t.Setenv("CAMPUS_JWT_SECRET", "env-secret")
	t.Setenv("CAMPUS_KAFKA_BROKERS", "k1:9092, k2:9092")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://env", cfg.Database.DSN)
	assert.Equal(t, "env-secret", cfg.Auth.JWTSecret)
	assert.True(t, cfg.Kafka.Enabled)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
}

func TestLoadConfig_MissingFileUsesEnv(t *testing.T) {
	t.Setenv("CAMPUS_DB_DSN", "postgres://env-only")
	t.Setenv("CAMPUS_JWT_SECRET", "secret")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "postgres://env-only", cfg.Database.DSN)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
	assert.Contains(t, err.Error(), "auth.jwt_secret")

	cfg.Database.DSN = "x"
	cfg.Auth.JWTSecret = "y"
	cfg.Limiter.Strategy = "leaky"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "leaky")

	cfg.Limiter.Strategy = "token_bucket"
	cfg.Kafka.Enabled = true
	assert.Error(t, cfg.Validate())

	cfg.Kafka.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate())
}
