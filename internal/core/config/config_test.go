package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestLoad_Defaults verifies defaults apply when only required vars are set.
func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Mongo.URI)
	assert.Equal(t, "storefront", cfg.Mongo.Database)
	assert.Equal(t, uint64(20), cfg.Mongo.MaxPoolSize)
	assert.Equal(t, "redis://localhost:6379", cfg.Redis.URL)
	assert.Equal(t, 30, cfg.Redis.SnapshotTTLSeconds)
	assert.Equal(t, 25, cfg.Hub.PingIntervalSeconds)
	assert.Equal(t, 500, cfg.Outbox.PollIntervalMillis)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.False(t, cfg.Carriers.RefreshEnabled)
	assert.False(t, cfg.Proxy.Enabled)
}

// TestLoad_MissingRequired verifies required fields are enforced.
func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load(t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
}

// TestLoad_EnvOverrides verifies environment variables override defaults.
func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("APP_ENV", "production")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("MONGO_DATABASE", "petshop")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "production", cfg.Environment)
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "petshop", cfg.Mongo.Database)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
}

// TestLoad_EnvFile verifies values are read from a .env file.
func TestLoad_EnvFile(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	dir := t.TempDir()
	content := "LOG_LEVEL=debug\nREDIS_SNAPSHOT_TTL_SECONDS=5\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(content), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.Redis.SnapshotTTLSeconds)
}
