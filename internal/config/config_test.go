package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_TOKEN", "")
	t.Setenv("RADIX_AUTH_TOKEN", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.AuthToken)
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "DB_PATH", "DATABASE_URL", "LOCK_TTL", "REDIS_ADDR", "AUTO_MIGRATE"} {
		unsetEnv(t, key)
		unsetEnv(t, EnvPrefix+"_"+key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":5555", cfg.Address())
	assert.Equal(t, "radix_asteris.db", cfg.DBPath)
	assert.False(t, cfg.UsesPostgres())
	assert.Equal(t, 10*time.Second, cfg.LockTTL)
	assert.True(t, cfg.AutoMigrate)
	assert.Empty(t, cfg.RedisAddr)
}

func TestLoadPrefixedKeysWin(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("RADIX_PORT", "9090")
	t.Setenv("RADIX_DATABASE_URL", " postgres://radix@localhost/radix ")
	t.Setenv("RADIX_LOCK_TTL", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.UsesPostgres())
	assert.Equal(t, "postgres://radix@localhost/radix", cfg.DatabaseURL)
	assert.Equal(t, 3*time.Second, cfg.LockTTL)
}

func TestLoadRejectsMalformedValues(t *testing.T) {
	t.Setenv("RADIX_REDIS_DB", "zero")

	_, err := Load()
	assert.Error(t, err)
}

// unsetEnv removes key for the duration of the test. An empty but present
// variable is not the same as a missing one to envconfig.
func unsetEnv(t *testing.T, key string) {
	t.Helper()
	t.Setenv(key, "")
	require.NoError(t, os.Unsetenv(key))
}
