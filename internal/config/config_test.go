package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradoc/internal/repository"
)

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(nil))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("data", "books.json"), cfg.BooksPath)
	assert.Equal(t, filepath.Join("data", "users.json"), cfg.UsersPath)
	assert.Equal(t, filepath.Join("data", "rentals.json"), cfg.RentalsPath)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 5, cfg.MaxActiveRentals)
	assert.Equal(t, repository.ModeLocked, cfg.Mode)
	assert.Equal(t, 50*time.Millisecond, cfg.WriteRetryDelay)
	assert.Equal(t, 60, cfg.AuthRatePerMinute)
	assert.True(t, cfg.Repair)
	assert.False(t, cfg.Admin.Enabled())
	assert.Equal(t, "libradoc", cfg.ServiceName)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(lookupFrom(map[string]string{
		"LIBRADOC_DATA_DIR":             "/srv/library",
		"LIBRADOC_RENTALS_PATH":         "/var/rentals.json",
		"LIBRADOC_CACHE_TTL":            "0",
		"LIBRADOC_MAX_ACTIVE_RENTALS":   "3",
		"LIBRADOC_CONCURRENCY_MODE":     "optimistic",
		"LIBRADOC_WRITE_RETRY_DELAY":    "10ms",
		"LIBRADOC_AUTH_RATE_PER_MINUTE": "0",
		"LIBRADOC_REPAIR":               "false",
		"LIBRADOC_ADMIN_USERNAME":       "admin",
		"LIBRADOC_ADMIN_EMAIL":          "admin@library.local",
		"LIBRADOC_ADMIN_PASSWORD":       "changeme1",
		"OTEL_EXPORTER_OTLP_ENDPOINT":   "http://localhost:4318",
	}))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("/srv/library", "books.json"), cfg.BooksPath)
	assert.Equal(t, "/var/rentals.json", cfg.RentalsPath)
	assert.Equal(t, time.Duration(0), cfg.CacheTTL)
	assert.Equal(t, 3, cfg.MaxActiveRentals)
	assert.Equal(t, repository.ModeOptimistic, cfg.Mode)
	assert.Equal(t, 10*time.Millisecond, cfg.WriteRetryDelay)
	assert.Equal(t, 0, cfg.AuthRatePerMinute)
	assert.False(t, cfg.Repair)
	assert.True(t, cfg.Admin.Enabled())
	assert.Equal(t, "http://localhost:4318", cfg.OTLPEndpoint)
}

func TestInvalidValuesAreAllReported(t *testing.T) {
	_, err := FromEnv(lookupFrom(map[string]string{
		"LIBRADOC_CACHE_TTL":          "soon",
		"LIBRADOC_MAX_ACTIVE_RENTALS": "0",
		"LIBRADOC_CONCURRENCY_MODE":   "yolo",
		"LIBRADOC_REPAIR":             "maybe",
	}))
	require.Error(t, err)
	for _, key := range []string{"LIBRADOC_CACHE_TTL", "LIBRADOC_MAX_ACTIVE_RENTALS", "LIBRADOC_CONCURRENCY_MODE", "LIBRADOC_REPAIR"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadReadsDotEnvWithoutOverridingEnvironment(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("LIBRADOC_MAX_ACTIVE_RENTALS=2\nLIBRADOC_SERVICE_NAME=from-file\n"), 0o644))

	t.Chdir(dir)
	t.Setenv("LIBRADOC_SERVICE_NAME", "from-env")
	t.Cleanup(func() { _ = os.Unsetenv("LIBRADOC_MAX_ACTIVE_RENTALS") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.MaxActiveRentals)
	assert.Equal(t, "from-env", cfg.ServiceName)
}
