// Package config reads library settings from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"libradoc/internal/cache"
	"libradoc/internal/docstore"
	"libradoc/internal/repository"
)

// Config holds everything needed to assemble a library.
type Config struct {
	// DataDir holds the three documents unless a path is set explicitly.
	// Default: "data"
	DataDir     string
	BooksPath   string
	UsersPath   string
	RentalsPath string

	// CacheTTL is how long a decoded document is reused. Zero disables caching.
	// Default: 5m
	CacheTTL time.Duration

	// MaxActiveRentals caps the ACTIVE rentals per user.
	// Default: 5
	MaxActiveRentals int

	// Mode guards read-modify-write cycles.
	// Default: locked
	Mode repository.Mode

	// WriteRetryDelay is the pause before the single replace retry.
	// Default: 50ms
	WriteRetryDelay time.Duration

	// AuthRatePerMinute budgets register and authenticate calls. Zero means
	// unlimited.
	// Default: 60
	AuthRatePerMinute int

	Admin Admin

	// Repair lets the reconcile command fix what it finds.
	// Default: true
	Repair bool

	// OTLPEndpoint enables trace export when set.
	OTLPEndpoint string
	ServiceName  string
}

// Admin is the bootstrap administrator account.
type Admin struct {
	Username string
	Email    string
	Password string
}

// Enabled reports whether all admin fields are set.
func (a Admin) Enabled() bool {
	return a.Username != "" && a.Email != "" && a.Password != ""
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		DataDir:           "data",
		CacheTTL:          cache.DefaultTTL,
		MaxActiveRentals:  5,
		Mode:              repository.ModeLocked,
		WriteRetryDelay:   docstore.DefaultRetryDelay,
		AuthRatePerMinute: 60,
		Repair:            true,
		ServiceName:       "libradoc",
	}
}

// Load reads .env and .env.local if present, then the process environment.
// Variables already set in the environment win over the files.
func Load() (Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
	return FromEnv(os.LookupEnv)
}

// FromEnv builds a Config from lookup, reporting every invalid value.
func FromEnv(lookup func(string) (string, bool)) (Config, error) {
	cfg := DefaultConfig()
	var errs []error

	getEnv := func(key, fallback string) string {
		if v, ok := lookup(key); ok && v != "" {
			return v
		}
		return fallback
	}
	duration := func(key string, fallback time.Duration) time.Duration {
		raw := getEnv(key, "")
		if raw == "" {
			return fallback
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q", key, raw))
			return fallback
		}
		return d
	}
	integer := func(key string, fallback, minimum int) int {
		raw := getEnv(key, "")
		if raw == "" {
			return fallback
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < minimum {
			errs = append(errs, fmt.Errorf("%s: expected an integer >= %d, got %q", key, minimum, raw))
			return fallback
		}
		return n
	}

	cfg.DataDir = getEnv("LIBRADOC_DATA_DIR", cfg.DataDir)
	cfg.BooksPath = getEnv("LIBRADOC_BOOKS_PATH", filepath.Join(cfg.DataDir, "books.json"))
	cfg.UsersPath = getEnv("LIBRADOC_USERS_PATH", filepath.Join(cfg.DataDir, "users.json"))
	cfg.RentalsPath = getEnv("LIBRADOC_RENTALS_PATH", filepath.Join(cfg.DataDir, "rentals.json"))

	cfg.CacheTTL = duration("LIBRADOC_CACHE_TTL", cfg.CacheTTL)
	cfg.WriteRetryDelay = duration("LIBRADOC_WRITE_RETRY_DELAY", cfg.WriteRetryDelay)
	cfg.MaxActiveRentals = integer("LIBRADOC_MAX_ACTIVE_RENTALS", cfg.MaxActiveRentals, 1)
	cfg.AuthRatePerMinute = integer("LIBRADOC_AUTH_RATE_PER_MINUTE", cfg.AuthRatePerMinute, 0)

	if raw := getEnv("LIBRADOC_CONCURRENCY_MODE", ""); raw != "" {
		mode, err := repository.ParseMode(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("LIBRADOC_CONCURRENCY_MODE: %w", err))
		}
		cfg.Mode = mode
	}

	if raw := getEnv("LIBRADOC_REPAIR", ""); raw != "" {
		repair, err := strconv.ParseBool(raw)
		if err != nil {
			errs = append(errs, fmt.Errorf("LIBRADOC_REPAIR: expected a boolean, got %q", raw))
		} else {
			cfg.Repair = repair
		}
	}

	cfg.Admin = Admin{
		Username: getEnv("LIBRADOC_ADMIN_USERNAME", ""),
		Email:    getEnv("LIBRADOC_ADMIN_EMAIL", ""),
		Password: getEnv("LIBRADOC_ADMIN_PASSWORD", ""),
	}

	cfg.OTLPEndpoint = getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	cfg.ServiceName = getEnv("LIBRADOC_SERVICE_NAME", cfg.ServiceName)

	if err := errors.Join(errs...); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
