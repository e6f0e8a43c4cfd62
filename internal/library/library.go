// Package library assembles the stores, caches and services of one library
// from a config.Config.
package library

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"libradoc/internal/cache"
	"libradoc/internal/catalog"
	"libradoc/internal/circulation"
	"libradoc/internal/config"
	"libradoc/internal/docstore"
	"libradoc/internal/membership"
	"libradoc/internal/repository"
)

// Option customizes how New assembles the library.
type Option func(*settings)

type settings struct {
	logger     *slog.Logger
	storeOpts  []docstore.Option
	clock      func() time.Time
	maxRetries int
}

// WithLogger sets the logger handed to every layer.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStoreOptions appends options applied to all three document stores.
func WithStoreOptions(opts ...docstore.Option) Option {
	return func(s *settings) { s.storeOpts = append(s.storeOpts, opts...) }
}

// WithClock replaces time.Now for rental dates.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.clock = now }
}

// WithOptimisticAttempts bounds the compare-and-swap retries in optimistic mode.
func WithOptimisticAttempts(n int) Option {
	return func(s *settings) { s.maxRetries = n }
}

// Library is a fully wired set of services over three documents.
type Library struct {
	Catalog     catalog.Service
	Membership  membership.Service
	Circulation circulation.Service

	Books   *catalog.Repository
	Users   *membership.Repository
	Rentals *circulation.Ledger

	cfg    config.Config
	logger *slog.Logger
}

// New opens the documents named in cfg and wires the services over them.
func New(cfg config.Config, opts ...Option) (*Library, error) {
	s := settings{logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}

	storeOpts := append([]docstore.Option{
		docstore.WithLogger(s.logger),
		docstore.WithRetryDelay(cfg.WriteRetryDelay),
	}, s.storeOpts...)

	repoOpts := []repository.Option{
		repository.WithMode(cfg.Mode),
		repository.WithLogger(s.logger),
	}
	if s.maxRetries > 0 {
		repoOpts = append(repoOpts, repository.WithMaxAttempts(s.maxRetries))
	}

	bookStore, err := docstore.Open[catalog.Book](cfg.BooksPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open books document: %w", err)
	}
	userStore, err := docstore.Open[membership.User](cfg.UsersPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open users document: %w", err)
	}
	rentalStore, err := docstore.Open[circulation.Rental](cfg.RentalsPath, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to open rentals document: %w", err)
	}

	books := catalog.NewRepository(repository.New(bookStore, newCache[[]catalog.Book](cfg.CacheTTL), repoOpts...))
	users := membership.NewRepository(repository.New(userStore, newCache[[]membership.User](cfg.CacheTTL), repoOpts...))
	ledger := circulation.NewLedger(repository.New(rentalStore, newCache[[]circulation.Rental](cfg.CacheTTL), repoOpts...))

	circOpts := []circulation.Option{
		circulation.WithMaxActiveRentals(cfg.MaxActiveRentals),
		circulation.WithMode(cfg.Mode),
		circulation.WithLogger(s.logger),
	}
	if s.clock != nil {
		circOpts = append(circOpts, circulation.WithClock(s.clock))
	}
	rentals := circulation.NewService(books, users, ledger, circOpts...)

	s.logger.Info("library opened",
		"books", bookStore.Path(), "users", userStore.Path(), "rentals", rentalStore.Path(),
		"mode", cfg.Mode.String(), "cache_ttl", cfg.CacheTTL)

	return &Library{
		Catalog: catalog.NewService(books, s.logger),
		Membership: membership.NewService(users, rentals,
			membership.WithRateLimit(cfg.AuthRatePerMinute),
			membership.WithLogger(s.logger),
		),
		Circulation: rentals,
		Books:       books,
		Users:       users,
		Rentals:     ledger,
		cfg:         cfg,
		logger:      s.logger,
	}, nil
}

func newCache[V any](ttl time.Duration) cache.Cache[V] {
	if ttl <= 0 {
		return cache.NewNoop[V]()
	}
	return cache.NewTTL[V](ttl)
}

// Config returns the settings the library was opened with.
func (l *Library) Config() config.Config {
	return l.cfg
}

// Bootstrap creates the configured administrator if no account holds that
// username yet. It does nothing when no admin is configured.
func (l *Library) Bootstrap(ctx context.Context) error {
	admin := l.cfg.Admin
	if !admin.Enabled() {
		return nil
	}

	user, created, err := l.Membership.EnsureAdmin(ctx, admin.Username, admin.Email, admin.Password)
	if err != nil {
		return fmt.Errorf("failed to bootstrap admin %q: %w", admin.Username, err)
	}
	if created {
		l.logger.Warn("bootstrap admin created, password change required", "user_id", user.ID, "username", user.Username)
	}
	return nil
}

// Reconcile checks the books and rentals documents, repairing them when the
// configuration allows it.
func (l *Library) Reconcile(ctx context.Context) (*circulation.Report, error) {
	return l.Circulation.Reconcile(ctx, l.cfg.Repair)
}
