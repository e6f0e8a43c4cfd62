// Package repository combines a document store and a cache into a collection
// of records addressed by id.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradoc/internal/apperror"
	"libradoc/internal/cache"
	"libradoc/internal/docstore"
)

// Record is anything stored in a Collection.
type Record interface {
	RecordID() string
}

// Mode selects how a read-modify-write cycle is protected against concurrent
// writers of the same document.
type Mode int

const (
	// ModeLocked holds the document mutex across the whole cycle.
	ModeLocked Mode = iota
	// ModeOptimistic writes with an etag compare-and-swap and retries the
	// cycle on conflict.
	ModeOptimistic
	// ModeUnsafe reads through the cache and writes blindly. Concurrent
	// writers lose updates.
	ModeUnsafe
)

func (m Mode) String() string {
	switch m {
	case ModeLocked:
		return "locked"
	case ModeOptimistic:
		return "optimistic"
	case ModeUnsafe:
		return "unsafe"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// ParseMode maps a configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "locked":
		return ModeLocked, nil
	case "optimistic":
		return ModeOptimistic, nil
	case "unsafe":
		return ModeUnsafe, nil
	default:
		return ModeLocked, fmt.Errorf("unknown concurrency mode %q", s)
	}
}

// Logger is the logging surface a Collection needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Option configures a Collection.
type Option func(*options)

type options struct {
	mode        Mode
	maxAttempts int
	baseDelay   time.Duration
	logger      Logger
	tracer      trace.Tracer
}

// WithMode sets the concurrency mode. ModeLocked is the default.
func WithMode(mode Mode) Option {
	return func(o *options) { o.mode = mode }
}

// WithMaxAttempts bounds the optimistic retry loop.
func WithMaxAttempts(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBaseDelay sets the first optimistic backoff delay.
func WithBaseDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.baseDelay = d
		}
	}
}

func WithLogger(logger Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) {
		if tp != nil {
			o.tracer = tp.Tracer("libradoc/repository")
		}
	}
}

// Collection is the ordered set of records held in one document.
type Collection[T Record] struct {
	store *docstore.Store[T]
	cache cache.Cache[[]T]
	key   string
	opts  options
}

// New returns a Collection over store. A nil cache disables caching.
func New[T Record](store *docstore.Store[T], c cache.Cache[[]T], opts ...Option) *Collection[T] {
	o := options{
		mode:        ModeLocked,
		maxAttempts: defaultMaxAttempts,
		baseDelay:   defaultBaseDelay,
		logger:      slog.Default(),
		tracer:      otel.Tracer("libradoc/repository"),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if c == nil {
		c = cache.NewNoop[[]T]()
	}

	return &Collection[T]{
		store: store,
		cache: c,
		key:   store.Path(),
		opts:  o,
	}
}

// Mode reports the concurrency mode in use.
func (c *Collection[T]) Mode() Mode {
	return c.opts.mode
}

// FindAll returns a copy of every record, from the cache when it is fresh.
func (c *Collection[T]) FindAll(ctx context.Context) []T {
	if items, ok := c.cache.Get(c.key); ok {
		return slices.Clone(items)
	}

	// Taken before the read: a write that evicts while we decode makes the
	// snapshot stale, and it must not be cached.
	gen := c.cache.Generation(c.key)
	items := c.store.ReadAll(ctx)

	// A miss is the moment to drop other expired keys of a shared cache.
	if n := c.cache.CleanExpired(); n > 0 {
		c.opts.logger.Debug("expired cache entries dropped", "count", n)
	}
	if !c.cache.PutIfUnchanged(c.key, slices.Clone(items), gen) {
		c.opts.logger.Debug("document changed during read, snapshot not cached", "path", c.key)
	}
	return items
}

func (c *Collection[T]) FindByID(ctx context.Context, id string) (T, bool) {
	return c.Find(ctx, func(item T) bool { return item.RecordID() == id })
}

// Find returns the first record matching pred.
func (c *Collection[T]) Find(ctx context.Context, pred func(T) bool) (T, bool) {
	for _, item := range c.FindAll(ctx) {
		if pred(item) {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Filter returns every record matching pred, in document order.
func (c *Collection[T]) Filter(ctx context.Context, pred func(T) bool) []T {
	var out []T
	for _, item := range c.FindAll(ctx) {
		if pred(item) {
			out = append(out, item)
		}
	}
	return out
}

// Save inserts item, replacing any record with the same id. A replaced record
// moves to the end of the collection.
func (c *Collection[T]) Save(ctx context.Context, item T) error {
	id := item.RecordID()
	return c.Mutate(ctx, func(items []T) ([]T, error) {
		items = slices.DeleteFunc(items, func(existing T) bool { return existing.RecordID() == id })
		return append(items, item), nil
	})
}

// Delete removes the record with id. Deleting an absent id is not an error.
func (c *Collection[T]) Delete(ctx context.Context, id string) error {
	return c.Mutate(ctx, func(items []T) ([]T, error) {
		return slices.DeleteFunc(items, func(existing T) bool { return existing.RecordID() == id }), nil
	})
}

// Mutate runs one read-modify-write cycle of the whole collection under the
// configured mode. fn may run more than once in ModeOptimistic and must not
// have side effects beyond its return value. If fn fails nothing is written.
func (c *Collection[T]) Mutate(ctx context.Context, fn func([]T) ([]T, error)) error {
	ctx, span := c.opts.tracer.Start(ctx, "repository.mutate",
		trace.WithAttributes(
			attribute.String("document.path", c.key),
			attribute.String("concurrency.mode", c.opts.mode.String()),
		),
	)
	defer span.End()

	// Eviction happens before the caller sees the result, written or not.
	defer c.cache.Evict(c.key)

	var err error
	switch c.opts.mode {
	case ModeOptimistic:
		err = c.mutateOptimistic(ctx, span, fn)
	case ModeUnsafe:
		err = c.mutateUnsafe(ctx, fn)
	default:
		err = c.store.Update(ctx, fn)
	}
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func (c *Collection[T]) mutateUnsafe(ctx context.Context, fn func([]T) ([]T, error)) error {
	next, err := fn(c.FindAll(ctx))
	if err != nil {
		return err
	}
	return c.store.WriteAll(ctx, next)
}

func (c *Collection[T]) mutateOptimistic(ctx context.Context, span trace.Span, fn func([]T) ([]T, error)) error {
	err := retryOnConflict(ctx, c.opts.maxAttempts, c.opts.baseDelay, func(attempt int) error {
		items, tag := c.store.ReadVersioned(ctx)
		next, err := fn(items)
		if err != nil {
			return err
		}

		err = c.store.CompareAndWrite(ctx, tag, next)
		if errors.Is(err, docstore.ErrConcurrencyConflict) {
			span.AddEvent("conflict", trace.WithAttributes(attribute.Int("attempt", attempt+1)))
			c.opts.logger.Debug("document changed during update, retrying", "path", c.key, "attempt", attempt+1)
		}
		return err
	})

	if errors.Is(err, docstore.ErrConcurrencyConflict) {
		c.opts.logger.Warn("giving up after repeated conflicts", "path", c.key, "attempts", c.opts.maxAttempts)
		return apperror.Wrap(apperror.KindConflictingState, "store.conflict", err,
			"%s kept changing across %d attempts", c.key, c.opts.maxAttempts)
	}
	return err
}
