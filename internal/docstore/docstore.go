// Package docstore persists one collection of records as one JSON document.
//
// A document is read and replaced whole. Replacement goes through a temp
// side-file and a rename, so no reader ever sees a half-written document.
// Reads fail soft: a missing, empty or malformed document reads as an empty
// collection.
package docstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradoc/internal/apperror"
)

var (
	// ErrConcurrencyConflict is returned by CompareAndWrite when the document
	// changed since the caller read it.
	ErrConcurrencyConflict = errors.New("concurrency conflict: document changed since read")
)

// ETag identifies one state of a document. The empty ETag means "absent".
type ETag string

// documentLocks holds one mutex per absolute document path for the process.
var documentLocks sync.Map

func lockFor(path string) *sync.Mutex {
	mu, _ := documentLocks.LoadOrStore(path, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Store reads and replaces one JSON array document of T.
type Store[T any] struct {
	path       string
	mu         *sync.Mutex
	logger     Logger
	tracer     trace.Tracer
	retryDelay time.Duration
	rename     RenameFunc

	writeRetries metric.Int64Counter
	degraded     metric.Int64Counter
}

// Open prepares the document at path, creating its directory and an empty
// collection if it does not exist yet.
func Open[T any](path string, opts ...Option) (*Store[T], error) {
	cfg := defaultSettings()
	for _, opt := range opts {
		opt(&cfg)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, apperror.Wrap(apperror.KindStorageFailure, "store.init", err, "resolve %s", path)
	}

	meter := cfg.meterProvider.Meter("libradoc/docstore")
	writeRetries, _ := meter.Int64Counter("docstore.write.retries",
		metric.WithDescription("Document replaces retried after a failed rename"))
	degraded, _ := meter.Int64Counter("docstore.read.degraded",
		metric.WithDescription("Reads that fell back to an empty collection"))

	s := &Store[T]{
		path:         abs,
		mu:           lockFor(abs),
		logger:       cfg.logger,
		tracer:       cfg.tracerProvider.Tracer("libradoc/docstore"),
		retryDelay:   cfg.retryDelay,
		rename:       cfg.rename,
		writeRetries: writeRetries,
		degraded:     degraded,
	}

	if err := s.ensureDocument(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the absolute document path.
func (s *Store[T]) Path() string {
	return s.path
}

func (s *Store[T]) ensureDocument() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return apperror.Wrap(apperror.KindStorageFailure, "store.init", err, "create directory for %s", s.path)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return apperror.Wrap(apperror.KindStorageFailure, "store.init", err, "stat %s", s.path)
	}
	return s.write(context.Background(), []T{}, trace.SpanFromContext(context.Background()))
}

// ReadAll returns the full ordered collection. It never fails.
func (s *Store[T]) ReadAll(ctx context.Context) []T {
	items, _ := s.ReadVersioned(ctx)
	return items
}

// ReadVersioned returns the collection together with the ETag of the bytes it
// was decoded from.
func (s *Store[T]) ReadVersioned(ctx context.Context) ([]T, ETag) {
	ctx, span := s.tracer.Start(ctx, "docstore.read",
		trace.WithAttributes(attribute.String("document.path", s.path)),
	)
	defer span.End()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			span.RecordError(err)
		}
		s.degrade(ctx, span, "document unreadable, serving empty collection", err)
		return []T{}, ""
	}

	tag := etagOf(data)
	if len(bytes.TrimSpace(data)) == 0 {
		s.degrade(ctx, span, "document empty, serving empty collection", nil)
		return []T{}, tag
	}

	var items []T
	if err := json.Unmarshal(data, &items); err != nil {
		span.RecordError(err)
		s.degrade(ctx, span, "document malformed, serving empty collection", err)
		return []T{}, tag
	}
	if items == nil {
		items = []T{}
	}

	span.SetAttributes(attribute.Int("record.count", len(items)))
	return items, tag
}

func (s *Store[T]) degrade(ctx context.Context, span trace.Span, msg string, err error) {
	span.SetAttributes(attribute.Bool("read.degraded", true))
	s.degraded.Add(ctx, 1, metric.WithAttributes(attribute.String("document.path", s.path)))
	if err != nil {
		s.logger.Warn(msg, "path", s.path, "error", err)
		return
	}
	s.logger.Debug(msg, "path", s.path)
}

// WriteAll replaces the document with items. It takes no lock: two callers
// racing read-modify-write cycles through WriteAll lose updates.
func (s *Store[T]) WriteAll(ctx context.Context, items []T) error {
	ctx, span := s.tracer.Start(ctx, "docstore.write",
		trace.WithAttributes(
			attribute.String("document.path", s.path),
			attribute.Int("record.count", len(items)),
		),
	)
	defer span.End()

	return s.write(ctx, items, span)
}

// CompareAndWrite replaces the document only if it still has the expected
// ETag, returning ErrConcurrencyConflict otherwise.
func (s *Store[T]) CompareAndWrite(ctx context.Context, expected ETag, items []T) error {
	ctx, span := s.tracer.Start(ctx, "docstore.compare_and_write",
		trace.WithAttributes(
			attribute.String("document.path", s.path),
			attribute.String("expected.etag", string(expected)),
			attribute.Int("record.count", len(items)),
		),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.currentETag()
	if current != expected {
		span.SetAttributes(
			attribute.String("actual.etag", string(current)),
			attribute.Bool("conflict.detected", true),
		)
		return ErrConcurrencyConflict
	}

	return s.write(ctx, items, span)
}

// Update runs one read-modify-write cycle while holding the document's lock.
// If fn returns an error nothing is written.
func (s *Store[T]) Update(ctx context.Context, fn func([]T) ([]T, error)) error {
	ctx, span := s.tracer.Start(ctx, "docstore.update",
		trace.WithAttributes(attribute.String("document.path", s.path)),
	)
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()

	items, _ := s.ReadVersioned(ctx)
	next, err := fn(items)
	if err != nil {
		return err
	}

	span.SetAttributes(attribute.Int("record.count", len(next)))
	return s.write(ctx, next, span)
}

func (s *Store[T]) currentETag() ETag {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return ""
	}
	return etagOf(data)
}

func (s *Store[T]) write(ctx context.Context, items []T, span trace.Span) error {
	if items == nil {
		items = []T{}
	}

	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		span.RecordError(err)
		return apperror.Wrap(apperror.KindStorageFailure, "store.encode", err, "encode %s", s.path)
	}

	tmpPath, err := s.writeTemp(data)
	if err != nil {
		span.RecordError(err)
		return apperror.Wrap(apperror.KindStorageFailure, "store.write", err, "write temp file for %s", s.path)
	}

	if err := s.rename(tmpPath, s.path); err != nil {
		s.logger.Warn("document replace failed, retrying once", "path", s.path, "delay", s.retryDelay, "error", err)
		span.AddEvent("write.retry", trace.WithAttributes(attribute.String("error", err.Error())))
		s.writeRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("document.path", s.path)))

		time.Sleep(s.retryDelay)

		if err := s.rename(tmpPath, s.path); err != nil {
			_ = os.Remove(tmpPath)
			span.RecordError(err)
			s.logger.Error("document replace failed after retry", "path", s.path, "error", err)
			return apperror.Wrap(apperror.KindStorageFailure, "store.replace", err, "replace %s", s.path)
		}
	}

	span.SetAttributes(attribute.Bool("write.success", true))
	return nil
}

func (s *Store[T]) writeTemp(data []byte) (string, error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return "", err
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("sync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("close: %w", err)
	}
	return tmp.Name(), nil
}

func etagOf(data []byte) ETag {
	sum := sha256.Sum256(data)
	return ETag(hex.EncodeToString(sum[:]))
}
