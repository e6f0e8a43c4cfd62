package docstore

import (
	"log/slog"
	"os"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// DefaultRetryDelay is how long WriteAll waits before retrying a failed replace.
const DefaultRetryDelay = 50 * time.Millisecond

// Logger is the logging surface the store needs. *slog.Logger satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// RenameFunc replaces newpath with oldpath. os.Rename is the default.
type RenameFunc func(oldpath, newpath string) error

// Option configures a Store.
type Option func(*settings)

type settings struct {
	logger         Logger
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	retryDelay     time.Duration
	rename         RenameFunc
}

func defaultSettings() settings {
	return settings{
		logger:         slog.Default(),
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
		retryDelay:     DefaultRetryDelay,
		rename:         os.Rename,
	}
}

// WithLogger sets the logger used for degraded reads and write retries.
func WithLogger(logger Logger) Option {
	return func(s *settings) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTracerProvider overrides the global tracer provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(s *settings) {
		if tp != nil {
			s.tracerProvider = tp
		}
	}
}

// WithMeterProvider overrides the global meter provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(s *settings) {
		if mp != nil {
			s.meterProvider = mp
		}
	}
}

// WithRetryDelay sets the pause before the single replace retry.
func WithRetryDelay(d time.Duration) Option {
	return func(s *settings) {
		if d >= 0 {
			s.retryDelay = d
		}
	}
}

// WithRenameFunc swaps the atomic replace primitive. Used for fault injection.
func WithRenameFunc(fn RenameFunc) Option {
	return func(s *settings) {
		if fn != nil {
			s.rename = fn
		}
	}
}
