// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"libradoc/internal/apperror"
	"libradoc/internal/catalog"
	"libradoc/internal/membership"
	"libradoc/internal/repository"
)

// DefaultMaxActiveRentals is the per-user cap on ACTIVE rentals.
const DefaultMaxActiveRentals = 5

var errBookMissing = errors.New("book record missing")

// Logger is the logging surface the circulation service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Option configures the circulation service.
type Option func(*service)

// WithMaxActiveRentals sets the per-user cap. Non-positive values are ignored.
func WithMaxActiveRentals(n int) Option {
	return func(s *service) {
		if n > 0 {
			s.maxActive = n
		}
	}
}

// WithMode matches the coordinator to the repositories' concurrency mode.
// Every mode except ModeUnsafe serializes rent, return and reconcile.
func WithMode(mode repository.Mode) Option {
	return func(s *service) { s.mode = mode }
}

func WithLogger(logger Logger) Option {
	return func(s *service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock replaces time.Now for rent and return dates.
func WithClock(now func() time.Time) Option {
	return func(s *service) {
		if now != nil {
			s.now = now
		}
	}
}

// service implements the Service interface.
type service struct {
	books  *catalog.Repository
	users  *membership.Repository
	ledger *Ledger

	mu        sync.Mutex
	mode      repository.Mode
	maxActive int
	now       func() time.Time
	logger    Logger
	tracer    trace.Tracer

	rentals       metric.Int64Counter
	returns       metric.Int64Counter
	compensations metric.Int64Counter
}

// NewService creates a new circulation service instance.
func NewService(books *catalog.Repository, users *membership.Repository, ledger *Ledger, opts ...Option) Service {
	meter := otel.Meter("libradoc/circulation")
	rentals, _ := meter.Int64Counter("circulation.rentals.started", metric.WithDescription("Successful rentals"))
	returns, _ := meter.Int64Counter("circulation.rentals.closed", metric.WithDescription("Successful returns"))
	compensations, _ := meter.Int64Counter("circulation.rent.compensations",
		metric.WithDescription("Rentals rolled back after the rental write failed"))

	s := &service{
		books:         books,
		users:         users,
		ledger:        ledger,
		mode:          repository.ModeLocked,
		maxActive:     DefaultMaxActiveRentals,
		now:           time.Now,
		logger:        slog.Default(),
		tracer:        otel.Tracer("libradoc/circulation"),
		rentals:       rentals,
		returns:       returns,
		compensations: compensations,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// serialize takes the coordinator lock unless running unguarded.
func (s *service) serialize() func() {
	if s.mode == repository.ModeUnsafe {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// RentBook orchestrates the rental saga: mark the book RENTED, then record
// the rental, rolling the book back if the second write fails.
func (s *service) RentBook(ctx context.Context, userID, bookID string) (*Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.rent_book",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("book.id", bookID),
		),
	)
	defer span.End()
	defer s.serialize()()

	// Step 1: Validate the user
	if _, ok := s.users.FindByID(ctx, userID); !ok {
		return nil, apperror.New(apperror.KindNotFound, "account.not_found", "account %s not found", userID)
	}

	// Step 2: Check book availability
	book, ok := s.books.FindByID(ctx, bookID)
	if !ok {
		return nil, bookNotFound(bookID)
	}
	if !book.IsAvailable() {
		return nil, bookUnavailable(bookID)
	}

	// Step 3: Enforce the per-user cap
	if n := s.ledger.CountActiveByUserID(ctx, userID); n >= s.maxActive {
		return nil, apperror.New(apperror.KindRentalLimitExceeded, "rental.limit",
			"account %s already holds %d of %d rentals", userID, n, s.maxActive)
	}

	rental := Rental{
		ID:       uuid.NewString(),
		UserID:   userID,
		BookID:   bookID,
		RentDate: s.now().UTC(),
		Status:   RentalActive,
	}

	// Step 4: Mark the book rented (with compensation)
	if err := s.markRented(ctx, bookID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	compensation := func() {
		s.logger.Warn("compensating failed rental: returning book to AVAILABLE", "book_id", bookID, "rental_id", rental.ID)
		s.compensations.Add(ctx, 1)
		if err := s.markAvailable(context.WithoutCancel(ctx), bookID); err != nil {
			s.logger.Error("compensation failed: book left RENTED without an active rental",
				"book_id", bookID, "error", err)
			span.AddEvent("compensation.failed")
		}
	}

	// Step 5: Record the rental
	if err := s.ledger.Save(ctx, rental); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "rental write failed")
		compensation()
		return nil, err
	}

	s.rentals.Add(ctx, 1)
	s.logger.Info("book rented", "rental_id", rental.ID, "user_id", userID, "book_id", bookID)
	return &rental, nil
}

// ReturnBook closes an ACTIVE rental owned by userID and frees its book.
func (s *service) ReturnBook(ctx context.Context, rentalID, userID string) (*Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_book",
		trace.WithAttributes(
			attribute.String("rental.id", rentalID),
			attribute.String("user.id", userID),
		),
	)
	defer span.End()
	defer s.serialize()()

	rental, ok := s.ledger.FindByID(ctx, rentalID)
	if !ok {
		return nil, rentalNotFound(rentalID)
	}
	if rental.UserID != userID {
		return nil, apperror.New(apperror.KindForbidden, "rental.owner", "rental %s belongs to another account", rentalID)
	}
	if !rental.IsActive() {
		return nil, rentalInactive(rentalID)
	}

	returnedAt := s.now().UTC()
	var closed Rental
	err := s.ledger.Mutate(ctx, func(rentals []Rental) ([]Rental, error) {
		idx := slices.IndexFunc(rentals, func(r Rental) bool { return r.ID == rentalID })
		if idx < 0 {
			return nil, rentalNotFound(rentalID)
		}
		if !rentals[idx].IsActive() {
			return nil, rentalInactive(rentalID)
		}
		rentals[idx].Status = RentalClosed
		rentals[idx].ReturnDate = &returnedAt
		closed = rentals[idx]
		return rentals, nil
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	// The rental is closed from here on; the book update is best-effort.
	switch err := s.markAvailable(ctx, rental.BookID); {
	case errors.Is(err, errBookMissing):
		s.logger.Warn("returned rental references a missing book", "rental_id", rentalID, "book_id", rental.BookID)
	case err != nil:
		span.RecordError(err)
		s.logger.Error("book left RENTED after return, reconciliation will repair it",
			"rental_id", rentalID, "book_id", rental.BookID, "error", err)
	}

	s.returns.Add(ctx, 1)
	s.logger.Info("book returned", "rental_id", rentalID, "user_id", userID, "book_id", rental.BookID)
	return &closed, nil
}

// markRented flips the book to RENTED only if it is still AVAILABLE.
func (s *service) markRented(ctx context.Context, bookID string) error {
	return s.books.Mutate(ctx, func(books []catalog.Book) ([]catalog.Book, error) {
		idx := slices.IndexFunc(books, func(b catalog.Book) bool { return b.ID == bookID })
		if idx < 0 {
			return nil, bookNotFound(bookID)
		}
		if !books[idx].IsAvailable() {
			return nil, bookUnavailable(bookID)
		}
		books[idx].Status = catalog.StatusRented
		return books, nil
	})
}

func (s *service) markAvailable(ctx context.Context, bookID string) error {
	return s.books.Mutate(ctx, func(books []catalog.Book) ([]catalog.Book, error) {
		idx := slices.IndexFunc(books, func(b catalog.Book) bool { return b.ID == bookID })
		if idx < 0 {
			return nil, errBookMissing
		}
		books[idx].Status = catalog.StatusAvailable
		return books, nil
	})
}

// GetRental retrieves a rental by its ID.
func (s *service) GetRental(ctx context.Context, id string) (*Rental, error) {
	rental, ok := s.ledger.FindByID(ctx, id)
	if !ok {
		return nil, rentalNotFound(id)
	}
	return &rental, nil
}

func (s *service) GetUserActiveRentals(ctx context.Context, userID string) ([]Rental, error) {
	return s.ledger.FindActiveByUserID(ctx, userID), nil
}

func (s *service) GetAllActiveRentals(ctx context.Context) ([]Rental, error) {
	return s.ledger.FindActive(ctx), nil
}

// GetUserRentalHistory returns every rental of the user, active or closed.
func (s *service) GetUserRentalHistory(ctx context.Context, userID string) ([]Rental, error) {
	return s.ledger.FindByUserID(ctx, userID), nil
}

func (s *service) HasActiveRentals(ctx context.Context, userID string) (bool, error) {
	return s.ledger.CountActiveByUserID(ctx, userID) > 0, nil
}

func (s *service) Exclusive(ctx context.Context, fn func(ctx context.Context) error) error {
	defer s.serialize()()
	return fn(ctx)
}

func bookNotFound(id string) error {
	return apperror.New(apperror.KindNotFound, "book.not_found", "book %s not found", id)
}

func bookUnavailable(id string) error {
	return apperror.New(apperror.KindBookUnavailable, "book.rented", "book %s is not available for rental", id)
}

func rentalNotFound(id string) error {
	return apperror.New(apperror.KindNotFound, "rental.not_found", "rental %s not found", id)
}

func rentalInactive(id string) error {
	return apperror.New(apperror.KindConflictingState, "rental.inactive", "rental %s is already closed", id)
}
