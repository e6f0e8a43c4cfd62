package chaos

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"libradoc/internal/apperror"
	"libradoc/internal/catalog"
)

const seedPassword = "ChaosPass123"

// RegisterExperiments registers all predefined experiments with the engine.
func (e *Engine) RegisterExperiments() {
	e.RegisterExperiment(e.ConcurrentRentRaceExperiment(20))
	e.RegisterExperiment(e.TransientWriteFailureExperiment())
	e.RegisterExperiment(e.RentalWriteFailureExperiment())
	e.RegisterExperiment(e.CorruptedRentalsExperiment())
}

// ConcurrentRentRaceExperiment lets concurrency members race for one book.
func (e *Engine) ConcurrentRentRaceExperiment(concurrency int) Experiment {
	var successes atomic.Int64

	return Experiment{
		Name:       "concurrent-rent-race",
		Hypothesis: "Exactly one of many simultaneous rentals of the same book succeeds",
		SteadyState: []Metric{
			e.consistencyMetric(),
			{
				Name:      "successful_rentals",
				Query:     func(context.Context) (float64, error) { return float64(successes.Load()), nil },
				Threshold: Threshold{Operator: "<=", Value: 1},
			},
		},
		Method: []Action{
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					bookID, err := e.seedBook(ctx)
					if err != nil {
						return err
					}
					members := make([]string, 0, concurrency)
					for i := 0; i < concurrency; i++ {
						id, err := e.seedMember(ctx)
						if err != nil {
							return err
						}
						members = append(members, id)
					}

					var (
						wg   sync.WaitGroup
						mu   sync.Mutex
						errs []error
					)
					for _, userID := range members {
						wg.Add(1)
						go func() {
							defer wg.Done()
							_, err := e.lib.Circulation.RentBook(ctx, userID, bookID)
							switch {
							case err == nil:
								successes.Add(1)
							case !errors.Is(err, apperror.ErrBookUnavailable):
								mu.Lock()
								errs = append(errs, err)
								mu.Unlock()
							}
						}()
					}
					wg.Wait()
					return errors.Join(errs...)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "consistency_issues",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "No book may end up with two active rentals",
			},
			{
				Metric:    "successful_rentals",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "Exactly one rental should succeed",
			},
		},
	}
}

// TransientWriteFailureExperiment fails a single replace of the books
// document in the middle of a rental.
func (e *Engine) TransientWriteFailureExperiment() Experiment {
	var rented atomic.Int64

	return Experiment{
		Name:       "transient-write-failure",
		Hypothesis: "A single failed document replace is absorbed by the write retry",
		SteadyState: []Metric{
			e.consistencyMetric(),
			{
				Name:      "rent_succeeded",
				Query:     func(context.Context) (float64, error) { return float64(rented.Load()), nil },
				Threshold: Threshold{Operator: ">=", Value: 0},
			},
		},
		Method: []Action{
			{
				Type:   "fail-rename-once",
				Target: filepath.Base(e.lib.Config().BooksPath),
				Execute: func(ctx context.Context) error {
					userID, bookID, err := e.seedPair(ctx)
					if err != nil {
						return err
					}
					e.faults.FailRenames(filepath.Base(e.lib.Config().BooksPath), 1)
					if _, err := e.lib.Circulation.RentBook(ctx, userID, bookID); err != nil {
						return err
					}
					rented.Store(1)
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "rent_succeeded",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "The rental should succeed despite one failed replace",
			},
			{
				Metric:    "consistency_issues",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Books and rentals should agree",
			},
		},
	}
}

// RentalWriteFailureExperiment fails every replace of the rentals document
// so the rental saga has to compensate.
func (e *Engine) RentalWriteFailureExperiment() Experiment {
	var bookID string
	rentals := filepath.Base(e.lib.Config().RentalsPath)

	return Experiment{
		Name:       "rental-write-failure",
		Hypothesis: "A rental that cannot be recorded leaves its book AVAILABLE",
		SteadyState: []Metric{
			e.consistencyMetric(),
			e.bookRentedMetric("target_book_rented", &bookID),
		},
		Method: []Action{
			{
				Type:   "fail-rename",
				Target: rentals,
				Execute: func(ctx context.Context) error {
					userID, id, err := e.seedPair(ctx)
					if err != nil {
						return err
					}
					bookID = id

					e.faults.FailRenames(rentals, -1)
					_, err = e.lib.Circulation.RentBook(ctx, userID, bookID)
					if err == nil {
						return errors.New("rental was recorded although its document could not be replaced")
					}
					if !errors.Is(err, apperror.ErrStorageFailure) {
						return fmt.Errorf("unexpected rental error: %w", err)
					}
					return nil
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "restore-rename",
				Target: rentals,
				Execute: func(context.Context) error {
					e.faults.Clear()
					return nil
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "target_book_rented",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Compensation should return the book to AVAILABLE",
			},
			{
				Metric:    "consistency_issues",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Books and rentals should agree",
			},
		},
	}
}

// CorruptedRentalsExperiment overwrites the rentals document with garbage
// while a rental is active, then writes through the corruption.
func (e *Engine) CorruptedRentalsExperiment() Experiment {
	path := e.lib.Config().RentalsPath

	return Experiment{
		Name:       "corrupted-rentals-document",
		Hypothesis: "A corrupted rentals document reads as empty and reconciliation restores consistency",
		SteadyState: []Metric{
			e.consistencyMetric(),
		},
		Method: []Action{
			{
				Type:   "corrupt-document",
				Target: filepath.Base(path),
				Execute: func(ctx context.Context) error {
					userID, first, err := e.seedPair(ctx)
					if err != nil {
						return err
					}
					second, err := e.seedBook(ctx)
					if err != nil {
						return err
					}
					if _, err := e.lib.Circulation.RentBook(ctx, userID, first); err != nil {
						return err
					}

					if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
						return fmt.Errorf("failed to corrupt %s: %w", path, err)
					}

					_, err = e.lib.Circulation.RentBook(ctx, userID, second)
					return err
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "reconcile",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					_, err := e.lib.Circulation.Reconcile(ctx, true)
					return err
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "consistency_issues",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "Reconciliation should leave no inconsistencies",
			},
		},
	}
}

func (e *Engine) consistencyMetric() Metric {
	return Metric{
		Name: "consistency_issues",
		Query: func(ctx context.Context) (float64, error) {
			report, err := e.lib.Circulation.Reconcile(ctx, false)
			if err != nil {
				return 0, err
			}
			return float64(len(report.Issues)), nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

// bookRentedMetric reads 1 while the book *bookID is RENTED and 0 otherwise,
// including before the book exists.
func (e *Engine) bookRentedMetric(name string, bookID *string) Metric {
	return Metric{
		Name: name,
		Query: func(ctx context.Context) (float64, error) {
			if *bookID == "" {
				return 0, nil
			}
			book, ok := e.lib.Books.FindByID(ctx, *bookID)
			if ok && book.Status == catalog.StatusRented {
				return 1, nil
			}
			return 0, nil
		},
		Threshold: Threshold{Operator: "==", Value: 0},
	}
}

func (e *Engine) seedMember(ctx context.Context) (string, error) {
	name := "chaos_" + uuid.NewString()[:8]
	user, err := e.lib.Membership.Register(ctx, name, name+"@chaos.test", seedPassword)
	if err != nil {
		return "", fmt.Errorf("failed to seed member: %w", err)
	}
	return user.ID, nil
}

func (e *Engine) seedBook(ctx context.Context) (string, error) {
	book, err := e.lib.Catalog.AddBook(ctx, "Chaos "+uuid.NewString()[:8], "Chaos Monkey", nil)
	if err != nil {
		return "", fmt.Errorf("failed to seed book: %w", err)
	}
	return book.ID, nil
}

func (e *Engine) seedPair(ctx context.Context) (userID, bookID string, err error) {
	if userID, err = e.seedMember(ctx); err != nil {
		return "", "", err
	}
	if bookID, err = e.seedBook(ctx); err != nil {
		return "", "", err
	}
	return userID, bookID, nil
}
