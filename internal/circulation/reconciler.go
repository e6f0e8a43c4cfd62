package circulation

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"libradoc/internal/catalog"
)

// Reconcile compares the books and rentals documents. Only two cases are
// repaired: a RENTED book with no ACTIVE rental goes back to AVAILABLE, and
// an AVAILABLE book with exactly one ACTIVE rental becomes RENTED. Double
// bookings and rentals for deleted books are reported for a human.
func (s *service) Reconcile(ctx context.Context, repair bool) (*Report, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.reconcile",
		trace.WithAttributes(attribute.Bool("repair", repair)),
	)
	defer span.End()
	defer s.serialize()()

	books := s.books.FindAll(ctx)
	rentals := s.ledger.FindAll(ctx)

	active := make(map[string][]string)
	for _, r := range rentals {
		if r.IsActive() {
			active[r.BookID] = append(active[r.BookID], r.ID)
		}
	}

	report := &Report{CheckedBooks: len(books), CheckedRentals: len(rentals), Issues: []Issue{}}
	fixes := make(map[string]catalog.BookStatus)
	known := make(map[string]bool, len(books))

	for _, b := range books {
		known[b.ID] = true
		ids := active[b.ID]

		switch {
		case len(ids) > 1:
			report.Issues = append(report.Issues, Issue{Kind: IssueMultipleActiveRentals, BookID: b.ID, RentalIDs: ids})
		case len(ids) == 0 && b.Status == catalog.StatusRented:
			report.Issues = append(report.Issues, Issue{Kind: IssueRentedWithoutRental, BookID: b.ID})
			fixes[b.ID] = catalog.StatusAvailable
		case len(ids) == 1 && b.Status == catalog.StatusAvailable:
			report.Issues = append(report.Issues, Issue{Kind: IssueRentalOnAvailableBook, BookID: b.ID, RentalIDs: ids})
			fixes[b.ID] = catalog.StatusRented
		}
	}

	reported := make(map[string]bool)
	for _, r := range rentals {
		if r.IsActive() && !known[r.BookID] && !reported[r.BookID] {
			reported[r.BookID] = true
			report.Issues = append(report.Issues, Issue{Kind: IssueRentalForMissingBook, BookID: r.BookID, RentalIDs: active[r.BookID]})
		}
	}

	span.SetAttributes(attribute.Int("issues.found", len(report.Issues)))

	if repair && len(fixes) > 0 {
		err := s.books.Mutate(ctx, func(books []catalog.Book) ([]catalog.Book, error) {
			for i := range books {
				if status, ok := fixes[books[i].ID]; ok {
					books[i].Status = status
				}
			}
			return books, nil
		})
		if err != nil {
			span.RecordError(err)
			s.logger.Error("reconciliation repair failed", "error", err)
			return report, err
		}

		for i := range report.Issues {
			if _, ok := fixes[report.Issues[i].BookID]; ok {
				report.Issues[i].Repaired = true
			}
		}
	}

	if report.Clean() {
		s.logger.Info("reconciliation found no issues", "books", report.CheckedBooks, "rentals", report.CheckedRentals)
	} else {
		s.logger.Warn("reconciliation found issues",
			"issues", len(report.Issues), "outstanding", report.Outstanding(), "repair", repair)
	}
	return report, nil
}
