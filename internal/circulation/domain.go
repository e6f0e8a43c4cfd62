// internal/circulation/domain.go
package circulation

import (
	"time"
)

// RentalStatus is the lifecycle state of a rental. CLOSED is terminal.
type RentalStatus string

const (
	RentalActive RentalStatus = "ACTIVE"
	RentalClosed RentalStatus = "CLOSED"
)

// Rental represents a book lent to a user.
type Rental struct {
	ID         string       `json:"id"`
	UserID     string       `json:"userId"`
	BookID     string       `json:"bookId"`
	RentDate   time.Time    `json:"rentDate"`
	Status     RentalStatus `json:"status"`
	ReturnDate *time.Time   `json:"returnDate"`
}

func (r Rental) RecordID() string { return r.ID }

func (r Rental) IsActive() bool { return r.Status == RentalActive }

// IssueKind names one class of book/rental inconsistency.
type IssueKind string

const (
	// IssueRentedWithoutRental is a RENTED book with no ACTIVE rental, left
	// behind when a rent failed between its two writes.
	IssueRentedWithoutRental IssueKind = "rented_book_without_active_rental"
	// IssueRentalOnAvailableBook is an ACTIVE rental whose book is AVAILABLE.
	IssueRentalOnAvailableBook IssueKind = "active_rental_on_available_book"
	// IssueMultipleActiveRentals is a book referenced by more than one ACTIVE
	// rental.
	IssueMultipleActiveRentals IssueKind = "book_with_multiple_active_rentals"
	// IssueRentalForMissingBook is an ACTIVE rental whose book was removed.
	IssueRentalForMissingBook IssueKind = "active_rental_for_missing_book"
)

// Issue is one inconsistency found by Reconcile.
type Issue struct {
	Kind      IssueKind `json:"kind"`
	BookID    string    `json:"bookId"`
	RentalIDs []string  `json:"rentalIds,omitempty"`
	Repaired  bool      `json:"repaired"`
}

// Report is the outcome of one reconciliation pass.
type Report struct {
	CheckedBooks   int     `json:"checkedBooks"`
	CheckedRentals int     `json:"checkedRentals"`
	Issues         []Issue `json:"issues"`
}

// Clean reports whether no inconsistency was found.
func (r *Report) Clean() bool { return len(r.Issues) == 0 }

// Count returns the number of issues of kind.
func (r *Report) Count(kind IssueKind) int {
	n := 0
	for _, issue := range r.Issues {
		if issue.Kind == kind {
			n++
		}
	}
	return n
}

// Outstanding returns the number of issues left unrepaired.
func (r *Report) Outstanding() int {
	n := 0
	for _, issue := range r.Issues {
		if !issue.Repaired {
			n++
		}
	}
	return n
}
