// internal/circulation/service.go
package circulation

import (
	"context"
)

// Service defines the interface for the circulation service.
type Service interface {
	RentBook(ctx context.Context, userID, bookID string) (*Rental, error)
	ReturnBook(ctx context.Context, rentalID, userID string) (*Rental, error)
	GetRental(ctx context.Context, id string) (*Rental, error)
	GetUserActiveRentals(ctx context.Context, userID string) ([]Rental, error)
	GetAllActiveRentals(ctx context.Context) ([]Rental, error)
	GetUserRentalHistory(ctx context.Context, userID string) ([]Rental, error)
	HasActiveRentals(ctx context.Context, userID string) (bool, error)
	// Exclusive runs fn under the same serialization as rent and return, so
	// fn's reads of the rentals stay true until it returns. fn must not call
	// RentBook, ReturnBook, Reconcile or Exclusive.
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
	// Reconcile finds books and rentals that disagree. With repair set it
	// fixes the cases that have exactly one correct answer.
	Reconcile(ctx context.Context, repair bool) (*Report, error)
}
