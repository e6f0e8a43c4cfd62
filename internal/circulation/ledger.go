package circulation

import (
	"context"

	"libradoc/internal/repository"
)

// Ledger is the typed view of the rentals document. Rentals are never
// deleted, so it has no Delete.
type Ledger struct {
	rentals *repository.Collection[Rental]
}

func NewLedger(rentals *repository.Collection[Rental]) *Ledger {
	return &Ledger{rentals: rentals}
}

func (l *Ledger) FindAll(ctx context.Context) []Rental {
	return l.rentals.FindAll(ctx)
}

func (l *Ledger) FindByID(ctx context.Context, id string) (Rental, bool) {
	return l.rentals.FindByID(ctx, id)
}

func (l *Ledger) Save(ctx context.Context, rental Rental) error {
	return l.rentals.Save(ctx, rental)
}

func (l *Ledger) FindByUserID(ctx context.Context, userID string) []Rental {
	return l.rentals.Filter(ctx, func(r Rental) bool { return r.UserID == userID })
}

func (l *Ledger) FindByBookID(ctx context.Context, bookID string) []Rental {
	return l.rentals.Filter(ctx, func(r Rental) bool { return r.BookID == bookID })
}

func (l *Ledger) FindActive(ctx context.Context) []Rental {
	return l.rentals.Filter(ctx, Rental.IsActive)
}

func (l *Ledger) FindActiveByUserID(ctx context.Context, userID string) []Rental {
	return l.rentals.Filter(ctx, func(r Rental) bool { return r.UserID == userID && r.IsActive() })
}

func (l *Ledger) CountActiveByUserID(ctx context.Context, userID string) int {
	return len(l.FindActiveByUserID(ctx, userID))
}

// Mutate runs fn as one read-modify-write cycle of the rentals document.
func (l *Ledger) Mutate(ctx context.Context, fn func([]Rental) ([]Rental, error)) error {
	return l.rentals.Mutate(ctx, fn)
}
