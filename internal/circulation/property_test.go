package circulation

import (
	"context"
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"libradoc/internal/catalog"
	"libradoc/internal/repository"
)

// TestRentReturnKeepsBooksAndRentalsConsistent drives random rent and return
// sequences and checks the book/rental invariant after every step.
func TestRentReturnKeepsBooksAndRentalsConsistent(t *testing.T) {
	const maxActive = 3

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		f := newFixture(t, repository.ModeLocked, WithMaxActiveRentals(maxActive))

		users := []string{f.addUser(t, "ann"), f.addUser(t, "ben"), f.addUser(t, "cy")}
		var books []string
		for i := 0; i < 6; i++ {
			books = append(books, f.addBook(t, fmt.Sprintf("Title %d", i)))
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "rent") {
				userID := rapid.SampledFrom(users).Draw(rt, "user")
				bookID := rapid.SampledFrom(books).Draw(rt, "book")
				_, _ = f.svc.RentBook(ctx, userID, bookID)
			} else {
				active, _ := f.svc.GetAllActiveRentals(ctx)
				if len(active) == 0 {
					continue
				}
				rental := rapid.SampledFrom(active).Draw(rt, "rental")
				returner := rental.UserID
				if rapid.Bool().Draw(rt, "wrongOwner") {
					returner = rapid.SampledFrom(users).Draw(rt, "returner")
				}
				_, _ = f.svc.ReturnBook(ctx, rental.ID, returner)
			}

			checkInvariants(rt, f, users, maxActive)
		}
	})
}

func checkInvariants(rt *rapid.T, f *fixture, users []string, maxActive int) {
	ctx := context.Background()

	activeByBook := make(map[string]int)
	for _, r := range f.ledger.FindActive(ctx) {
		activeByBook[r.BookID]++
	}

	for _, b := range f.books.FindAll(ctx) {
		n := activeByBook[b.ID]
		if n > 1 {
			rt.Fatalf("book %s has %d active rentals", b.ID, n)
		}
		if (b.Status == catalog.StatusRented) != (n == 1) {
			rt.Fatalf("book %s is %s with %d active rentals", b.ID, b.Status, n)
		}
	}

	for _, userID := range users {
		if n := f.ledger.CountActiveByUserID(ctx, userID); n > maxActive {
			rt.Fatalf("user %s holds %d rentals, cap is %d", userID, n, maxActive)
		}
	}
}
