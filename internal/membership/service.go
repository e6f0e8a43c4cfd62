// internal/membership/service.go
package membership

import (
	"context"

	"libradoc/internal/paging"
)

// Service defines the interface for the membership service.
type Service interface {
	Register(ctx context.Context, username, email, password string) (*User, error)
	Authenticate(ctx context.Context, username, password string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]User, error)
	ListUsersPage(ctx context.Context, page, size int) (paging.Page[User], error)
	// UpdateUser changes username and email. An empty password keeps the
	// current one.
	UpdateUser(ctx context.Context, id, username, email, password string) (*User, error)
	Promote(ctx context.Context, id string) (*User, error)
	Demote(ctx context.Context, id string) (*User, error)
	Delete(ctx context.Context, id string) error
	// EnsureAdmin creates a protected admin account unless the username is
	// already taken. It reports whether an account was created.
	EnsureAdmin(ctx context.Context, username, email, password string) (*User, bool, error)
}

// RentalLookup answers whether an account still holds books.
type RentalLookup interface {
	HasActiveRentals(ctx context.Context, userID string) (bool, error)
	// Exclusive runs fn while no rental can start or end.
	Exclusive(ctx context.Context, fn func(ctx context.Context) error) error
}
