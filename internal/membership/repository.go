package membership

import (
	"context"
	"strings"

	"libradoc/internal/repository"
)

// Repository is the typed view of the users document.
type Repository struct {
	users *repository.Collection[User]
}

func NewRepository(users *repository.Collection[User]) *Repository {
	return &Repository{users: users}
}

func (r *Repository) FindAll(ctx context.Context) []User {
	return r.users.FindAll(ctx)
}

func (r *Repository) FindByID(ctx context.Context, id string) (User, bool) {
	return r.users.FindByID(ctx, id)
}

// FindByUsername matches the trimmed username case-insensitively.
func (r *Repository) FindByUsername(ctx context.Context, username string) (User, bool) {
	return r.users.Find(ctx, func(u User) bool { return sameFold(u.Username, username) })
}

// FindByEmail matches the trimmed email case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (User, bool) {
	return r.users.Find(ctx, func(u User) bool { return sameFold(u.Email, email) })
}

func (r *Repository) ExistsByUsername(ctx context.Context, username string) bool {
	_, ok := r.FindByUsername(ctx, username)
	return ok
}

func (r *Repository) ExistsByEmail(ctx context.Context, email string) bool {
	_, ok := r.FindByEmail(ctx, email)
	return ok
}

func (r *Repository) Save(ctx context.Context, user User) error {
	return r.users.Save(ctx, user)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.users.Delete(ctx, id)
}

// Mutate runs fn as one read-modify-write cycle of the users document.
func (r *Repository) Mutate(ctx context.Context, fn func([]User) ([]User, error)) error {
	return r.users.Mutate(ctx, fn)
}

func sameFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
