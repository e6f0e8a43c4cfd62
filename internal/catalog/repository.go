package catalog

import (
	"context"
	"strings"

	"libradoc/internal/repository"
)

// Repository is the typed view of the books document.
type Repository struct {
	books *repository.Collection[Book]
}

func NewRepository(books *repository.Collection[Book]) *Repository {
	return &Repository{books: books}
}

func (r *Repository) FindAll(ctx context.Context) []Book {
	return r.books.FindAll(ctx)
}

func (r *Repository) FindByID(ctx context.Context, id string) (Book, bool) {
	return r.books.FindByID(ctx, id)
}

func (r *Repository) Save(ctx context.Context, book Book) error {
	return r.books.Save(ctx, book)
}

func (r *Repository) Delete(ctx context.Context, id string) error {
	return r.books.Delete(ctx, id)
}

// FindByTitleContaining matches titles case-insensitively.
func (r *Repository) FindByTitleContaining(ctx context.Context, query string) []Book {
	q := normalize(query)
	return r.books.Filter(ctx, func(b Book) bool {
		return strings.Contains(normalize(b.Title), q)
	})
}

// FindByAuthorContaining matches authors case-insensitively.
func (r *Repository) FindByAuthorContaining(ctx context.Context, query string) []Book {
	q := normalize(query)
	return r.books.Filter(ctx, func(b Book) bool {
		return strings.Contains(normalize(b.Author), q)
	})
}

// ExistsByTitleAndAuthor reports whether a book with the same trimmed,
// case-folded title and author exists.
func (r *Repository) ExistsByTitleAndAuthor(ctx context.Context, title, author string) bool {
	_, ok := r.books.Find(ctx, func(b Book) bool { return sameTitleAndAuthor(b, title, author) })
	return ok
}

// Mutate runs fn as one read-modify-write cycle of the whole catalog.
func (r *Repository) Mutate(ctx context.Context, fn func([]Book) ([]Book, error)) error {
	return r.books.Mutate(ctx, fn)
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func sameTitleAndAuthor(b Book, title, author string) bool {
	return strings.EqualFold(strings.TrimSpace(b.Title), strings.TrimSpace(title)) &&
		strings.EqualFold(strings.TrimSpace(b.Author), strings.TrimSpace(author))
}
