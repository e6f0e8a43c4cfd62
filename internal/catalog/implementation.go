// internal/catalog/implementation.go
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"libradoc/internal/apperror"
	"libradoc/internal/paging"
)

// Logger is the logging surface the catalog service needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// service implements the Service interface.
type service struct {
	repo   *Repository
	logger Logger
}

// NewService creates a new catalog service instance.
func NewService(repo *Repository, logger Logger) Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &service{
		repo:   repo,
		logger: logger,
	}
}

// AddBook validates and stores a new available book.
func (s *service) AddBook(ctx context.Context, title, author string, genre *string) (*Book, error) {
	if violations := validateBook(title, author, genre); len(violations) > 0 {
		return nil, apperror.Validation("book", violations)
	}

	book := Book{
		ID:     uuid.NewString(),
		Title:  strings.TrimSpace(title),
		Author: strings.TrimSpace(author),
		Genre:  cleanGenre(genre),
		Status: StatusAvailable,
	}

	err := s.repo.Mutate(ctx, func(books []Book) ([]Book, error) {
		if slices.ContainsFunc(books, func(b Book) bool { return sameTitleAndAuthor(b, book.Title, book.Author) }) {
			return nil, duplicateError(book.Title, book.Author)
		}
		return append(books, book), nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("book added", "book_id", book.ID, "title", book.Title)
	return &book, nil
}

// UpdateBook rewrites the descriptive fields of a book. Status is untouched.
func (s *service) UpdateBook(ctx context.Context, id, title, author string, genre *string) (*Book, error) {
	if violations := validateBook(title, author, genre); len(violations) > 0 {
		return nil, apperror.Validation("book", violations)
	}

	title, author = strings.TrimSpace(title), strings.TrimSpace(author)
	genre = cleanGenre(genre)

	var updated Book
	err := s.repo.Mutate(ctx, func(books []Book) ([]Book, error) {
		idx := slices.IndexFunc(books, func(b Book) bool { return b.ID == id })
		if idx < 0 {
			return nil, bookNotFound(id)
		}
		if slices.ContainsFunc(books, func(b Book) bool { return b.ID != id && sameTitleAndAuthor(b, title, author) }) {
			return nil, duplicateError(title, author)
		}

		books[idx].Title = title
		books[idx].Author = author
		books[idx].Genre = genre
		updated = books[idx]
		return books, nil
	})
	if err != nil {
		return nil, err
	}

	return &updated, nil
}

// DeleteBook removes a book that is not currently rented.
func (s *service) DeleteBook(ctx context.Context, id string) error {
	err := s.repo.Mutate(ctx, func(books []Book) ([]Book, error) {
		idx := slices.IndexFunc(books, func(b Book) bool { return b.ID == id })
		if idx < 0 {
			return nil, bookNotFound(id)
		}
		if books[idx].Status == StatusRented {
			return nil, apperror.New(apperror.KindConflictingState, "book.rented",
				"book %s is rented and must be returned before deletion", id)
		}
		return slices.Delete(books, idx, idx+1), nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("book deleted", "book_id", id)
	return nil
}

// GetBook retrieves a book by its ID.
func (s *service) GetBook(ctx context.Context, id string) (*Book, error) {
	book, ok := s.repo.FindByID(ctx, id)
	if !ok {
		return nil, bookNotFound(id)
	}
	return &book, nil
}

func (s *service) ListBooks(ctx context.Context) ([]Book, error) {
	return s.repo.FindAll(ctx), nil
}

func (s *service) ListBooksPage(ctx context.Context, page, size int) (paging.Page[Book], error) {
	return paging.Paginate(s.repo.FindAll(ctx), page, size)
}

func (s *service) GetAvailableBooks(ctx context.Context) ([]Book, error) {
	return slices.DeleteFunc(s.repo.FindAll(ctx), func(b Book) bool { return !b.IsAvailable() }), nil
}

func (s *service) SearchByTitle(ctx context.Context, query string) ([]Book, error) {
	return s.repo.FindByTitleContaining(ctx, query), nil
}

func (s *service) SearchByAuthor(ctx context.Context, query string) ([]Book, error) {
	return s.repo.FindByAuthorContaining(ctx, query), nil
}

// ImportBooks adds every valid, non-duplicate row in one write. Rows that
// duplicate the catalog or an earlier row are skipped.
func (s *service) ImportBooks(ctx context.Context, rows []ImportRow) (*ImportSummary, error) {
	var summary ImportSummary

	err := s.repo.Mutate(ctx, func(books []Book) ([]Book, error) {
		summary = ImportSummary{Errors: []string{}}

		for i, row := range rows {
			if violations := validateBook(row.Title, row.Author, row.Genre); len(violations) > 0 {
				summary.Errors = append(summary.Errors, fmt.Sprintf("Row %d: %s", i+1, joinViolations(violations)))
				continue
			}

			title, author := strings.TrimSpace(row.Title), strings.TrimSpace(row.Author)
			if slices.ContainsFunc(books, func(b Book) bool { return sameTitleAndAuthor(b, title, author) }) {
				summary.Skipped++
				continue
			}

			books = append(books, Book{
				ID:     uuid.NewString(),
				Title:  title,
				Author: author,
				Genre:  cleanGenre(row.Genre),
				Status: StatusAvailable,
			})
			summary.Added++
		}
		return books, nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("catalog import finished",
		"added", summary.Added, "skipped", summary.Skipped, "errors", len(summary.Errors))
	return &summary, nil
}

// ExportBooks writes the catalog as an indented JSON array.
func (s *service) ExportBooks(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(s.repo.FindAll(ctx)); err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	return nil
}

// DecodeImport parses an import file into rows.
func DecodeImport(r io.Reader) ([]ImportRow, error) {
	var rows []ImportRow
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, apperror.Wrap(apperror.KindValidationFailed, "import.format", err, "import file is not a JSON array of books")
	}
	return rows, nil
}

func bookNotFound(id string) error {
	return apperror.New(apperror.KindNotFound, "book.not_found", "book %s not found", id)
}

func duplicateError(title, author string) error {
	return apperror.New(apperror.KindDuplicateCatalogEntry, "book.duplicate",
		"a book titled %q by %q already exists", title, author)
}

func joinViolations(violations []apperror.Violation) string {
	msgs := make([]string, 0, len(violations))
	for _, v := range violations {
		msgs = append(msgs, v.Message)
	}
	return strings.Join(msgs, "; ")
}
