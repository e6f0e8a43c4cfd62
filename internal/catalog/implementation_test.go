package catalog

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libradoc/internal/apperror"
	"libradoc/internal/cache"
	"libradoc/internal/docstore"
	"libradoc/internal/repository"
)

func newTestService(t *testing.T) (Service, *Repository) {
	t.Helper()

	store, err := docstore.Open[Book](filepath.Join(t.TempDir(), "books.json"), docstore.WithRetryDelay(0))
	require.NoError(t, err)
	repo := NewRepository(repository.New(store, cache.NewTTL[[]Book](cache.DefaultTTL)))
	return NewService(repo, nil), repo
}

func ptr(s string) *string { return &s }

func TestAddBook(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	book, err := svc.AddBook(ctx, "  Dune ", " Frank Herbert", ptr(" Sci-Fi "))
	require.NoError(t, err)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	assert.Equal(t, "Sci-Fi", *book.Genre)
	assert.Equal(t, StatusAvailable, book.Status)

	stored, ok := repo.FindByID(ctx, book.ID)
	require.True(t, ok)
	assert.Equal(t, *book, stored)
}

func TestAddBookRejectsDuplicateTitleAndAuthor(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	_, err := svc.AddBook(ctx, "Dune", "Frank Herbert", nil)
	require.NoError(t, err)

	_, err = svc.AddBook(ctx, " dune ", "FRANK HERBERT", nil)
	assert.True(t, errors.Is(err, apperror.ErrDuplicateCatalogEntry))
	assert.Len(t, repo.FindAll(ctx), 1)

	_, err = svc.AddBook(ctx, "Dune", "Brian Herbert", nil)
	assert.NoError(t, err)
}

func TestAddBookValidation(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	_, err := svc.AddBook(ctx, " ", strings.Repeat("a", 51), ptr(strings.Repeat("g", 31)))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperror.ErrValidationFailed))
	assert.True(t, apperror.HasViolation(err, "title.required"))
	assert.True(t, apperror.HasViolation(err, "author.too_long"))
	assert.True(t, apperror.HasViolation(err, "genre.too_long"))
	assert.Empty(t, repo.FindAll(ctx))

	_, err = svc.AddBook(ctx, strings.Repeat("t", 100), strings.Repeat("a", 50), ptr(strings.Repeat("g", 30)))
	assert.NoError(t, err)
}

func TestUpdateBook(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	dune, err := svc.AddBook(ctx, "Dune", "Frank Herbert", nil)
	require.NoError(t, err)
	_, err = svc.AddBook(ctx, "Emma", "Jane Austen", nil)
	require.NoError(t, err)

	updated, err := svc.UpdateBook(ctx, dune.ID, "Dune Messiah", "Frank Herbert", ptr("Sci-Fi"))
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, StatusAvailable, updated.Status)

	_, err = svc.UpdateBook(ctx, dune.ID, "emma", "jane austen", nil)
	assert.True(t, errors.Is(err, apperror.ErrDuplicateCatalogEntry))

	_, err = svc.UpdateBook(ctx, dune.ID, "Dune Messiah", "Frank Herbert", nil)
	assert.NoError(t, err, "renaming to its own title is not a duplicate")

	_, err = svc.UpdateBook(ctx, "missing", "X", "Y", nil)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestDeleteBook(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	book, err := svc.AddBook(ctx, "Dune", "Frank Herbert", nil)
	require.NoError(t, err)

	rented := *book
	rented.Status = StatusRented
	require.NoError(t, repo.Save(ctx, rented))

	err = svc.DeleteBook(ctx, book.ID)
	assert.True(t, errors.Is(err, apperror.ErrConflictingState))
	assert.Equal(t, "book.rented", apperror.RuleOf(err))

	rented.Status = StatusAvailable
	require.NoError(t, repo.Save(ctx, rented))
	require.NoError(t, svc.DeleteBook(ctx, book.ID))

	_, err = svc.GetBook(ctx, book.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteBook(ctx, book.ID), apperror.ErrNotFound))
}

func TestQueries(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	dune, _ := svc.AddBook(ctx, "Dune", "Frank Herbert", nil)
	_, _ = svc.AddBook(ctx, "Children of Dune", "Frank Herbert", nil)
	_, _ = svc.AddBook(ctx, "Emma", "Jane Austen", nil)

	rented := *dune
	rented.Status = StatusRented
	require.NoError(t, repo.Save(ctx, rented))

	byTitle, _ := svc.SearchByTitle(ctx, "DUNE")
	assert.Len(t, byTitle, 2)

	byAuthor, _ := svc.SearchByAuthor(ctx, " austen")
	require.Len(t, byAuthor, 1)
	assert.Equal(t, "Emma", byAuthor[0].Title)

	available, _ := svc.GetAvailableBooks(ctx)
	assert.Len(t, available, 2)
	for _, b := range available {
		assert.NotEqual(t, dune.ID, b.ID)
	}

	all, _ := svc.ListBooks(ctx)
	assert.Len(t, all, 3)

	page, err := svc.ListBooksPage(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 2, page.TotalPages)

	_, err = svc.ListBooksPage(ctx, -1, 2)
	assert.True(t, errors.Is(err, apperror.ErrValidationFailed))

	assert.True(t, repo.ExistsByTitleAndAuthor(ctx, " emma", "JANE AUSTEN "))
}

func TestImportBooks(t *testing.T) {
	ctx := context.Background()
	svc, repo := newTestService(t)

	_, err := svc.AddBook(ctx, "Dune", "Frank Herbert", nil)
	require.NoError(t, err)

	input := `[
		{"title": "Emma", "author": "Jane Austen", "genre": "Classic"},
		{"title": "dune", "author": "frank herbert"},
		{"title": "", "author": "Nobody"},
		{"title": "Emma", "author": "Jane Austen"},
		{"title": "Solaris", "author": "Stanislaw Lem", "extra": true}
	]`
	rows, err := DecodeImport(strings.NewReader(input))
	require.NoError(t, err)

	summary, err := svc.ImportBooks(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)
	assert.Equal(t, 2, summary.Skipped)
	require.Len(t, summary.Errors, 1)
	assert.True(t, strings.HasPrefix(summary.Errors[0], "Row 3:"), summary.Errors[0])

	assert.Len(t, repo.FindAll(ctx), 3)
}

func TestDecodeImportRejectsMalformedInput(t *testing.T) {
	_, err := DecodeImport(strings.NewReader(`{"title": "not an array"}`))
	assert.True(t, errors.Is(err, apperror.ErrValidationFailed))
	assert.Equal(t, "import.format", apperror.RuleOf(err))
}

func TestExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, _ = svc.AddBook(ctx, "Dune", "Frank Herbert", ptr("Sci-Fi"))
	_, _ = svc.AddBook(ctx, "Emma", "Jane Austen", nil)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportBooks(ctx, &buf))
	assert.Contains(t, buf.String(), `"status": "AVAILABLE"`)

	rows, err := DecodeImport(&buf)
	require.NoError(t, err)

	target, _ := newTestService(t)
	summary, err := target.ImportBooks(ctx, rows)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Added)

	books, _ := target.ListBooks(ctx)
	assert.Len(t, books, 2)
}

func TestExportEmptyCatalog(t *testing.T) {
	svc, _ := newTestService(t)

	var buf bytes.Buffer
	require.NoError(t, svc.ExportBooks(context.Background(), &buf))
	assert.JSONEq(t, `[]`, buf.String())
}
