// internal/catalog/service.go
package catalog

import (
	"context"
	"io"

	"libradoc/internal/paging"
)

// Service defines the interface for the catalog service.
type Service interface {
	AddBook(ctx context.Context, title, author string, genre *string) (*Book, error)
	UpdateBook(ctx context.Context, id, title, author string, genre *string) (*Book, error)
	DeleteBook(ctx context.Context, id string) error
	GetBook(ctx context.Context, id string) (*Book, error)
	ListBooks(ctx context.Context) ([]Book, error)
	ListBooksPage(ctx context.Context, page, size int) (paging.Page[Book], error)
	GetAvailableBooks(ctx context.Context) ([]Book, error)
	SearchByTitle(ctx context.Context, query string) ([]Book, error)
	SearchByAuthor(ctx context.Context, query string) ([]Book, error)
	ImportBooks(ctx context.Context, rows []ImportRow) (*ImportSummary, error)
	ExportBooks(ctx context.Context, w io.Writer) error
}
