// internal/catalog/domain.go
package catalog

// BookStatus is the availability of a book.
type BookStatus string

const (
	StatusAvailable BookStatus = "AVAILABLE"
	StatusRented    BookStatus = "RENTED"
)

// Book is one title in the catalog. Status is RENTED exactly when one active
// rental references the book.
type Book struct {
	ID     string     `json:"id"`
	Title  string     `json:"title"`
	Author string     `json:"author"`
	Genre  *string    `json:"genre"`
	Status BookStatus `json:"status"`
}

func (b Book) RecordID() string { return b.ID }

// IsAvailable reports whether the book can be rented.
func (b Book) IsAvailable() bool { return b.Status == StatusAvailable }

// ImportRow is one entry of a catalog import file.
type ImportRow struct {
	Title  string  `json:"title"`
	Author string  `json:"author"`
	Genre  *string `json:"genre,omitempty"`
}

// ImportSummary reports the outcome of an import. Errors name the 1-based row.
type ImportSummary struct {
	Added   int      `json:"added"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors"`
}
