// Package paging slices ordered result sets into zero-based pages.
package paging

import (
	"libradoc/internal/apperror"
)

const (
	DefaultSize = 10
	MaxSize     = 100
)

// Page is one slice of a larger ordered result.
type Page[T any] struct {
	Items       []T  `json:"content"`
	Page        int  `json:"page"`
	Size        int  `json:"size"`
	TotalItems  int  `json:"totalElements"`
	TotalPages  int  `json:"totalPages"`
	HasNext     bool `json:"hasNext"`
	HasPrevious bool `json:"hasPrevious"`
}

// Validate checks page and size, listing every violation.
func Validate(page, size int) error {
	var violations []apperror.Violation
	if page < 0 {
		violations = append(violations, apperror.Violation{Rule: "page.negative", Message: "page number cannot be negative"})
	}
	if size < 1 {
		violations = append(violations, apperror.Violation{Rule: "page.size_min", Message: "page size must be at least 1"})
	}
	if size > MaxSize {
		violations = append(violations, apperror.Violation{Rule: "page.size_max", Message: "page size cannot exceed 100"})
	}
	if len(violations) > 0 {
		return apperror.Validation("page", violations)
	}
	return nil
}

// Paginate returns page number page of items. A page past the end is empty.
func Paginate[T any](items []T, page, size int) (Page[T], error) {
	if err := Validate(page, size); err != nil {
		return Page[T]{}, err
	}

	total := len(items)
	totalPages := (total + size - 1) / size

	start := min(page*size, total)
	end := min(start+size, total)

	content := make([]T, end-start)
	copy(content, items[start:end])

	return Page[T]{
		Items:       content,
		Page:        page,
		Size:        size,
		TotalItems:  total,
		TotalPages:  totalPages,
		HasNext:     page < totalPages-1,
		HasPrevious: page > 0,
	}, nil
}
