package catalog

import (
	"strings"
	"unicode/utf8"

	"libradoc/internal/apperror"
)

const (
	maxTitleLength  = 100
	maxAuthorLength = 50
	maxGenreLength  = 30
)

func validateBook(title, author string, genre *string) []apperror.Violation {
	var violations []apperror.Violation

	switch t := strings.TrimSpace(title); {
	case t == "":
		violations = append(violations, apperror.Violation{Rule: "title.required", Message: "title is required"})
	case utf8.RuneCountInString(t) > maxTitleLength:
		violations = append(violations, apperror.Violation{Rule: "title.too_long", Message: "title cannot exceed 100 characters"})
	}

	switch a := strings.TrimSpace(author); {
	case a == "":
		violations = append(violations, apperror.Violation{Rule: "author.required", Message: "author is required"})
	case utf8.RuneCountInString(a) > maxAuthorLength:
		violations = append(violations, apperror.Violation{Rule: "author.too_long", Message: "author name cannot exceed 50 characters"})
	}

	if genre != nil && utf8.RuneCountInString(strings.TrimSpace(*genre)) > maxGenreLength {
		violations = append(violations, apperror.Violation{Rule: "genre.too_long", Message: "genre cannot exceed 30 characters"})
	}

	return violations
}

// cleanGenre trims genre and maps blank to nil.
func cleanGenre(genre *string) *string {
	if genre == nil {
		return nil
	}
	g := strings.TrimSpace(*genre)
	if g == "" {
		return nil
	}
	return &g
}
