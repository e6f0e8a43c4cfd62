package membership

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"libradoc/internal/apperror"
)

var (
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}$`)
	letterPattern   = regexp.MustCompile(`[a-zA-Z]`)
	digitPattern    = regexp.MustCompile(`[0-9]`)
)

func validateUsername(username string) []apperror.Violation {
	u := strings.TrimSpace(username)
	if u == "" {
		return []apperror.Violation{{Rule: "username.required", Message: "username is required"}}
	}

	var violations []apperror.Violation
	switch n := utf8.RuneCountInString(u); {
	case n < 3:
		violations = append(violations, apperror.Violation{Rule: "username.too_short", Message: "username must be at least 3 characters"})
	case n > 20:
		violations = append(violations, apperror.Violation{Rule: "username.too_long", Message: "username cannot exceed 20 characters"})
	}
	if !usernamePattern.MatchString(u) {
		violations = append(violations, apperror.Violation{Rule: "username.charset", Message: "username can only contain letters, numbers, and underscores"})
	}
	return violations
}

func validateEmail(email string) []apperror.Violation {
	e := strings.TrimSpace(email)
	if e == "" {
		return []apperror.Violation{{Rule: "email.required", Message: "email is required"}}
	}
	if !emailPattern.MatchString(e) {
		return []apperror.Violation{{Rule: "email.format", Message: "email format is invalid"}}
	}
	return nil
}

func validatePassword(password string) []apperror.Violation {
	if password == "" {
		return []apperror.Violation{{Rule: "password.required", Message: "password is required"}}
	}

	var violations []apperror.Violation
	if utf8.RuneCountInString(password) < 8 {
		violations = append(violations, apperror.Violation{Rule: "password.too_short", Message: "password must be at least 8 characters"})
	}
	if !letterPattern.MatchString(password) {
		violations = append(violations, apperror.Violation{Rule: "password.no_letter", Message: "password must contain at least one letter"})
	}
	if !digitPattern.MatchString(password) {
		violations = append(violations, apperror.Violation{Rule: "password.no_digit", Message: "password must contain at least one number"})
	}
	return violations
}

func validateRegistration(username, email, password string) error {
	var violations []apperror.Violation
	violations = append(violations, validateUsername(username)...)
	violations = append(violations, validateEmail(email)...)
	violations = append(violations, validatePassword(password)...)
	if len(violations) > 0 {
		return apperror.Validation("account", violations)
	}
	return nil
}

// validateUpdate checks username and email, and the password only when a new
// one is given.
func validateUpdate(username, email, password string) error {
	var violations []apperror.Violation
	violations = append(violations, validateUsername(username)...)
	violations = append(violations, validateEmail(email)...)
	if password != "" {
		violations = append(violations, validatePassword(password)...)
	}
	if len(violations) > 0 {
		return apperror.Validation("account", violations)
	}
	return nil
}
