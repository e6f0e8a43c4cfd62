// Package apperror defines the tagged error type shared by the library services.
//
// Every business failure carries a Kind (what class of failure it is) and a
// Rule (which check fired). Callers branch on either with errors.Is, KindOf or
// RuleOf; error text is for humans only.
package apperror

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindValidationFailed
	KindDuplicateCatalogEntry
	KindDuplicateAccount
	KindBookUnavailable
	KindRentalLimitExceeded
	KindConflictingState
	KindForbidden
	KindStorageFailure
	KindInvalidCredentials
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindValidationFailed:
		return "validation_failed"
	case KindDuplicateCatalogEntry:
		return "duplicate_catalog_entry"
	case KindDuplicateAccount:
		return "duplicate_account"
	case KindBookUnavailable:
		return "book_unavailable"
	case KindRentalLimitExceeded:
		return "rental_limit_exceeded"
	case KindConflictingState:
		return "conflicting_state"
	case KindForbidden:
		return "forbidden"
	case KindStorageFailure:
		return "storage_failure"
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// Sentinels for errors.Is matching by kind.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrValidationFailed      = &Error{Kind: KindValidationFailed}
	ErrDuplicateCatalogEntry = &Error{Kind: KindDuplicateCatalogEntry}
	ErrDuplicateAccount      = &Error{Kind: KindDuplicateAccount}
	ErrBookUnavailable       = &Error{Kind: KindBookUnavailable}
	ErrRentalLimitExceeded   = &Error{Kind: KindRentalLimitExceeded}
	ErrConflictingState      = &Error{Kind: KindConflictingState}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrStorageFailure        = &Error{Kind: KindStorageFailure}
	ErrInvalidCredentials    = &Error{Kind: KindInvalidCredentials}
	ErrRateLimited           = &Error{Kind: KindRateLimited}
)

// Violation is a single failed validation rule.
type Violation struct {
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Error is a business or storage failure with its rule identity.
type Error struct {
	Kind       Kind
	Rule       string
	Message    string
	Violations []Violation
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	if e.Rule != "" {
		b.WriteString(" [")
		b.WriteString(e.Rule)
		b.WriteString("]")
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if len(e.Violations) > 0 {
		msgs := make([]string, 0, len(e.Violations))
		for _, v := range e.Violations {
			msgs = append(msgs, v.Message)
		}
		b.WriteString(": ")
		b.WriteString(strings.Join(msgs, ", "))
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error of the same kind. A target with a Rule also
// requires the rule to match.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Rule == "" || t.Rule == e.Rule
}

// New builds an error of the given kind and rule.
func New(kind Kind, rule, format string, args ...any) *Error {
	return &Error{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an error of the given kind around a cause.
func Wrap(kind Kind, rule string, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Rule: rule, Message: fmt.Sprintf(format, args...), Err: err}
}

// Validation builds a ValidationFailed error listing every violation.
func Validation(rule string, violations []Violation) *Error {
	return &Error{Kind: KindValidationFailed, Rule: rule, Violations: violations}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// RuleOf returns the rule of the first *Error in err's chain.
func RuleOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Rule
	}
	return ""
}

// ViolationsOf returns the validation violations carried by err, if any.
func ViolationsOf(err error) []Violation {
	var e *Error
	if errors.As(err, &e) {
		return e.Violations
	}
	return nil
}

// HasViolation reports whether err carries a violation with the given rule.
func HasViolation(err error, rule string) bool {
	for _, v := range ViolationsOf(err) {
		if v.Rule == rule {
			return true
		}
	}
	return false
}
