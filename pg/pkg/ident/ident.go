// Package ident validates and normalizes PostgreSQL identifiers (database,
// table, and column names). Values are parameterized in queries, but
// identifiers cannot be, so validation here is the injection defense for any
// name interpolated into DDL.
package ident

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLength is the PostgreSQL identifier limit (NAMEDATALEN - 1).
const MaxLength = 63

// Reason explains why an identifier was rejected.
type Reason string

const (
	ReasonEmpty            Reason = "empty"
	ReasonTooLong          Reason = "too_long"
	ReasonInvalidCharacter Reason = "invalid_character"
	ReasonLeadingDigit     Reason = "leading_digit"
)

// Error reports a rejected identifier and the reason.
type Error struct {
	Name   string
	Reason Reason
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid identifier %q: %s", e.Name, e.Reason)
}

// Validate checks that name is safe to interpolate into SQL: non-empty, at
// most MaxLength bytes, ASCII letters, digits, and underscores only, not
// starting with a digit.
func Validate(name string) error {
	if name == "" {
		return &Error{Name: name, Reason: ReasonEmpty}
	}
	if len(name) > MaxLength {
		return &Error{Name: name, Reason: ReasonTooLong}
	}
	first := name[0]
	if first >= '0' && first <= '9' {
		return &Error{Name: name, Reason: ReasonLeadingDigit}
	}
	for i := 0; i < len(name); i++ {
		if !isIdentByte(name[i]) {
			return &Error{Name: name, Reason: ReasonInvalidCharacter}
		}
	}
	return nil
}

// ValidateAll validates every name and reports all offenders, not just the
// first, so a caller can fix a whole column list in one pass.
func ValidateAll(names ...string) error {
	var errs []error
	for _, name := range names {
		if err := Validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Clean normalizes a raw column header to PostgreSQL conventions: trims
// whitespace, lowercases, replaces spaces, hyphens, and colons with
// underscores, and truncates to MaxLength.
func Clean(name string) string {
	cleaned := strings.TrimSpace(name)
	cleaned = strings.ToLower(cleaned)
	replacer := strings.NewReplacer(" ", "_", "-", "_", ":", "_")
	cleaned = replacer.Replace(cleaned)
	if len(cleaned) > MaxLength {
		cleaned = cleaned[:MaxLength]
	}
	return cleaned
}

func isIdentByte(b byte) bool {
	return b == '_' ||
		(b >= 'a' && b <= 'z') ||
		(b >= 'A' && b <= 'Z') ||
		(b >= '0' && b <= '9')
}
