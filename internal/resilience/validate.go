package resilience

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// MaxListNameLength bounds mailing list names.
const MaxListNameLength = 100

// ValidateRequired rejects empty or blank values.
func ValidateRequired(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return Validation(field, "cannot be empty")
	}
	return nil
}

// ValidateName rejects empty names and names longer than max characters.
func ValidateName(field, value string, max int) error {
	if err := ValidateRequired(field, value); err != nil {
		return err
	}
	if n := utf8.RuneCountInString(value); n > max {
		return Validation(field, fmt.Sprintf("too long (%d > %d characters)", n, max))
	}
	return nil
}

// ValidateEmail rejects empty addresses and addresses without an '@'.
func ValidateEmail(field, email string) error {
	if email == "" {
		return Validation(field, "email cannot be empty")
	}
	if !strings.Contains(email, "@") {
		return Validation(field, fmt.Sprintf("invalid email address %q", email))
	}
	return nil
}

// ValidateID rejects non-positive identifiers.
func ValidateID(field string, id int) error {
	if id <= 0 {
		return Validation(field, fmt.Sprintf("must be a positive integer, got %d", id))
	}
	return nil
}

// ValidateIDs rejects an empty list or any non-positive member.
func ValidateIDs(field string, ids []int) error {
	if len(ids) == 0 {
		return Validation(field, "cannot be empty")
	}
	for _, id := range ids {
		if id <= 0 {
			return Validation(field, fmt.Sprintf("must contain positive integers only, got %d", id))
		}
	}
	return nil
}

// FirstError returns the first non-nil error.
func FirstError(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
