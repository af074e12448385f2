package database

import (
	"regexp"
	"strings"
)

var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

// ValidateEmail reports whether s looks like an email address.
func ValidateEmail(s string) bool {
	return emailPattern.MatchString(s)
}

func requireText(op, field, value string) error {
	if strings.TrimSpace(value) == "" {
		return validationError(op, "%s is required", field)
	}
	return nil
}
