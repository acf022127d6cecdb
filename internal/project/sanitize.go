package project

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrEmptyName is returned when nothing usable is left after sanitizing.
var ErrEmptyName = errors.New("sanitized repository name is empty")

var invalidNameChars = regexp.MustCompile(`[^a-z0-9._-]`)

// Sanitize turns an arbitrary name into a registry repository token:
// lowercase, [a-z0-9._-] only, no leading or trailing separators.
func Sanitize(name string) (string, error) {
	s := strings.ToLower(name)
	s = invalidNameChars.ReplaceAllString(s, "-")
	s = strings.Trim(s, "._-")
	if s == "" {
		return "", fmt.Errorf("%w (input %q)", ErrEmptyName, name)
	}
	return s, nil
}

// ValidateRepoName reports whether name is already in sanitized form.
func ValidateRepoName(name string) error {
	s, err := Sanitize(name)
	if err != nil {
		return err
	}
	if s != name {
		return fmt.Errorf("invalid repository name %q (expected %q)", name, s)
	}
	return nil
}
