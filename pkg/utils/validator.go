package utils

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

const (
	// MaxIdentifierLength caps identities and barangay IDs
	MaxIdentifierLength = 128

	// MaxRemarksLength caps free-text transition remarks, in runes
	MaxRemarksLength = 1000
)

var (
	identifierRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._@:+\-]*$`)
	controlRegex    = regexp.MustCompile(`[\x00-\x08\x0b-\x1f\x7f]`)
)

// ValidateIdentifier checks an identity or barangay ID is a single printable token
func ValidateIdentifier(field, value string) error {
	if value == "" {
		return fmt.Errorf("%s is required", field)
	}
	if len(value) > MaxIdentifierLength {
		return fmt.Errorf("%s exceeds %d characters", field, MaxIdentifierLength)
	}
	if !identifierRegex.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}

// SanitizeString removes control characters other than tab and newline, then trims
func SanitizeString(s string) string {
	return strings.TrimSpace(controlRegex.ReplaceAllString(s, ""))
}

// SanitizeRemarks sanitizes free text and truncates it to MaxRemarksLength runes
func SanitizeRemarks(s string) string {
	s = SanitizeString(s)
	if utf8.RuneCountInString(s) <= MaxRemarksLength {
		return s
	}
	return string([]rune(s)[:MaxRemarksLength])
}
