package utils

import (
	"regexp"
	"strings"
	"unicode"
)

const (
	MinUsernameLength = 3
	MaxUsernameLength = 30

	MinPasswordLength = 6
	MaxPasswordLength = 128
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)

// ValidateUsername returns a user-facing message, or "" when the username is acceptable.
// Rules: 3-30 characters of letters, numbers, underscores, dots and hyphens,
// starting with a letter or number.
func ValidateUsername(username string) string {
	username = strings.TrimSpace(username)

	if len(username) < MinUsernameLength {
		return "Username must be at least 3 characters"
	}
	if len(username) > MaxUsernameLength {
		return "Username must be at most 30 characters"
	}
	if !usernameRegex.MatchString(username) {
		return "Username can only contain letters, numbers, underscores, dots and hyphens"
	}
	first := rune(username[0])
	if !unicode.IsLetter(first) && !unicode.IsNumber(first) {
		return "Username must start with a letter or number"
	}
	return ""
}

// NormalizeUsername converts username to lowercase for storage
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// NormalizeEmail lowercases and trims an email address for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePasswordStrength returns a user-facing message, or "" when the
// password has 6-128 characters with upper, lower, digit and symbol classes.
func ValidatePasswordStrength(password string) string {
	if len(password) < MinPasswordLength {
		return "Password must be at least 6 characters"
	}
	if len(password) > MaxPasswordLength {
		return "Password must be at most 128 characters"
	}

	var upper, lower, digit, symbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			symbol = true
		}
	}
	if !upper || !lower || !digit || !symbol {
		return "Password must contain upper and lower case letters, a number and a symbol"
	}
	return ""
}
