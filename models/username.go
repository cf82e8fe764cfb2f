package models

import (
	"regexp"
	"strings"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{5,32}$`)

// NormalizeUsername lowercases a raw handle and strips surrounding whitespace
// and any leading @.
func NormalizeUsername(raw string) string {
	username := strings.ToLower(strings.TrimSpace(raw))
	username = strings.TrimPrefix(username, "@")
	return strings.TrimSpace(username)
}

// IsValidUsername reports whether a normalized handle is a syntactically
// valid Telegram username: 5-32 characters of [a-zA-Z0-9_], not ending in an
// underscore and without consecutive underscores. Invalid handles must
// short-circuit classification before any network call.
func IsValidUsername(username string) bool {
	if !usernamePattern.MatchString(username) {
		return false
	}
	if strings.HasSuffix(username, "_") || strings.Contains(username, "__") {
		return false
	}
	return true
}
