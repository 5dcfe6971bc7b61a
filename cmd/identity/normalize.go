package identity

import "strings"

// NormalizeEmail performs case-insensitive canonicalization. Uniqueness and
// lookups are defined over the normalized form.
func NormalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
