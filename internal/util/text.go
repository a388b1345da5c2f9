package util

import "strings"

// SanitizePostgresText strips null bytes and invalid UTF-8, neither of
// which postgres text columns accept.
func SanitizePostgresText(value string) string {
	if value == "" {
		return value
	}

	sanitized := strings.ToValidUTF8(value, "")
	return strings.ReplaceAll(sanitized, "\x00", "")
}
