package utils

import "unicode/utf8"

func Ptr[T any](v T) *T { return &v }

// Truncate shortens s to at most limit bytes without splitting a rune and
// appends an ellipsis when anything was cut.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
