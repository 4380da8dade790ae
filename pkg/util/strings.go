package util

import "strings"

func TrimString(s string, length int) string {
	if len(s) <= length {
		return s
	}

	return s[:length]
}

// MaskSecret keeps the first visible characters of a secret for log output
func MaskSecret(s string, visible int) string {
	if s == "" {
		return "<not set>"
	}

	if len(s) <= visible {
		return strings.Repeat("*", len(s))
	}

	return TrimString(s, visible) + "..."
}
