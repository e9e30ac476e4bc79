package persistence

import "strings"

// SanitizeName reduces a user-supplied document name to letters, digits,
// spaces, hyphens, and underscores, dropping a trailing .json extension.
// Store implementations apply it before using a name as a storage key.
func SanitizeName(name string) string {
	trimmed := strings.TrimSuffix(strings.TrimSpace(name), ".json")

	var b strings.Builder

	for _, c := range trimmed {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
			b.WriteRune(c)
		case c == ' ', c == '-', c == '_':
			b.WriteRune(c)
		}
	}

	return strings.TrimSpace(b.String())
}
