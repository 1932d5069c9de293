package util

import "strings"

func RemoveNonAlphabetChars(s string) string {
	s = strings.ToLower(s)

	var builder strings.Builder
	for _, r := range s {
		if 'a' <= r && r <= 'z' {
			builder.WriteRune(r)
		}
	}

	return builder.String()
}

// Slug turns a stage or cell label into a filesystem/object-key safe
// lowercase name, keeping digits, dashes and dots.
func Slug(s string) string {
	s = strings.ToLower(s)

	var builder strings.Builder
	for _, r := range s {
		switch {
		case 'a' <= r && r <= 'z', '0' <= r && r <= '9', r == '.', r == '-':
			builder.WriteRune(r)
		case r == ' ', r == '_', r == '/':
			builder.WriteRune('-')
		}
	}

	return builder.String()
}
