package docs

import (
	"strings"
	"unicode"
)

// slugify derives a url-safe slug from a title: lowercase, runs of
// non-alphanumerics collapsed to single dashes, trimmed. Titles with no
// usable characters fall back to "untitled".
func slugify(title string) string {
	var b strings.Builder
	lastDash := true // suppress leading dash
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
	}
	slug := strings.TrimRight(b.String(), "-")
	if slug == "" {
		return "untitled"
	}
	return slug
}
