// Package storage lays out recording files under the output directory and
// provides atomic file writes and disk usage reporting.
package storage

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// maxNameLength bounds a sanitised path element in bytes.
const maxNameLength = 120

// SanitizeName turns a stream or show name into a single safe path element.
// Accents are folded ("Café" becomes "Cafe"), path separators and control
// characters are replaced with underscores and surrounding dots and spaces
// are trimmed. An empty result becomes "unnamed".
func SanitizeName(name string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, name)
	if err != nil {
		folded = name
	}

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' ||
			r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}

	out := strings.Trim(b.String(), ". ")
	if len(out) > maxNameLength {
		out = truncateUTF8(out, maxNameLength)
	}
	if out == "" {
		return "unnamed"
	}
	return out
}

// truncateUTF8 cuts s to at most n bytes on a rune boundary.
func truncateUTF8(s string, n int) string {
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return strings.TrimRight(s[:cut], ". ")
}
