package storage

import (
	"strings"
	"unicode"
)

// SanitizeFolderName maps arbitrary text to a filesystem-safe folder-name
// fragment. Every character that is not a letter, digit, whitespace or
// hyphen is dropped; runs of whitespace and hyphens collapse into a single
// underscore; leading and trailing underscores are trimmed. The function is
// pure and total — empty input yields an empty string.
//
// Uniqueness of the resulting folder is not this function's job: callers
// append the national id to the fragment.
func SanitizeFolderName(name string) string {
	var b strings.Builder
	pendingSep := false

	for _, r := range name {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			pendingSep = true
		}
	}

	return b.String()
}
