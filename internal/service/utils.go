package service

import (
	"strings"
	"unicode/utf8"
)

const maxSnippetBytes = 256

// sanitizeUTF8 drops invalid UTF-8 sequences so remote text can be stored
// in PostgreSQL TEXT columns.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}

	var result strings.Builder
	result.Grow(len(s))

	for len(s) > 0 {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError && size == 1 {
			s = s[1:]
			continue
		}
		result.WriteRune(r)
		s = s[size:]
	}

	return result.String()
}

// bodySnippet renders a remote response body for error messages.
func bodySnippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxSnippetBytes {
		s = s[:maxSnippetBytes] + "..."
	}
	return sanitizeUTF8(s)
}
