package session

import "strings"

var htmlEscaper = strings.NewReplacer(
	`&`, "&amp;",
	`<`, "&lt;",
	`>`, "&gt;",
	`'`, "&#39;",
	`"`, "&quot;",
)

// sanitize trims whitespace, escapes the HTML-significant characters, and
// clips to maxLen runes.
func sanitize(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	s = htmlEscaper.Replace(s)
	if maxLen > 0 {
		r := []rune(s)
		if len(r) > maxLen {
			s = string(r[:maxLen])
		}
	}
	return s
}
