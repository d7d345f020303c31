package validators

import (
	"strings"
	"unicode"
)

// SanitizeString drops control characters, collapses runs of whitespace and
// truncates to maxLen runes.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, input)
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if maxLen > 0 {
		if runes := []rune(cleaned); len(runes) > maxLen {
			cleaned = strings.TrimSpace(string(runes[:maxLen]))
		}
	}
	return cleaned
}
