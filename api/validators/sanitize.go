package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims, collapses inner whitespace runs and cuts to maxLen
// runes so multibyte names are never split mid-character.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Join(strings.Fields(input), " ")
	if maxLen <= 0 || utf8.RuneCountInString(cleaned) <= maxLen {
		return cleaned
	}
	return string([]rune(cleaned)[:maxLen])
}
