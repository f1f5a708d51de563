package validators

import (
	"strings"
	"unicode/utf8"
)

// SanitizeString trims surrounding space and cuts the result to at most
// maxLen runes. maxLen <= 0 disables the cut.
func SanitizeString(input string, maxLen int) string {
	s := strings.TrimSpace(input)
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	return strings.TrimSpace(string(runes[:maxLen]))
}
