package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims, drops control characters and caps the result at
// maxLen runes. Names and delivery notes are forwarded to the processor and
// riders, so multi-byte characters are never split.
func SanitizeString(input string, maxLen int) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.TrimSpace(input))
	if maxLen <= 0 {
		return cleaned
	}
	runes := []rune(cleaned)
	if len(runes) <= maxLen {
		return cleaned
	}
	return strings.TrimSpace(string(runes[:maxLen]))
}
