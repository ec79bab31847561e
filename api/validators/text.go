package validators

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// SanitizeString trims free text typed by users, drops control characters,
// collapses runs of whitespace and caps the result at maxLen runes. Names and
// addresses often arrive in Devanagari, so the cap never splits a rune.
func SanitizeString(input string, maxLen int) string {
	var b strings.Builder
	b.Grow(len(input))
	space := false
	for _, r := range strings.TrimSpace(input) {
		switch {
		case unicode.IsSpace(r):
			space = true
			continue
		case unicode.IsControl(r), r == utf8.RuneError:
			continue
		}
		if space && b.Len() > 0 {
			b.WriteByte(' ')
		}
		space = false
		b.WriteRune(r)
	}
	out := b.String()
	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		out = strings.TrimSpace(string([]rune(out)[:maxLen]))
	}
	return out
}

// SanitizeMultiline is SanitizeString for chat messages and update posts,
// where line breaks are kept but blank-line runs are squeezed to one.
func SanitizeMultiline(input string, maxLen int) string {
	lines := strings.Split(strings.ReplaceAll(input, "\r\n", "\n"), "\n")
	kept := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = SanitizeString(line, 0)
		if line == "" {
			if !blank && len(kept) > 0 {
				kept = append(kept, "")
			}
			blank = true
			continue
		}
		blank = false
		kept = append(kept, line)
	}
	out := strings.TrimSpace(strings.Join(kept, "\n"))
	if maxLen > 0 && utf8.RuneCountInString(out) > maxLen {
		out = strings.TrimSpace(string([]rune(out)[:maxLen]))
	}
	return out
}
