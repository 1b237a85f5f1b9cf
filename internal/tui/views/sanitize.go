package views

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// sanitizeForTerminal makes provider text safe to hand to tview:
// CRLF line endings are folded to LF, control characters other than newline
// and tab are dropped, and emoji modifiers that tcell renders at the wrong
// width are stripped (skin tones, zero width joiners, variation selectors).
func sanitizeForTerminal(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if isProblematicRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isProblematicRune(r rune) bool {
	switch {
	case r == '\n' || r == '\t':
		return false
	case unicode.IsControl(r):
		return true
	// Skin tone modifiers.
	case r >= 0x1F3FB && r <= 0x1F3FF:
		return true
	// Zero Width Joiner.
	case r == 0x200D:
		return true
	// Variation Selectors.
	case r >= 0xFE00 && r <= 0xFE0F:
		return true
	// Variation Selectors Supplement.
	case r >= 0xE0100 && r <= 0xE01EF:
		return true
	default:
		return false
	}
}

// singleLine collapses s to one line for table cells.
func singleLine(s string) string {
	return strings.Join(strings.Fields(sanitizeForTerminal(s)), " ")
}
