package pattern

import (
	"regexp"
	"strconv"
	"strings"
)

// PrepareOptions selects the text transforms applied to OLD-TEXT and
// NEW-TEXT before the pattern is compiled.
type PrepareOptions struct {
	// Escape expands backslash escapes (\n, \t, \NNN, \xHH, ...) in both texts.
	Escape bool
	// Fixed matches OLD-TEXT literally and keeps backslashes in NEW-TEXT literal.
	Fixed bool
	// WholeWords anchors OLD-TEXT at word boundaries.
	WholeWords bool
}

// Prepare turns the raw OLD-TEXT and NEW-TEXT arguments into a pattern
// expression and a replacement template. Escape expansion runs first, then
// fixed-string quoting, then whole-word wrapping.
func Prepare(oldText, newText string, opts PrepareOptions) (expr, template string) {
	if opts.Escape {
		oldText = Unescape(oldText)
		newText = Unescape(newText)
	}
	if opts.Fixed {
		oldText = regexp.QuoteMeta(oldText)
		newText = strings.ReplaceAll(newText, `\`, `\\`)
	}
	if opts.WholeWords {
		oldText = `\b(?:` + oldText + `)\b`
	}
	return oldText, newText
}

func isOctDigit(b byte) bool {
	return '0' <= b && b <= '7'
}

func isHexDigit(b byte) bool {
	return '0' <= b && b <= '9' || 'a' <= b && b <= 'f' || 'A' <= b && b <= 'F'
}

func unescapeLetter(c byte) (string, bool) {
	switch c {
	case 'a':
		return "\a", true
	case 'b':
		return "\b", true
	case 'f':
		return "\f", true
	case 'n':
		return "\n", true
	case 'r':
		return "\r", true
	case 't':
		return "\t", true
	case 'v':
		return "\v", true
	case '\\':
		return `\`, true
	}
	return "", false
}

// Unescape expands the legacy escape sequences \a \b \f \n \r \t \v \\,
// octal \N, \NN, \NNN and hex \xHH into the characters they name. Any other
// backslash is kept as is, so regex escapes such as \d and back-references
// such as \1 survive when they are not octal.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] != '\\' || i+1 == len(s) {
			b.WriteByte(s[i])
			continue
		}
		c := s[i+1]
		if v, ok := unescapeLetter(c); ok {
			b.WriteString(v)
			i++
			continue
		}
		if isOctDigit(c) {
			j := i + 1
			for j < len(s) && j < i+4 && isOctDigit(s[j]) {
				j++
			}
			n, _ := strconv.ParseUint(s[i+1:j], 8, 32)
			b.WriteRune(rune(n))
			i = j - 1
			continue
		}
		if c == 'x' && i+3 < len(s) && isHexDigit(s[i+2]) && isHexDigit(s[i+3]) {
			n, _ := strconv.ParseUint(s[i+2:i+4], 16, 8)
			b.WriteRune(rune(n))
			i += 3
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}
