package pattern

import (
	"fmt"
	"strconv"
	"strings"
)

// TemplateError reports a malformed replacement template.
type TemplateError struct {
	Template string
	Pos      int
	Msg      string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("bad replacement %q at position %d: %s", e.Template, e.Pos, e.Msg)
}

type piece struct {
	lit   string
	group int // -1 for a literal piece
}

// Template is a parsed replacement text. Back-references are \1..\99,
// \g<N> and \g<name>; \\ is a literal backslash and \n, \t, \r, \a, \b, \f,
// \v, \0 and three-digit octal escapes name single characters.
type Template struct {
	raw    string
	pieces []piece
}

// ParseTemplate parses s against the groups of p. References to groups p
// does not have are rejected here, before any input is read.
func ParseTemplate(s string, p *Pattern) (*Template, error) {
	t := &Template{raw: s}
	var lit strings.Builder
	flush := func() {
		if lit.Len() > 0 {
			t.pieces = append(t.pieces, piece{lit: lit.String(), group: -1})
			lit.Reset()
		}
	}
	fail := func(pos int, format string, args ...any) (*Template, error) {
		return nil, &TemplateError{Template: s, Pos: pos, Msg: fmt.Sprintf(format, args...)}
	}
	group := func(pos, n int) error {
		if n < 0 || n > p.NumSubexp() {
			return &TemplateError{Template: s, Pos: pos, Msg: fmt.Sprintf("invalid group reference %d", n)}
		}
		flush()
		t.pieces = append(t.pieces, piece{group: n})
		return nil
	}

	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' {
			lit.WriteByte(c)
			continue
		}
		if i+1 == len(s) {
			return fail(i, "bad escape (end of template)")
		}
		c = s[i+1]
		switch {
		case c == 'g':
			end := strings.IndexByte(s[i:], '>')
			if i+2 >= len(s) || s[i+2] != '<' || end < 0 {
				return fail(i, "missing group name")
			}
			name := s[i+3 : i+end]
			n, err := strconv.Atoi(name)
			if err != nil {
				if n = p.SubexpIndex(name); n < 0 {
					return fail(i, "unknown group name %q", name)
				}
			}
			if err := group(i, n); err != nil {
				return nil, err
			}
			i += end
		case c == '0':
			j := i + 2
			for j < len(s) && j < i+4 && isOctDigit(s[j]) {
				j++
			}
			n, _ := strconv.ParseUint(s[i+1:j], 8, 32)
			lit.WriteRune(rune(n))
			i = j - 1
		case '1' <= c && c <= '9':
			if i+3 < len(s) && isOctDigit(c) && isOctDigit(s[i+2]) && isOctDigit(s[i+3]) {
				n, _ := strconv.ParseUint(s[i+1:i+4], 8, 32)
				if n > 0o377 {
					return fail(i, "octal escape value \\%s outside of range 0-0o377", s[i+1:i+4])
				}
				lit.WriteRune(rune(n))
				i += 3
				continue
			}
			j := i + 2
			if j < len(s) && '0' <= s[j] && s[j] <= '9' {
				j++
			}
			n, _ := strconv.Atoi(s[i+1 : j])
			if err := group(i, n); err != nil {
				return nil, err
			}
			i = j - 1
		default:
			if v, ok := unescapeLetter(c); ok {
				lit.WriteString(v)
			} else if 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' {
				return fail(i, "bad escape \\%c", c)
			} else {
				lit.WriteByte('\\')
				lit.WriteByte(c)
			}
			i++
		}
	}
	flush()
	return t, nil
}

// String returns the template source.
func (t *Template) String() string { return t.raw }

// Literal reports whether the template contains no back-references and
// returns its expansion if so.
func (t *Template) Literal() (string, bool) {
	var b strings.Builder
	for _, pc := range t.pieces {
		if pc.group >= 0 {
			return "", false
		}
		b.WriteString(pc.lit)
	}
	return b.String(), true
}

// Expand renders the template for one match. cap holds submatch byte
// offsets into text as produced by the matcher; groups that did not
// participate expand to the empty string.
func (t *Template) Expand(text string, cap []int) string {
	var b strings.Builder
	for _, pc := range t.pieces {
		if pc.group < 0 {
			b.WriteString(pc.lit)
			continue
		}
		if 2*pc.group+1 < len(cap) {
			if lo, hi := cap[2*pc.group], cap[2*pc.group+1]; lo >= 0 && hi >= lo {
				b.WriteString(text[lo:hi])
			}
		}
	}
	return b.String()
}
