// Package stream implements chunked search-and-replace over a byte stream.
//
// Input is read in blocks, decoded, and scanned as a window of text. A match
// that might still extend past the end of the window is held back together
// with everything after it, and the read size is doubled until the match can
// be decided. The output is identical however the input is split into reads.
package stream

import (
	"context"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"rpl/internal/casing"
	"rpl/internal/pattern"
	"rpl/internal/textcodec"
)

// DefaultBufferSize is the initial read size.
const DefaultBufferSize = 8 << 10

// Options configure a Replacer.
type Options struct {
	// MatchCase reshapes each replacement after the letter case of the text
	// it replaces.
	MatchCase bool
	// BufferSize is the initial read size; DefaultBufferSize if zero.
	BufferSize int
}

// Replacer substitutes every match of a pattern in a stream. It holds no
// per-stream state and may be shared between goroutines.
type Replacer struct {
	pat  *pattern.Pattern
	tmpl *pattern.Template
	opts Options
}

// New returns a Replacer for pat and tmpl.
func New(pat *pattern.Pattern, tmpl *pattern.Template, opts Options) *Replacer {
	if opts.BufferSize <= 0 {
		opts.BufferSize = DefaultBufferSize
	}
	return &Replacer{pat: pat, tmpl: tmpl, opts: opts}
}

// Replace copies src to dst, replacing every match, and returns the number of
// replacements. Both sides use codec. On error, dst holds a prefix of the
// output and must be discarded.
func (r *Replacer) Replace(ctx context.Context, src io.Reader, dst io.Writer, codec textcodec.Codec) (int, error) {
	log := zerolog.Ctx(ctx)
	dec := textcodec.NewDecoder(codec.Name, codec.Encoding)
	enc := textcodec.NewEncoder(dst, codec)
	sc := &scanner{
		m:         newMachine(r.pat.Prog()),
		tmpl:      r.tmpl,
		matchCase: r.opts.MatchCase,
		prev:      endOfText,
	}

	size := r.opts.BufferSize
	buf := make([]byte, size)
	pending := ""
	seen := false
	for {
		if len(buf) < size {
			buf = make([]byte, size)
		}
		n, err := io.ReadFull(src, buf[:size])
		eof := false
		switch {
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			eof = true
		case err != nil:
			return sc.count, errors.Errorf("reading input: %w", err)
		}
		seen = seen || n > 0

		text, err := dec.Decode(buf[:n], eof)
		if err != nil {
			return sc.count, err
		}
		for eof && dec.Pending() > 0 {
			rest, err := dec.Decode(nil, true)
			if err != nil {
				return sc.count, err
			}
			text += rest
		}
		window := pending + text

		if eof {
			if seen {
				out, _, _ := sc.scan(window, false)
				if err := enc.WriteString(out); err != nil {
					return sc.count, err
				}
			}
			if err := enc.Close(); err != nil {
				return sc.count, err
			}
			return sc.count, nil
		}
		if window == "" {
			continue
		}

		out, hold, grow := sc.scan(window, true)
		if err := enc.WriteString(out); err != nil {
			return sc.count, err
		}
		pending = hold
		if grow {
			size *= 2
			log.Debug().
				Str("held", humanize.IBytes(uint64(len(hold)))).
				Str("read_size", humanize.IBytes(uint64(size))).
				Msg("match undecided at end of buffer, growing")
		}
	}
}

// scanner carries match state from one window to the next.
type scanner struct {
	m         *machine
	tmpl      *pattern.Template
	matchCase bool

	// prev is the last rune before the next window.
	prev rune
	// afterMatch is set when the next window starts where a match ended, so
	// an empty match there is not counted twice.
	afterMatch bool
	count      int
}

// scan replaces matches in window and returns the finished output along with
// the suffix that must be rescanned with more text. grow reports a held
// suffix that is non-empty.
func (s *scanner) scan(window string, more bool) (out, hold string, grow bool) {
	var b strings.Builder
	cursor, pos := 0, 0
	prevEnd := -1
	if s.afterMatch {
		prevEnd = 0
	}
	for pos <= len(window) {
		capture, partial := s.m.match(window, pos, s.prev, more)
		if partial >= 0 {
			b.WriteString(window[cursor:partial])
			s.afterMatch = prevEnd == partial
			if partial > 0 {
				s.prev, _ = utf8.DecodeLastRuneInString(window[:partial])
			}
			return b.String(), window[partial:], partial < len(window)
		}
		if capture == nil {
			break
		}
		start, end := capture[0], capture[1]
		b.WriteString(window[cursor:start])
		if start != end || start != prevEnd {
			repl := s.tmpl.Expand(window, capture)
			if s.matchCase {
				repl = casing.Apply(window[start:end], repl)
			}
			b.WriteString(repl)
			cursor = end
			s.count++
		}
		prevEnd = end

		_, w := utf8.DecodeRuneInString(window[pos:])
		switch {
		case pos+w > end:
			pos += w
		case pos+1 > end:
			pos++
		default:
			pos = end
		}
	}
	b.WriteString(window[cursor:])
	s.afterMatch = prevEnd == len(window)
	if len(window) > 0 {
		s.prev, _ = utf8.DecodeLastRuneInString(window)
	}
	return b.String(), "", false
}
