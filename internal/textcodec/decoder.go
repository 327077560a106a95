package textcodec

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/transform"
)

// DecodeError reports input that is not valid in the selected encoding. It is
// only returned for bytes that cannot be the start of a sequence completed by
// later input.
type DecodeError struct {
	Encoding string
	Offset   int64
	Reason   string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decoding error (%s at byte %d as %s)", e.Reason, e.Offset, e.Encoding)
}

// Decoder turns successive raw reads into text. Bytes that do not decode at
// the end of one read are carried over and prepended to the next.
type Decoder struct {
	name     string
	enc      encoding.Encoding
	dec      transform.Transformer
	carry    []byte
	consumed int64
	buf      []byte
}

// NewDecoder returns a Decoder for enc; name is used in error messages.
func NewDecoder(name string, enc encoding.Encoding) *Decoder {
	return &Decoder{name: name, enc: enc, dec: enc.NewDecoder()}
}

// Pending returns the number of carried-over bytes awaiting more input.
func (d *Decoder) Pending() int { return len(d.carry) }

// Decode decodes the carried-over bytes followed by raw. atEOF reports that
// no read will follow raw. If decoding fails at byte k > 0 of that block, the
// first k bytes are decoded and the rest carried to the next call; failure at
// the first byte is a *DecodeError. An incomplete sequence at the end of the
// block is carried without error unless atEOF is set.
func (d *Decoder) Decode(raw []byte, atEOF bool) (string, error) {
	block := raw
	if len(d.carry) > 0 {
		block = append(d.carry, raw...)
		d.carry = nil
	}
	if len(block) == 0 {
		return "", nil
	}

	text, n, err := d.transform(block, atEOF)
	if err != nil {
		return "", err
	}
	if off, idx, reason := d.invalidAt(text, block[:n]); off == 0 {
		return "", &DecodeError{Encoding: d.name, Offset: d.consumed, Reason: reason}
	} else if off > 0 {
		text, n = text[:idx], off
	}
	if n == 0 && atEOF {
		return "", &DecodeError{Encoding: d.name, Offset: d.consumed, Reason: "truncated sequence"}
	}
	if n < len(block) {
		d.carry = append([]byte(nil), block[n:]...)
	}
	d.consumed += int64(n)
	return text, nil
}

// transform runs the decoder over block, returning the text and the number of
// bytes consumed. An incomplete trailing sequence is left unconsumed.
func (d *Decoder) transform(block []byte, atEOF bool) (string, int, error) {
	if cap(d.buf) < 2*len(block)+utf8.UTFMax {
		d.buf = make([]byte, 2*len(block)+utf8.UTFMax)
	}
	dst := d.buf[:cap(d.buf)]
	var out strings.Builder
	nSrc := 0
	for {
		nd, ns, err := d.dec.Transform(dst, block[nSrc:], atEOF)
		out.Write(dst[:nd])
		nSrc += ns
		switch {
		case err == nil, errors.Is(err, transform.ErrShortSrc):
			return out.String(), nSrc, nil
		case errors.Is(err, transform.ErrShortDst):
			if nd == 0 && ns == 0 {
				dst = make([]byte, 2*len(dst))
			}
		case nSrc == 0:
			return "", 0, &DecodeError{Encoding: d.name, Offset: d.consumed, Reason: err.Error()}
		default:
			return out.String(), nSrc, nil
		}
	}
}

// invalidAt locates the first replacement character the decoder produced for
// invalid input. It returns the source byte offset and the text index of that
// character, or -1. Replacement characters genuinely present in the input are
// accepted.
func (d *Decoder) invalidAt(text string, src []byte) (int, int, string) {
	if !strings.ContainsRune(text, utf8.RuneError) {
		return -1, -1, ""
	}
	enc := d.enc.NewEncoder()
	marker, markerErr := enc.String(string(utf8.RuneError))
	offset, from := 0, 0
	for {
		i := strings.IndexRune(text[from:], utf8.RuneError)
		if i < 0 {
			return -1, -1, ""
		}
		i += from
		prefix, err := enc.String(text[from:i])
		if err != nil {
			return offset, from, "unmappable text"
		}
		offset += len(prefix)
		if markerErr != nil || offset+len(marker) > len(src) || string(src[offset:offset+len(marker)]) != marker {
			return offset, i, "invalid byte sequence"
		}
		offset += len(marker)
		from = i + utf8.RuneLen(utf8.RuneError)
	}
}
