package textcodec

import (
	"fmt"
	"io"
	"os"
	"strings"

	"gitlab.com/tozd/go/errors"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Codec is a resolved text encoding.
type Codec struct {
	Name     string
	Encoding encoding.Encoding
}

// UTF8 is the default codec. It has no byte-order-mark handling: a mark at
// the start of a file is ordinary text and is written back exactly once.
var UTF8 = Codec{Name: "UTF-8", Encoding: unicode.UTF8}

// Lookup resolves an encoding name as given on the command line or returned
// by a Detector. Names of UTF-8 variants that signal a byte-order mark resolve
// to plain UTF-8.
func Lookup(name string) (Codec, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "_", "-")
	switch key {
	case "utf-8", "utf8", "utf-8-sig", "utf8-sig", "utf-8-bom", "utf-8 with bom":
		return UTF8, nil
	case "ascii", "us-ascii":
		return Codec{Name: "US-ASCII", Encoding: charmap.Windows1252}, nil
	case "latin-1", "latin1":
		key = "iso-8859-1"
	case "gb-18030":
		key = "gb18030"
	}

	enc, err := ianaindex.IANA.Encoding(key)
	if err != nil || enc == nil {
		enc, err = htmlindex.Get(key)
	}
	if err != nil || enc == nil {
		return Codec{}, errors.Errorf("unknown encoding %q", name)
	}
	canonical, err := ianaindex.IANA.Name(enc)
	if err != nil || canonical == "" {
		canonical = name
	}
	return Codec{Name: canonical, Encoding: enc}, nil
}

// LocaleEncoding returns the character set named by the process locale
// (LC_ALL, LC_CTYPE, LANG), or UTF-8.
func LocaleEncoding() Codec {
	for _, v := range []string{"LC_ALL", "LC_CTYPE", "LANG"} {
		val := os.Getenv(v)
		if val == "" {
			continue
		}
		i := strings.IndexByte(val, '.')
		if i < 0 {
			break
		}
		cs := val[i+1:]
		if at := strings.IndexByte(cs, '@'); at >= 0 {
			cs = cs[:at]
		}
		if c, err := Lookup(cs); err == nil {
			return c
		}
		break
	}
	return UTF8
}

// EncodeError reports text the output encoding cannot represent.
type EncodeError struct {
	Encoding string
	Err      error
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("encoding output as %s: %v", e.Encoding, e.Err)
}

func (e *EncodeError) Unwrap() error { return e.Err }

// Encoder writes text to an underlying byte sink in one encoding. Stateful
// encodings keep their state across writes; Close flushes it.
type Encoder struct {
	name string
	w    *transform.Writer
}

// NewEncoder returns an Encoder writing c-encoded bytes to w.
func NewEncoder(w io.Writer, c Codec) *Encoder {
	return &Encoder{name: c.Name, w: transform.NewWriter(w, c.Encoding.NewEncoder())}
}

// WriteString encodes s.
func (e *Encoder) WriteString(s string) error {
	if s == "" {
		return nil
	}
	if _, err := e.w.Write([]byte(s)); err != nil {
		return e.wrap(err)
	}
	return nil
}

// Close flushes buffered output. It does not close the underlying writer.
func (e *Encoder) Close() error {
	if err := e.w.Close(); err != nil {
		return e.wrap(err)
	}
	return nil
}

func (e *Encoder) wrap(err error) error {
	var ee *EncodeError
	if errors.As(err, &ee) {
		return err
	}
	return &EncodeError{Encoding: e.name, Err: err}
}
