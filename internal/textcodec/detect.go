package textcodec

import (
	"bytes"
	"io"

	"github.com/saintfish/chardet"
	"gitlab.com/tozd/go/errors"
)

// SampleLimit bounds how much of a stream is read for classification.
const SampleLimit = 1 << 20

// ErrUndetected is returned by a Detector that cannot classify a sample.
var ErrUndetected = errors.New("encoding not detected")

// Detector guesses the character set of a byte sample.
type Detector interface {
	Detect(sample []byte) (string, error)
}

// ChardetDetector is a Detector backed by statistical charset analysis.
type ChardetDetector struct{}

func (ChardetDetector) Detect(sample []byte) (string, error) {
	if len(sample) == 0 {
		return "", ErrUndetected
	}
	res, err := chardet.NewTextDetector().DetectBest(sample)
	if err != nil || res == nil || res.Charset == "" {
		return "", ErrUndetected
	}
	return res.Charset, nil
}

// Sniff reads up to limit bytes of r and returns them along with a reader
// that yields the sample followed by the remainder of r.
func Sniff(r io.Reader, limit int) ([]byte, io.Reader, error) {
	sample, err := io.ReadAll(io.LimitReader(r, int64(limit)))
	if err != nil {
		return nil, nil, errors.Errorf("reading sample: %w", err)
	}
	return sample, io.MultiReader(bytes.NewReader(sample), r), nil
}

// Selection is the outcome of choosing an encoding for one stream.
type Selection struct {
	Codec Codec
	// Guess is the detector's answer, empty when an explicit name was given
	// or nothing was detected.
	Guess string
	// Fallback is set when the locale default was used.
	Fallback bool
}

// Select resolves the encoding of r. An explicit name wins; otherwise a
// sample is classified by det and, failing that, the locale default is used.
// The returned reader must be used in place of r.
func Select(explicit string, det Detector, r io.Reader) (Selection, io.Reader, error) {
	if explicit != "" {
		c, err := Lookup(explicit)
		if err != nil {
			return Selection{}, nil, err
		}
		return Selection{Codec: c}, r, nil
	}
	sample, rest, err := Sniff(r, SampleLimit)
	if err != nil {
		return Selection{}, nil, err
	}
	if det != nil {
		if guess, err := det.Detect(sample); err == nil {
			if c, err := Lookup(guess); err == nil {
				return Selection{Codec: c, Guess: guess}, rest, nil
			}
			return Selection{Codec: LocaleEncoding(), Guess: guess, Fallback: true}, rest, nil
		}
	}
	return Selection{Codec: LocaleEncoding(), Fallback: true}, rest, nil
}
