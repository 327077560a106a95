package casing

import (
	"unicode"
	"unicode/utf8"

	"github.com/rivo/uniseg"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Shape is the letter-case pattern of a string.
type Shape int

const (
	Mixed Shape = iota
	Upper
	Lower
	Capitalized
)

func (s Shape) String() string {
	switch s {
	case Upper:
		return "upper"
	case Lower:
		return "lower"
	case Capitalized:
		return "capitalized"
	default:
		return "mixed"
	}
}

func toUpper(s string) string { return cases.Upper(language.Und).String(s) }
func toLower(s string) string { return cases.Lower(language.Und).String(s) }

// Classify returns the shape of model. A string that is unchanged by
// upper-casing is Upper (this includes strings with no cased letters), one
// unchanged by lower-casing is Lower. Capitalized requires an upper-case first
// character followed only by lower-case letters.
func Classify(model string) Shape {
	if toUpper(model) == model {
		return Upper
	}
	if toLower(model) == model {
		return Lower
	}
	first, size := utf8.DecodeRuneInString(model)
	if !unicode.IsUpper(first) {
		return Mixed
	}
	for _, r := range model[size:] {
		if !unicode.IsLower(r) {
			return Mixed
		}
	}
	return Capitalized
}

// Apply reshapes repl so it follows the case pattern of model. Mixed models
// leave repl unchanged.
func Apply(model, repl string) string {
	if repl == "" {
		return repl
	}
	switch Classify(model) {
	case Upper:
		return toUpper(repl)
	case Lower:
		return toLower(repl)
	case Capitalized:
		first, rest, _, _ := uniseg.FirstGraphemeClusterInString(repl, -1)
		return toUpper(first) + toLower(rest)
	default:
		return repl
	}
}
