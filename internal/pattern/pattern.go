package pattern

import (
	"fmt"
	"regexp"
	"regexp/syntax"
)

// Options are the compile-time switches of a Pattern. Multi-line mode is
// always on: ^ and $ match at line boundaries.
type Options struct {
	IgnoreCase bool
}

// CompileError reports a syntactically invalid expression.
type CompileError struct {
	Expr string
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("bad regex %s (%v)", e.Expr, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

// Pattern is a compiled expression. It is immutable and safe to share
// between goroutines.
type Pattern struct {
	expr string
	opts Options
	re   *regexp.Regexp
	prog *syntax.Prog
}

// Compile compiles expr (RE2 syntax) under opts.
func Compile(expr string, opts Options) (*Pattern, error) {
	flags := "(?m)"
	if opts.IgnoreCase {
		flags = "(?mi)"
	}
	full := flags + expr
	re, err := regexp.Compile(full)
	if err != nil {
		return nil, &CompileError{Expr: expr, Err: err}
	}
	parsed, err := syntax.Parse(full, syntax.Perl)
	if err != nil {
		return nil, &CompileError{Expr: expr, Err: err}
	}
	prog, err := syntax.Compile(parsed.Simplify())
	if err != nil {
		return nil, &CompileError{Expr: expr, Err: err}
	}
	return &Pattern{expr: expr, opts: opts, re: re, prog: prog}, nil
}

// Expr returns the expression as given to Compile.
func (p *Pattern) Expr() string { return p.expr }

// Options returns the options the pattern was compiled with.
func (p *Pattern) Options() Options { return p.opts }

// Prog returns the compiled program. Callers must not modify it.
func (p *Pattern) Prog() *syntax.Prog { return p.prog }

// NumSubexp returns the number of capture groups.
func (p *Pattern) NumSubexp() int { return p.re.NumSubexp() }

// SubexpIndex returns the index of the named group, or -1.
func (p *Pattern) SubexpIndex(name string) int { return p.re.SubexpIndex(name) }

// Regexp returns the equivalent standard library expression.
func (p *Pattern) Regexp() *regexp.Regexp { return p.re }
