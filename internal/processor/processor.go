// Package processor runs a replacement over one file or stream and reports
// the outcome as a Result. Nothing here aborts the run: every failure ends
// up in the Result and the caller decides what to do with it.
package processor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gitlab.com/tozd/go/errors"

	"rpl/internal/apply"
	"rpl/internal/config"
	"rpl/internal/diag"
	"rpl/internal/diff"
	"rpl/internal/stream"
	"rpl/internal/textcodec"
)

// StdinName is how standard input is named in messages.
const StdinName = "standard input"

// Status is what happened to one file.
type Status int

const (
	// Unchanged: the file was read and nothing matched.
	Unchanged Status = iota
	// Modified: the replacement was saved.
	Modified
	// Matched: dry run, the file would have been modified.
	Matched
	// Declined: the user answered no at the prompt.
	Declined
	// Skipped: the file was never processed (not regular, unreadable, ...).
	Skipped
	// Failed: processing started but did not complete.
	Failed
)

func (s Status) String() string {
	switch s {
	case Unchanged:
		return "unchanged"
	case Modified:
		return "modified"
	case Matched:
		return "matched"
	case Declined:
		return "declined"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Result is the outcome for one file.
type Result struct {
	Path    string
	Status  Status
	Matches int
	Err     error
}

// FileError is an I/O failure on one file.
type FileError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileError) Unwrap() error { return e.Err }

// Confirmer asks whether a modified file should be saved.
type Confirmer interface {
	Confirm(path string) bool
}

// Processor applies one Replacer to files. It may be used from several
// goroutines as long as each works on a different file.
type Processor struct {
	cfg     *config.Config
	rep     *stream.Replacer
	det     textcodec.Detector
	sink    diag.Sink
	confirm Confirmer
}

// New returns a Processor. confirm may be nil, in which case every modified
// file is saved.
func New(cfg *config.Config, rep *stream.Replacer, det textcodec.Detector, sink diag.Sink, confirm Confirmer) *Processor {
	if sink == nil {
		sink = diag.Discard
	}
	return &Processor{cfg: cfg, rep: rep, det: det, sink: sink, confirm: confirm}
}

// WithSink returns a copy of p reporting to sink.
func (p *Processor) WithSink(sink diag.Sink) *Processor {
	cp := *p
	cp.sink = sink
	return &cp
}

func (p *Processor) warnf(format string, args ...any) {
	p.sink.Warn(fmt.Sprintf(format, args...))
}

// ProcessFile replaces in the file at path. The replacement is written to a
// temporary file next to it and only moved over the original once complete.
func (p *Processor) ProcessFile(ctx context.Context, path string) Result {
	log := zerolog.Ctx(ctx).With().Str("file", path).Logger()
	res := Result{Path: path, Status: Skipped}

	info, err := os.Lstat(path)
	if err != nil {
		p.warnf("Skipping %s: unable to read permissions; error: %v", path, err)
		res.Err = &FileError{Path: path, Op: "lstat", Err: err}
		return res
	}
	if info.IsDir() {
		if p.cfg.Verbose {
			p.warnf("Skipping directory %s", path)
		}
		return res
	}
	if !info.Mode().IsRegular() {
		p.warnf("Skipping: %s (not a regular file)", path)
		return res
	}

	f, err := os.Open(path)
	if err != nil {
		p.warnf("Skipping %s: cannot open for reading; error: %v", path, err)
		res.Err = &FileError{Path: path, Op: "open", Err: err}
		return res
	}
	defer func() { _ = f.Close() }()

	var (
		pend *apply.Pending
		src  io.Reader = f
		dst  io.Writer = io.Discard
		raw  bytes.Buffer
		out  bytes.Buffer
	)
	switch {
	case !p.cfg.DryRun:
		pend, err = apply.Create(path, info, apply.Options{
			Backup:       p.cfg.Backup,
			BackupSuffix: p.cfg.BackupSuffix,
			Force:        p.cfg.Force,
			KeepTimes:    p.cfg.KeepTimes,
		})
		var attrErr *apply.AttrError
		switch {
		case errors.As(err, &attrErr):
			p.warnf("Unable to set attributes of %s; error: %v", path, attrErr.Err)
			p.warnf("Skipping %s!", path)
			res.Err = &FileError{Path: path, Op: "set attributes", Err: err}
			return res
		case err != nil:
			p.warnf("Skipping %s: %v", path, err)
			res.Err = &FileError{Path: path, Op: "create temp", Err: err}
			return res
		}
		defer func() { _ = pend.Discard() }()
		if errors.As(pend.AttrErr, &attrErr) {
			p.warnf("Unable to set attributes of %s; error: %v", path, attrErr.Err)
			p.warnf("New file attributes may not match!")
		}
		log.Debug().Str("temp", pend.Name()).Msg("writing replacement")
		dst = pend
	case p.cfg.ShowDiff:
		src = io.TeeReader(f, &raw)
		dst = &out
	}

	if p.cfg.Verbose && !p.cfg.DryRun {
		p.warnf("Processing: %s", path)
	}

	n, codec, err := p.replace(ctx, path, src, dst)
	if err != nil {
		res.Status = Failed
		res.Err = err
		return res
	}
	res.Matches = n
	if n == 0 {
		res.Status = Unchanged
		return res
	}

	if p.cfg.DryRun {
		res.Status = Matched
		if !p.cfg.Quiet {
			p.sink.Info("  " + realpath(path))
		}
		if p.cfg.ShowDiff {
			p.preview(path, raw.Bytes(), out.Bytes(), codec)
		}
		return res
	}

	if p.confirm != nil && !p.confirm.Confirm(path) {
		res.Status = Declined
		return res
	}

	if err := pend.Commit(); err != nil {
		if errors.Is(err, apply.ErrKeepTimes) {
			p.warnf("Error setting timestamps of %s; error: %v", path, err)
			res.Status = Modified
			return res
		}
		p.warnf("Could not save %s; error: %v", path, err)
		res.Status = Failed
		res.Err = &FileError{Path: path, Op: "save", Err: err}
		return res
	}
	log.Debug().Int("matches", n).Msg("saved")
	res.Status = Modified
	return res
}

// ProcessStream replaces from r to w. Output is written whether or not
// anything matched.
func (p *Processor) ProcessStream(ctx context.Context, r io.Reader, w io.Writer) Result {
	res := Result{Path: StdinName}
	if p.cfg.Verbose && !p.cfg.DryRun {
		p.warnf("Processing: %s", StdinName)
	}
	n, _, err := p.replace(ctx, StdinName, r, w)
	if err != nil {
		res.Status = Failed
		res.Err = err
		return res
	}
	res.Matches = n
	switch {
	case n == 0:
		res.Status = Unchanged
	case p.cfg.DryRun:
		res.Status = Matched
		if !p.cfg.Quiet {
			p.sink.Info("  " + StdinName)
		}
	default:
		res.Status = Modified
	}
	return res
}

// replace selects the encoding for src and runs the replacement. Failures
// are reported to the sink.
func (p *Processor) replace(ctx context.Context, name string, src io.Reader, dst io.Writer) (int, textcodec.Codec, error) {
	log := zerolog.Ctx(ctx)

	sel, src, err := textcodec.Select(p.cfg.Encoding, p.det, src)
	if err != nil {
		p.warnf("Skipping %s: %v", name, err)
		return 0, textcodec.Codec{}, &FileError{Path: name, Op: "read", Err: err}
	}
	if p.cfg.Verbose {
		if sel.Guess != "" {
			p.warnf("Guessed encoding '%s'", sel.Guess)
		}
		if sel.Fallback {
			p.warnf("Could not guess encoding; using locale default '%s'", sel.Codec.Name)
		}
	}
	log.Debug().Str("file", name).Str("encoding", sel.Codec.Name).Str("guess", sel.Guess).Msg("encoding selected")

	n, err := p.rep.Replace(ctx, src, dst, sel.Codec)
	if err != nil {
		var de *textcodec.DecodeError
		var ee *textcodec.EncodeError
		switch {
		case errors.As(err, &de):
			p.warnf("%s: decoding error (%s)", name, de.Reason)
			p.warnf("You can specify the encoding with --encoding")
			return 0, sel.Codec, err
		case errors.As(err, &ee):
			p.warnf("%s: encoding error (%v)", name, ee.Err)
			return 0, sel.Codec, err
		}
		p.warnf("Skipping %s: %v", name, err)
		return 0, sel.Codec, &FileError{Path: name, Op: "replace", Err: err}
	}
	return n, sel.Codec, nil
}

func (p *Processor) preview(path string, before, after []byte, codec textcodec.Codec) {
	a, err := codec.Encoding.NewDecoder().Bytes(before)
	if err != nil {
		a = before
	}
	b, err := codec.Encoding.NewDecoder().Bytes(after)
	if err != nil {
		b = after
	}
	text, changed, err := diff.Diff(string(a), string(b), diff.Options{
		Color:    p.cfg.Color,
		FromFile: path,
		ToFile:   path,
	})
	if err != nil {
		p.warnf("%s: cannot show differences; error: %v", path, err)
		return
	}
	if changed {
		p.sink.Info(trimNewline(text))
	}
}

func realpath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

func trimNewline(s string) string {
	if n := len(s); n > 0 && s[n-1] == '\n' {
		return s[:n-1]
	}
	return s
}
