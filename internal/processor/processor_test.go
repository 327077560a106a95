package processor

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gitlab.com/tozd/go/errors"

	"rpl/internal/config"
	"rpl/internal/diag"
	"rpl/internal/pattern"
	"rpl/internal/stream"
	"rpl/internal/testutil"
	"rpl/internal/textcodec"
)

type fixedDetector string

func (d fixedDetector) Detect([]byte) (string, error) {
	if d == "" {
		return "", textcodec.ErrUndetected
	}
	return string(d), nil
}

type answer bool

func (a answer) Confirm(string) bool { return bool(a) }

func newProcessor(t *testing.T, cfg config.Config, oldText, newText string, confirm Confirmer) (*Processor, *diag.Recorder) {
	t.Helper()
	expr, tmpl := pattern.Prepare(oldText, newText, pattern.PrepareOptions{
		Fixed:      cfg.FixedStrings,
		WholeWords: cfg.WholeWords,
	})
	pat, err := pattern.Compile(expr, pattern.Options{IgnoreCase: cfg.Case != config.Sensitive})
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	tpl, err := pattern.ParseTemplate(tmpl, pat)
	if err != nil {
		t.Fatalf("template: %v", err)
	}
	rep := stream.New(pat, tpl, stream.Options{MatchCase: cfg.Case == config.MatchCase, BufferSize: 4})
	rec := &diag.Recorder{}
	return New(&cfg, rep, fixedDetector("utf-8"), rec, confirm), rec
}

func defaults() config.Config {
	cfg := config.Default()
	cfg.Encoding = "utf-8"
	cfg.Color = false
	return cfg
}

func entries(t *testing.T, dir string) int {
	t.Helper()
	des, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	return len(des)
}

func hasMessage(rec *diag.Recorder, sub string) bool {
	for _, m := range rec.Messages() {
		if strings.Contains(m.Text, sub) {
			return true
		}
	}
	return false
}

func TestProcessFile_NoMatches(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "hello world")
	proc, _ := newProcessor(t, defaults(), "xxx", "yyy", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Status != Unchanged || res.Matches != 0 || res.Err != nil {
		t.Fatalf("unexpected: %+v", res)
	}
	if got := testutil.ReadFile(t, p); got != "hello world" {
		t.Fatalf("file changed: %q", got)
	}
	if n := entries(t, dir); n != 1 {
		t.Fatalf("temp file left behind: %d entries", n)
	}
}

func TestProcessFile_MatchesAndReplace(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo\nbar foo\n")
	proc, _ := newProcessor(t, defaults(), "foo", "baz", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Status != Modified || res.Matches != 2 {
		t.Fatalf("unexpected: %+v", res)
	}
	if got, want := testutil.ReadFile(t, p), "baz\nbar baz\n"; got != want {
		t.Fatalf("after wrong: %q", got)
	}
	if n := entries(t, dir); n != 1 {
		t.Fatalf("leftover files: %d entries", n)
	}
}

func TestProcessFile_PreservesCRLF(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo\r\nbar\r\n")
	proc, _ := newProcessor(t, defaults(), "foo", "bar", nil)

	proc.ProcessFile(context.Background(), p)
	if got, want := testutil.ReadFile(t, p), "bar\r\nbar\r\n"; got != want {
		t.Fatalf("eol changed: got %q want %q", got, want)
	}
}

func TestProcessFile_ReplacementSameAsPattern_NoChange(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo foo")
	proc, _ := newProcessor(t, defaults(), "foo", "foo", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Matches != 2 {
		t.Fatalf("expected matches to be counted: %+v", res)
	}
	if got := testutil.ReadFile(t, p); got != "foo foo" {
		t.Fatalf("content should be identical: %q", got)
	}
}

func TestProcessFile_MatchCase(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "mixedinput MIXEDINPUT Mixedinput MixedInput")
	cfg := defaults()
	cfg.Case = config.MatchCase
	proc, _ := newProcessor(t, cfg, "MixedInput", "MixedOutput", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Matches != 4 {
		t.Fatalf("unexpected: %+v", res)
	}
	if got, want := testutil.ReadFile(t, p), "mixedoutput MIXEDOUTPUT Mixedoutput MixedOutput"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestProcessFile_FixedStrings(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "a.b* axbbb a.b*")
	cfg := defaults()
	cfg.FixedStrings = true
	proc, _ := newProcessor(t, cfg, "a.b*", `c\d`, nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Matches != 2 {
		t.Fatalf("unexpected: %+v", res)
	}
	if got, want := testutil.ReadFile(t, p), `c\d axbbb c\d`; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestProcessFile_Latin1(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "caf\xe9 foo \xfc")
	cfg := defaults()
	cfg.Encoding = "latin-1"
	proc, _ := newProcessor(t, cfg, "foo", "bär", nil)

	proc.ProcessFile(context.Background(), p)
	if got, want := testutil.ReadFile(t, p), "caf\xe9 b\xe4r \xfc"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestProcessFile_DecodeErrorLeavesFile(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "\xff foo")
	proc, rec := newProcessor(t, defaults(), "foo", "bar", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Status != Failed || res.Matches != 0 {
		t.Fatalf("unexpected: %+v", res)
	}
	var de *textcodec.DecodeError
	if !errors.As(res.Err, &de) {
		t.Fatalf("expected DecodeError, got %v", res.Err)
	}
	if !hasMessage(rec, "decoding error") || !hasMessage(rec, "--encoding") {
		t.Fatalf("missing decode messages: %+v", rec.Messages())
	}
	if got := testutil.ReadFile(t, p); got != "\xff foo" {
		t.Fatalf("file changed: %q", got)
	}
	if n := entries(t, dir); n != 1 {
		t.Fatalf("temp file left behind: %d entries", n)
	}
}

func TestProcessFile_DetectedEncoding(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "caf\xe9 foo")
	cfg := defaults()
	cfg.Encoding = ""
	cfg.Verbose = true
	proc, rec := newProcessor(t, cfg, "foo", "bar", nil)
	proc.det = fixedDetector("ISO-8859-1")

	proc.ProcessFile(context.Background(), p)
	if got, want := testutil.ReadFile(t, p), "caf\xe9 bar"; got != want {
		t.Fatalf("got %q want %q", got, want)
	}
	if !hasMessage(rec, "Guessed encoding 'ISO-8859-1'") {
		t.Fatalf("missing guess message: %+v", rec.Messages())
	}
	if !hasMessage(rec, "Processing: "+p) {
		t.Fatalf("missing processing message: %+v", rec.Messages())
	}
}

func TestProcessFile_DryRun(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo\n")
	cfg := defaults()
	cfg.DryRun = true
	proc, rec := newProcessor(t, cfg, "foo", "bar", nil)

	res := proc.ProcessFile(context.Background(), p)
	if res.Status != Matched || res.Matches != 1 {
		t.Fatalf("unexpected: %+v", res)
	}
	if got := testutil.ReadFile(t, p); got != "foo\n" {
		t.Fatalf("dry run changed file: %q", got)
	}
	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		t.Fatalf("evalsymlinks: %v", err)
	}
	msgs := rec.Messages()
	if len(msgs) != 1 || msgs[0].Text != "  "+resolved || msgs[0].Warn {
		t.Fatalf("unexpected messages: %+v", msgs)
	}
}

func TestProcessFile_DryRunDiff(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "keep\nfoo\n")
	cfg := defaults()
	cfg.DryRun = true
	cfg.ShowDiff = true
	proc, rec := newProcessor(t, cfg, "foo", "bar", nil)

	proc.ProcessFile(context.Background(), p)
	if !hasMessage(rec, "\n-foo\n+bar") {
		t.Fatalf("missing diff preview: %+v", rec.Messages())
	}
	if !hasMessage(rec, "--- "+p) {
		t.Fatalf("missing diff header: %+v", rec.Messages())
	}
	if got := testutil.ReadFile(t, p); got != "keep\nfoo\n" {
		t.Fatalf("dry run changed file: %q", got)
	}
}

func TestProcessFile_Declined(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo")
	proc, _ := newProcessor(t, defaults(), "foo", "bar", answer(false))

	res := proc.ProcessFile(context.Background(), p)
	if res.Status != Declined || res.Matches != 1 {
		t.Fatalf("unexpected: %+v", res)
	}
	if got := testutil.ReadFile(t, p); got != "foo" {
		t.Fatalf("declined file changed: %q", got)
	}
	if n := entries(t, dir); n != 1 {
		t.Fatalf("temp file left behind: %d entries", n)
	}
}

func TestProcessFile_Confirmed(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo")
	proc, _ := newProcessor(t, defaults(), "foo", "bar", answer(true))

	if res := proc.ProcessFile(context.Background(), p); res.Status != Modified {
		t.Fatalf("unexpected: %+v", res)
	}
	if got := testutil.ReadFile(t, p); got != "bar" {
		t.Fatalf("got %q", got)
	}
}

func TestProcessFile_Backup(t *testing.T) {
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "a.txt", "foo")
	cfg := defaults()
	cfg.Backup = true
	proc, _ := newProcessor(t, cfg, "foo", "bar", nil)

	proc.ProcessFile(context.Background(), p)
	if got := testutil.ReadFile(t, p); got != "bar" {
		t.Fatalf("got %q", got)
	}
	if got := testutil.ReadFile(t, p+"~"); got != "foo" {
		t.Fatalf("backup content: %q", got)
	}
}

func TestProcessFile_DirectorySkipped(t *testing.T) {
	dir := t.TempDir()
	cfg := defaults()
	cfg.Verbose = true
	proc, rec := newProcessor(t, cfg, "foo", "bar", nil)

	res := proc.ProcessFile(context.Background(), dir)
	if res.Status != Skipped || res.Err != nil {
		t.Fatalf("unexpected: %+v", res)
	}
	if !hasMessage(rec, "Skipping directory "+dir) {
		t.Fatalf("missing message: %+v", rec.Messages())
	}

	quiet, rec := newProcessor(t, defaults(), "foo", "bar", nil)
	quiet.ProcessFile(context.Background(), dir)
	if len(rec.Messages()) != 0 {
		t.Fatalf("directories are only reported with verbose: %+v", rec.Messages())
	}
}

func TestProcessFile_SymlinkSkipped(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on Windows")
	}
	dir := t.TempDir()
	target := testutil.WriteFile(t, dir, "a.txt", "foo")
	link := filepath.Join(dir, "link.txt")
	if err := os.Symlink(target, link); err != nil {
		t.Skipf("symlink unsupported here: %v", err)
	}
	proc, rec := newProcessor(t, defaults(), "foo", "bar", nil)

	if res := proc.ProcessFile(context.Background(), link); res.Status != Skipped {
		t.Fatalf("unexpected: %+v", res)
	}
	if !hasMessage(rec, "(not a regular file)") {
		t.Fatalf("missing message: %+v", rec.Messages())
	}
	if got := testutil.ReadFile(t, target); got != "foo" {
		t.Fatalf("target changed: %q", got)
	}
}

func TestProcessFile_MissingFile(t *testing.T) {
	proc, rec := newProcessor(t, defaults(), "foo", "bar", nil)
	missing := filepath.Join(t.TempDir(), "nope.txt")

	res := proc.ProcessFile(context.Background(), missing)
	if res.Status != Skipped {
		t.Fatalf("unexpected: %+v", res)
	}
	var fe *FileError
	if !errors.As(res.Err, &fe) || fe.Op != "lstat" || fe.Path != missing {
		t.Fatalf("expected lstat FileError, got %v", res.Err)
	}
	if !errors.Is(res.Err, os.ErrNotExist) {
		t.Fatalf("expected not-exist cause, got %v", res.Err)
	}
	if !hasMessage(rec, "unable to read permissions") {
		t.Fatalf("missing message: %+v", rec.Messages())
	}
}

func TestProcessFile_PathWithUnicode(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("path unicode quirk on CI")
	}
	dir := t.TempDir()
	p := testutil.WriteFile(t, dir, "føø/å.txt", "foo")
	proc, _ := newProcessor(t, defaults(), "foo", "bar", nil)

	proc.ProcessFile(context.Background(), p)
	if got := testutil.ReadFile(t, p); got != "bar" {
		t.Fatalf("wrong after: %q", got)
	}
}

func TestProcessStream(t *testing.T) {
	proc, rec := newProcessor(t, defaults(), "a(b)a", `\1`, nil)
	var out bytes.Buffer

	res := proc.ProcessStream(context.Background(), strings.NewReader("aba aba"), &out)
	if res.Status != Modified || res.Matches != 2 || res.Path != StdinName {
		t.Fatalf("unexpected: %+v", res)
	}
	if out.String() != "b b" {
		t.Fatalf("got %q", out.String())
	}
	if len(rec.Messages()) != 0 {
		t.Fatalf("unexpected messages: %+v", rec.Messages())
	}
}

func TestProcessStream_NoMatchCopiesInput(t *testing.T) {
	proc, _ := newProcessor(t, defaults(), "zzz", "q", nil)
	var out bytes.Buffer

	res := proc.ProcessStream(context.Background(), strings.NewReader("hello\n"), &out)
	if res.Status != Unchanged || out.String() != "hello\n" {
		t.Fatalf("unexpected: %+v %q", res, out.String())
	}
}

func TestProcessStream_DryRunListsStdin(t *testing.T) {
	cfg := defaults()
	cfg.DryRun = true
	proc, rec := newProcessor(t, cfg, "foo", "bar", nil)
	var out bytes.Buffer

	res := proc.ProcessStream(context.Background(), strings.NewReader("foo"), &out)
	if res.Status != Matched {
		t.Fatalf("unexpected: %+v", res)
	}
	if !hasMessage(rec, "  "+StdinName) {
		t.Fatalf("missing listing: %+v", rec.Messages())
	}
}
