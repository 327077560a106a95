// Package cli implements the rpl command line.
package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gitlab.com/tozd/go/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"rpl/internal/config"
	"rpl/internal/diag"
	"rpl/internal/discovery"
	"rpl/internal/pattern"
	"rpl/internal/processor"
	"rpl/internal/stream"
	"rpl/internal/textcodec"
)

const progName = "rpl"

// Version is reported by --version.
var Version = "1.16"

const (
	exitOK    = 0
	exitFatal = 1
	exitUsage = 2
)

const usageTemplate = `Usage: {{.CommandPath}} [OPTION...] OLD-TEXT NEW-TEXT [FILE...]

OLD-TEXT matches at most once in each position.

{{.Flags.FlagUsagesWrapped termWidth}}`

func init() {
	cobra.AddTemplateFunc("termWidth", func() int {
		w, _, err := term.GetSize(int(os.Stdout.Fd()))
		if err != nil {
			return 0
		}
		return w
	})
}

// fatalError marks a failure after the command line was accepted.
type fatalError struct{ err error }

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error { return &fatalError{err: err} }

// flags holds command-line values that do not map one to one onto Config.
type flags struct {
	configPath string
	ignoreCase bool
	matchCase  bool
	noColor    bool
}

// Run executes the CLI with the provided args and streams, returning the
// exit code.
func Run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	cfg := config.Default()
	var fl flags

	cmd := &cobra.Command{
		Use:           progName,
		Version:       Version,
		Short:         "Search and replace text in files.",
		Args:          cobra.MinimumNArgs(2),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, pos []string) error {
			cfg.OldText, cfg.NewText, cfg.Files = pos[0], pos[1], pos[2:]
			if err := settle(&cfg, fl, cmd.Flags(), stderr); err != nil {
				return fatal(err)
			}
			return run(cmd.Context(), &cfg, stdin, stdout, stderr)
		},
	}
	cmd.SetUsageTemplate(usageTemplate)
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")
	cmd.SetArgs(args)
	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	addFlags(cmd.Flags(), &cfg, &fl)
	cmd.MarkFlagsMutuallyExclusive("ignore-case", "match-case")

	err := cmd.ExecuteContext(context.Background())
	if err == nil {
		return exitOK
	}
	fmt.Fprintf(stderr, "%s: %v\n", progName, err)
	var fe *fatalError
	if errors.As(err, &fe) {
		return exitFatal
	}
	fmt.Fprintf(stderr, "Try '%s --help' for more information.\n", progName)
	return exitUsage
}

func addFlags(fs *pflag.FlagSet, cfg *config.Config, fl *flags) {
	fs.SortFlags = false
	fs.StringVar(&cfg.Encoding, "encoding", "", "specify character set encoding `ENCODING`")
	fs.BoolVarP(&fl.ignoreCase, "ignore-case", "i", false, "search case-insensitively")
	fs.BoolVarP(&fl.matchCase, "match-case", "m", false, "ignore case when searching, but try to match case of replacement to case of original, either capitalized, all upper-case, or mixed")
	fs.BoolVarP(&cfg.WholeWords, "whole-words", "w", false, "whole words (OLD-TEXT matches on word boundaries only)")
	fs.BoolVarP(&cfg.Backup, "backup", "b", false, "rename original FILE to FILE~ before replacing")
	fs.StringVar(&cfg.BackupSuffix, "backup-suffix", cfg.BackupSuffix, "append `SUFFIX` to backup file names")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", false, "quiet mode")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose mode")
	fs.BoolVarP(&cfg.DryRun, "dry-run", "s", false, "simulation mode")
	fs.BoolVar(&cfg.ShowDiff, "diff", false, "with --dry-run, show the changes as a unified diff")
	fs.BoolVarP(&cfg.Escape, "escape", "e", false, "expand escapes in OLD-TEXT and NEW-TEXT [deprecated]")
	fs.BoolVarP(&cfg.FixedStrings, "fixed-strings", "F", false, "treat OLD-TEXT and NEW-TEXT as fixed strings, not regular expressions")
	fs.BoolVar(&cfg.PatternFiles, "files", false, "OLD-TEXT and NEW-TEXT are file names to read patterns from")
	fs.StringArrayVarP(&cfg.Globs, "glob", "x", cfg.Globs, "modify only files matching the glob `PATTERN` (may be given more than once)")
	fs.BoolVarP(&cfg.Recursive, "recursive", "R", false, "search recursively")
	fs.BoolVarP(&cfg.Prompt, "prompt", "p", false, "prompt before modifying each file")
	fs.BoolVarP(&cfg.Force, "force", "f", false, "ignore errors when trying to preserve attributes")
	fs.BoolVarP(&cfg.KeepTimes, "keep-times", "d", false, "keep the modification times on modified files")
	fs.IntVarP(&cfg.Jobs, "jobs", "j", cfg.Jobs, "process up to `N` files at once")
	fs.BoolVar(&fl.noColor, "no-color", false, "disable coloured output")
	fs.StringVar(&fl.configPath, "config", "", "read default options from YAML `FILE`")
	fs.BoolVar(&cfg.Debug, "debug", false, "enable debug logging")

	fs.IntVar(&cfg.BufferSize, "buffer-size", 0, "initial read size in bytes")
	_ = fs.MarkHidden("buffer-size")
	fs.BoolP("extended-regex", "E", false, "use extended regex syntax [IGNORED]")
	_ = fs.MarkHidden("extended-regex")
}

// settle completes cfg from the flags that need interpretation, the defaults
// file and the environment, then validates it.
func settle(cfg *config.Config, fl flags, fs *pflag.FlagSet, stderr io.Writer) error {
	switch {
	case fl.matchCase:
		cfg.Case = config.MatchCase
	case fl.ignoreCase:
		cfg.Case = config.Insensitive
	}
	cfg.Color = !fl.noColor

	if fl.configPath != "" {
		file, err := config.Load(fl.configPath)
		if err != nil {
			return err
		}
		file.Apply(cfg, func(name string) bool { return fs.Changed(name) })
	}
	cfg.Color = diag.ColorEnabled(stderr, !cfg.Color)

	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Encoding != "" {
		if _, err := textcodec.Lookup(cfg.Encoding); err != nil {
			return err
		}
	}
	if cfg.PatternFiles {
		oldText, err := slurp(cfg.OldText)
		if err != nil {
			return err
		}
		newText, err := slurp(cfg.NewText)
		if err != nil {
			return err
		}
		cfg.OldText, cfg.NewText = oldText, newText
	}
	return nil
}

func slurp(name string) (string, error) {
	b, err := os.ReadFile(name)
	if err != nil {
		return "", errors.Errorf("cannot read file %s: %w", name, err)
	}
	return string(b), nil
}

func newLogger(w io.Writer, cfg *config.Config) zerolog.Logger {
	level := zerolog.WarnLevel
	if cfg.Debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, NoColor: !cfg.Color}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

func announce(cfg *config.Config) string {
	verb := "Replacing"
	if cfg.DryRun {
		verb = "Simulating replacement of"
	}
	words := "partial words matched"
	if cfg.WholeWords {
		words = "whole words only"
	}
	return fmt.Sprintf("%s \"%s\" with \"%s\" (%s; %s)", verb, cfg.OldText, cfg.NewText, cfg.Case, words)
}

// compile builds the Replacer; any error here is fatal for the run.
func compile(cfg *config.Config) (*stream.Replacer, error) {
	expr, tmpl := pattern.Prepare(cfg.OldText, cfg.NewText, pattern.PrepareOptions{
		Escape:     cfg.Escape,
		Fixed:      cfg.FixedStrings,
		WholeWords: cfg.WholeWords,
	})
	pat, err := pattern.Compile(expr, pattern.Options{IgnoreCase: cfg.Case != config.Sensitive})
	if err != nil {
		return nil, err
	}
	tpl, err := pattern.ParseTemplate(tmpl, pat)
	if err != nil {
		return nil, err
	}
	return stream.New(pat, tpl, stream.Options{
		MatchCase:  cfg.Case == config.MatchCase,
		BufferSize: cfg.BufferSize,
	}), nil
}

func run(ctx context.Context, cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	logger := newLogger(stderr, cfg)
	ctx = logger.WithContext(ctx)
	console := diag.NewConsole(stderr, progName, cfg.Color)

	paths, err := discovery.Discover(discovery.Selector{
		Files:     cfg.Files,
		Globs:     cfg.Globs,
		Recursive: cfg.Recursive,
	})
	if err != nil {
		return fatal(err)
	}
	logger.Debug().Int("files", len(paths)).Strs("globs", cfg.Globs).Msg("files selected")

	rep, err := compile(cfg)
	if err != nil {
		return fatal(err)
	}

	if !cfg.Quiet {
		console.Warn(announce(cfg))
		if cfg.DryRun {
			console.Warn("The files listed below would be modified in a replace operation")
		}
	}

	var confirm processor.Confirmer
	if cfg.Prompt && !cfg.DryRun {
		confirm = &prompter{in: bufio.NewReader(stdin), out: console}
	}
	proc := processor.New(cfg, rep, textcodec.ChardetDetector{}, console, confirm)

	out := bufio.NewWriter(stdout)
	results := processAll(ctx, cfg, proc, console, paths, stdin, out)
	if err := out.Flush(); err != nil {
		return fatal(errors.Errorf("writing standard output: %w", err))
	}

	var stats processor.Stats
	for _, r := range results {
		stats.Add(r)
		logger.Debug().Str("file", r.Path).Stringer("status", r.Status).Int("matches", r.Matches).Msg("done")
	}
	if !cfg.Quiet {
		console.Warn(stats.Summary(cfg.DryRun))
	}
	return nil
}

// processAll runs every path and returns the results in path order. With
// more than one job, messages are held per file and replayed in order.
func processAll(ctx context.Context, cfg *config.Config, proc *processor.Processor, console diag.Sink, paths []string, stdin io.Reader, stdout io.Writer) []processor.Result {
	results := make([]processor.Result, len(paths))
	one := func(ctx context.Context, p *processor.Processor, path string) processor.Result {
		if path == discovery.Stdin {
			return p.ProcessStream(ctx, stdin, stdout)
		}
		return p.ProcessFile(ctx, path)
	}

	jobs := cfg.Jobs
	if cfg.Prompt {
		jobs = 1
	}
	for _, p := range paths {
		if p == discovery.Stdin {
			jobs = 1
		}
	}
	if jobs <= 1 {
		for i, path := range paths {
			results[i] = one(ctx, proc, path)
		}
		return results
	}

	recs := make([]*diag.Recorder, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, path := range paths {
		i, path := i, path
		recs[i] = &diag.Recorder{}
		g.Go(func() error {
			results[i] = one(gctx, proc.WithSink(recs[i]), path)
			return nil
		})
	}
	_ = g.Wait()
	for _, rec := range recs {
		rec.Replay(console)
	}
	return results
}
