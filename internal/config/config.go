// Package config holds the options of one rpl run.
package config

import (
	"io"
	"os"

	"gitlab.com/tozd/go/errors"
	"gopkg.in/yaml.v3"
)

// CaseMode selects how letter case affects matching and replacement.
type CaseMode int

const (
	Sensitive CaseMode = iota
	Insensitive
	// MatchCase matches case-insensitively and reshapes each replacement
	// after the case of the text it replaces.
	MatchCase
)

func (m CaseMode) String() string {
	switch m {
	case Insensitive:
		return "ignoring case"
	case MatchCase:
		return "matching case"
	default:
		return "case sensitive"
	}
}

// Config is built once by the command line and not modified afterwards.
type Config struct {
	OldText string
	NewText string
	Files   []string

	Encoding     string
	Case         CaseMode
	WholeWords   bool
	FixedStrings bool
	Escape       bool
	PatternFiles bool
	Globs        []string
	Recursive    bool

	Backup       bool
	BackupSuffix string
	DryRun       bool
	ShowDiff     bool
	Prompt       bool
	Force        bool
	KeepTimes    bool

	Quiet   bool
	Verbose bool
	Debug   bool
	Color   bool

	Jobs       int
	BufferSize int
}

// Default returns the options in effect when no flag is given.
func Default() Config {
	return Config{
		Globs:        []string{"*"},
		BackupSuffix: "~",
		Color:        true,
		Jobs:         1,
	}
}

// Validate checks option combinations that make the run impossible.
func (c *Config) Validate() error {
	if c.Recursive && len(c.Files) == 0 {
		return errors.New("cannot use --recursive with no file arguments")
	}
	if c.Jobs < 1 {
		return errors.Errorf("--jobs must be at least 1, got %d", c.Jobs)
	}
	if c.BufferSize < 0 {
		return errors.Errorf("--buffer-size must not be negative, got %d", c.BufferSize)
	}
	if c.Backup && c.BackupSuffix == "" {
		return errors.New("--backup-suffix must not be empty")
	}
	return nil
}

// File is a defaults file. Fields left out keep their built-in default.
type File struct {
	Encoding     *string  `yaml:"encoding,omitempty"`
	IgnoreCase   *bool    `yaml:"ignore_case,omitempty"`
	MatchCase    *bool    `yaml:"match_case,omitempty"`
	WholeWords   *bool    `yaml:"whole_words,omitempty"`
	FixedStrings *bool    `yaml:"fixed_strings,omitempty"`
	Globs        []string `yaml:"globs,omitempty"`
	Recursive    *bool    `yaml:"recursive,omitempty"`
	Backup       *bool    `yaml:"backup,omitempty"`
	BackupSuffix *string  `yaml:"backup_suffix,omitempty"`
	Force        *bool    `yaml:"force,omitempty"`
	KeepTimes    *bool    `yaml:"keep_times,omitempty"`
	Quiet        *bool    `yaml:"quiet,omitempty"`
	Verbose      *bool    `yaml:"verbose,omitempty"`
	Color        *bool    `yaml:"color,omitempty"`
	Jobs         *int     `yaml:"jobs,omitempty"`
	BufferSize   *int     `yaml:"buffer_size,omitempty"`
}

// Load reads a YAML defaults file. Unknown keys are an error.
func Load(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	var out File
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&out); err != nil {
		if errors.Is(err, io.EOF) {
			return &out, nil
		}
		return nil, errors.Errorf("parsing config file %s: %w", path, err)
	}
	return &out, nil
}

// Apply copies the values set in f into c, except for options the caller
// reports as given explicitly. set is called with the long flag name.
func (f *File) Apply(c *Config, set func(flag string) bool) {
	str := func(name string, dst *string, v *string) {
		if v != nil && !set(name) {
			*dst = *v
		}
	}
	boolean := func(name string, dst *bool, v *bool) {
		if v != nil && !set(name) {
			*dst = *v
		}
	}
	num := func(name string, dst *int, v *int) {
		if v != nil && !set(name) {
			*dst = *v
		}
	}

	str("encoding", &c.Encoding, f.Encoding)
	if !set("ignore-case") && !set("match-case") {
		switch {
		case f.MatchCase != nil && *f.MatchCase:
			c.Case = MatchCase
		case f.IgnoreCase != nil && *f.IgnoreCase:
			c.Case = Insensitive
		}
	}
	boolean("whole-words", &c.WholeWords, f.WholeWords)
	boolean("fixed-strings", &c.FixedStrings, f.FixedStrings)
	if len(f.Globs) > 0 && !set("glob") {
		c.Globs = append([]string(nil), f.Globs...)
	}
	boolean("recursive", &c.Recursive, f.Recursive)
	boolean("backup", &c.Backup, f.Backup)
	str("backup-suffix", &c.BackupSuffix, f.BackupSuffix)
	boolean("force", &c.Force, f.Force)
	boolean("keep-times", &c.KeepTimes, f.KeepTimes)
	boolean("quiet", &c.Quiet, f.Quiet)
	boolean("verbose", &c.Verbose, f.Verbose)
	if f.Color != nil && !set("no-color") {
		c.Color = *f.Color
	}
	num("jobs", &c.Jobs, f.Jobs)
	num("buffer-size", &c.BufferSize, f.BufferSize)
}
