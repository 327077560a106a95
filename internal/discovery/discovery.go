package discovery

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gitlab.com/tozd/go/errors"
)

// Stdin is the file argument naming standard input.
const Stdin = "-"

// ErrNoMatch is returned when file arguments were given but none of them
// (or nothing under them, with Recursive) matches a glob.
var ErrNoMatch = errors.New("the given filename patterns did not match any files")

// Selector defines how files are selected for processing.
// Globs match base names; a glob containing a slash matches the whole path.
// With no Files, standard input is selected.
type Selector struct {
	Files     []string
	Globs     []string
	Recursive bool
}

// Discover expands the selector into the list of paths to process, in
// argument order with duplicates removed. Directory arguments are walked
// when Recursive is set and returned as-is otherwise, so the caller can
// report them. Arguments that do not exist are kept so the caller can
// report them too.
func Discover(sel Selector) ([]string, error) {
	globs := sel.Globs
	if len(globs) == 0 {
		globs = []string{"*"}
	}
	for _, g := range globs {
		if !doublestar.ValidatePattern(filepath.ToSlash(g)) {
			return nil, errors.Errorf("bad glob %q", g)
		}
	}
	if len(sel.Files) == 0 {
		if sel.Recursive {
			return nil, errors.New("cannot use --recursive with no file arguments")
		}
		return []string{Stdin}, nil
	}

	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; !ok {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}

	for _, f := range sel.Files {
		if f == Stdin {
			add(f)
			continue
		}
		info, err := os.Stat(f)
		walk := sel.Recursive && err == nil && info.IsDir()
		for _, g := range globs {
			if walk {
				paths, err := expandDir(f, g)
				if err != nil {
					return nil, err
				}
				for _, p := range paths {
					add(p)
				}
				continue
			}
			if match(g, f) {
				add(f)
			}
		}
	}

	if len(out) == 0 {
		return nil, ErrNoMatch
	}
	return out, nil
}

// --- internals ---

func match(glob, path string) bool {
	glob = filepath.ToSlash(glob)
	name := filepath.Base(path)
	if strings.Contains(glob, "/") {
		name = filepath.ToSlash(filepath.Clean(path))
	}
	ok, err := doublestar.Match(glob, name)
	return err == nil && ok
}

// expandDir returns the entries at any depth under dir whose names match
// glob, sorted. Symbolic links to directories are not followed.
func expandDir(dir, glob string) ([]string, error) {
	pattern := "**/" + filepath.ToSlash(glob)
	matches, err := doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithNoFollow())
	if err != nil {
		return nil, errors.Errorf("walking %s: %w", dir, err)
	}
	sort.Strings(matches)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		out = append(out, filepath.Join(dir, filepath.FromSlash(m)))
	}
	return out, nil
}
