package diff

import (
	"strings"

	"github.com/fatih/color"
	"github.com/pmezard/go-difflib/difflib"
)

// Options control how the diff output is rendered.
// If Color is true, added/removed lines and hunk headers are coloured.
// Context is the number of unchanged lines around each hunk; 3 if zero.
type Options struct {
	Color    bool
	Context  int
	FromFile string
	ToFile   string
}

// HasChanges reports whether the inputs differ.
func HasChanges(before, after string) bool { return before != after }

// Diff returns a unified diff of before and after and whether there were
// changes.
func Diff(before, after string, opts Options) (string, bool, error) {
	if !HasChanges(before, after) {
		return "", false, nil
	}
	if opts.Context <= 0 {
		opts.Context = 3
	}
	if opts.FromFile == "" {
		opts.FromFile = "before"
	}
	if opts.ToFile == "" {
		opts.ToFile = "after"
	}

	out, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: opts.FromFile,
		ToFile:   opts.ToFile,
		Context:  opts.Context,
	})
	if err != nil {
		return "", false, err
	}
	return colorize(out, opts.Color), true, nil
}

func colorize(out string, enabled bool) string {
	if !enabled {
		return out
	}
	red, green, cyan := color.New(color.FgRed), color.New(color.FgGreen), color.New(color.FgCyan)
	for _, c := range []*color.Color{red, green, cyan} {
		c.EnableColor()
	}

	var b strings.Builder
	for _, line := range strings.SplitAfter(out, "\n") {
		body := strings.TrimSuffix(line, "\n")
		nl := line[len(body):]
		switch {
		case body == "":
			b.WriteString(line)
			continue
		case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"):
			b.WriteString(line)
			continue
		case strings.HasPrefix(body, "@@"):
			b.WriteString(cyan.Sprint(body))
		case strings.HasPrefix(body, "+"):
			b.WriteString(green.Sprint(body))
		case strings.HasPrefix(body, "-"):
			b.WriteString(red.Sprint(body))
		default:
			b.WriteString(body)
		}
		b.WriteString(nl)
	}
	return b.String()
}
