package processor

import "fmt"

// Stats are the run totals reported in the summary.
type Stats struct {
	// Files is the number of files that reached processing.
	Files int
	// MatchedFiles is the number of those with at least one match,
	// including files the user declined to save.
	MatchedFiles int
	// Matches counts the matches of saved files, or of matched files in a
	// dry run.
	Matches int
}

// Add accounts for one Result.
func (s *Stats) Add(r Result) {
	if r.Status == Skipped {
		return
	}
	s.Files++
	if r.Matches > 0 {
		s.MatchedFiles++
	}
	if r.Status == Modified || r.Status == Matched {
		s.Matches += r.Matches
	}
}

// Summary renders the totals, e.g. "3 matches replaced in 2 out of 4 files".
func (s Stats) Summary(dryRun bool) string {
	verb := "replaced"
	if dryRun {
		verb = "found"
	}
	plural := "s"
	if s.Files == 1 {
		plural = ""
	}
	return fmt.Sprintf("%d matches %s in %d out of %d file%s", s.Matches, verb, s.MatchedFiles, s.Files, plural)
}
