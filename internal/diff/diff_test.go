package diff

import (
	"strings"
	"testing"
)

func TestHasChanges(t *testing.T) {
	if HasChanges("a", "a") {
		t.Fatalf("expected no changes")
	}
	if !HasChanges("a", "b") {
		t.Fatalf("expected changes")
	}
}

func TestDiff_NoChanges(t *testing.T) {
	out, changed, err := Diff("foo", "foo", Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if changed {
		t.Fatalf("expected unchanged")
	}
	if out != "" {
		t.Fatalf("expected empty diff, got %q", out)
	}
}

func TestDiff_SimpleChange(t *testing.T) {
	out, changed, err := Diff("foo\nbar\n", "foo\nbaz\n", Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	if !strings.Contains(out, "\n-bar\n") || !strings.Contains(out, "\n+baz\n") {
		t.Fatalf("diff missing expected lines:\n%s", out)
	}
	if !strings.Contains(out, "@@ -1,2 +1,2 @@") {
		t.Fatalf("missing hunk header:\n%s", out)
	}
}

func TestDiff_MultipleChanges(t *testing.T) {
	out, changed, err := Diff("one\ntwo\nthree\n", "ONE\ntwo\nTHREE\n", Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	if !strings.Contains(out, "-one") || !strings.Contains(out, "+ONE") {
		t.Fatalf("diff missing one->ONE: %s", out)
	}
	if !strings.Contains(out, "-three") || !strings.Contains(out, "+THREE") {
		t.Fatalf("diff missing three->THREE: %s", out)
	}
}

func TestDiff_Colorized(t *testing.T) {
	out, changed, err := Diff("a\n", "b\n", Options{Color: true})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	if !strings.Contains(out, "\x1b[31m-a") || !strings.Contains(out, "\x1b[32m+b") {
		t.Fatalf("expected ANSI colors, got: %q", out)
	}
	if !strings.Contains(out, "--- before\n") {
		t.Fatalf("file headers should stay plain: %q", out)
	}
}

func TestDiff_Headers(t *testing.T) {
	out, _, err := Diff("x\n", "y\n", Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.HasPrefix(out, "--- before\n+++ after\n") {
		t.Fatalf("missing default headers:\n%s", out)
	}

	out, _, err = Diff("x\n", "y\n", Options{FromFile: "a.txt", ToFile: "a.txt (new)"})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.HasPrefix(out, "--- a.txt\n+++ a.txt (new)\n") {
		t.Fatalf("missing named headers:\n%s", out)
	}
}

func TestDiff_NoColor_HasNoANSI(t *testing.T) {
	out, changed, err := Diff("a", "b", Options{Color: false})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !changed {
		t.Fatalf("expected changes")
	}
	if strings.Contains(out, "\x1b[") {
		t.Fatalf("unexpected ANSI escapes: %q", out)
	}
}

func TestDiff_TrailingNewlineDifference_Reported(t *testing.T) {
	_, changed, err := Diff("a", "a\n", Options{})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !changed {
		t.Fatalf("a removed or added final newline is a change")
	}
}

func TestDiff_ContextOption(t *testing.T) {
	before := "1\n2\n3\n4\n5\n6\n7\n8\n9\n"
	after := "1\n2\n3\n4\nFIVE\n6\n7\n8\n9\n"
	narrow, _, err := Diff(before, after, Options{Context: 1})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	wide, _, err := Diff(before, after, Options{Context: 4})
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	if !strings.Contains(narrow, "@@ -4,3 +4,3 @@") {
		t.Fatalf("narrow context hunk:\n%s", narrow)
	}
	if !strings.Contains(wide, "@@ -1,9 +1,9 @@") {
		t.Fatalf("wide context hunk:\n%s", wide)
	}
}
