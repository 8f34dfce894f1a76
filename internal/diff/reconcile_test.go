package diff

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

func TestReconcile_NoHunksIsIdentity(t *testing.T) {
	segs, err := Reconcile("one\ntwo\nthree", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d", len(segs))
	}
	for i, want := range []string{"one", "two", "three"} {
		if segs[i].Kind != Unchanged || segs[i].Content != want || segs[i].Line != i+1 {
			t.Errorf("segment %d = %+v, want Unchanged(%q, %d)", i, segs[i], want, i+1)
		}
	}
}

func TestReconcile_MultiLineReplacement(t *testing.T) {
	hunks := []Hunk{{
		Header:  "@@ -2,1 +2,2 @@",
		Changes: []Change{DeleteLine("B"), AddLine("B2"), AddLine("B3")},
	}}

	segs, err := Reconcile("A\nB\nC", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Segment{
		UnchangedSegment("A", 1),
		{Kind: Replacement, Deleted: "B", Added: "B2\nB3", Line: 2, HasDeleted: true, HasAdded: true},
		UnchangedSegment("C", 3),
	}
	assertSegments(t, segs, want)
}

func TestReconcile_ContextFlushesPending(t *testing.T) {
	hunks := []Hunk{{
		Header: "@@ -1,4 +1,4 @@",
		Changes: []Change{
			DeleteLine("a"),
			AddLine("a2"),
			ContextLine("b"),
			DeleteLine("c"),
			DeleteLine("d"),
			AddLine("cd"),
		},
	}}

	segs, err := Reconcile("a\nb\nc\nd\ne", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Segment{
		{Kind: Replacement, Deleted: "a", Added: "a2", Line: 1, HasDeleted: true, HasAdded: true},
		UnchangedSegment("b", 2),
		{Kind: Replacement, Deleted: "c\nd", Added: "cd", Line: 3, HasDeleted: true, HasAdded: true},
		UnchangedSegment("e", 5),
	}
	assertSegments(t, segs, want)
}

func TestReconcile_PureInsertionHasNoLineNumber(t *testing.T) {
	hunks := []Hunk{{
		Header:  "@@ -1,0 +2,1 @@",
		Changes: []Change{AddLine("inserted")},
	}}

	segs, err := Reconcile("first\nsecond", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Segment{
		UnchangedSegment("first", 1),
		{Kind: Replacement, Added: "inserted", HasAdded: true},
		UnchangedSegment("second", 2),
	}
	assertSegments(t, segs, want)
}

func TestReconcile_PureDeletion(t *testing.T) {
	hunks := []Hunk{{
		Header:  "@@ -2,2 +1,0 @@",
		Changes: []Change{DeleteLine("x"), DeleteLine("")},
	}}

	segs, err := Reconcile("keep\nx\n\nend", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segs) != 3 {
		t.Fatalf("expected 3 segments, got %d: %+v", len(segs), segs)
	}
	if !segs[1].HasDeleted || segs[1].HasAdded || segs[1].Deleted != "x\n" {
		t.Errorf("unexpected deletion segment: %+v", segs[1])
	}
	if got := OriginalText(segs); got != "keep\nx\n\nend" {
		t.Errorf("OriginalText = %q", got)
	}
	if got := ProposedText(segs); got != "keep\nend" {
		t.Errorf("ProposedText = %q", got)
	}
}

func TestReconcile_HeaderlessHunkUsesCursor(t *testing.T) {
	hunks := []Hunk{
		{Header: "@@ -2,1 +2,1 @@", Changes: []Change{DeleteLine("2"), AddLine("two")}},
		{Changes: []Change{ContextLine("3"), DeleteLine("4"), AddLine("four")}},
	}

	segs, err := Reconcile("1\n2\n3\n4\n5", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := ProposedText(segs); got != "1\ntwo\n3\nfour\n5" {
		t.Errorf("ProposedText = %q", got)
	}
}

func TestReconcile_UnparseableHeaderUsesCursor(t *testing.T) {
	hunks := []Hunk{{Header: "@@ garbage @@", Changes: []Change{DeleteLine("1"), AddLine("one")}}}

	segs, err := Reconcile("1\n2", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if segs[0].Kind != Replacement || segs[0].Line != 1 {
		t.Errorf("expected replacement at line 1, got %+v", segs[0])
	}
}

func TestReconcile_OverflowingCountDoesNotBecomeInsertion(t *testing.T) {
	hunks := []Hunk{{
		Header:  "@@ -1,99999999999999999999 +1,1 @@",
		Changes: []Change{DeleteLine("first"), AddLine("1st")},
	}}

	segs, err := Reconcile("first\nsecond", hunks)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Segment{
		{Kind: Replacement, Deleted: "first", Added: "1st", Line: 1, HasDeleted: true, HasAdded: true},
		UnchangedSegment("second", 2),
	}
	assertSegments(t, segs, want)
}

func TestReconcile_OverlappingHunkIsReported(t *testing.T) {
	hunks := []Hunk{
		{Header: "@@ -2,2 +2,2 @@", Changes: []Change{DeleteLine("b"), DeleteLine("c"), AddLine("B"), AddLine("C")}},
		{Header: "@@ -3,1 +3,1 @@", Changes: []Change{DeleteLine("c"), AddLine("see")}},
	}

	segs, err := Reconcile("a\nb\nc\nd", hunks)
	if err == nil {
		t.Fatal("expected a validation error for overlapping hunks")
	}
	if !apperrors.IsCode(err, apperrors.CodeDiffValidationFailed) {
		t.Errorf("expected diff.validation_failed, got %v", err)
	}

	var hunkErr *HunkError
	if !errors.As(err, &hunkErr) {
		t.Fatalf("expected a HunkError in the chain, got %v", err)
	}
	if hunkErr.Index != 1 {
		t.Errorf("expected hunk 1 to be reported, got %d", hunkErr.Index)
	}

	// The first hunk still renders and nothing is lost.
	if got := OriginalText(segs); got != "a\nb\nc\nd" {
		t.Errorf("OriginalText = %q", got)
	}
	if got := ProposedText(segs); got != "a\nB\nC\nd" {
		t.Errorf("ProposedText = %q", got)
	}
}

func TestReconcile_OutOfOrderHunkIsSkipped(t *testing.T) {
	hunks := []Hunk{
		{Header: "@@ -4,1 +4,1 @@", Changes: []Change{DeleteLine("d"), AddLine("D")}},
		{Header: "@@ -1,1 +1,1 @@", Changes: []Change{DeleteLine("a"), AddLine("A")}},
	}

	segs, err := Reconcile("a\nb\nc\nd", hunks)
	if err == nil {
		t.Fatal("expected a validation error for out-of-order hunks")
	}
	if got := ProposedText(segs); got != "a\nb\nc\nD" {
		t.Errorf("ProposedText = %q", got)
	}
	assertAccountsForEveryLine(t, segs, 4)
}

func TestReconcile_HunkPastEndOfDocument(t *testing.T) {
	tests := []struct {
		name  string
		hunks []Hunk
	}{
		{
			name:  "start beyond end",
			hunks: []Hunk{{Header: "@@ -10,1 +10,1 @@", Changes: []Change{DeleteLine("z")}}},
		},
		{
			name:  "delete runs off the end",
			hunks: []Hunk{{Header: "@@ -2,3 +2,0 @@", Changes: []Change{DeleteLine("b"), DeleteLine("c"), DeleteLine("d")}}},
		},
		{
			name:  "context runs off the end",
			hunks: []Hunk{{Header: "@@ -3,2 +3,3 @@", Changes: []Change{ContextLine("c"), AddLine("new"), ContextLine("d")}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segs, err := Reconcile("a\nb\nc", tt.hunks)
			if !apperrors.IsCode(err, apperrors.CodeDiffValidationFailed) {
				t.Fatalf("expected diff.validation_failed, got %v", err)
			}
			assertAccountsForEveryLine(t, segs, 3)
		})
	}
}

func TestReconcile_ContentMismatchIsReported(t *testing.T) {
	hunks := []Hunk{{Header: "@@ -1,1 +1,1 @@", Changes: []Change{DeleteLine("stale"), AddLine("fresh")}}}

	segs, err := Reconcile("actual", hunks)
	if err == nil || !strings.Contains(err.Error(), `"stale"`) {
		t.Fatalf("expected mismatch to be reported, got %v", err)
	}
	if segs[0].Deleted != "actual" {
		t.Errorf("deleted text should come from the document, got %q", segs[0].Deleted)
	}
}

func TestReconcile_RoundTripProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(30)
		lines := make([]string, n)
		for i := range lines {
			lines[i] = fmt.Sprintf("line-%d-%d", iter, i)
		}
		original := strings.Join(lines, "\n")
		hunks := randomHunks(rng, lines)

		segs, err := Reconcile(original, hunks)
		if err != nil {
			t.Fatalf("iter %d: unexpected error: %v\nhunks: %+v", iter, err, hunks)
		}
		if got := OriginalText(segs); got != original {
			t.Fatalf("iter %d: round trip mismatch\n got: %q\nwant: %q", iter, got, original)
		}
		assertAccountsForEveryLine(t, segs, n)
	}
}

func TestSegment_JSON(t *testing.T) {
	segs, _ := Reconcile("A\nB\nC", []Hunk{{
		Header:  "@@ -2,1 +2,2 @@",
		Changes: []Change{DeleteLine("B"), AddLine("B2"), AddLine("B3")},
	}})

	data, err := json.Marshal(segs)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !bytes.Contains(data, []byte(`{"kind":"diff","deleted":"B","added":"B2\nB3","line":2}`)) {
		t.Errorf("unexpected JSON: %s", data)
	}
	if !bytes.Contains(data, []byte(`{"kind":"unchanged","content":"A","line":1}`)) {
		t.Errorf("unexpected JSON: %s", data)
	}
}

func TestHunk_UnmarshalRejectsUnknownType(t *testing.T) {
	var h Hunk
	err := json.Unmarshal([]byte(`{"header":"@@ -1 +1 @@","changes":[{"type":"modify","content":"x"}]}`), &h)
	if err == nil {
		t.Fatal("expected unknown change type to be rejected")
	}

	err = json.Unmarshal([]byte(`{"changes":[{"type":"context","content":"x"},{"type":"add","content":"y"}]}`), &h)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h.Changes[0] != ContextLine("x") || h.Changes[1] != AddLine("y") {
		t.Errorf("unexpected changes: %+v", h.Changes)
	}
}

func TestRenderInline(t *testing.T) {
	segs, _ := Reconcile("A\nB\nC", []Hunk{{
		Header:  "@@ -2,1 +2,2 @@",
		Changes: []Change{DeleteLine("B"), AddLine("B2"), AddLine("B3")},
	}})

	var buf bytes.Buffer
	if err := RenderInline(&buf, segs); err != nil {
		t.Fatalf("render: %v", err)
	}
	want := "    1   A\n    2 - B\n      + B2\n      + B3\n    3   C\n"
	if buf.String() != want {
		t.Errorf("RenderInline =\n%s\nwant\n%s", buf.String(), want)
	}
}

// randomHunks builds ascending, non-overlapping hunks over lines.
func randomHunks(rng *rand.Rand, lines []string) []Hunk {
	var hunks []Hunk
	pos := 0
	for pos < len(lines) {
		pos += rng.Intn(3)
		if pos >= len(lines) {
			break
		}
		start := pos
		var changes []Change
		span := 1 + rng.Intn(4)
		for i := 0; i < span && pos < len(lines); i++ {
			switch rng.Intn(3) {
			case 0:
				changes = append(changes, ContextLine(lines[pos]))
			case 1:
				changes = append(changes, DeleteLine(lines[pos]))
			default:
				changes = append(changes, DeleteLine(lines[pos]), AddLine("new "+lines[pos]))
			}
			pos++
			if rng.Intn(4) == 0 {
				changes = append(changes, AddLine("inserted"))
			}
		}
		header := fmt.Sprintf("@@ -%d,%d +%d,%d @@", start+1, pos-start, start+1, pos-start)
		if rng.Intn(5) == 0 && len(hunks) > 0 && start == 0 {
			header = ""
		}
		hunks = append(hunks, Hunk{Header: header, Changes: changes})
	}
	return hunks
}

func assertSegments(t *testing.T, got, want []Segment) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d segments, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("segment %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

// assertAccountsForEveryLine checks each original line appears exactly once,
// either as an Unchanged segment or inside a Replacement's deleted text.
func assertAccountsForEveryLine(t *testing.T, segs []Segment, n int) {
	t.Helper()
	seen := 0
	for _, s := range segs {
		switch s.Kind {
		case Unchanged:
			seen++
			if s.Line != seen {
				t.Fatalf("unchanged line numbered %d, expected %d", s.Line, seen)
			}
		case Replacement:
			if s.HasDeleted {
				if s.Line != seen+1 {
					t.Fatalf("replacement numbered %d, expected %d", s.Line, seen+1)
				}
				seen += strings.Count(s.Deleted, "\n") + 1
			} else if s.Line != 0 {
				t.Fatalf("pure insertion carries line number %d", s.Line)
			}
		}
	}
	if seen != n {
		t.Fatalf("segments account for %d lines, document has %d", seen, n)
	}
}
