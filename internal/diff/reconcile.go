package diff

import (
	"errors"
	"fmt"
	"strings"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// HunkError describes one problem found while reconciling a hunk.
type HunkError struct {
	Index  int    // Position of the hunk in the input slice
	Header string // Raw header, may be empty
	Reason string
}

// Error implements the error interface.
func (e *HunkError) Error() string {
	if e.Header != "" {
		return fmt.Sprintf("hunk %d (%s): %s", e.Index, e.Header, e.Reason)
	}
	return fmt.Sprintf("hunk %d: %s", e.Index, e.Reason)
}

// Reconcile merges hunks into a full-document view of original.
//
// Hunks must be ordered by ascending, non-overlapping start line. Invalid
// input never panics: an out-of-order or overlapping hunk is skipped so its
// lines render unchanged, a hunk that runs past the end of the document is
// cut short, and context or delete lines that disagree with the original
// are rendered from the original text. Every such problem is reported in
// the returned diff.validation_failed error, alongside the best-effort
// segments. The segments always account for every original line exactly once.
func Reconcile(original string, hunks []Hunk) ([]Segment, error) {
	r := &reconciler{lines: strings.Split(original, "\n")}
	r.out = make([]Segment, 0, len(r.lines)+len(hunks))

	for i, h := range hunks {
		r.apply(i, h)
	}
	r.emitUntil(len(r.lines))

	if len(r.issues) > 0 {
		return r.out, apperrors.ValidationFailed(len(r.issues), errors.Join(r.issues...))
	}
	return r.out, nil
}

// reconciler holds the cursor and pending buffers for one Reconcile call.
type reconciler struct {
	lines  []string
	cursor int // 0-based index of the next original line not yet emitted
	out    []Segment
	issues []error

	deleted   []string
	added     []string
	firstLine int // 1-based number of the first pending deleted line
}

func (r *reconciler) issue(index int, h Hunk, format string, args ...any) {
	r.issues = append(r.issues, &HunkError{
		Index:  index,
		Header: h.Header,
		Reason: fmt.Sprintf(format, args...),
	})
}

func (r *reconciler) apply(index int, h Hunk) {
	start := r.cursor
	if hdr, ok := ParseHeader(h.Header); ok {
		// A zero-length old range names the line after which text is inserted.
		start = hdr.OldStart - 1
		if hdr.OldCount == 0 {
			start = hdr.OldStart
		}
		if start < 0 {
			start = 0
		}
		if start < r.cursor {
			r.issue(index, h, "starts at line %d, before line %d already consumed (out of order or overlapping)", start+1, r.cursor+1)
			return
		}
		if start > len(r.lines) {
			r.issue(index, h, "starts at line %d, past the end of a %d-line document", start+1, len(r.lines))
			return
		}
	}

	r.emitUntil(start)

	for _, c := range h.Changes {
		switch c.Kind {
		case Delete:
			if !r.hasLine() {
				r.issue(index, h, "delete runs past the end of the document")
				r.flush()
				return
			}
			r.checkContent(index, h, c)
			if len(r.deleted) == 0 {
				r.firstLine = r.cursor + 1
			}
			r.deleted = append(r.deleted, r.lines[r.cursor])
			r.cursor++
		case Add:
			r.added = append(r.added, c.Content)
		case Context:
			if !r.hasLine() {
				r.issue(index, h, "context runs past the end of the document")
				r.flush()
				return
			}
			r.checkContent(index, h, c)
			r.flush()
			r.emitUntil(r.cursor + 1)
		default:
			r.issue(index, h, "unknown change kind %v", c.Kind)
		}
	}
	r.flush()
}

func (r *reconciler) hasLine() bool {
	return r.cursor < len(r.lines)
}

func (r *reconciler) checkContent(index int, h Hunk, c Change) {
	if got := r.lines[r.cursor]; got != c.Content {
		r.issue(index, h, "%s line %d is %q but the document has %q", c.Kind, r.cursor+1, c.Content, got)
	}
}

// flush emits the pending deleted/added buffers as one Replacement segment.
func (r *reconciler) flush() {
	if len(r.deleted) == 0 && len(r.added) == 0 {
		return
	}

	seg := Segment{
		Kind:       Replacement,
		Deleted:    strings.Join(r.deleted, "\n"),
		Added:      strings.Join(r.added, "\n"),
		HasDeleted: len(r.deleted) > 0,
		HasAdded:   len(r.added) > 0,
	}
	if seg.HasDeleted {
		seg.Line = r.firstLine
	}
	r.out = append(r.out, seg)

	r.deleted = r.deleted[:0]
	r.added = r.added[:0]
	r.firstLine = 0
}

// emitUntil emits Unchanged segments for original lines [cursor, end).
func (r *reconciler) emitUntil(end int) {
	if end > len(r.lines) {
		end = len(r.lines)
	}
	for ; r.cursor < end; r.cursor++ {
		r.out = append(r.out, UnchangedSegment(r.lines[r.cursor], r.cursor+1))
	}
}

// OriginalText rebuilds the original document from segments: the Unchanged
// content and the deleted text of each Replacement, in order.
func OriginalText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s.Kind {
		case Unchanged:
			parts = append(parts, s.Content)
		case Replacement:
			if s.HasDeleted {
				parts = append(parts, s.Deleted)
			}
		}
	}
	return strings.Join(parts, "\n")
}

// ProposedText builds the edited document: the Unchanged content and the
// added text of each Replacement, in order.
func ProposedText(segments []Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		switch s.Kind {
		case Unchanged:
			parts = append(parts, s.Content)
		case Replacement:
			if s.HasAdded {
				parts = append(parts, s.Added)
			}
		}
	}
	return strings.Join(parts, "\n")
}
