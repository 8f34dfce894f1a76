// Package diff reconciles proposed edits with the document they apply to.
// Hunks arrive from the generation backend (or from unified diff text) and
// are merged into a full-document view where unchanged lines are interleaved
// with inline deletion/addition segments.
package diff

import (
	"encoding/json"
	"fmt"
)

// ChangeKind identifies the role of a single line inside a hunk.
type ChangeKind int

const (
	// Context is an original line carried through unchanged.
	Context ChangeKind = iota + 1

	// Delete is an original line removed by the edit.
	Delete

	// Add is a new line introduced by the edit. It has no original line number.
	Add
)

// String returns the wire name of the kind ("context", "delete", "add").
func (k ChangeKind) String() string {
	switch k {
	case Context:
		return "context"
	case Delete:
		return "delete"
	case Add:
		return "add"
	default:
		return fmt.Sprintf("ChangeKind(%d)", int(k))
	}
}

// ParseChangeKind maps a wire name to a ChangeKind.
func ParseChangeKind(s string) (ChangeKind, bool) {
	switch s {
	case "context":
		return Context, true
	case "delete":
		return Delete, true
	case "add":
		return Add, true
	default:
		return 0, false
	}
}

// MarshalJSON encodes the kind as its wire name.
func (k ChangeKind) MarshalJSON() ([]byte, error) {
	if _, ok := ParseChangeKind(k.String()); !ok {
		return nil, fmt.Errorf("invalid change kind %d", int(k))
	}
	return json.Marshal(k.String())
}

// UnmarshalJSON decodes a wire name. Unknown names are rejected.
func (k *ChangeKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("change type: %w", err)
	}
	kind, ok := ParseChangeKind(s)
	if !ok {
		return fmt.Errorf("unknown change type %q", s)
	}
	*k = kind
	return nil
}

// Change is one line of a hunk.
type Change struct {
	Kind    ChangeKind `json:"type"`
	Content string     `json:"content"`
}

// ContextLine, DeleteLine and AddLine build Changes of the matching kind.
func ContextLine(content string) Change { return Change{Kind: Context, Content: content} }

// DeleteLine builds a Delete change.
func DeleteLine(content string) Change { return Change{Kind: Delete, Content: content} }

// AddLine builds an Add change.
func AddLine(content string) Change { return Change{Kind: Add, Content: content} }

// Hunk is a contiguous block of changes against the original document.
// Header is optional; when present it encodes the original starting line
// as "@@ -<start>[,<count>] +<start>[,<count>] @@".
type Hunk struct {
	Header  string   `json:"header,omitempty"`
	Changes []Change `json:"changes"`
}

// SegmentKind distinguishes the two kinds of rendered segment.
type SegmentKind int

const (
	// Unchanged is an original line shown as-is.
	Unchanged SegmentKind = iota + 1

	// Replacement is an inline edit: deleted original text and/or added text.
	Replacement
)

// String returns the wire name of the segment kind.
func (k SegmentKind) String() string {
	switch k {
	case Unchanged:
		return "unchanged"
	case Replacement:
		return "diff"
	default:
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
}

// MarshalJSON encodes the segment kind as its wire name.
func (k SegmentKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Segment is one element of the reconciled document view.
//
// For Unchanged segments, Content holds the original line and Line its
// 1-based number. For Replacement segments, Deleted and Added hold the
// removed and inserted text (multi-line buffers joined with "\n") and Line
// is the number of the first deleted original line, or 0 for a pure
// insertion, since added text never carries an original line number.
type Segment struct {
	Kind    SegmentKind `json:"kind"`
	Content string      `json:"content,omitempty"`
	Deleted string      `json:"deleted,omitempty"`
	Added   string      `json:"added,omitempty"`
	Line    int         `json:"line,omitempty"`

	// HasDeleted and HasAdded distinguish an empty line from no lines at all.
	HasDeleted bool `json:"-"`
	HasAdded   bool `json:"-"`
}

// UnchangedSegment builds an Unchanged segment.
func UnchangedSegment(content string, line int) Segment {
	return Segment{Kind: Unchanged, Content: content, Line: line}
}
