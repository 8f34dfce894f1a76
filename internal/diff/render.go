package diff

import (
	"fmt"
	"io"
	"strings"
)

// RenderInline writes a plain-text inline view of segments to w.
//
// Unchanged lines are prefixed with their original line number. Deleted
// lines are marked "-" and added lines "+", in the gutter style of a
// unified diff, so a proposed edit reads in place with its context.
func RenderInline(w io.Writer, segments []Segment) error {
	for _, s := range segments {
		switch s.Kind {
		case Unchanged:
			if _, err := fmt.Fprintf(w, "%5d   %s\n", s.Line, s.Content); err != nil {
				return err
			}
		case Replacement:
			if s.HasDeleted {
				for i, line := range strings.Split(s.Deleted, "\n") {
					if _, err := fmt.Fprintf(w, "%5d - %s\n", s.Line+i, line); err != nil {
						return err
					}
				}
			}
			if s.HasAdded {
				for _, line := range strings.Split(s.Added, "\n") {
					if _, err := fmt.Fprintf(w, "      + %s\n", line); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}
