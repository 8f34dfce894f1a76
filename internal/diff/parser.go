package diff

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	godiff "github.com/sourcegraph/go-diff/diff"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// hunkHeaderRegex matches unified diff hunk headers like:
// @@ -1,5 +1,7 @@
// @@ -0,0 +1,10 @@ (new document)
// @@ -3 +3 @@ (single line, counts omitted)
var hunkHeaderRegex = regexp.MustCompile(`^@@ -(\d+)(?:,(\d+))? \+(\d+)(?:,(\d+))? @@`)

// Header is the decoded form of a hunk header.
type Header struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
}

// String formats the header in unified diff form.
func (h Header) String() string {
	return fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
}

// ParseHeader decodes a hunk header. The second return value is false when
// the header is empty or does not match the unified diff pattern.
func ParseHeader(header string) (Header, bool) {
	matches := hunkHeaderRegex.FindStringSubmatch(strings.TrimSpace(header))
	if matches == nil {
		return Header{}, false
	}

	var h Header
	var err error
	if h.OldStart, err = strconv.Atoi(matches[1]); err != nil {
		return Header{}, false
	}
	h.OldCount = 1 // default if not specified
	if matches[2] != "" {
		if h.OldCount, err = strconv.Atoi(matches[2]); err != nil {
			return Header{}, false
		}
	}
	if h.NewStart, err = strconv.Atoi(matches[3]); err != nil {
		return Header{}, false
	}
	h.NewCount = 1
	if matches[4] != "" {
		if h.NewCount, err = strconv.Atoi(matches[4]); err != nil {
			return Header{}, false
		}
	}
	return h, true
}

// ParseUnified converts unified diff text into hunks.
//
// The input may be bare hunks starting with an "@@" line, or a single-file
// diff with "---"/"+++" (and optionally "diff --git") headers. Only the
// first file of a multi-file diff is used. "\ No newline at end of file"
// markers are dropped.
func ParseUnified(text string) ([]Hunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	var parsed []*godiff.Hunk
	if strings.HasPrefix(strings.TrimLeft(text, "\r\n"), "@@") {
		hunks, err := godiff.ParseHunks([]byte(strings.TrimLeft(text, "\r\n")))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDiffParseFailed, "parse hunks", err)
		}
		parsed = hunks
	} else {
		files, err := godiff.ParseMultiFileDiff([]byte(text))
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDiffParseFailed, "parse file diff", err)
		}
		if len(files) == 0 {
			return nil, apperrors.New(apperrors.CodeDiffParseFailed, "no file diff found")
		}
		parsed = files[0].Hunks
	}

	hunks := make([]Hunk, 0, len(parsed))
	for _, h := range parsed {
		header := Header{
			OldStart: int(h.OrigStartLine),
			OldCount: int(h.OrigLines),
			NewStart: int(h.NewStartLine),
			NewCount: int(h.NewLines),
		}
		hunks = append(hunks, Hunk{
			Header:  header.String(),
			Changes: parseBody(string(h.Body)),
		})
	}
	return hunks, nil
}

// parseBody splits a hunk body into changes by line prefix.
func parseBody(body string) []Change {
	body = strings.TrimSuffix(body, "\n")
	if body == "" {
		return nil
	}

	lines := strings.Split(body, "\n")
	changes := make([]Change, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			// Editors often strip the leading space of blank context lines.
			changes = append(changes, ContextLine(""))
			continue
		}
		switch line[0] {
		case ' ':
			changes = append(changes, ContextLine(line[1:]))
		case '-':
			changes = append(changes, DeleteLine(line[1:]))
		case '+':
			changes = append(changes, AddLine(line[1:]))
		case '\\':
			// "\ No newline at end of file"
		default:
			changes = append(changes, ContextLine(line))
		}
	}
	return changes
}

// FormatUnified renders hunks back to unified diff text. Hunks without a
// parseable header get one computed from their changes, starting at line 1.
func FormatUnified(hunks []Hunk) string {
	var b strings.Builder
	for _, h := range hunks {
		header := h.Header
		if _, ok := ParseHeader(header); !ok {
			header = inferHeader(h).String()
		}
		b.WriteString(header)
		b.WriteByte('\n')
		for _, c := range h.Changes {
			switch c.Kind {
			case Context:
				b.WriteByte(' ')
			case Delete:
				b.WriteByte('-')
			case Add:
				b.WriteByte('+')
			}
			b.WriteString(c.Content)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func inferHeader(h Hunk) Header {
	hdr := Header{OldStart: 1, NewStart: 1}
	for _, c := range h.Changes {
		switch c.Kind {
		case Context:
			hdr.OldCount++
			hdr.NewCount++
		case Delete:
			hdr.OldCount++
		case Add:
			hdr.NewCount++
		}
	}
	return hdr
}

// Stats contains size metrics for a set of hunks.
type Stats struct {
	Hunks        int `json:"hunks"`
	AddedLines   int `json:"added_lines"`
	DeletedLines int `json:"deleted_lines"`
	ContextLines int `json:"context_lines"`
}

// Large edit thresholds for UI warnings.
const (
	// LargeEditLineThreshold is the number of changed lines above which an
	// edit is considered large enough to warrant a confirmation prompt.
	LargeEditLineThreshold = 2000
)

// CalculateStats counts the lines of each kind across hunks.
func CalculateStats(hunks []Hunk) Stats {
	stats := Stats{Hunks: len(hunks)}
	for _, h := range hunks {
		for _, c := range h.Changes {
			switch c.Kind {
			case Add:
				stats.AddedLines++
			case Delete:
				stats.DeletedLines++
			case Context:
				stats.ContextLines++
			}
		}
	}
	return stats
}

// IsLarge reports whether the stats exceed the large edit threshold.
func (s Stats) IsLarge() bool {
	return s.AddedLines+s.DeletedLines > LargeEditLineThreshold
}
