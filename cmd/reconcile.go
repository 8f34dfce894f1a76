package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pseudocoder/inkwell/internal/diff"
	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

type reconcileOptions struct {
	original string
	diffPath string
	json     bool
}

// reconcileOutput is the --json document.
type reconcileOutput struct {
	Segments []diff.Segment `json:"segments"`
	Stats    diff.Stats     `json:"stats"`
	Issues   []string       `json:"issues,omitempty"`
}

func newReconcileCmd() *cobra.Command {
	opts := &reconcileOptions{}
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Render proposed hunks inline against an original document",
		Long: `Render proposed hunks inline against an original document.

The diff file may hold a unified diff (bare @@ hunks or a file diff) or a
JSON array of hunks as sent by the backend. Use "-" to read it from stdin.
Hunks that cannot be applied cleanly are reported on stderr and rendered
best-effort.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.original, "original", "", "Path to the original document")
	cmd.Flags().StringVar(&opts.diffPath, "diff", "", "Path to the proposed hunks (unified diff or JSON), or - for stdin")
	cmd.Flags().BoolVar(&opts.json, "json", false, "Print segments as JSON")
	_ = cmd.MarkFlagRequired("original")
	_ = cmd.MarkFlagRequired("diff")
	return cmd
}

func runReconcile(cmd *cobra.Command, opts *reconcileOptions) error {
	original, err := os.ReadFile(opts.original)
	if err != nil {
		return fmt.Errorf("read original: %w", err)
	}

	var raw []byte
	if opts.diffPath == "-" {
		raw, err = io.ReadAll(cmd.InOrStdin())
	} else {
		raw, err = os.ReadFile(opts.diffPath)
	}
	if err != nil {
		return fmt.Errorf("read diff: %w", err)
	}

	hunks, err := loadHunks(raw)
	if err != nil {
		return err
	}

	segments, verr := diff.Reconcile(strings.TrimSuffix(string(original), "\n"), hunks)
	issues := validationIssues(verr)
	if verr != nil {
		stderr := cmd.ErrOrStderr()
		fmt.Fprintf(stderr, "warning: %s\n", apperrors.GetMessage(verr))
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  %s\n", issue)
		}
	}

	stats := diff.CalculateStats(hunks)
	out := cmd.OutOrStdout()
	if opts.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(reconcileOutput{Segments: segments, Stats: stats, Issues: issues})
	}

	if err := diff.RenderInline(out, segments); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d hunk(s), +%d -%d\n", stats.Hunks, stats.AddedLines, stats.DeletedLines)
	if stats.IsLarge() {
		fmt.Fprintln(out, "note: this is a large edit")
	}
	return nil
}

// loadHunks accepts either a JSON hunk array or unified diff text.
func loadHunks(raw []byte) ([]diff.Hunk, error) {
	if strings.HasPrefix(strings.TrimSpace(string(raw)), "[") {
		var hunks []diff.Hunk
		if err := json.Unmarshal(raw, &hunks); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeDiffParseFailed, "parse JSON hunks", err)
		}
		return hunks, nil
	}
	return diff.ParseUnified(string(raw))
}

// validationIssues flattens the per-hunk problems joined into err.
func validationIssues(err error) []string {
	if err == nil {
		return nil
	}
	var joined interface{ Unwrap() []error }
	if !errors.As(errors.Unwrap(err), &joined) {
		return []string{err.Error()}
	}
	var issues []string
	for _, e := range joined.Unwrap() {
		issues = append(issues, e.Error())
	}
	return issues
}
