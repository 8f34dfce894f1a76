package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/pseudocoder/inkwell/internal/config"
	"github.com/pseudocoder/inkwell/internal/storage"
)

type historyOptions struct {
	store string
	limit int
}

func newHistoryCmd(root *rootOptions) *cobra.Command {
	opts := &historyOptions{}
	cmd := &cobra.Command{
		Use:   "history [session-id]",
		Short: "Show journaled connection status",
		Long: `Show journaled connection status.

With a session ID, prints that session's status transitions, oldest first.
Without one, lists recently watched sessions.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			if opts.store != "" {
				cfg.Store = opts.store
			}
			path, err := cfg.StorePath()
			if err != nil {
				return err
			}
			if _, err := os.Stat(path); os.IsNotExist(err) {
				fmt.Fprintf(cmd.OutOrStdout(), "No journal at %s yet.\n", path)
				return nil
			}
			store, err := storage.NewSQLiteStore(path)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 0 {
				return printSessions(cmd.OutOrStdout(), store, opts.limit, time.Now())
			}
			return printHistory(cmd.OutOrStdout(), store, args[0], opts.limit, time.Now())
		},
	}
	cmd.Flags().StringVar(&opts.store, "store", "", "Path to the status journal (default: ~/.inkwell/inkwell.db)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum rows to show (0 = default)")
	return cmd
}

func printHistory(w io.Writer, store *storage.SQLiteStore, sessionID string, limit int, now time.Time) error {
	records, err := store.ListStatus(sessionID, limit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintf(w, "No history for session %s.\n", sessionID)
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WHEN\tSTATUS\tATTEMPT\tDELAY\tATTEMPT ID\tDETAIL")
	fmt.Fprintln(tw, "----\t------\t-------\t-----\t----------\t------")
	for _, rec := range records {
		attempt, delay := "-", "-"
		if rec.Attempt > 0 {
			attempt = fmt.Sprintf("%d", rec.Attempt)
		}
		if rec.Delay > 0 {
			delay = rec.Delay.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			formatDuration(now.Sub(rec.CreatedAt)),
			rec.Status,
			attempt,
			delay,
			shortID(rec.AttemptID),
			rec.Error,
		)
	}
	return tw.Flush()
}

func printSessions(w io.Writer, store *storage.SQLiteStore, limit int, now time.Time) error {
	sessions, err := store.ListSessions(limit)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		fmt.Fprintln(w, "No sessions recorded yet.")
		fmt.Fprintln(w, "Run 'inkwell watch <session-id>' to follow one.")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tLAST STATUS\tEVENTS\tFIRST SEEN\tLAST SEEN")
	fmt.Fprintln(tw, "-------\t-----------\t------\t----------\t---------")
	for _, s := range sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			s.ID,
			s.LastStatus,
			s.Events,
			formatDuration(now.Sub(s.FirstSeen)),
			formatDuration(now.Sub(s.LastSeen)),
		)
	}
	return tw.Flush()
}

// formatDuration formats a duration as a human-readable "ago" string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		return "in the future"
	}
	if d < time.Minute {
		return "just now"
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

// shortID truncates an attempt UUID to its first group.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
