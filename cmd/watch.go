package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"pkt.systems/pslog"

	"github.com/pseudocoder/inkwell/internal/channel"
	"github.com/pseudocoder/inkwell/internal/config"
	"github.com/pseudocoder/inkwell/internal/diff"
	"github.com/pseudocoder/inkwell/internal/guard"
	"github.com/pseudocoder/inkwell/internal/metrics"
	"github.com/pseudocoder/inkwell/internal/protocol"
	"github.com/pseudocoder/inkwell/internal/storage"
)

const (
	// metricsShutdownTimeout bounds the metrics server drain on exit.
	metricsShutdownTimeout = 2 * time.Second

	// channelShutdownTimeout bounds the wait for a channel's event loop.
	channelShutdownTimeout = 5 * time.Second

	// journalRetention is how long status rows are kept.
	journalRetention = 30 * 24 * time.Hour
)

type watchOptions struct {
	backend     string
	secure      bool
	store       string
	trace       bool
	interactive bool
	metricsAddr string
}

func newWatchCmd(root *rootOptions) *cobra.Command {
	opts := &watchOptions{}
	cmd := &cobra.Command{
		Use:   "watch <session-id>",
		Short: "Follow a session's live channel",
		Long: `Follow a session's live channel.

Prints every message the backend sends and every connection status change.
Status transitions are journaled for 'inkwell history'. The channel
reconnects on its own with capped exponential backoff; once retries are
exhausted the command exits with an error.

With --interactive, each line read from stdin is sent to the session as
feedback. Rapid submissions are debounced and a submission is dropped
while the previous one is still in flight.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			applyWatchFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runWatch(cmd.Context(), cfg, args[0], opts.interactive, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Backend host[:port] or origin URL (overrides config)")
	cmd.Flags().BoolVar(&opts.secure, "secure", false, "Use wss:// (overrides config)")
	cmd.Flags().StringVar(&opts.store, "store", "", "Path to the status journal (overrides config)")
	cmd.Flags().BoolVar(&opts.trace, "trace", false, "Also follow the cross-session trace channel")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Send stdin lines as feedback")
	cmd.Flags().StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	return cmd
}

// applyWatchFlags copies explicitly set flags over the file values.
func applyWatchFlags(cmd *cobra.Command, cfg *config.Config, opts *watchOptions) {
	flags := cmd.Flags()
	if flags.Changed("backend") {
		cfg.Backend = opts.backend
	}
	if flags.Changed("secure") {
		cfg.Secure = opts.secure
	}
	if flags.Changed("store") {
		cfg.Store = opts.store
	}
	if flags.Changed("trace") {
		cfg.Trace = opts.trace
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = opts.metricsAddr
	}
}

// runWatch follows sessionID until ctx is cancelled or the session channel
// gives up. A terminal disconnect is returned as its
// channel.retries_exhausted error.
func runWatch(ctx context.Context, cfg *config.Config, sessionID string, interactive bool, stdin io.Reader, stdout io.Writer) error {
	log := pslog.Ctx(ctx).With("session", sessionID)

	storePath, err := cfg.StorePath()
	if err != nil {
		return err
	}
	if storePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(storePath), 0700); err != nil {
			return fmt.Errorf("create journal directory: %w", err)
		}
	}
	store, err := storage.NewSQLiteStoreWithLogger(storePath, log)
	if err != nil {
		return err
	}
	defer store.Close()
	if _, err := store.PruneBefore(time.Now().Add(-journalRetention)); err != nil {
		log.Warn("journal prune failed", "err", err)
	}

	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)

	host, secure := cfg.BackendHost()
	chCfg := cfg.Channel.ChannelConfig()
	out := &console{w: stdout}

	if last, err := store.LastStatus(sessionID); err == nil && last != nil {
		out.printf("-- [session] last journaled status: %s, %s\n", last.Status, formatDuration(time.Since(last.CreatedAt)))
	}
	terminal := make(chan error, 1)

	session := channel.OpenSession(host, sessionID, secure, channel.Handlers{
		OnMessage: func(m protocol.Message) { out.message("session", m) },
		OnStatus: func(ev channel.StatusEvent) {
			journal(store, log, sessionID, ev)
			out.status("session", ev)
			if ev.Terminal() {
				terminal <- ev.Err
			}
		},
		OnError: func(err error) { out.protocolError("session", err) },
	}, chCfg, channel.WithLogger(log), channel.WithObserver(collectors))
	defer shutdownChannel(session, log)

	if cfg.Trace {
		trace := channel.OpenTrace(host, secure, channel.Handlers{
			OnMessage: func(m protocol.Message) { out.message("trace", m) },
			OnStatus: func(ev channel.StatusEvent) {
				journal(store, log, "", ev)
				out.status("trace", ev)
			},
			OnError: func(err error) { out.protocolError("trace", err) },
		}, chCfg, channel.WithLogger(log.With("channel", "trace")), channel.WithObserver(collectors))
		defer shutdownChannel(trace, log)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		select {
		case <-gctx.Done():
			return nil
		case err := <-terminal:
			return err
		}
	})

	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(gctx, cfg.MetricsAddr, reg, log)
		})
	}

	if interactive {
		opts := cfg.Guard.GuardOptions("feedback")
		opts.Context = gctx
		opts.Logger = log
		opts.Observer = collectors
		feedback := guard.Bind(func(_ context.Context, text string) (struct{}, error) {
			return struct{}{}, session.Send(protocol.Feedback(text))
		}, opts)
		defer feedback.Cancel()

		g.Go(func() error {
			return readFeedback(gctx, stdin, feedback, out)
		})
	}

	return g.Wait()
}

// shutdownChannel stops m and waits for its handlers to finish, so the
// journal is not closed under a running status handler.
func shutdownChannel(m *channel.Manager, log pslog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), channelShutdownTimeout)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		log.Warn("channel did not stop in time", "endpoint", m.Endpoint(), "err", err)
	}
}

// journal records ev, logging instead of failing when the store errors.
func journal(store *storage.SQLiteStore, log pslog.Logger, sessionID string, ev channel.StatusEvent) {
	rec := &storage.StatusRecord{
		SessionID: sessionID,
		Endpoint:  ev.Endpoint,
		AttemptID: ev.AttemptID,
		Status:    string(ev.Status),
		Attempt:   ev.Attempt,
		Delay:     ev.Delay,
		CreatedAt: ev.At,
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	if err := store.RecordStatus(rec); err != nil {
		log.Warn("journal write failed", "err", err, "status", ev.Status)
	}
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, log pslog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	log.Info("metrics listening", "addr", addr)

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// readFeedback submits each non-empty stdin line through the guard. The
// scanner runs on its own goroutine since a blocked read cannot be
// interrupted; it is abandoned when ctx ends.
func readFeedback(ctx context.Context, stdin io.Reader, feedback *guard.Binding[string, struct{}], out *console) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			f := feedback.Invoke(text)
			go func() {
				res, err := f.Wait(ctx)
				if ctx.Err() != nil {
					return
				}
				out.feedback(text, res, err)
			}()
		}
	}
}

// console serializes output from the channel and feedback goroutines.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) status(source string, ev channel.StatusEvent) {
	switch ev.Status {
	case channel.Reconnecting:
		c.printf("-- [%s] reconnecting in %s (attempt %d)\n", source, ev.Delay, ev.Attempt)
	case channel.Disconnected:
		c.printf("!! [%s] DISCONNECTED: %v\n", source, ev.Err)
	default:
		c.printf("-- [%s] %s\n", source, ev.Status)
	}
}

func (c *console) message(source string, m protocol.Message) {
	switch v := m.(type) {
	case protocol.StartAck:
		c.printf("<< [%s] start_ack %s %s\n", source, v.SessionID, v.Message)
	case protocol.SceneBrief:
		c.printf("<< [%s] scene_brief %q: %s\n", source, v.Title, firstLine(v.Brief))
	case protocol.Review:
		c.printf("<< [%s] review: %s (%d comment(s)%s)\n", source, firstLine(v.Summary), len(v.Comments), hunkSummary(v.Hunks))
		for _, comment := range v.Comments {
			c.printf("     * %s\n", comment)
		}
	case protocol.DraftV1:
		c.printf("<< [%s] draft_v1: %d chars%s\n", source, len(v.Text), hunkSummary(v.Hunks))
	case protocol.FinalDraft:
		c.printf("<< [%s] final_draft: %d chars%s\n", source, len(v.Text), hunkSummary(v.Hunks))
	case protocol.ErrorMessage:
		c.printf("<< [%s] error %s: %s\n", source, v.Code, v.Message)
	case protocol.Progress:
		c.printf("<< [%s] %s: %s %s\n", source, v.Kind, v.Status, v.Message)
	}
}

func (c *console) protocolError(source string, err error) {
	c.printf("?? [%s] %v\n", source, err)
}

func (c *console) feedback(text string, res guard.Result[struct{}], err error) {
	switch {
	case err != nil:
		c.printf(">> feedback %q not sent: %v\n", text, err)
	case res.Suppressed:
		c.printf(">> feedback %q dropped, previous submission still in flight\n", text)
	default:
		c.printf(">> feedback %q sent\n", text)
	}
}

func hunkSummary(hunks []diff.Hunk) string {
	if len(hunks) == 0 {
		return ""
	}
	s := diff.CalculateStats(hunks)
	return fmt.Sprintf(", %d hunk(s) +%d -%d", s.Hunks, s.AddedLines, s.DeletedLines)
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
