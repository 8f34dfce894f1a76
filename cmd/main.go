// Command inkwell follows live writing-workspace sessions from the terminal.
package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"

	apperrors "github.com/pseudocoder/inkwell/internal/errors"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	return run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}

// run executes the CLI with the given arguments and streams. It returns the
// process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	if err := root.ExecuteContext(ctx); err != nil {
		code, msg := apperrors.ToCodeAndMessage(err)
		pslog.Ctx(ctx).With("err", err, "code", code).Error("inkwell command failed")
		root.PrintErrf("Error: %s\n", msg)
		return 1
	}
	return 0
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "inkwell",
		Short:         "Follow live writing sessions: drafts, reviews and proposed edits",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "Path to config file (default: ~/.inkwell/config.toml)")

	root.AddCommand(newWatchCmd(opts))
	root.AddCommand(newReconcileCmd())
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newConfigCmd(opts))
	root.AddCommand(newVersionCmd())

	return root
}
