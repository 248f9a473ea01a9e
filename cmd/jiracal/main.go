package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "jiracal/internal/log"
)

var Version = "0.1.0-dev"

func main() {
	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	err := newRootCmd().ExecuteContext(ctx)
	_ = appLog.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}
	var wipe, dryRun bool

	root := &cobra.Command{
		Use:   "jiracal",
		Short: "Mirror Jira worklogs into a CalDAV calendar",
		Long: `Mirror Jira worklogs into a CalDAV calendar.

Without a subcommand, jiracal runs one sync over the last --days days:
worklogs become events, events created earlier are updated in place, and
nothing else in the calendar is touched unless --wipe is given.

Examples:
  jiracal -d 7
  jiracal --dry-run
  jiracal serve
  jiracal export --out worklogs.ics`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Flags())
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.requireCalendar(); err != nil {
				return err
			}
			res, err := a.syncOnce(cmd.Context(), wipe, dryRun)
			printResult(cmd.OutOrStdout(), res)
			return err
		},
	}

	addConfigFlags(root.PersistentFlags())
	root.Flags().BoolVar(&wipe, "wipe", false, "delete every event in the window before recreating worklogs")
	root.Flags().BoolVar(&dryRun, "dry-run", false, "log the planned changes without writing to the calendar")

	root.AddCommand(newServeCmd(a))
	root.AddCommand(newExportCmd(a))
	root.AddCommand(newInitConfigCmd(a))

	return root
}
