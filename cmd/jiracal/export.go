package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"jiracal/internal/calsync"
	"jiracal/internal/ics"
	appLog "jiracal/internal/log"
)

func newExportCmd(a *app) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write the worklogs of the window to an .ics file",
		Long: `Write the worklogs of the window to an .ics file.

Each worklog becomes one event with a UID derived from its worklog id, so
importing a newer export replaces events instead of duplicating them.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _ := a.snapshot()
			if err := cfg.ValidateReport(); err != nil {
				return err
			}
			n, err := a.export(cmd.Context(), out)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d events to %s\n", n, out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "worklogs.ics", "output file")
	return cmd
}

func (a *app) export(ctx context.Context, out string) (int, error) {
	cfg, loc := a.snapshot()
	w := a.window(cfg, loc)

	src, err := newSource(cfg, loc)
	if err != nil {
		return 0, err
	}
	records, err := src.Records(ctx, w)
	if err != nil {
		return 0, err
	}

	if dir := filepath.Dir(out); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, err
		}
	}
	f, err := os.Create(out)
	if err != nil {
		return 0, err
	}

	appLog.Info("exporting worklogs", "records", len(records), "out", out)
	if err := ics.Export(f, records, calsync.NewProjector(cfg.BucketIssues), a.now()); err != nil {
		f.Close()
		return 0, fmt.Errorf("export %s: %w", out, err)
	}
	return len(records), f.Close()
}
