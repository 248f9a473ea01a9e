package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"
)

func newInitConfigCmd(a *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write the effective configuration to --config",
		Long: `Write the effective configuration (defaults, environment and flags) to
the --config path. An existing file is kept unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(a.configPath); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", a.configPath)
				} else if !errors.Is(err, fs.ErrNotExist) {
					return err
				}
			}
			cfg, _ := a.snapshot()
			if err := cfg.Save(a.configPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", a.configPath)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing config file")
	return cmd
}
