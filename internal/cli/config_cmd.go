package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mithrel/nettransport/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		// Generating a config must work even when the current one is invalid.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	}
	cmd.AddCommand(newConfigGenerateCmd())
	return cmd
}

func newConfigGenerateCmd() *cobra.Command {
	var out string
	var overwrite, update bool
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a default config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			mode := config.GenerateNew
			switch {
			case overwrite && update:
				return fmt.Errorf("choose either --overwrite or --update")
			case overwrite:
				mode = config.GenerateOverwrite
			case update:
				mode = config.GenerateUpdate
			}
			if out == "" {
				out = config.DefaultConfigPath()
			}

			res, err := config.Generate(out, mode)
			if err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if res.Unchanged {
				_, _ = fmt.Fprintf(w, "Config already up to date: %s\n", res.Path)
				return nil
			}
			_, _ = fmt.Fprintf(w, "Wrote %s\n", res.Path)
			if res.Backup != "" {
				_, _ = fmt.Fprintf(w, "Backup: %s\n", res.Backup)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "", "output path for config.toml")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "overwrite existing config (creates a backup)")
	cmd.Flags().BoolVar(&update, "update", false, "merge defaults into existing config (creates a backup)")
	return cmd
}
