package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/estatebot/internal/storage"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Load projects from a .json or .xlsx export into the database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		items, err := storage.LoadProjectsFromFile(args[0])
		if err != nil {
			return fmt.Errorf("load %s: %w", args[0], err)
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		sum, err := st.UpsertProjects(cmd.Context(), items)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		log.Info("import finished",
			slog.String("file", args[0]),
			slog.Int("created", sum.Created),
			slog.Int("updated", sum.Updated),
			slog.Int("unchanged", sum.Unchanged),
		)
		fmt.Fprintf(cmd.OutOrStdout(), "created=%d updated=%d unchanged=%d\n", sum.Created, sum.Updated, sum.Unchanged)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}
