package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/estatebot/internal/filestore"
)

var indexCmd = &cobra.Command{
	Use:   "index [project name]",
	Short: "List the document bucket, optionally showing the files of one project",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		index, err := filestore.NewS3(cmd.Context(), cfg.FileStore, log)
		if err != nil {
			return err
		}
		if err := index.Refresh(cmd.Context()); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "bucket=%s folders=%d\n", cfg.FileStore.Bucket, index.Folders())
		if len(args) == 1 {
			for _, d := range index.Search(args[0]) {
				fmt.Fprintf(out, "%s\t%d\t%s\n", d.Name, d.Size, d.Key)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
}
