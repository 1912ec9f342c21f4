package main

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/estatebot/internal/domain"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Manage bot administrators",
}

var adminGrantCmd = &cobra.Command{
	Use:   "grant <telegram user id> [username]",
	Short: "Give a Telegram user the admin role",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil || id <= 0 {
			return fmt.Errorf("invalid user id %q", args[0])
		}
		username := ""
		if len(args) == 2 {
			username = args[1]
		}

		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.SetUserRole(cmd.Context(), id, username, domain.RoleAdmin)
		if err != nil {
			return fmt.Errorf("grant: %w", err)
		}
		log.Info("admin granted", slog.Int64("user_id", u.ID), slog.String("username", u.Username))
		fmt.Fprintf(cmd.OutOrStdout(), "user %d (%s) is now an admin\n", u.ID, u.Username)
		return nil
	},
}

func init() {
	adminCmd.AddCommand(adminGrantCmd)
	rootCmd.AddCommand(adminCmd)
}
