package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/denisok6893-rgb/estatebot/internal/config"
	"github.com/denisok6893-rgb/estatebot/internal/logging"
	"github.com/denisok6893-rgb/estatebot/internal/storage"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "estatebot",
	Short: "Real estate project lookup bot and API",
	Long: `estatebot answers questions about registered real estate projects. It resolves a
project from a partial or misspelled name, shows its record, sends its documents,
and builds per-area building reports, over Telegram and a small HTTP API.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "estatebot.yml", "config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// setup loads and validates the config and installs the process logger.
func setup() (*config.Config, *slog.Logger, io.Closer, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	log, closer, err := logging.Init(cfg.Log)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init logging: %w", err)
	}
	return cfg, log, closer, nil
}

func openStore(cfg *config.Config) (*storage.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, fmt.Errorf("database dir: %w", err)
	}
	st, err := storage.OpenSQLite(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	if err := st.EnsureSchema(); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("database schema: %w", err)
	}
	return st, nil
}
