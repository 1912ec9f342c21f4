package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/denisok6893-rgb/estatebot/internal/bots"
	"github.com/denisok6893-rgb/estatebot/internal/compose"
	"github.com/denisok6893-rgb/estatebot/internal/filestore"
	"github.com/denisok6893-rgb/estatebot/internal/flow"
	httpapi "github.com/denisok6893-rgb/estatebot/internal/http"
	"github.com/denisok6893-rgb/estatebot/internal/matching"
	"github.com/denisok6893-rgb/estatebot/internal/telegram"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API and, when a token is configured, the Telegram bot",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, log, closer, err := setup()
		if err != nil {
			return err
		}
		defer closer.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		st, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer st.Close()
		if n, err := st.CountProjects(ctx); err == nil {
			log.Info("database ready", slog.String("path", cfg.Database.Path), slog.Int("projects", n))
		}

		var docs flow.DocumentFinder
		var files telegram.Opener
		index, err := filestore.NewS3(ctx, cfg.FileStore, log)
		switch {
		case errors.Is(err, filestore.ErrNotConfigured):
			log.Warn("file store not configured, documents are disabled")
		case err != nil:
			return fmt.Errorf("file store: %w", err)
		default:
			docs, files = index, index
		}

		resolver := matching.NewResolver(st, cfg.Matching, log)
		composer := compose.New(compose.Options{})
		fl := flow.New(resolver, st, composer, docs, cfg.Flow, log)
		searches := []bots.FileSearcher{st}
		if index != nil {
			searches = append(searches, index)
		}
		gw := bots.NewGateway(bots.NewProcessor(fl, st, st, cfg.Strings, log).WithFileSearch(searches...))

		var bot *telegram.Bot
		if cfg.Telegram.Enabled() {
			// admin tools only where the user id is vouched for by Telegram
			chat := bots.NewGateway(bots.NewProcessor(fl, st, st, cfg.Strings, log).WithFileSearch(searches...).WithAdmin(st))
			if bot, err = telegram.New(cfg.Telegram, chat, st, files, log); err != nil {
				return err
			}
		} else {
			log.Warn("telegram token not configured, bot is disabled")
		}

		api := httpapi.NewServer(resolver, st, composer, gw, httpapi.Options{
			RequestTimeout: cfg.HTTP.RequestTimeout,
			AllowedOrigins: cfg.HTTP.AllowedOrigins,
		}, log)
		srv := &http.Server{
			Addr:         cfg.HTTP.Address,
			Handler:      api.Routes(),
			ReadTimeout:  cfg.HTTP.ReadTimeout,
			WriteTimeout: cfg.HTTP.WriteTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			log.Info("API listening", slog.String("address", cfg.HTTP.Address))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
		if bot != nil {
			g.Go(func() error { return bot.Run(gctx) })
		}
		if index != nil {
			g.Go(func() error { return index.Watch(gctx, cfg.FileStore.RefreshInterval) })
		}
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
