package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/pagemend/pagemend/internal/api"
	"github.com/pagemend/pagemend/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Pagemend HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Info().
			Str("version", Version).
			Str("commit", Commit).
			Msg("Starting Pagemend")

		cfg, err := config.Load()
		if err != nil {
			log.Error().Err(err).Msg("Failed to load configuration")
			return err
		}
		if debug {
			cfg.Debug = true
		}

		server, err := api.NewServer(cfg)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize server")
			return err
		}

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			log.Error().Err(err).Msg("Server stopped unexpectedly")
			return err
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("Shutting down server...")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
			return err
		}

		log.Info().Msg("Server exited")
		return nil
	},
}
