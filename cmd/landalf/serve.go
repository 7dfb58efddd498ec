package main

import (
	"github.com/fgeck/landalf/internal/api"
	"github.com/fgeck/landalf/internal/config"
	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/devices"
	"github.com/fgeck/landalf/internal/services/wol"
	"github.com/fgeck/landalf/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the device API server",
	Long: `Serve the HTTP API under ` + api.BasePath + `:
  GET  /                list devices
  GET  /:id             get a device
  POST /add             add a device
  POST /:id/set         update a device
  POST /:id/delete      remove a device
  POST /:id/wake        send a Wake-on-LAN packet
  POST /:id/shutdown    shut the device down over SSH
  POST /:id/status      probe the device over SSH`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, parser, err := loadConfig(false)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	st, err := store.Open(cfg.Database.Path, log.Logger)
	if err != nil {
		log.Error().Err(err).Str("path", cfg.Database.Path).Msg("failed to open database")
		return err
	}
	defer st.Close()

	wolSvc := wol.New(log.Logger, parser.BroadcastOverrides, retryPolicy(cfg.WOL))
	deviceSvc := devices.New(log.Logger, st, wolSvc, *cfg)
	srv := api.NewServer(log.Logger, deviceSvc, cfg.Server)

	log.Info().
		Str("listen", cfg.Server.Listen).
		Str("database", cfg.Database.Path).
		Bool("ssh_shutdown", cfg.SSHShutdown != nil).
		Bool("telegram", cfg.Telegram != nil).
		Msg("starting landalf")

	if err := srv.ListenAndServe(ctx); err != nil {
		log.Error().Err(err).Msg("server failed")
		return err
	}

	log.Info().Msg("server stopped")
	return nil
}

func retryPolicy(s models.WOLSettings) wol.RetryPolicy {
	policy := wol.DefaultRetryPolicy()
	if s.Attempts > 0 {
		policy.Attempts = s.Attempts
	}
	if s.Delay >= 0 {
		policy.Delay = s.Delay
	}
	return policy
}
