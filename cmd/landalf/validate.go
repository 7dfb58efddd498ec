package main

import (
	"fmt"

	"github.com/fgeck/landalf/internal/config"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file without starting the server or sending packets.`,
	Args:  cobra.NoArgs,
	RunE:  validateConfig,
}

func validateConfig(cmd *cobra.Command, args []string) error {
	cfg, parser, err := loadConfig(true)
	if err != nil {
		log.Error().Err(err).Str("file", configFile).Msg("failed to parse config")
		return err
	}

	if err := config.Validate(cfg); err != nil {
		log.Error().Err(err).Msg("configuration validation failed")
		return err
	}

	out := cmd.OutOrStdout()

	// Print configuration summary
	fmt.Fprintln(out, "Configuration is valid!")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Server:")
	fmt.Fprintf(out, "  Listen: %s\n", cfg.Server.Listen)
	fmt.Fprintf(out, "  Wake timeout: %s\n", cfg.Server.WakeTimeout)
	fmt.Fprintf(out, "  Database: %s\n", cfg.Database.Path)
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Wake-on-LAN:")
	fmt.Fprintf(out, "  Attempts per port: %d\n", cfg.WOL.Attempts)
	fmt.Fprintf(out, "  Delay between sends: %s\n", cfg.WOL.Delay)
	if overrides := parser.BroadcastOverrides(); overrides != "" {
		fmt.Fprintf(out, "  Extra broadcasts: %s\n", overrides)
	} else {
		fmt.Fprintln(out, "  Extra broadcasts: (none)")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Optional Features:")
	fmt.Fprintf(out, "  SSH Shutdown: %v\n", cfg.SSHShutdown != nil)
	fmt.Fprintf(out, "  Telegram: %v\n", cfg.Telegram != nil)

	if cfg.SSHShutdown != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "SSH Shutdown Configuration:")
		fmt.Fprintf(out, "  Port: %d\n", cfg.SSHShutdown.Port)
		fmt.Fprintf(out, "  Username: %s\n", cfg.SSHShutdown.Username)
		fmt.Fprintf(out, "  Key: %s\n", cfg.SSHShutdown.KeyPath)
		fmt.Fprintf(out, "  OS: %s\n", cfg.SSHShutdown.OS)
		fmt.Fprintf(out, "  Shutdown Delay: %d minute(s)\n", cfg.SSHShutdown.ShutdownDelay)
	}

	if cfg.Telegram != nil {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Telegram Configuration:")
		fmt.Fprintf(out, "  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Fprintln(out, "  Bot Token: (configured)")
	}

	return nil
}
