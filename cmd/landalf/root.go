package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fgeck/landalf/internal/config"
	"github.com/fgeck/landalf/internal/models"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "dev"

	// Configuration flags.
	configFile string
	verbose    bool
	quiet      bool
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "landalf",
	Short: "Wake and shut down machines on your LAN",
	Long: `landalf keeps a list of machines on the local network and powers them on and off:
  - Wake-on-LAN magic packets to every reachable broadcast domain
  - SSH shutdown of running machines
  - Telegram notifications for power actions
  - An HTTP API for device management

Extra broadcast addresses can be supplied through ` + config.BroadcastsEnv + ` (comma-separated).`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging()
	},
	SilenceUsage: true,
	Version:      Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose (debug) output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "enable quiet mode (errors only)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output logs in JSON format")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(wakeCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(devicesCmd)
}

func setupLogging() {
	// Set output format
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		output.FormatLevel = func(i interface{}) string {
			if s, ok := i.(string); ok {
				return strings.ToUpper(s)
			}
			return ""
		}
		log.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set log level
	switch {
	case quiet:
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	case verbose:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// loadConfig reads --config when given. Without a file, defaults and the
// environment are used unless required is set.
func loadConfig(required bool) (*models.AppConfig, *config.Parser, error) {
	parser := config.NewParser()

	if configFile == "" {
		if required {
			return nil, nil, fmt.Errorf("config file is required (--config)")
		}
		cfg, err := parser.LoadDefaults()
		return cfg, parser, err
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file not found: %s", configFile)
	}

	cfg, err := parser.LoadFile(configFile)
	if err != nil {
		return nil, nil, err
	}

	return cfg, parser, nil
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
