package main

import (
	"fmt"
	"time"

	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/wol"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var wakeFlags struct {
	broadcast     string
	pollURL       string
	timeout       time.Duration
	pollInterval  time.Duration
	stabilizeWait time.Duration
}

var wakeCmd = &cobra.Command{
	Use:   "wake <mac>",
	Short: "Send a Wake-on-LAN packet",
	Long: `Send a magic packet for the given MAC address.

Without --broadcast, broadcast addresses are detected from the local interfaces.
With --poll-url, wait until the URL answers before returning.`,
	Args: cobra.ExactArgs(1),
	RunE: runWake,
}

func init() {
	wakeCmd.Flags().StringVarP(&wakeFlags.broadcast, "broadcast", "b", "", "IPv4 broadcast address (default: auto-detect)")
	wakeCmd.Flags().StringVar(&wakeFlags.pollURL, "poll-url", "", "URL to poll until the target responds")
	wakeCmd.Flags().DurationVar(&wakeFlags.timeout, "timeout", 5*time.Minute, "max time to wait for the target")
	wakeCmd.Flags().DurationVar(&wakeFlags.pollInterval, "poll-interval", 10*time.Second, "how often to poll the URL")
	wakeCmd.Flags().DurationVar(&wakeFlags.stabilizeWait, "stabilize-wait", 0, "extra wait after the target responds")
}

func runWake(cmd *cobra.Command, args []string) error {
	cfg, parser, err := loadConfig(false)
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	svc := wol.New(log.Logger, parser.BroadcastOverrides, retryPolicy(cfg.WOL))

	result, err := svc.WakeAndWait(ctx, models.WOLConfig{
		MACAddress:    args[0],
		BroadcastIP:   wakeFlags.broadcast,
		PollURL:       wakeFlags.pollURL,
		Timeout:       wakeFlags.timeout,
		PollInterval:  wakeFlags.pollInterval,
		StabilizeWait: wakeFlags.stabilizeWait,
	})
	if err != nil {
		return err
	}
	if result.Error != nil {
		log.Error().Err(result.Error).Bool("packet_sent", result.PacketSent).Msg("wake failed")
		return result.Error
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Wake-on-LAN packet sent to %s\n", args[0])
	if wakeFlags.pollURL != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "Target ready after %s\n", result.WaitDuration.Round(time.Second))
	}

	return nil
}
