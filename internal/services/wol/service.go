// Package wol provides Wake-on-LAN operations.
package wol

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/fgeck/landalf/internal/models"
	"github.com/rs/zerolog"
)

// Service defines the interface for Wake-on-LAN operations.
type Service interface {
	Wake(ctx context.Context, mac net.HardwareAddr, broadcast net.IP) error
	WakeAndWait(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error)
}

// HTTPClient allows mocking HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// Impl implements the WOL Service interface.
type Impl struct {
	resolver   TargetResolver
	sender     Sender
	httpClient HTTPClient
	logger     zerolog.Logger
}

// New creates a new WOL service that detects broadcast addresses from the
// host's interfaces and reads operator overrides from overrides on every wake.
func New(logger zerolog.Logger, overrides OverrideSource, policy RetryPolicy) *Impl {
	return &Impl{
		resolver: NewResolver(logger, SystemInterfaces{}, overrides),
		sender:   NewTransmitter(logger, policy, nil),
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// NewWithClients creates a new WOL service with custom collaborators (for testing).
func NewWithClients(logger zerolog.Logger, resolver TargetResolver, sender Sender, httpClient HTTPClient) *Impl {
	return &Impl{
		resolver:   resolver,
		sender:     sender,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Wake builds the magic packet for mac once, resolves the broadcast targets
// and sends the packet to each of them. broadcast may be nil.
func (s *Impl) Wake(ctx context.Context, mac net.HardwareAddr, broadcast net.IP) error {
	s.logger.Info().Str("mac", mac.String()).Msg("preparing magic packet")

	packet, err := BuildPacket(mac)
	if err != nil {
		return err
	}

	targets := s.resolver.Resolve(ctx, broadcast)
	s.logger.Info().
		Int("count", len(targets)).
		Strs("targets", ipStrings(targets)).
		Msg("resolved broadcast targets")

	if err := s.sender.Send(ctx, packet, targets); err != nil {
		return err
	}

	s.logger.Info().Str("mac", mac.String()).Msg("magic packet sent")
	return nil
}

// WakeAndWait sends a WOL packet and optionally waits for the target to become available.
func (s *Impl) WakeAndWait(ctx context.Context, cfg models.WOLConfig) (*models.WOLResult, error) {
	result := &models.WOLResult{}
	start := time.Now()

	mac, err := net.ParseMAC(cfg.MACAddress)
	if err != nil {
		result.Error = fmt.Errorf("invalid MAC address %q: %w", cfg.MACAddress, err)
		return result, nil
	}

	var broadcast net.IP
	if cfg.BroadcastIP != "" {
		broadcast = net.ParseIP(cfg.BroadcastIP)
		if broadcast == nil || broadcast.To4() == nil {
			result.Error = fmt.Errorf("invalid broadcast IP: %s", cfg.BroadcastIP)
			return result, nil
		}
	}

	if err := s.Wake(ctx, mac, broadcast); err != nil {
		result.Error = err
		return result, nil //nolint:nilerr // error is reported in the result
	}

	result.PacketSent = true

	// If no poll URL specified, we're done
	if cfg.PollURL == "" {
		result.WaitDuration = time.Since(start)
		result.TargetReady = true
		return result, nil
	}

	s.logger.Info().
		Str("url", cfg.PollURL).
		Dur("timeout", cfg.Timeout).
		Msg("waiting for target to become available")

	if err := s.waitForTarget(ctx, cfg); err != nil {
		result.WaitDuration = time.Since(start)
		result.Error = err
		return result, nil //nolint:nilerr // error is reported in the result
	}

	if cfg.StabilizeWait > 0 {
		s.logger.Debug().Str("wait", cfg.StabilizeWait.Round(time.Millisecond).String()).Msg("waiting for target to stabilize")
		select {
		case <-ctx.Done():
			result.WaitDuration = time.Since(start)
			result.Error = ctx.Err()
			return result, nil
		case <-time.After(cfg.StabilizeWait):
		}
	}

	result.TargetReady = true
	result.WaitDuration = time.Since(start)

	s.logger.Info().
		Dur("duration", result.WaitDuration).
		Msg("target is ready")

	return result, nil
}

func (s *Impl) waitForTarget(ctx context.Context, cfg models.WOLConfig) error {
	deadline := time.Now().Add(cfg.Timeout)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if time.Now().After(deadline) {
			return fmt.Errorf("timeout waiting for target at %s", cfg.PollURL)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.PollURL, nil)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}

		resp, err := s.httpClient.Do(req)
		if err == nil {
			_ = resp.Body.Close()
			// Any response means the target is up
			return nil
		}

		s.logger.Debug().Err(err).Msg("target not ready yet")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.PollInterval):
		}
	}
}
