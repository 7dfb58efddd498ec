// Package devices manages stored machines and their power actions.
package devices

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/ssh"
	"github.com/fgeck/landalf/internal/services/telegram"
	"github.com/fgeck/landalf/internal/services/wol"
	"github.com/fgeck/landalf/internal/store"
	"github.com/rs/zerolog"
)

const (
	maxNameLength = 100

	// notifyTimeout bounds how long a power action waits for its report.
	notifyTimeout = 5 * time.Second
)

var (
	// ErrValidation marks input that cannot be stored.
	ErrValidation = errors.New("validation failed")
	// ErrShutdownUnavailable is returned when a device cannot be shut down remotely.
	ErrShutdownUnavailable = errors.New("shutdown unavailable")
	// ErrNotFound is returned when no device has the requested id.
	ErrNotFound = store.ErrNotFound
)

// Service defines the device management operations.
type Service interface {
	List(ctx context.Context) ([]models.Device, error)
	Get(ctx context.Context, id int64) (*models.Device, error)
	Create(ctx context.Context, in models.DeviceInput) (*models.Device, error)
	Update(ctx context.Context, id int64, in models.DeviceInput) error
	Delete(ctx context.Context, id int64) error
	Wake(ctx context.Context, id int64) (*models.Device, error)
	Shutdown(ctx context.Context, id int64) (*models.Device, error)
	RefreshStatus(ctx context.Context, id int64) (*models.Device, error)
}

// Impl implements the devices Service interface.
type Impl struct {
	store       store.Store
	wolSvc      wol.Service
	sshSvc      ssh.Service
	telegramSvc telegram.Service
	sshCfg      *models.SSHShutdownConfig
	telegramCfg *models.TelegramConfig
	logger      zerolog.Logger
}

// New creates a new device service. Optional features stay disabled when
// their section is missing from cfg.
func New(logger zerolog.Logger, st store.Store, wolSvc wol.Service, cfg models.AppConfig) *Impl {
	return NewWithServices(logger, st, wolSvc, ssh.New(logger), telegram.New(logger), cfg.SSHShutdown, cfg.Telegram)
}

// NewWithServices creates a new device service with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	st store.Store,
	wolSvc wol.Service,
	sshSvc ssh.Service,
	telegramSvc telegram.Service,
	sshCfg *models.SSHShutdownConfig,
	telegramCfg *models.TelegramConfig,
) *Impl {
	return &Impl{
		store:       st,
		wolSvc:      wolSvc,
		sshSvc:      sshSvc,
		telegramSvc: telegramSvc,
		sshCfg:      sshCfg,
		telegramCfg: telegramCfg,
		logger:      logger,
	}
}

// ParseInput validates in and converts it to a device without an id.
func ParseInput(in models.DeviceInput) (models.Device, error) {
	var d models.Device

	d.Name = strings.TrimSpace(in.Name)
	if d.Name == "" {
		return d, fmt.Errorf("%w: name is required", ErrValidation)
	}
	if utf8.RuneCountInString(d.Name) > maxNameLength {
		return d, fmt.Errorf("%w: name must be at most %d characters", ErrValidation, maxNameLength)
	}

	mac, err := net.ParseMAC(strings.TrimSpace(in.MACAddress))
	if err != nil || len(mac) != 6 {
		return d, fmt.Errorf("%w: MAC address %q is invalid", ErrValidation, in.MACAddress)
	}
	d.MACAddress = mac

	if s := strings.TrimSpace(in.IPAddress); s != "" {
		d.IPAddress = net.ParseIP(s)
		if d.IPAddress == nil {
			return d, fmt.Errorf("%w: IP address %q is invalid", ErrValidation, in.IPAddress)
		}
	}

	if s := strings.TrimSpace(in.BroadcastAddress); s != "" {
		ip := net.ParseIP(s)
		if ip == nil || ip.To4() == nil {
			return d, fmt.Errorf("%w: broadcast address %q must be an IPv4 address", ErrValidation, in.BroadcastAddress)
		}
		d.BroadcastAddress = ip.To4()
	}

	return d, nil
}

// List returns every stored device.
func (s *Impl) List(ctx context.Context) ([]models.Device, error) {
	return s.store.List(ctx)
}

// Get returns a single device.
func (s *Impl) Get(ctx context.Context, id int64) (*models.Device, error) {
	return s.store.Get(ctx, id)
}

// Create validates and stores a new device.
func (s *Impl) Create(ctx context.Context, in models.DeviceInput) (*models.Device, error) {
	d, err := ParseInput(in)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, d)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("device_id", created.ID).
		Str("name", created.Name).
		Msg("device created")

	return created, nil
}

// Update replaces the editable fields of a device. The online flag is kept.
func (s *Impl) Update(ctx context.Context, id int64, in models.DeviceInput) error {
	existing, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	d, err := ParseInput(in)
	if err != nil {
		return err
	}
	d.ID = id
	d.IsOnline = existing.IsOnline

	if err := s.store.Update(ctx, d); err != nil {
		return err
	}

	s.logger.Info().Int64("device_id", id).Str("name", d.Name).Msg("device updated")
	return nil
}

// Delete removes a device.
func (s *Impl) Delete(ctx context.Context, id int64) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}

	s.logger.Info().Int64("device_id", id).Msg("device deleted")
	return nil
}

// Wake sends the magic packet for a stored device.
func (s *Impl) Wake(ctx context.Context, id int64) (*models.Device, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Int64("device_id", d.ID).
		Str("name", d.Name).
		Str("mac", d.MACAddress.String()).
		Msg("wake requested")

	wakeErr := s.wolSvc.Wake(ctx, d.MACAddress, d.BroadcastAddress)
	s.notify(ctx, models.ActionWake, d, wakeErr)

	if wakeErr != nil {
		return d, fmt.Errorf("waking %s: %w", d.Name, wakeErr)
	}

	return d, nil
}

// Shutdown powers a device off over SSH.
func (s *Impl) Shutdown(ctx context.Context, id int64) (*models.Device, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, err := s.sshConfigFor(d)
	if err != nil {
		return d, err
	}

	result, err := s.sshSvc.Shutdown(ctx, cfg)
	if err == nil && result.Error != nil && !result.CommandRun {
		err = result.Error
	}

	s.notify(ctx, models.ActionShutdown, d, err)

	if err != nil {
		return d, fmt.Errorf("shutting down %s: %w", d.Name, err)
	}

	if err := s.store.SetOnline(ctx, d.ID, false); err != nil {
		s.logger.Warn().Err(err).Int64("device_id", d.ID).Msg("failed to record device status")
	} else {
		d.IsOnline = false
	}

	return d, nil
}

// RefreshStatus probes a device over SSH and stores whether it answered.
func (s *Impl) RefreshStatus(ctx context.Context, id int64) (*models.Device, error) {
	d, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	cfg, err := s.sshConfigFor(d)
	if err != nil {
		return d, err
	}

	result, err := s.sshSvc.Probe(ctx, cfg)
	if err != nil {
		return d, err
	}
	online := result.Error == nil

	s.logger.Debug().
		Int64("device_id", d.ID).
		Bool("online", online).
		Err(result.Error).
		Msg("device probed")

	if err := s.store.SetOnline(ctx, d.ID, online); err != nil {
		return d, err
	}
	d.IsOnline = online

	return d, nil
}

func (s *Impl) sshConfigFor(d *models.Device) (models.SSHShutdownConfig, error) {
	if s.sshCfg == nil {
		return models.SSHShutdownConfig{}, fmt.Errorf("%w: SSH is not configured", ErrShutdownUnavailable)
	}
	if d.IPAddress == nil {
		return models.SSHShutdownConfig{}, fmt.Errorf("%w: device %s has no IP address", ErrShutdownUnavailable, d.Name)
	}

	cfg := *s.sshCfg
	cfg.Host = d.IPAddress.String()
	return cfg, nil
}

func (s *Impl) notify(ctx context.Context, action string, d *models.Device, actionErr error) {
	if s.telegramCfg == nil {
		return
	}

	msg := models.TelegramMessage{
		Success:    actionErr == nil,
		Action:     action,
		DeviceName: d.Name,
		MACAddress: models.FormatMAC(d.MACAddress),
		Time:       time.Now(),
	}
	if actionErr != nil {
		msg.ErrorMessage = actionErr.Error()
	}

	// The action's own deadline must not suppress the report.
	notifyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()

	result, err := s.telegramSvc.SendNotification(notifyCtx, *s.telegramCfg, msg)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to send Telegram notification")
		return
	}
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Msg("failed to send Telegram notification")
	}
}
