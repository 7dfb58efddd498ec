// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fgeck/landalf/internal/models"
	"github.com/spf13/viper"
)

// BroadcastsEnv names the environment variable holding extra broadcast addresses.
const BroadcastsEnv = "WOL_BROADCASTS"

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")

	v.SetDefault("server.listen", ":8080")
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.wake_timeout", 30*time.Second)
	v.SetDefault("database.path", "landalf.db")
	v.SetDefault("wol.attempts", 3)
	v.SetDefault("wol.delay", 30*time.Millisecond)

	_ = v.BindEnv("wol.broadcasts", BroadcastsEnv)

	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.AppConfig, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.AppConfig, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

// LoadDefaults builds a configuration from defaults and the environment only.
func (p *Parser) LoadDefaults() (*models.AppConfig, error) {
	return p.parse()
}

// BroadcastOverrides returns the current override list. The environment is
// consulted on every call so changes apply to the next wake.
func (p *Parser) BroadcastOverrides() string {
	return p.v.GetString("wol.broadcasts")
}

//nolint:gocognit,gocyclo // parsing config requires checking many fields
func (p *Parser) parse() (*models.AppConfig, error) {
	cfg := &models.AppConfig{}

	cfg.Server = models.ServerConfig{
		Listen:      p.v.GetString("server.listen"),
		ReadTimeout: p.v.GetDuration("server.read_timeout"),
		WakeTimeout: p.v.GetDuration("server.wake_timeout"),
	}

	if cfg.Server.Listen == "" {
		return nil, fmt.Errorf("server.listen must not be empty")
	}
	if cfg.Server.WakeTimeout <= 0 {
		return nil, fmt.Errorf("server.wake_timeout must be positive")
	}

	cfg.Database = models.DatabaseConfig{
		Path: p.expandEnv(p.v.GetString("database.path")),
	}

	cfg.WOL = models.WOLSettings{
		Broadcasts: p.v.GetString("wol.broadcasts"),
		Attempts:   p.v.GetInt("wol.attempts"),
		Delay:      p.v.GetDuration("wol.delay"),
	}

	if cfg.WOL.Attempts < 1 {
		return nil, fmt.Errorf("wol.attempts must be at least 1")
	}
	if cfg.WOL.Delay < 0 {
		return nil, fmt.Errorf("wol.delay must not be negative")
	}

	// Parse optional SSH shutdown config.
	if p.v.IsSet("ssh_shutdown") { //nolint:nestif // config parsing with defaults
		cfg.SSHShutdown = &models.SSHShutdownConfig{
			Port:          p.v.GetInt("ssh_shutdown.port"),
			Username:      p.v.GetString("ssh_shutdown.username"),
			KeyPath:       p.expandEnv(p.v.GetString("ssh_shutdown.key_path")),
			ShutdownDelay: p.v.GetInt("ssh_shutdown.shutdown_delay"),
			OS:            p.v.GetString("ssh_shutdown.os"),
		}

		if cfg.SSHShutdown.Port == 0 {
			cfg.SSHShutdown.Port = 22
		}
		if cfg.SSHShutdown.Username == "" {
			cfg.SSHShutdown.Username = "root"
		}
		if cfg.SSHShutdown.KeyPath == "" {
			return nil, fmt.Errorf("ssh_shutdown.key_path is required when ssh_shutdown is configured")
		}
		if cfg.SSHShutdown.OS == "" {
			cfg.SSHShutdown.OS = "linux"
		}
		validOS := map[string]bool{"linux": true, "windows": true}
		if !validOS[cfg.SSHShutdown.OS] {
			return nil, fmt.Errorf("ssh_shutdown.os must be one of: linux, windows")
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration before serving.
func Validate(cfg *models.AppConfig) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Server.Listen == "" {
		return fmt.Errorf("server.listen is required")
	}

	if cfg.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if cfg.WOL.Attempts < 1 {
		return fmt.Errorf("wol.attempts must be at least 1")
	}

	return nil
}
