// Package models contains the data structures used throughout landalf.
package models

import "time"

// AppConfig holds the complete configuration for the landalf server.
type AppConfig struct {
	Server      ServerConfig
	Database    DatabaseConfig
	WOL         WOLSettings
	SSHShutdown *SSHShutdownConfig // nil if not configured
	Telegram    *TelegramConfig    // nil if not configured
}

// ServerConfig holds HTTP API settings.
type ServerConfig struct {
	Listen      string
	ReadTimeout time.Duration
	WakeTimeout time.Duration // deadline applied to every wake request
}

// DatabaseConfig holds device storage settings.
type DatabaseConfig struct {
	Path string
}
