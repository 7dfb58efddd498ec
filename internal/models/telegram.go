package models

import "time"

// Power actions reported in notifications.
const (
	ActionWake     = "wake"
	ActionShutdown = "shutdown"
)

// TelegramConfig holds Telegram notification configuration.
type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// TelegramMessage holds the data for a power action notification.
type TelegramMessage struct {
	Success    bool
	Action     string
	DeviceName string
	MACAddress string
	Time       time.Time

	// Error info (if failed).
	ErrorMessage string
}

// TelegramResult holds the result of a Telegram notification.
type TelegramResult struct {
	MessageSent bool
	Error       error
}
