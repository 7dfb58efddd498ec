package models

import "time"

// WOLSettings holds the process-wide Wake-on-LAN transmission settings.
type WOLSettings struct {
	Broadcasts string        // comma-separated override list, WOL_BROADCASTS wins when set
	Attempts   int           // sends per target and port
	Delay      time.Duration // pause between consecutive sends
}

// WOLConfig holds a one-shot Wake-on-LAN request.
type WOLConfig struct {
	MACAddress    string
	BroadcastIP   string        // empty means auto-detect
	PollURL       string        // URL to poll until target machine is ready
	Timeout       time.Duration // max time to wait for target
	PollInterval  time.Duration // how often to poll the URL
	StabilizeWait time.Duration // wait after target responds
}

// WOLResult holds the result of a Wake-on-LAN operation.
type WOLResult struct {
	PacketSent   bool
	TargetReady  bool
	WaitDuration time.Duration
	Error        error
}
