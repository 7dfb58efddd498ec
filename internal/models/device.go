package models

import (
	"fmt"
	"net"
	"strings"
)

// Device is a stored machine that can be woken or shut down.
type Device struct {
	ID               int64
	Name             string
	MACAddress       net.HardwareAddr
	IPAddress        net.IP // nil if unknown
	BroadcastAddress net.IP // nil means auto-detect
	IsOnline         bool
}

// DeviceInput holds unparsed device fields as submitted by a client.
// Empty IPAddress and BroadcastAddress mean "not set".
type DeviceInput struct {
	Name             string
	MACAddress       string
	IPAddress        string
	BroadcastAddress string
}

// FormatMAC renders a hardware address as upper-case hex octets joined by '-'.
func FormatMAC(hw net.HardwareAddr) string {
	parts := make([]string, len(hw))
	for i, b := range hw {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, "-")
}
