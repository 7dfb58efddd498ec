package wol

import (
	"errors"
	"fmt"
	"net"

	"github.com/mdlayher/wol"
)

const (
	macLen     = 6
	syncLen    = 6
	repeats    = 16
	PacketSize = syncLen + repeats*macLen
)

// ErrMalformedAddress is returned when a hardware address is not exactly 6 bytes.
var ErrMalformedAddress = errors.New("malformed hardware address")

// MagicPacket is a complete Wake-on-LAN payload: six 0xFF bytes followed by
// sixteen copies of the target MAC.
type MagicPacket [PacketSize]byte

// BuildPacket encodes the magic packet for hw. The address must be exactly
// 6 bytes long; it is never truncated or padded.
func BuildPacket(hw net.HardwareAddr) (MagicPacket, error) {
	var packet MagicPacket

	if len(hw) != macLen {
		return packet, fmt.Errorf("%w: got %d bytes, want %d", ErrMalformedAddress, len(hw), macLen)
	}

	b, err := (&wol.MagicPacket{Target: hw}).MarshalBinary()
	if err != nil {
		return packet, fmt.Errorf("%w: %w", ErrMalformedAddress, err)
	}
	if len(b) != PacketSize {
		return packet, fmt.Errorf("unexpected magic packet length %d", len(b))
	}

	copy(packet[:], b)
	return packet, nil
}
