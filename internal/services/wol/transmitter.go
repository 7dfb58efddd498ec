package wol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrCancelled is returned when the context ends before every send completed.
	ErrCancelled = errors.New("wake cancelled")
	// ErrTransmission is returned when the UDP socket could not be opened or a send failed.
	ErrTransmission = errors.New("magic packet transmission failed")
)

// Legacy Wake-on-LAN ports.
const (
	PortEcho    = 7
	PortDiscard = 9
)

// RetryPolicy controls how often and where each packet is sent.
type RetryPolicy struct {
	Attempts int           // sends per target and port
	Delay    time.Duration // pause between consecutive sends
	Ports    []int
}

// DefaultRetryPolicy sends three times to ports 7 and 9, 30ms apart.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts: 3,
		Delay:    30 * time.Millisecond,
		Ports:    []int{PortEcho, PortDiscard},
	}
}

// Sender delivers a magic packet to a list of broadcast targets.
type Sender interface {
	Send(ctx context.Context, packet MagicPacket, targets []net.IP) error
}

// ListenFunc opens the UDP socket used for one wake operation.
type ListenFunc func(ctx context.Context) (net.PacketConn, error)

// ListenBroadcast opens an IPv4 UDP socket on an ephemeral port with
// SO_BROADCAST enabled.
func ListenBroadcast(ctx context.Context) (net.PacketConn, error) {
	lc := net.ListenConfig{Control: broadcastControl}
	return lc.ListenPacket(ctx, "udp4", ":0")
}

// Transmitter sends magic packets over a broadcast-enabled UDP socket.
type Transmitter struct {
	listen ListenFunc
	policy RetryPolicy
	logger zerolog.Logger
}

// NewTransmitter creates a transmitter. A nil listen func uses ListenBroadcast.
func NewTransmitter(logger zerolog.Logger, policy RetryPolicy, listen ListenFunc) *Transmitter {
	if listen == nil {
		listen = ListenBroadcast
	}
	return &Transmitter{
		listen: listen,
		policy: policy,
		logger: logger,
	}
}

// Send writes packet to every target on every policy port, Attempts times
// each, strictly in order. The socket lives only for the duration of the call.
// The first socket error aborts the remaining sends.
func (t *Transmitter) Send(ctx context.Context, packet MagicPacket, targets []net.IP) error {
	if err := ctx.Err(); err != nil {
		return cancelled(err)
	}

	conn, err := t.listen(ctx)
	if err != nil {
		return fmt.Errorf("%w: open socket: %w", ErrTransmission, err)
	}
	defer func() { _ = conn.Close() }()

	sent := 0
	for _, target := range targets {
		for _, port := range t.policy.Ports {
			addr := &net.UDPAddr{IP: target, Port: port}
			for attempt := 1; attempt <= t.policy.Attempts; attempt++ {
				if sent > 0 {
					if err := sleep(ctx, t.policy.Delay); err != nil {
						return cancelled(err)
					}
				}
				if err := ctx.Err(); err != nil {
					return cancelled(err)
				}

				if _, err := conn.WriteTo(packet[:], addr); err != nil {
					return fmt.Errorf("%w: send to %s: %w", ErrTransmission, addr, err)
				}
				sent++

				t.logger.Debug().
					Str("target", target.String()).
					Int("port", port).
					Int("attempt", attempt).
					Int("attempts", t.policy.Attempts).
					Msg("sent magic packet")
			}
		}
	}

	return nil
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
