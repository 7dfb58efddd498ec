//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/fgeck/landalf/internal/models"
	"github.com/fgeck/landalf/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// udpSink listens on loopback and collects every datagram it receives.
type udpSink struct {
	conn    net.PacketConn
	packets chan []byte
}

func newUDPSink(t *testing.T) *udpSink {
	t.Helper()

	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)

	s := &udpSink{conn: conn, packets: make(chan []byte, 64)}
	go func() {
		buf := make([]byte, 1024)
		for {
			n, _, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			s.packets <- append([]byte(nil), buf[:n]...)
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })

	return s
}

func (s *udpSink) port() int {
	return s.conn.LocalAddr().(*net.UDPAddr).Port
}

func (s *udpSink) receive(t *testing.T, n int) [][]byte {
	t.Helper()

	var got [][]byte
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case p := <-s.packets:
			got = append(got, p)
		case <-deadline:
			t.Fatalf("received %d of %d packets", len(got), n)
		}
	}
	return got
}

func loopbackService(sink *udpSink, attempts int) *wol.Impl {
	policy := wol.RetryPolicy{Attempts: attempts, Delay: time.Millisecond, Ports: []int{sink.port()}}
	resolver := wol.NewResolver(testLogger(), wol.SystemInterfaces{}, nil)
	return wol.NewWithClients(testLogger(), resolver, wol.NewTransmitter(testLogger(), policy, nil), http.DefaultClient)
}

func TestWOL_LoopbackDelivery_E2E(t *testing.T) {
	sink := newUDPSink(t)
	svc := loopbackService(sink, 3)

	mac := net.HardwareAddr{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}
	err := svc.Wake(context.Background(), mac, net.IPv4(127, 0, 0, 1))
	require.NoError(t, err)

	want, err := wol.BuildPacket(mac)
	require.NoError(t, err)

	for _, p := range sink.receive(t, 3) {
		assert.Len(t, p, wol.PacketSize)
		assert.Equal(t, want[:], p)
	}
}

func TestWOL_WakeAndWaitLoopback_E2E(t *testing.T) {
	sink := newUDPSink(t)
	svc := loopbackService(sink, 1)

	requestCount := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		// Any status counts as ready.
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	result, err := svc.WakeAndWait(context.Background(), models.WOLConfig{
		MACAddress:    "AA:BB:CC:DD:EE:FF",
		BroadcastIP:   "127.0.0.1",
		PollURL:       server.URL,
		Timeout:       5 * time.Second,
		PollInterval:  50 * time.Millisecond,
		StabilizeWait: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, 1, requestCount)
	sink.receive(t, 1)
}

func TestWOL_TargetNeverReady_E2E(t *testing.T) {
	sink := newUDPSink(t)
	svc := loopbackService(sink, 1)

	// A closed server refuses every connection.
	server := httptest.NewServer(http.NotFoundHandler())
	pollURL := server.URL
	server.Close()

	result, err := svc.WakeAndWait(context.Background(), models.WOLConfig{
		MACAddress:   "AA:BB:CC:DD:EE:FF",
		BroadcastIP:  "127.0.0.1",
		PollURL:      pollURL,
		Timeout:      200 * time.Millisecond,
		PollInterval: 50 * time.Millisecond,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.Error(t, result.Error)
	assert.Contains(t, result.Error.Error(), "timeout")
}

// RealWOL tests - only run if explicitly configured
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	pollURL := os.Getenv("TEST_WOL_TARGET_URL")

	svc := wol.New(testLogger(), func() string { return os.Getenv("WOL_BROADCASTS") }, wol.DefaultRetryPolicy())

	result, err := svc.WakeAndWait(context.Background(), models.WOLConfig{
		MACAddress:    mac,
		BroadcastIP:   os.Getenv("TEST_WOL_BROADCAST"),
		PollURL:       pollURL,
		Timeout:       5 * time.Minute,
		PollInterval:  10 * time.Second,
		StabilizeWait: 10 * time.Second,
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	if pollURL != "" {
		assert.True(t, result.TargetReady)
	}
}
