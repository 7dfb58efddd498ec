package wol

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/rs/zerolog"
	psnet "github.com/shirou/gopsutil/v3/net"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockLister struct {
	listFunc func(ctx context.Context) ([]InterfaceAddr, error)
	calls    int
}

func (m *mockLister) ListUsableIPv4Interfaces(ctx context.Context) ([]InterfaceAddr, error) {
	m.calls++
	if m.listFunc != nil {
		return m.listFunc(ctx)
	}
	return nil, nil
}

func staticLister(addrs ...InterfaceAddr) *mockLister {
	return &mockLister{
		listFunc: func(ctx context.Context) ([]InterfaceAddr, error) {
			return addrs, nil
		},
	}
}

func ifaceAddr(name, cidr string) InterfaceAddr {
	ip, ipnet, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(err)
	}
	return InterfaceAddr{Interface: name, IP: ip.To4(), Mask: ipnet.Mask}
}

func overrides(s string) OverrideSource {
	return func() string { return s }
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func newTestResolver(logger zerolog.Logger, lister InterfaceLister, src OverrideSource) *Resolver {
	r := NewResolver(logger, lister, src)
	r.inContainer = func() bool { return false }
	return r
}

func resolveStrings(r *Resolver, explicit net.IP) []string {
	return ipStrings(r.Resolve(context.Background(), explicit))
}

func TestResolve_ExplicitOnly(t *testing.T) {
	lister := staticLister(ifaceAddr("eth0", "10.1.2.3/24"))
	r := newTestResolver(testLogger(), lister, nil)

	got := resolveStrings(r, net.ParseIP("192.168.1.255"))

	assert.Equal(t, []string{"192.168.1.255"}, got)
	assert.Equal(t, 0, lister.calls, "auto-detection must be skipped")
}

func TestResolve_ExplicitFirstThenOverrides(t *testing.T) {
	lister := staticLister(ifaceAddr("eth0", "10.1.2.3/24"))
	r := newTestResolver(testLogger(), lister, overrides("10.0.0.255, 192.168.1.255"))

	got := resolveStrings(r, net.ParseIP("192.168.1.255"))

	assert.Equal(t, []string{"192.168.1.255", "10.0.0.255"}, got)
	assert.Equal(t, 0, lister.calls)
}

func TestResolve_AutoDetect(t *testing.T) {
	lister := staticLister(
		ifaceAddr("eth0", "192.168.1.17/24"),
		ifaceAddr("eth1", "10.20.30.40/16"),
		ifaceAddr("eth2", "192.168.1.99/24"), // same subnet as eth0
	)
	r := newTestResolver(testLogger(), lister, nil)

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"192.168.1.255", "10.20.255.255"}, got)
	assert.Equal(t, 1, lister.calls)
}

func TestResolve_AutoDetectPlusOverrides(t *testing.T) {
	lister := staticLister(ifaceAddr("eth0", "192.168.1.17/24"))
	r := newTestResolver(testLogger(), lister, overrides("192.168.1.255,10.0.0.255"))

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"192.168.1.255", "10.0.0.255"}, got)
}

func TestResolve_OverridesTrimmedAndFiltered(t *testing.T) {
	var logs bytes.Buffer
	r := newTestResolver(zerolog.New(&logs), staticLister(), overrides("10.0.0.255,  172.16.0.255  ,not-an-ip,::1"))

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"10.0.0.255", "172.16.0.255"}, got)
	assert.Contains(t, logs.String(), "not-an-ip")
	assert.Contains(t, logs.String(), "::1")
}

func TestResolve_OverridesDeduplicated(t *testing.T) {
	r := newTestResolver(testLogger(), staticLister(), overrides("192.168.1.255,192.168.1.255"))

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"192.168.1.255"}, got)
}

func TestResolve_OverridesEmptyEntriesIgnored(t *testing.T) {
	r := newTestResolver(testLogger(), staticLister(), overrides(" , ,10.0.0.255,,"))

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"10.0.0.255"}, got)
}

func TestResolve_OverridesReadEveryCall(t *testing.T) {
	value := "10.0.0.255"
	r := newTestResolver(testLogger(), staticLister(), func() string { return value })

	assert.Equal(t, []string{"10.0.0.255"}, resolveStrings(r, nil))

	value = "10.9.9.255"
	assert.Equal(t, []string{"10.9.9.255"}, resolveStrings(r, nil))
}

func TestResolve_Fallback(t *testing.T) {
	tests := []struct {
		name      string
		overrides OverrideSource
	}{
		{name: "nil source", overrides: nil},
		{name: "empty", overrides: overrides("")},
		{name: "whitespace", overrides: overrides("   ")},
		{name: "only invalid entries", overrides: overrides("bogus,fe80::1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestResolver(testLogger(), staticLister(), tt.overrides)

			got := resolveStrings(r, nil)

			assert.Equal(t, []string{"255.255.255.255"}, got)
		})
	}
}

func TestResolve_ListerErrorFallsBack(t *testing.T) {
	lister := &mockLister{
		listFunc: func(ctx context.Context) ([]InterfaceAddr, error) {
			return nil, errors.New("permission denied")
		},
	}
	r := newTestResolver(testLogger(), lister, nil)

	got := resolveStrings(r, nil)

	assert.Equal(t, []string{"255.255.255.255"}, got)
}

func TestResolve_NonIPv4ExplicitIsIgnored(t *testing.T) {
	lister := staticLister(ifaceAddr("eth0", "192.168.1.17/24"))
	r := newTestResolver(testLogger(), lister, nil)

	got := resolveStrings(r, net.ParseIP("fe80::1"))

	assert.Equal(t, []string{"192.168.1.255"}, got)
	assert.Equal(t, 1, lister.calls)
}

func TestResolve_ReturnsFourByteAddresses(t *testing.T) {
	r := newTestResolver(testLogger(), staticLister(), nil)

	for _, ip := range r.Resolve(context.Background(), net.ParseIP("192.168.1.255")) {
		assert.Len(t, ip, net.IPv4len)
	}
}

func TestResolve_NATWarning(t *testing.T) {
	tests := []struct {
		name  string
		addrs []InterfaceAddr
		warn  bool
	}{
		{
			name:  "docker bridge",
			addrs: []InterfaceAddr{ifaceAddr("eth0", "172.17.0.2/16")},
			warn:  true,
		},
		{
			name:  "docker desktop",
			addrs: []InterfaceAddr{ifaceAddr("eth0", "192.168.65.3/24")},
			warn:  true,
		},
		{
			name: "user defined networks",
			addrs: []InterfaceAddr{
				ifaceAddr("eth0", "172.18.0.5/16"),
				ifaceAddr("eth1", "172.31.4.5/16"),
			},
			warn: true,
		},
		{
			name: "mixed with physical LAN",
			addrs: []InterfaceAddr{
				ifaceAddr("eth0", "172.17.0.2/16"),
				ifaceAddr("eth1", "192.168.1.10/24"),
			},
			warn: false,
		},
		{
			name:  "172.16 is not a docker default",
			addrs: []InterfaceAddr{ifaceAddr("eth0", "172.16.0.2/16")},
			warn:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var logs bytes.Buffer
			r := newTestResolver(zerolog.New(&logs), staticLister(tt.addrs...), nil)

			got := r.Resolve(context.Background(), nil)

			assert.Len(t, got, len(tt.addrs), "NAT addresses are kept")
			if tt.warn {
				assert.Contains(t, logs.String(), "NAT networks")
			} else {
				assert.NotContains(t, logs.String(), "NAT networks")
			}
		})
	}
}

func TestSubnetBroadcast(t *testing.T) {
	tests := []struct {
		cidr string
		want string
	}{
		{cidr: "192.168.1.17/24", want: "192.168.1.255"},
		{cidr: "10.20.30.40/8", want: "10.255.255.255"},
		{cidr: "172.16.5.4/12", want: "172.31.255.255"},
		{cidr: "192.168.1.130/25", want: "192.168.1.255"},
		{cidr: "192.168.1.17/32", want: "192.168.1.17"},
	}

	for _, tt := range tests {
		t.Run(tt.cidr, func(t *testing.T) {
			ip, ipnet, err := net.ParseCIDR(tt.cidr)
			require.NoError(t, err)

			assert.Equal(t, tt.want, subnetBroadcast(ip, ipnet.Mask).String())
		})
	}
}

func TestSubnetBroadcast_SixteenByteMask(t *testing.T) {
	mask := net.CIDRMask(24, 32)
	long := make(net.IPMask, net.IPv6len)
	copy(long[12:], mask)

	got := subnetBroadcast(net.ParseIP("10.0.0.1"), long)

	assert.Equal(t, "10.0.0.255", got.String())
}

func TestSubnetBroadcast_Invalid(t *testing.T) {
	assert.Nil(t, subnetBroadcast(net.ParseIP("fe80::1"), net.CIDRMask(64, 128)))
	assert.Nil(t, subnetBroadcast(net.ParseIP("10.0.0.1"), net.IPMask{0xff, 0xff}))
}

func TestUsableIPv4Addrs(t *testing.T) {
	stats := psnet.InterfaceStatList{
		{
			Name:  "lo",
			Flags: []string{"up", "loopback"},
			Addrs: psnet.InterfaceAddrList{{Addr: "127.0.0.1/8"}},
		},
		{
			Name:  "eth0",
			Flags: []string{"up", "broadcast", "multicast"},
			Addrs: psnet.InterfaceAddrList{
				{Addr: "192.168.1.17/24"},
				{Addr: "fe80::1/64"},
			},
		},
		{
			Name:  "eth1",
			Flags: []string{"broadcast", "multicast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "10.0.0.5/24"}},
		},
		{
			Name:  "wg0",
			Flags: []string{"up", "pointtopoint"},
			Addrs: psnet.InterfaceAddrList{{Addr: "10.8.0.1"}},
		},
	}

	got := usableIPv4Addrs(stats, func(psnet.InterfaceStat) bool { return true })

	require.Len(t, got, 1)
	assert.Equal(t, "eth0", got[0].Interface)
	assert.Equal(t, "192.168.1.17", got[0].IP.String())
	assert.Equal(t, net.CIDRMask(24, 32), got[0].Mask)
}

func TestUsableIPv4Addrs_SkipsInterfacesWithoutLink(t *testing.T) {
	stats := psnet.InterfaceStatList{
		{
			Index: 2,
			Name:  "eth0",
			Flags: []string{"up", "broadcast", "multicast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "192.168.1.17/24"}},
		},
		{
			Index: 3,
			Name:  "docker0",
			Flags: []string{"up", "broadcast", "multicast"},
			Addrs: psnet.InterfaceAddrList{{Addr: "172.17.0.1/16"}},
		},
	}
	running := func(iface psnet.InterfaceStat) bool { return iface.Index != 3 }

	got := usableIPv4Addrs(stats, running)

	require.Len(t, got, 1)
	assert.Equal(t, "eth0", got[0].Interface)
}

func TestLinkRunning_MatchesSystemFlags(t *testing.T) {
	ifaces, err := net.Interfaces()
	require.NoError(t, err)

	for _, ni := range ifaces {
		want := ni.Flags&net.FlagRunning != 0
		assert.Equal(t, want, linkRunning(psnet.InterfaceStat{Index: ni.Index, Name: ni.Name}), ni.Name)
	}
}

func TestLinkRunning_UnknownIndex(t *testing.T) {
	assert.False(t, linkRunning(psnet.InterfaceStat{Index: 1 << 30, Name: "missing"}))
}
