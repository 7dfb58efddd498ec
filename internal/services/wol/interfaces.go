package wol

import (
	"context"
	"net"
	"slices"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// InterfaceAddr is an IPv4 unicast address configured on a host interface.
type InterfaceAddr struct {
	Interface string
	IP        net.IP
	Mask      net.IPMask
}

// InterfaceLister enumerates the IPv4 addresses usable for broadcast detection.
type InterfaceLister interface {
	ListUsableIPv4Interfaces(ctx context.Context) ([]InterfaceAddr, error)
}

// SystemInterfaces lists the host's interfaces through gopsutil.
type SystemInterfaces struct{}

// ListUsableIPv4Interfaces returns the IPv4 addresses of interfaces that are
// operationally up and not loopback.
func (SystemInterfaces) ListUsableIPv4Interfaces(ctx context.Context) ([]InterfaceAddr, error) {
	stats, err := psnet.InterfacesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	return usableIPv4Addrs(stats, linkRunning), nil
}

// linkRunning reports whether the interface has a link. gopsutil only
// exposes the administrative "up" flag.
func linkRunning(iface psnet.InterfaceStat) bool {
	ni, err := net.InterfaceByIndex(iface.Index)
	if err != nil {
		return false
	}
	return ni.Flags&net.FlagRunning != 0
}

func usableIPv4Addrs(stats psnet.InterfaceStatList, running func(psnet.InterfaceStat) bool) []InterfaceAddr {
	var addrs []InterfaceAddr
	for _, iface := range stats {
		if !slices.Contains(iface.Flags, "up") || slices.Contains(iface.Flags, "loopback") {
			continue
		}
		if !running(iface) {
			continue
		}
		for _, a := range iface.Addrs {
			ip, ipnet, err := net.ParseCIDR(a.Addr)
			if err != nil {
				// Addresses without a prefix carry no mask.
				continue
			}
			ip4 := ip.To4()
			if ip4 == nil {
				continue
			}
			addrs = append(addrs, InterfaceAddr{
				Interface: iface.Name,
				IP:        ip4,
				Mask:      ipnet.Mask,
			})
		}
	}
	return addrs
}
