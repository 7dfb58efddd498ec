package wol

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"

	"github.com/calmh/incontainer"
	"github.com/rs/zerolog"
)

// OverrideSource returns the operator-supplied comma-separated list of
// broadcast addresses. It is called on every resolution.
type OverrideSource func() string

// TargetResolver computes the broadcast addresses a magic packet is sent to.
type TargetResolver interface {
	Resolve(ctx context.Context, explicit net.IP) []net.IP
}

// natRanges are subnets used by Docker Desktop and the default Docker bridge
// networks. Broadcasts there usually stay inside the VM.
var natRanges = func() []netip.Prefix {
	prefixes := []netip.Prefix{
		netip.MustParsePrefix("192.168.65.0/24"),
		netip.MustParsePrefix("172.17.0.0/16"),
	}
	for second := 18; second <= 31; second++ {
		prefixes = append(prefixes, netip.MustParsePrefix(fmt.Sprintf("172.%d.0.0/16", second)))
	}
	return prefixes
}()

// Resolver resolves broadcast targets from an explicit address, the host's
// interfaces, an operator override list and the global broadcast address.
type Resolver struct {
	lister      InterfaceLister
	overrides   OverrideSource
	inContainer func() bool
	logger      zerolog.Logger
}

// NewResolver creates a resolver. A nil overrides source disables the
// operator override tier.
func NewResolver(logger zerolog.Logger, lister InterfaceLister, overrides OverrideSource) *Resolver {
	if overrides == nil {
		overrides = func() string { return "" }
	}
	return &Resolver{
		lister:      lister,
		overrides:   overrides,
		inContainer: incontainer.Detect,
		logger:      logger,
	}
}

// Resolve returns the ordered, de-duplicated list of IPv4 broadcast targets.
// It never returns an empty list.
func (r *Resolver) Resolve(ctx context.Context, explicit net.IP) []net.IP {
	var targets targetSet

	switch {
	case explicit == nil:
		r.logger.Debug().Msg("no explicit broadcast address, auto-detecting from network interfaces")
		for _, ip := range r.detect(ctx) {
			targets.add(ip)
		}
	case explicit.To4() == nil:
		r.logger.Warn().Str("address", explicit.String()).Msg("ignoring non-IPv4 explicit broadcast address")
		for _, ip := range r.detect(ctx) {
			targets.add(ip)
		}
	default:
		r.logger.Debug().Str("address", explicit.String()).Msg("using explicit broadcast address")
		targets.add(explicit)
	}

	r.addOverrides(&targets)

	if targets.empty() {
		r.logger.Debug().Msg("no broadcast addresses resolved, falling back to 255.255.255.255")
		targets.add(net.IPv4bcast)
	}

	return targets.ips
}

func (r *Resolver) detect(ctx context.Context) []net.IP {
	addrs, err := r.lister.ListUsableIPv4Interfaces(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("failed to enumerate network interfaces")
		return nil
	}

	var detected targetSet
	for _, a := range addrs {
		bcast := subnetBroadcast(a.IP, a.Mask)
		if bcast == nil {
			continue
		}
		if detected.add(bcast) {
			r.logger.Debug().
				Str("broadcast", bcast.String()).
				Str("interface", a.Interface).
				Msg("detected broadcast address")
		}
	}

	if !detected.empty() && allInNATRanges(detected.ips) {
		r.logger.Warn().
			Strs("addresses", ipStrings(detected.ips)).
			Bool("container", r.inContainer()).
			Msg("all detected broadcast addresses belong to container/VM NAT networks; packets will likely not reach the physical LAN, set WOL_BROADCASTS or use host networking")
	}

	return detected.ips
}

func (r *Resolver) addOverrides(targets *targetSet) {
	raw := r.overrides()
	if strings.TrimSpace(raw) == "" {
		return
	}
	r.logger.Debug().Str("wol_broadcasts", raw).Msg("applying operator broadcast overrides")

	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		ip := net.ParseIP(part)
		if ip == nil || ip.To4() == nil {
			r.logger.Warn().Str("address", part).Msg("ignoring invalid address in WOL_BROADCASTS")
			continue
		}
		targets.add(ip)
	}
}

// subnetBroadcast computes ip | ^mask for an IPv4 address. It returns nil
// when the address is not IPv4 or the mask does not match.
func subnetBroadcast(ip net.IP, mask net.IPMask) net.IP {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil
	}
	if len(mask) == net.IPv6len {
		mask = mask[12:]
	}
	if len(mask) != net.IPv4len {
		return nil
	}

	bcast := make(net.IP, net.IPv4len)
	for i := range bcast {
		bcast[i] = ip4[i] | ^mask[i]
	}
	return bcast
}

func allInNATRanges(ips []net.IP) bool {
	for _, ip := range ips {
		addr, ok := netip.AddrFromSlice(ip.To4())
		if !ok {
			return false
		}
		inRange := false
		for _, p := range natRanges {
			if p.Contains(addr) {
				inRange = true
				break
			}
		}
		if !inRange {
			return false
		}
	}
	return true
}

// targetSet is an insertion-ordered set of IPv4 addresses keyed by their
// 4-byte value.
type targetSet struct {
	seen map[[4]byte]struct{}
	ips  []net.IP
}

func (s *targetSet) add(ip net.IP) bool {
	ip4 := ip.To4()
	if ip4 == nil {
		return false
	}
	if s.seen == nil {
		s.seen = make(map[[4]byte]struct{})
	}
	key := [4]byte(ip4)
	if _, ok := s.seen[key]; ok {
		return false
	}
	s.seen[key] = struct{}{}
	s.ips = append(s.ips, ip4)
	return true
}

func (s *targetSet) empty() bool {
	return len(s.ips) == 0
}

func ipStrings(ips []net.IP) []string {
	out := make([]string, len(ips))
	for i, ip := range ips {
		out[i] = ip.String()
	}
	return out
}
