package netstack

import (
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
)

// zeroIPv4 is the unconfigured address.
var zeroIPv4 [4]byte

// Stack drives the IPv4 client protocols over a single Ethernet link: ARP
// resolution, DHCP address acquisition, ICMP echo, DNS lookups and the TCP
// client. Every blocking operation is a bounded busy-poll against the link,
// and a single goroutine owns the whole stack, the same discipline the
// kernel main loop imposes.
type Stack struct {
	link    interfaces.FrameLink
	clock   interfaces.Clock
	budgets *StackConfig

	config NetConfig
	stats  Stats

	// Single-entry ARP cache.
	arpValid bool
	arpIP    [4]byte
	arpMAC   [6]byte
}

// NewStack wires a stack to a frame link. A nil link is allowed and leaves
// every network operation failing with ErrNoNIC, mirroring a machine whose
// probe found no adapter. Nil budgets fall back to the defaults.
func NewStack(link interfaces.FrameLink, clock interfaces.Clock, budgets *StackConfig) (*Stack, error) {
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if budgets == nil {
		budgets = DefaultStackConfig()
	}

	s := &Stack{link: link, clock: clock, budgets: budgets}
	if link != nil {
		s.config.NICPresent = true
		s.config.MAC = link.MAC()
	}
	return s, nil
}

// Config returns a snapshot of the interface state.
func (s *Stack) Config() NetConfig {
	return s.config
}

// Stats returns a snapshot of the stack-level traffic counters.
func (s *Stack) Stats() Stats {
	return s.stats
}

// MAC returns the station address, or false when no adapter is attached.
func (s *Stack) MAC() ([6]byte, bool) {
	if !s.config.NICPresent {
		return [6]byte{}, false
	}
	return s.config.MAC, true
}

// SetStaticConfig installs a static IPv4 binding, clearing any DHCP state
// and the ARP cache.
func (s *Stack) SetStaticConfig(ip, mask, gateway, dns [4]byte) {
	s.config.DHCPBound = false
	s.config.IP = ip
	s.config.Mask = mask
	s.config.Gateway = gateway
	s.config.DNS = dns
	s.config.ServerID = zeroIPv4
	s.config.LeaseSeconds = 0
	s.arpValid = false
}

// ready gates operations that need a bound interface.
func (s *Stack) ready() error {
	if s.link == nil {
		return ErrNoNIC
	}
	if s.config.IP == zeroIPv4 {
		return ErrNotConfigured
	}
	return nil
}

// sendFrame transmits one Ethernet payload and counts it.
func (s *Stack) sendFrame(dst [6]byte, etherType uint16, payload []byte) bool {
	if s.link == nil {
		return false
	}
	if !s.link.SendFrame(dst, etherType, payload) {
		return false
	}
	s.stats.TxPackets++
	return true
}

// pollFrame services the link once and returns the next frame with link
// padding trimmed off, or nil.
func (s *Stack) pollFrame() []byte {
	frame := s.link.PollFrame()
	if frame == nil {
		return nil
	}
	s.stats.RxPackets++
	return trimFrame(frame)
}

// dropFrame records a polled frame no conversation claimed.
func (s *Stack) dropFrame() {
	s.stats.RxDropped++
}

// pause yields inside a spin loop at the customary stride.
func (s *Stack) pause(spins uint32) {
	if spins&0x3FF == 0 {
		s.clock.Pause()
	}
}

// nextHop picks the Ethernet destination for an IPv4 target: the target
// itself when it shares our subnet or no gateway exists, the gateway
// otherwise. An all-zero mask, seen after partial DHCP failures, routes
// everything through the gateway when one exists.
func (s *Stack) nextHop(dst [4]byte) [4]byte {
	maskZero := s.config.Mask == zeroIPv4
	gw := s.config.Gateway
	switch {
	case !maskZero && (sameSubnet(s.config.IP, dst, s.config.Mask) || gw == zeroIPv4):
		return dst
	case gw != zeroIPv4:
		return gw
	default:
		return dst
	}
}

func sameSubnet(a, b, mask [4]byte) bool {
	for i := range a {
		if a[i]&mask[i] != b[i]&mask[i] {
			return false
		}
	}
	return true
}
