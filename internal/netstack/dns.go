package netstack

import (
	"encoding/binary"
	"errors"
	"strings"

	"github.com/othello-os/go-othello/internal/types"
)

// dnsIDXor whitens the cycle counter into the query id.
const dnsIDXor = 0xBEEF

// ResolveA resolves host to an IPv4 address. Dotted-quad literals are
// answered without touching the wire. Queries go to the configured DNS
// server, falling back to the gateway when none was learned; a reply with
// our query id settles the lookup one way or the other.
func (s *Stack) ResolveA(host string) ([4]byte, error) {
	if ip, ok := parseIPv4Literal(host); ok {
		return ip, nil
	}
	if s.link == nil {
		return zeroIPv4, ErrNoNIC
	}
	if s.config.IP == zeroIPv4 {
		return zeroIPv4, ErrNotConfigured
	}

	resolver := s.config.DNS
	if resolver == zeroIPv4 {
		resolver = s.config.Gateway
	}
	if resolver == zeroIPv4 {
		return zeroIPv4, ErrNotConfigured
	}

	nextHopMAC, err := s.ResolveMAC(s.nextHop(resolver), s.budgets.ArpSpins)
	if errors.Is(err, ErrARPTimeout) {
		return zeroIPv4, ErrTimeout
	}
	if err != nil {
		return zeroIPv4, err
	}

	cycles := s.clock.Cycles()
	id := uint16(cycles) ^ dnsIDXor
	srcPort := uint16(types.DnsLocalPortBase + cycles%types.DnsLocalPortSpan)

	query := buildDNSQuery(id, host)
	datagram := udpDatagram(s.config.IP, resolver, srcPort, types.DnsServerPort, query, true)
	packet := append(ipv4Header(s.config.IP, resolver, types.IPv4ProtoUDP, id, len(datagram)), datagram...)
	if !s.sendFrame(nextHopMAC, types.EtherTypeIPv4, packet) {
		return zeroIPv4, ErrTxFail
	}

	for spins := uint32(0); spins < s.budgets.DnsSpins; spins++ {
		s.pause(spins)
		frame := s.pollFrame()
		if frame == nil {
			continue
		}
		message, ok := dnsReplyFor(frame, s.config.IP, resolver, srcPort)
		if !ok {
			s.dropFrame()
			continue
		}
		if binary.BigEndian.Uint16(message[0:2]) != id {
			s.dropFrame()
			continue
		}
		flags := binary.BigEndian.Uint16(message[2:4])
		if flags&types.DnsFlagsQR == 0 {
			s.dropFrame()
			continue
		}
		if flags&types.DnsRcodeMask != 0 {
			return zeroIPv4, ErrNoAnswer
		}
		return parseDNSAnswer(message)
	}
	return zeroIPv4, ErrTimeout
}

// dnsReplyFor extracts the DNS message from a frame that matches our
// query's address and port tuple.
func dnsReplyFor(frame []byte, ourIP, resolver [4]byte, srcPort uint16) ([]byte, bool) {
	ip, ok := parseIPv4(frame)
	if !ok || ip.proto != types.IPv4ProtoUDP {
		return nil, false
	}
	if ip.src != resolver || ip.dst != ourIP {
		return nil, false
	}
	udp, ok := parseUDP(ip.payload)
	if !ok || udp.srcPort != types.DnsServerPort || udp.dstPort != srcPort {
		return nil, false
	}
	if len(udp.payload) < types.DnsHeaderSize {
		return nil, false
	}
	return udp.payload, true
}

// parseDNSAnswer walks a response with a clean rcode and returns the first
// A record. Compression pointers are followed when skipping names.
func parseDNSAnswer(message []byte) ([4]byte, error) {
	qdCount := int(binary.BigEndian.Uint16(message[4:6]))
	anCount := int(binary.BigEndian.Uint16(message[6:8]))
	if anCount == 0 {
		return zeroIPv4, ErrNoAnswer
	}

	off := types.DnsHeaderSize
	for q := 0; q < qdCount; q++ {
		next, ok := skipName(message, off)
		if !ok || next+4 > len(message) {
			return zeroIPv4, ErrMalformed
		}
		off = next + 4
	}

	for a := 0; a < anCount; a++ {
		next, ok := skipName(message, off)
		if !ok || next+10 > len(message) {
			return zeroIPv4, ErrMalformed
		}
		off = next
		rType := binary.BigEndian.Uint16(message[off : off+2])
		rClass := binary.BigEndian.Uint16(message[off+2 : off+4])
		rdLen := int(binary.BigEndian.Uint16(message[off+8 : off+10]))
		off += 10
		if off+rdLen > len(message) {
			return zeroIPv4, ErrMalformed
		}
		if rType == types.DnsTypeA && rClass == types.DnsClassIN && rdLen == 4 {
			var ip [4]byte
			copy(ip[:], message[off:off+4])
			return ip, nil
		}
		off += rdLen
	}
	return zeroIPv4, ErrNoAnswer
}

// skipName advances past a possibly-compressed domain name. A pointer ends
// the name; the cap on label hops keeps a malicious loop finite.
func skipName(message []byte, off int) (int, bool) {
	for hops := 0; hops <= 255; hops++ {
		if off >= len(message) {
			return 0, false
		}
		b := message[off]
		if b&types.DnsPointerMask == types.DnsPointerMask {
			if off+1 >= len(message) {
				return 0, false
			}
			return off + 2, true
		}
		if b == 0 {
			return off + 1, true
		}
		off += 1 + int(b)
		if off > len(message) {
			return 0, false
		}
	}
	return 0, false
}

func buildDNSQuery(id uint16, host string) []byte {
	q := make([]byte, types.DnsHeaderSize, types.DnsHeaderSize+len(host)+6)
	binary.BigEndian.PutUint16(q[0:2], id)
	binary.BigEndian.PutUint16(q[2:4], types.DnsFlagsRD)
	binary.BigEndian.PutUint16(q[4:6], 1)
	for _, label := range strings.Split(host, ".") {
		b := []byte(label)
		if len(b) > types.DnsMaxLabel {
			b = b[:types.DnsMaxLabel]
		}
		q = append(q, byte(len(b)))
		q = append(q, b...)
	}
	q = append(q, 0)
	q = append(q, 0, types.DnsTypeA, 0, types.DnsClassIN)
	return q
}

// parseIPv4Literal accepts strict dotted-quad notation: four decimal
// octets, each at most 255, nothing else.
func parseIPv4Literal(s string) ([4]byte, bool) {
	var octets [4]byte
	idx := 0
	acc := 0
	saw := false
	for i := 0; i < len(s); i++ {
		b := s[i]
		switch {
		case b == '.':
			if !saw || idx >= 3 {
				return [4]byte{}, false
			}
			octets[idx] = byte(acc)
			idx++
			acc = 0
			saw = false
		case b >= '0' && b <= '9':
			acc = acc*10 + int(b-'0')
			if acc > 255 {
				return [4]byte{}, false
			}
			saw = true
		default:
			return [4]byte{}, false
		}
	}
	if !saw || idx != 3 {
		return [4]byte{}, false
	}
	octets[3] = byte(acc)
	return octets, true
}
