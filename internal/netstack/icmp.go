package netstack

import (
	"encoding/binary"

	"github.com/othello-os/go-othello/internal/types"
)

// PingReply reports one answered echo request.
type PingReply struct {
	Seq       uint16
	TTL       uint8
	RTTCycles uint64
}

// Ping sends a single ICMP echo request to dst and waits for the matching
// reply. The next hop is resolved first, and ARP replies observed while
// waiting refresh the cache so back-to-back pings stay cheap.
func (s *Stack) Ping(dst [4]byte, seq uint16) (PingReply, error) {
	if err := s.ready(); err != nil {
		return PingReply{}, err
	}

	nextHopMAC, err := s.ResolveMAC(s.nextHop(dst), s.budgets.ArpSpins)
	if err != nil {
		return PingReply{}, err
	}

	echo := make([]byte, 8+types.IcmpEchoPayload)
	echo[0] = types.IcmpEchoRequest
	binary.BigEndian.PutUint16(echo[4:6], types.IcmpEchoIdent)
	binary.BigEndian.PutUint16(echo[6:8], seq)
	for i := 0; i < types.IcmpEchoPayload; i++ {
		echo[8+i] = byte(i)
	}
	binary.BigEndian.PutUint16(echo[2:4], Checksum(echo))

	packet := append(ipv4Header(s.config.IP, dst, types.IPv4ProtoICMP, seq, len(echo)), echo...)
	if !s.sendFrame(nextHopMAC, types.EtherTypeIPv4, packet) {
		return PingReply{}, ErrTxFail
	}

	start := s.clock.Cycles()
	for spins := uint32(0); spins < s.budgets.PingSpins; spins++ {
		s.pause(spins)
		frame := s.pollFrame()
		if frame == nil {
			continue
		}
		if ttl, gotSeq, ok := parseEchoReply(frame, s.config.IP, dst); ok {
			if gotSeq != seq {
				continue
			}
			return PingReply{Seq: seq, TTL: ttl, RTTCycles: s.clock.Cycles() - start}, nil
		}
		if !s.harvestARP(frame) {
			s.dropFrame()
		}
	}
	return PingReply{}, ErrTimeout
}

func parseEchoReply(frame []byte, ourIP, target [4]byte) (uint8, uint16, bool) {
	ip, ok := parseIPv4(frame)
	if !ok || ip.proto != types.IPv4ProtoICMP {
		return 0, 0, false
	}
	if ip.dst != ourIP || ip.src != target {
		return 0, 0, false
	}
	body := ip.payload
	if len(body) < 8 {
		return 0, 0, false
	}
	if body[0] != types.IcmpEchoReply || body[1] != 0 {
		return 0, 0, false
	}
	if binary.BigEndian.Uint16(body[4:6]) != types.IcmpEchoIdent {
		return 0, 0, false
	}
	return ip.ttl, binary.BigEndian.Uint16(body[6:8]), true
}
