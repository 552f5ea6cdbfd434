package netstack

import (
	"encoding/binary"

	"github.com/othello-os/go-othello/internal/types"
)

// ResolveMAC resolves the Ethernet address of an on-link IPv4 host. The
// single-entry cache answers repeats without traffic; otherwise one
// broadcast request goes out and replies are polled for up to
// timeoutSpins iterations.
func (s *Stack) ResolveMAC(target [4]byte, timeoutSpins uint32) ([6]byte, error) {
	if err := s.ready(); err != nil {
		return [6]byte{}, err
	}
	if s.arpValid && s.arpIP == target {
		return s.arpMAC, nil
	}

	request := buildARPPacket(types.ArpOpRequest, s.config.MAC, s.config.IP, [6]byte{}, target)
	if !s.sendFrame(types.EthBroadcast, types.EtherTypeARP, request) {
		return [6]byte{}, ErrTxFail
	}

	for spins := uint32(0); spins < timeoutSpins; spins++ {
		s.pause(spins)
		frame := s.pollFrame()
		if frame == nil {
			continue
		}
		senderIP, senderMAC, ok := parseARPReply(frame, s.config.IP)
		if !ok || senderIP != target {
			s.dropFrame()
			continue
		}
		s.arpValid = true
		s.arpIP = senderIP
		s.arpMAC = senderMAC
		return senderMAC, nil
	}
	return [6]byte{}, ErrARPTimeout
}

// harvestARP feeds a stray frame to the ARP cache. Wait loops for other
// protocols call it so that replies landing mid-conversation are not lost.
func (s *Stack) harvestARP(frame []byte) bool {
	senderIP, senderMAC, ok := parseARPReply(frame, s.config.IP)
	if !ok {
		return false
	}
	s.arpValid = true
	s.arpIP = senderIP
	s.arpMAC = senderMAC
	return true
}

func buildARPPacket(op uint16, sha [6]byte, spa [4]byte, tha [6]byte, tpa [4]byte) []byte {
	p := make([]byte, types.ArpPacketSize)
	binary.BigEndian.PutUint16(p[0:2], types.ArpHTypeEth)
	binary.BigEndian.PutUint16(p[2:4], types.EtherTypeIPv4)
	p[4] = types.ArpHwAddrLen
	p[5] = types.ArpProtAddrLen
	binary.BigEndian.PutUint16(p[6:8], op)
	copy(p[8:14], sha[:])
	copy(p[14:18], spa[:])
	copy(p[18:24], tha[:])
	copy(p[24:28], tpa[:])
	return p
}

// parseARPReply accepts a reply whose target protocol address is ours and
// returns the sender's addresses.
func parseARPReply(frame []byte, ourIP [4]byte) ([4]byte, [6]byte, bool) {
	offset, etherType, ok := l2Offset(frame)
	if !ok || etherType != types.EtherTypeARP {
		return [4]byte{}, [6]byte{}, false
	}
	if len(frame) < offset+types.ArpPacketSize {
		return [4]byte{}, [6]byte{}, false
	}
	a := frame[offset : offset+types.ArpPacketSize]
	if binary.BigEndian.Uint16(a[6:8]) != types.ArpOpReply {
		return [4]byte{}, [6]byte{}, false
	}
	var tpa [4]byte
	copy(tpa[:], a[24:28])
	if tpa != ourIP {
		return [4]byte{}, [6]byte{}, false
	}
	var senderMAC [6]byte
	var senderIP [4]byte
	copy(senderMAC[:], a[8:14])
	copy(senderIP[:], a[14:18])
	return senderIP, senderMAC, true
}
