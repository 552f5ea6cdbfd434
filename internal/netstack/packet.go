package netstack

import (
	"encoding/binary"

	"github.com/othello-os/go-othello/internal/types"
)

// l2Offset locates the network-layer payload, tolerating one 802.1Q tag.
// It returns the payload offset and the effective EtherType.
func l2Offset(frame []byte) (int, uint16, bool) {
	if len(frame) < types.EthHeaderSize {
		return 0, 0, false
	}
	etherType := binary.BigEndian.Uint16(frame[12:14])
	if etherType == types.EtherTypeVLAN && len(frame) >= types.EthVlanHeaderSize {
		return types.EthVlanHeaderSize, binary.BigEndian.Uint16(frame[16:18]), true
	}
	return types.EthHeaderSize, etherType, true
}

// trimFrame cuts link-level padding off a received frame. Ethernet pads
// frames to 60 bytes, so a short datagram arrives with trailing zeros that
// would otherwise read as transport payload. ARP bodies have a fixed size;
// IPv4 carries its own total length.
func trimFrame(frame []byte) []byte {
	l2, etherType, ok := l2Offset(frame)
	if !ok {
		return frame
	}

	switch etherType {
	case types.EtherTypeARP:
		if want := l2 + types.ArpPacketSize; want <= len(frame) {
			return frame[:want]
		}
	case types.EtherTypeIPv4:
		if len(frame) < l2+types.IPv4HeaderMin {
			break
		}
		verIHL := frame[l2]
		if verIHL>>4 != 4 {
			break
		}
		ihl := int(verIHL&0x0F) * 4
		if ihl < types.IPv4HeaderMin || len(frame) < l2+ihl {
			break
		}
		total := int(binary.BigEndian.Uint16(frame[l2+2 : l2+4]))
		if want := l2 + total; want >= types.EthHeaderSize && want <= len(frame) {
			return frame[:want]
		}
	}
	return frame
}

// ipv4Packet is the parsed view of a received IPv4 frame.
type ipv4Packet struct {
	ttl     uint8
	proto   uint8
	src     [4]byte
	dst     [4]byte
	payload []byte
}

// parseIPv4 validates the network header of a frame and exposes the
// transport payload. Fragments are not reassembled; options are skipped.
func parseIPv4(frame []byte) (ipv4Packet, bool) {
	var p ipv4Packet

	l2, etherType, ok := l2Offset(frame)
	if !ok || etherType != types.EtherTypeIPv4 {
		return p, false
	}
	if len(frame) < l2+types.IPv4HeaderMin {
		return p, false
	}
	verIHL := frame[l2]
	if verIHL>>4 != 4 {
		return p, false
	}
	ihl := int(verIHL&0x0F) * 4
	if ihl < types.IPv4HeaderMin || len(frame) < l2+ihl {
		return p, false
	}

	p.ttl = frame[l2+8]
	p.proto = frame[l2+9]
	copy(p.src[:], frame[l2+12:l2+16])
	copy(p.dst[:], frame[l2+16:l2+20])
	p.payload = frame[l2+ihl:]
	return p, true
}

// udpPacket is the parsed view of a UDP datagram.
type udpPacket struct {
	srcPort uint16
	dstPort uint16
	payload []byte
}

func parseUDP(data []byte) (udpPacket, bool) {
	var u udpPacket
	if len(data) < types.UdpHeaderSize {
		return u, false
	}
	u.srcPort = binary.BigEndian.Uint16(data[0:2])
	u.dstPort = binary.BigEndian.Uint16(data[2:4])

	u.payload = data[types.UdpHeaderSize:]
	if length := int(binary.BigEndian.Uint16(data[4:6])); length >= types.UdpHeaderSize && length <= len(data) {
		u.payload = data[types.UdpHeaderSize:length]
	}
	return u, true
}

// ipv4Header builds a checksummed 20-byte header in front of payloadLen
// transport bytes.
func ipv4Header(src, dst [4]byte, proto uint8, id uint16, payloadLen int) []byte {
	h := make([]byte, types.IPv4HeaderMin)
	h[0] = 0x45
	binary.BigEndian.PutUint16(h[2:4], uint16(types.IPv4HeaderMin+payloadLen))
	binary.BigEndian.PutUint16(h[4:6], id)
	h[8] = types.IPv4DefaultTTL
	h[9] = proto
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	binary.BigEndian.PutUint16(h[10:12], Checksum(h))
	return h
}

// udpDatagram builds a UDP header plus payload. A zero checksum is legal
// over IPv4; broadcast DHCP sends with it.
func udpDatagram(src, dst [4]byte, srcPort, dstPort uint16, payload []byte, checksummed bool) []byte {
	d := make([]byte, types.UdpHeaderSize+len(payload))
	binary.BigEndian.PutUint16(d[0:2], srcPort)
	binary.BigEndian.PutUint16(d[2:4], dstPort)
	binary.BigEndian.PutUint16(d[4:6], uint16(len(d)))
	copy(d[types.UdpHeaderSize:], payload)
	if checksummed {
		binary.BigEndian.PutUint16(d[6:8], TransportChecksum(src, dst, types.IPv4ProtoUDP, d))
	}
	return d
}
