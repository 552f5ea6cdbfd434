package netstack

import "encoding/binary"

// Checksum computes the Internet checksum over data: big-endian 16-bit
// one's-complement sum, an odd trailing byte padded with zero, carries
// folded back in, result inverted.
func Checksum(data []byte) uint16 {
	var sum uint32
	i := 0
	for ; i+1 < len(data); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}
	if i < len(data) {
		sum += uint32(data[i]) << 8
	}
	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}
	return ^uint16(sum)
}

// TransportChecksum computes the UDP/TCP checksum of segment, which must
// hold the transport header with a zeroed checksum field followed by the
// payload. The standard pseudo-header (source, destination, zero, protocol,
// length) is prepended.
func TransportChecksum(src, dst [4]byte, proto uint8, segment []byte) uint16 {
	pseudo := make([]byte, 12, 12+len(segment))
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = proto
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	return Checksum(append(pseudo, segment...))
}
