package netstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/types"
)

func rawFrame(etherType uint16, payload []byte) []byte {
	frame := make([]byte, types.EthHeaderSize, types.EthHeaderSize+len(payload))
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	return append(frame, payload...)
}

func vlanFrame(innerType uint16, payload []byte) []byte {
	frame := make([]byte, types.EthVlanHeaderSize, types.EthVlanHeaderSize+len(payload))
	frame[12] = byte(types.EtherTypeVLAN >> 8)
	frame[13] = byte(types.EtherTypeVLAN & 0xFF)
	frame[16] = byte(innerType >> 8)
	frame[17] = byte(innerType)
	return append(frame, payload...)
}

func padTo(frame []byte, n int) []byte {
	for len(frame) < n {
		frame = append(frame, 0)
	}
	return frame
}

func TestL2Offset(t *testing.T) {
	offset, etherType, ok := l2Offset(rawFrame(types.EtherTypeIPv4, make([]byte, 20)))
	require.True(t, ok)
	assert.Equal(t, types.EthHeaderSize, offset)
	assert.Equal(t, uint16(types.EtherTypeIPv4), etherType)

	offset, etherType, ok = l2Offset(vlanFrame(types.EtherTypeARP, make([]byte, 28)))
	require.True(t, ok)
	assert.Equal(t, types.EthVlanHeaderSize, offset)
	assert.Equal(t, uint16(types.EtherTypeARP), etherType)

	_, _, ok = l2Offset(make([]byte, 13))
	assert.False(t, ok)

	// A tag with nothing behind it is left as-is for callers to reject.
	_, etherType, ok = l2Offset(rawFrame(types.EtherTypeVLAN, []byte{0, 1}))
	require.True(t, ok)
	assert.Equal(t, uint16(types.EtherTypeVLAN), etherType)
}

func TestTrimFrame(t *testing.T) {
	arp := padTo(rawFrame(types.EtherTypeARP, make([]byte, types.ArpPacketSize)), 60)
	assert.Len(t, trimFrame(arp), types.EthHeaderSize+types.ArpPacketSize)

	short := rawFrame(types.EtherTypeARP, make([]byte, 20))
	assert.Len(t, trimFrame(short), len(short), "truncated ARP stays untouched")

	packet := append(ipv4Header([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, types.IPv4ProtoUDP, 9, 10), make([]byte, 10)...)
	padded := padTo(rawFrame(types.EtherTypeIPv4, packet), 60)
	assert.Len(t, trimFrame(padded), types.EthHeaderSize+30)

	tagged := padTo(vlanFrame(types.EtherTypeIPv4, packet), 60)
	assert.Len(t, trimFrame(tagged), types.EthVlanHeaderSize+30)

	// Total length beyond the frame cannot be trusted.
	lying := padTo(rawFrame(types.EtherTypeIPv4, packet), 60)
	lying[types.EthHeaderSize+2] = 0x01
	lying[types.EthHeaderSize+3] = 0x00
	assert.Len(t, trimFrame(lying), 60)

	other := padTo(rawFrame(0x9999, []byte{1, 2, 3}), 60)
	assert.Len(t, trimFrame(other), 60)
}

func TestParseIPv4(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}
	packet := append(ipv4Header(src, dst, types.IPv4ProtoICMP, 42, 4), 0xDE, 0xAD, 0xBE, 0xEF)

	p, ok := parseIPv4(rawFrame(types.EtherTypeIPv4, packet))
	require.True(t, ok)
	assert.Equal(t, uint8(types.IPv4DefaultTTL), p.ttl)
	assert.Equal(t, uint8(types.IPv4ProtoICMP), p.proto)
	assert.Equal(t, src, p.src)
	assert.Equal(t, dst, p.dst)
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.payload)

	p, ok = parseIPv4(vlanFrame(types.EtherTypeIPv4, packet))
	require.True(t, ok, "one 802.1Q tag must be tolerated")
	assert.Equal(t, []byte{0xDE, 0xAD, 0xBE, 0xEF}, p.payload)
}

func TestParseIPv4Options(t *testing.T) {
	// IHL 6: one option dword between header and payload.
	packet := make([]byte, 24+2)
	packet[0] = 0x46
	packet[9] = types.IPv4ProtoUDP
	packet[24] = 0xCA
	packet[25] = 0xFE

	p, ok := parseIPv4(rawFrame(types.EtherTypeIPv4, packet))
	require.True(t, ok)
	assert.Equal(t, []byte{0xCA, 0xFE}, p.payload)
}

func TestParseIPv4Rejects(t *testing.T) {
	good := ipv4Header([4]byte{1, 2, 3, 4}, [4]byte{5, 6, 7, 8}, types.IPv4ProtoTCP, 1, 0)

	_, ok := parseIPv4(rawFrame(types.EtherTypeARP, good))
	assert.False(t, ok, "wrong EtherType")

	v6 := append([]byte{}, good...)
	v6[0] = 0x60
	_, ok = parseIPv4(rawFrame(types.EtherTypeIPv4, v6))
	assert.False(t, ok, "not version 4")

	tiny := append([]byte{}, good...)
	tiny[0] = 0x44
	_, ok = parseIPv4(rawFrame(types.EtherTypeIPv4, tiny))
	assert.False(t, ok, "IHL below the minimum")

	_, ok = parseIPv4(rawFrame(types.EtherTypeIPv4, good[:12]))
	assert.False(t, ok, "truncated header")
}

func TestParseUDP(t *testing.T) {
	data := udpDatagram([4]byte{1, 1, 1, 1}, [4]byte{2, 2, 2, 2}, 5353, 53, []byte("abcd"), true)

	u, ok := parseUDP(data)
	require.True(t, ok)
	assert.Equal(t, uint16(5353), u.srcPort)
	assert.Equal(t, uint16(53), u.dstPort)
	assert.Equal(t, []byte("abcd"), u.payload)

	// The length field bounds the payload below the buffer size.
	padded := append(append([]byte{}, data...), 0, 0, 0, 0)
	u, ok = parseUDP(padded)
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), u.payload)

	// A length pointing past the buffer is ignored.
	lying := append([]byte{}, data...)
	lying[4], lying[5] = 0xFF, 0xFF
	u, ok = parseUDP(lying)
	require.True(t, ok)
	assert.Equal(t, []byte("abcd"), u.payload)

	_, ok = parseUDP(make([]byte, 7))
	assert.False(t, ok)
}

func TestIPv4Header(t *testing.T) {
	src := [4]byte{192, 168, 0, 1}
	dst := [4]byte{192, 168, 0, 2}
	h := ipv4Header(src, dst, types.IPv4ProtoTCP, 0xBEEF, 100)

	require.Len(t, h, types.IPv4HeaderMin)
	assert.Equal(t, byte(0x45), h[0])
	assert.Equal(t, []byte{0x00, 0x78}, h[2:4], "total length covers header plus payload")
	assert.Equal(t, []byte{0xBE, 0xEF}, h[4:6])
	assert.Equal(t, byte(types.IPv4DefaultTTL), h[8])
	assert.Equal(t, byte(types.IPv4ProtoTCP), h[9])
	assert.Equal(t, src[:], h[12:16])
	assert.Equal(t, dst[:], h[16:20])
	assert.Zero(t, Checksum(h), "stored checksum must make the header sum to zero")
}

func TestUDPDatagram(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 9}

	plain := udpDatagram(src, dst, 68, 67, []byte("xyz"), false)
	assert.Equal(t, []byte{0, 0}, plain[6:8], "unchecksummed datagram carries zero")
	assert.Equal(t, []byte{0x00, 0x0B}, plain[4:6])

	summed := udpDatagram(src, dst, 5000, 53, []byte("xyz"), true)
	assert.NotEqual(t, []byte{0, 0}, summed[6:8])
	assert.Zero(t, TransportChecksum(src, dst, types.IPv4ProtoUDP, summed))
}
