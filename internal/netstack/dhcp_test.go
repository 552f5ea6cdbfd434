package netstack

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/types"
)

var testMAC = [6]byte{0x52, 0x54, 0x00, 0xAA, 0xBB, 0xCC}

// findOption walks the option area and returns the first value for code.
func findOption(payload []byte, code uint8) ([]byte, bool) {
	i := types.DhcpMinPayload
	for i < len(payload) {
		opt := payload[i]
		i++
		if opt == 0 {
			continue
		}
		if opt == types.DhcpOptEnd || i >= len(payload) {
			break
		}
		length := int(payload[i])
		i++
		if i+length > len(payload) {
			break
		}
		if opt == code {
			return payload[i : i+length], true
		}
		i += length
	}
	return nil, false
}

func TestBuildDHCPPayloadDiscover(t *testing.T) {
	p := buildDHCPPayload(testMAC, 0xDEADBEEF, types.DhcpDiscover, zeroIPv4, zeroIPv4)

	require.GreaterOrEqual(t, len(p), types.DhcpMinPayload)
	assert.Equal(t, byte(types.DhcpOpRequest), p[0])
	assert.Equal(t, byte(types.DhcpHTypeEth), p[1])
	assert.Equal(t, byte(6), p[2])
	assert.Equal(t, uint32(0xDEADBEEF), binary.BigEndian.Uint32(p[4:8]))
	assert.Equal(t, uint16(types.DhcpFlagBcast), binary.BigEndian.Uint16(p[10:12]))
	assert.Equal(t, testMAC[:], p[28:34])
	assert.Equal(t, types.DhcpMagicCookie[:], p[types.DhcpCookieStart:types.DhcpMinPayload])

	msgType, ok := findOption(p, types.DhcpOptMsgType)
	require.True(t, ok)
	assert.Equal(t, []byte{types.DhcpDiscover}, msgType)

	clientID, ok := findOption(p, types.DhcpOptClientID)
	require.True(t, ok)
	assert.Equal(t, append([]byte{types.DhcpHTypeEth}, testMAC[:]...), clientID)

	params, ok := findOption(p, types.DhcpOptParamList)
	require.True(t, ok)
	assert.Equal(t, []byte{
		types.DhcpOptSubnetMask,
		types.DhcpOptRouter,
		types.DhcpOptDNS,
		types.DhcpOptLeaseTime,
		types.DhcpOptServerID,
	}, params)

	hostname, ok := findOption(p, types.DhcpOptHostname)
	require.True(t, ok)
	assert.Equal(t, []byte(dhcpHostname), hostname)

	_, ok = findOption(p, types.DhcpOptRequestIP)
	assert.False(t, ok, "DISCOVER carries no requested address")
	_, ok = findOption(p, types.DhcpOptServerID)
	assert.False(t, ok, "DISCOVER carries no server id")
}

func TestBuildDHCPPayloadRequest(t *testing.T) {
	offered := [4]byte{192, 168, 77, 2}
	server := [4]byte{192, 168, 77, 1}
	p := buildDHCPPayload(testMAC, 1, types.DhcpRequest, offered, server)

	requested, ok := findOption(p, types.DhcpOptRequestIP)
	require.True(t, ok)
	assert.Equal(t, offered[:], requested)

	serverID, ok := findOption(p, types.DhcpOptServerID)
	require.True(t, ok)
	assert.Equal(t, server[:], serverID)
}

// ackPayload builds a server-side ACK the way a BOOTP reply looks on the
// wire: fixed fields, cookie, then options with a pad byte thrown in.
func ackPayload(xid uint32, msgType byte) []byte {
	p := make([]byte, 300)
	p[0] = types.DhcpOpReply
	binary.BigEndian.PutUint32(p[4:8], xid)
	copy(p[16:20], []byte{192, 168, 77, 2})
	copy(p[types.DhcpCookieStart:types.DhcpMinPayload], types.DhcpMagicCookie[:])

	i := types.DhcpMinPayload
	p[i], p[i+1], p[i+2] = types.DhcpOptMsgType, 1, msgType
	i += 3
	p[i] = 0 // pad
	i++
	p[i], p[i+1] = types.DhcpOptSubnetMask, 4
	copy(p[i+2:i+6], []byte{255, 255, 255, 0})
	i += 6
	p[i], p[i+1] = types.DhcpOptRouter, 4
	copy(p[i+2:i+6], []byte{192, 168, 77, 1})
	i += 6
	p[i], p[i+1] = types.DhcpOptDNS, 4
	copy(p[i+2:i+6], []byte{192, 168, 77, 53})
	i += 6
	p[i], p[i+1] = types.DhcpOptLeaseTime, 4
	binary.BigEndian.PutUint32(p[i+2:i+6], 3600)
	i += 6
	p[i], p[i+1] = types.DhcpOptServerID, 4
	copy(p[i+2:i+6], []byte{192, 168, 77, 1})
	i += 6
	p[i] = types.DhcpOptEnd
	return p
}

func TestParseDHCPPayload(t *testing.T) {
	lease, ok := parseDHCPPayload(ackPayload(0xABCD0001, types.DhcpAck), 0xABCD0001)
	require.True(t, ok)

	assert.Equal(t, uint8(types.DhcpAck), lease.msgType)
	assert.Equal(t, [4]byte{192, 168, 77, 2}, lease.yiaddr)
	assert.Equal(t, [4]byte{255, 255, 255, 0}, lease.subnetMask)
	assert.Equal(t, [4]byte{192, 168, 77, 1}, lease.router)
	assert.Equal(t, [4]byte{192, 168, 77, 53}, lease.dns)
	assert.Equal(t, [4]byte{192, 168, 77, 1}, lease.serverID)
	assert.Equal(t, uint32(3600), lease.leaseTime)
}

func TestParseDHCPPayloadRejects(t *testing.T) {
	good := ackPayload(7, types.DhcpAck)

	_, ok := parseDHCPPayload(good, 8)
	assert.False(t, ok, "transaction id mismatch")

	_, ok = parseDHCPPayload(good[:types.DhcpMinPayload-1], 7)
	assert.False(t, ok, "below the minimum BOOTP size")

	noCookie := append([]byte{}, good...)
	noCookie[types.DhcpCookieStart] = 0
	_, ok = parseDHCPPayload(noCookie, 7)
	assert.False(t, ok)

	// Without a message type option the reply means nothing.
	bare := make([]byte, types.DhcpMinPayload)
	binary.BigEndian.PutUint32(bare[4:8], 7)
	copy(bare[types.DhcpCookieStart:], types.DhcpMagicCookie[:])
	_, ok = parseDHCPPayload(bare, 7)
	assert.False(t, ok)
}

func TestParseDHCPPayloadStopsAtEnd(t *testing.T) {
	p := ackPayload(9, types.DhcpOffer)

	// Plant a bogus router option after the END marker; it must not count.
	end := types.DhcpMinPayload
	for p[end] != types.DhcpOptEnd {
		end++
	}
	p[end+1], p[end+2] = types.DhcpOptRouter, 4
	copy(p[end+3:end+7], []byte{9, 9, 9, 9})

	lease, ok := parseDHCPPayload(p, 9)
	require.True(t, ok)
	assert.Equal(t, [4]byte{192, 168, 77, 1}, lease.router)
}
