package netstack

import (
	"bytes"
	"encoding/binary"

	"github.com/othello-os/go-othello/internal/types"
)

// dhcpHostname goes out in option 12 of every client message.
const dhcpHostname = "othello"

// dhcpLease is the server configuration carried by an OFFER or ACK.
type dhcpLease struct {
	msgType    uint8
	yiaddr     [4]byte
	subnetMask [4]byte
	router     [4]byte
	dns        [4]byte
	serverID   [4]byte
	leaseTime  uint32
}

// AcquireDHCP runs the DISCOVER/OFFER/REQUEST/ACK exchange and installs
// the resulting binding. Any previous configuration is cleared first, so a
// failed exchange leaves the interface unconfigured. The bound address is
// the OFFER's yiaddr; mask, router, DNS and lease time come from the ACK.
func (s *Stack) AcquireDHCP() error {
	if s.link == nil {
		return ErrNoNIC
	}

	s.config.DHCPBound = false
	s.config.IP = zeroIPv4
	s.config.Mask = zeroIPv4
	s.config.Gateway = zeroIPv4
	s.config.DNS = zeroIPv4
	s.config.ServerID = zeroIPv4
	s.config.LeaseSeconds = 0
	s.arpValid = false

	xid := uint32(s.clock.Cycles()) ^ types.DhcpXidXor

	if err := s.sendDHCP(xid, types.DhcpDiscover, zeroIPv4, zeroIPv4); err != nil {
		return err
	}
	offer, err := s.waitDHCP(xid, types.DhcpOffer)
	if err != nil {
		return err
	}

	if err := s.sendDHCP(xid, types.DhcpRequest, offer.yiaddr, offer.serverID); err != nil {
		return err
	}
	ack, err := s.waitDHCP(xid, types.DhcpAck)
	if err != nil {
		return err
	}
	if ack.msgType == types.DhcpNak {
		return ErrDHCPNak
	}

	s.config.DHCPBound = true
	s.config.IP = offer.yiaddr
	s.config.Mask = ack.subnetMask
	s.config.Gateway = ack.router
	s.config.DNS = ack.dns
	s.config.ServerID = offer.serverID
	s.config.LeaseSeconds = ack.leaseTime
	return nil
}

// sendDHCP broadcasts one client message from 0.0.0.0:68 to
// 255.255.255.255:67 with a zero UDP checksum.
func (s *Stack) sendDHCP(xid uint32, msgType uint8, requestIP, serverID [4]byte) error {
	payload := buildDHCPPayload(s.config.MAC, xid, msgType, requestIP, serverID)
	broadcast := [4]byte{255, 255, 255, 255}

	datagram := udpDatagram(zeroIPv4, broadcast, types.DhcpClientPort, types.DhcpServerPort, payload, false)
	packet := append(ipv4Header(zeroIPv4, broadcast, types.IPv4ProtoUDP, 0, len(datagram)), datagram...)
	if !s.sendFrame(types.EthBroadcast, types.EtherTypeIPv4, packet) {
		return ErrMalformed
	}
	return nil
}

// waitDHCP polls for a server message carrying our transaction id. A NAK is
// returned as a lease so the caller can see it while waiting for an ACK;
// other unexpected types keep the wait going.
func (s *Stack) waitDHCP(xid uint32, wantType uint8) (*dhcpLease, error) {
	for spins := uint32(0); spins < s.budgets.DhcpSpins; spins++ {
		s.pause(spins)
		frame := s.pollFrame()
		if frame == nil {
			continue
		}
		lease, ok := parseDHCPFrame(frame, xid)
		if !ok {
			s.dropFrame()
			continue
		}
		if lease.msgType == wantType || (wantType == types.DhcpAck && lease.msgType == types.DhcpNak) {
			return lease, nil
		}
	}
	return nil, ErrTimeout
}

// parseDHCPFrame peels Ethernet, IPv4 and UDP off a frame and hands the
// rest to the payload parser. Server replies may be broadcast or unicast to
// an address we do not hold yet, so only the ports are checked.
func parseDHCPFrame(frame []byte, xid uint32) (*dhcpLease, bool) {
	ip, ok := parseIPv4(frame)
	if !ok || ip.proto != types.IPv4ProtoUDP {
		return nil, false
	}
	udp, ok := parseUDP(ip.payload)
	if !ok || udp.srcPort != types.DhcpServerPort || udp.dstPort != types.DhcpClientPort {
		return nil, false
	}
	return parseDHCPPayload(udp.payload, xid)
}

func parseDHCPPayload(data []byte, xid uint32) (*dhcpLease, bool) {
	if len(data) < types.DhcpMinPayload {
		return nil, false
	}
	if binary.BigEndian.Uint32(data[4:8]) != xid {
		return nil, false
	}
	if !bytes.Equal(data[types.DhcpCookieStart:types.DhcpMinPayload], types.DhcpMagicCookie[:]) {
		return nil, false
	}

	lease := &dhcpLease{}
	copy(lease.yiaddr[:], data[16:20])

	i := types.DhcpMinPayload
	for i < len(data) {
		opt := data[i]
		i++
		if opt == 0 {
			continue
		}
		if opt == types.DhcpOptEnd {
			break
		}
		if i >= len(data) {
			break
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			break
		}
		value := data[i : i+length]
		switch {
		case opt == types.DhcpOptMsgType && length >= 1:
			lease.msgType = value[0]
		case opt == types.DhcpOptSubnetMask && length == 4:
			copy(lease.subnetMask[:], value)
		case opt == types.DhcpOptRouter && length >= 4:
			copy(lease.router[:], value)
		case opt == types.DhcpOptDNS && length >= 4:
			copy(lease.dns[:], value)
		case opt == types.DhcpOptLeaseTime && length == 4:
			lease.leaseTime = binary.BigEndian.Uint32(value)
		case opt == types.DhcpOptServerID && length == 4:
			copy(lease.serverID[:], value)
		}
		i += length
	}

	if lease.msgType == 0 {
		return nil, false
	}
	return lease, true
}

// buildDHCPPayload assembles a BOOTP request with the fixed option set:
// message type, client id, parameter list and hostname, plus requested
// address and server id on a REQUEST.
func buildDHCPPayload(mac [6]byte, xid uint32, msgType uint8, requestIP, serverID [4]byte) []byte {
	buf := make([]byte, 300)
	buf[0] = types.DhcpOpRequest
	buf[1] = types.DhcpHTypeEth
	buf[2] = types.ArpHwAddrLen
	binary.BigEndian.PutUint32(buf[4:8], xid)
	binary.BigEndian.PutUint16(buf[10:12], types.DhcpFlagBcast)
	copy(buf[28:34], mac[:])
	copy(buf[types.DhcpCookieStart:types.DhcpMinPayload], types.DhcpMagicCookie[:])

	clientID := make([]byte, 7)
	clientID[0] = types.DhcpHTypeEth
	copy(clientID[1:], mac[:])

	i := types.DhcpMinPayload
	i = pushOption(buf, i, types.DhcpOptMsgType, []byte{msgType})
	i = pushOption(buf, i, types.DhcpOptClientID, clientID)
	i = pushOption(buf, i, types.DhcpOptParamList, []byte{
		types.DhcpOptSubnetMask,
		types.DhcpOptRouter,
		types.DhcpOptDNS,
		types.DhcpOptLeaseTime,
		types.DhcpOptServerID,
	})
	i = pushOption(buf, i, types.DhcpOptHostname, []byte(dhcpHostname))
	if msgType == types.DhcpRequest {
		i = pushOption(buf, i, types.DhcpOptRequestIP, requestIP[:])
		i = pushOption(buf, i, types.DhcpOptServerID, serverID[:])
	}
	if i < len(buf) {
		buf[i] = types.DhcpOptEnd
		i++
	}
	return buf[:i]
}

func pushOption(buf []byte, i int, code uint8, data []byte) int {
	if i+2+len(data) > len(buf) {
		return i
	}
	buf[i] = code
	buf[i+1] = uint8(len(data))
	copy(buf[i+2:], data)
	return i + 2 + len(data)
}
