package devsim

import (
	"bytes"
	"encoding/binary"
	"strings"
	"sync"

	"github.com/othello-os/go-othello/internal/types"
)

// NetPeer scripts the far side of a simulated Ethernet link. It receives
// every frame the station transmits through the NIC model's TX sink and
// injects replies straight into the RX ring: ARP answers for owned
// addresses, a one-client DHCP server, an A-record DNS server, ICMP echo,
// and scriptable TCP listeners good enough for a full HTTP exchange.
//
// Replies queue when the RX ring has no room and flush again on the next
// frame from the station, so bulk transfers pace themselves off the
// station's own acknowledgments. Every station frame has its IP, ICMP, UDP
// and TCP checksums verified; failures land in a counter instead of a
// reply.
type NetPeer struct {
	mu  sync.Mutex
	nic *Rtl8139Device
	mac [6]byte

	owned map[[4]byte]bool

	dhcp     *DhcpServer
	muteICMP bool

	zone      map[string][4]byte
	dnsSilent bool
	dnsEmpty  bool

	listeners map[uint16]*TcpListener
	conns     map[uint32]*peerTCPConn
	nextISS   uint32

	ipID         uint16
	framesSeen   int
	badChecksums int
	egress       [][]byte
}

// DhcpServer configures the peer's DHCP responder. Replies are broadcast,
// as the station requests with the broadcast flag.
type DhcpServer struct {
	Offer    [4]byte
	Mask     [4]byte
	Router   [4]byte
	DNS      [4]byte
	ServerID [4]byte
	Lease    uint32

	// Refuse answers the REQUEST with a NAK instead of an ACK.
	Refuse bool
}

// TcpListener scripts one listening port.
type TcpListener struct {
	// RefuseWithRST rejects every SYN with a reset.
	RefuseWithRST bool

	// DropSYNs swallows that many SYNs before answering, for retry drills.
	DropSYNs int

	// SynAckPayload rides data on the SYN/ACK itself.
	SynAckPayload []byte

	// Mute accepts and acknowledges data but never responds.
	Mute bool

	// ResetOnData answers the first data with a reset.
	ResetOnData bool

	// FinWithData piggybacks the FIN on the last response segment instead
	// of sending it separately.
	FinWithData bool

	// Respond is called with the accumulated request after each advance;
	// returning done=false waits for more bytes.
	Respond func(request []byte) (response []byte, done bool)
}

type peerTCPConn struct {
	script     *TcpListener
	ip         [4]byte // owned address the station connected to
	stationIP  [4]byte
	stationMAC [6]byte
	localPort  uint16
	remotePort uint16

	seq uint32 // next sequence the peer sends
	ack uint32 // next sequence expected from the station

	request   []byte
	responded bool
}

// NewNetPeer attaches a peer to the NIC model's TX sink and returns it.
func NewNetPeer(nic *Rtl8139Device, mac [6]byte) *NetPeer {
	p := &NetPeer{
		nic:       nic,
		mac:       mac,
		owned:     make(map[[4]byte]bool),
		zone:      make(map[string][4]byte),
		listeners: make(map[uint16]*TcpListener),
		conns:     make(map[uint32]*peerTCPConn),
		nextISS:   0x40000000,
	}
	nic.SetTxSink(p.handleFrame)
	return p
}

// Own adds an IPv4 address the peer answers ARP, ICMP, DNS and TCP for.
func (p *NetPeer) Own(ip [4]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.owned[ip] = true
}

// ServeDHCP enables the DHCP responder. The server, router and DNS
// addresses become owned so the station can resolve and reach them.
func (p *NetPeer) ServeDHCP(cfg DhcpServer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dhcp = &cfg
	for _, ip := range [][4]byte{cfg.ServerID, cfg.Router, cfg.DNS} {
		if ip != ([4]byte{}) {
			p.owned[ip] = true
		}
	}
}

// ServeDNS adds an A record to the peer's zone.
func (p *NetPeer) ServeDNS(name string, ip [4]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.zone[strings.ToLower(name)] = ip
}

// Listen scripts a TCP port.
func (p *NetPeer) Listen(port uint16, script TcpListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[port] = &script
}

// SetMuteICMP drops echo requests when on.
func (p *NetPeer) SetMuteICMP(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.muteICMP = on
}

// SetDNSSilent drops DNS queries when on.
func (p *NetPeer) SetDNSSilent(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dnsSilent = on
}

// SetDNSEmpty answers DNS queries with a clean rcode and zero answers.
func (p *NetPeer) SetDNSEmpty(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dnsEmpty = on
}

// FramesSeen reports how many frames the station has transmitted.
func (p *NetPeer) FramesSeen() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.framesSeen
}

// BadChecksums reports how many station frames failed checksum checks.
func (p *NetPeer) BadChecksums() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.badChecksums
}

// PendingEgress reports queued reply frames the ring had no room for.
func (p *NetPeer) PendingEgress() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.egress)
}

func (p *NetPeer) handleFrame(frame []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.framesSeen++
	p.dispatch(frame)
	p.flushLocked()
}

func (p *NetPeer) dispatch(frame []byte) {
	if len(frame) < types.EthHeaderSize {
		return
	}
	var dstMAC, srcMAC [6]byte
	copy(dstMAC[:], frame[0:6])
	copy(srcMAC[:], frame[6:12])
	if dstMAC != types.EthBroadcast && dstMAC != p.mac {
		return
	}

	switch binary.BigEndian.Uint16(frame[12:14]) {
	case types.EtherTypeARP:
		p.handleARP(frame)
	case types.EtherTypeIPv4:
		p.handleIPv4(srcMAC, frame)
	}
}

func (p *NetPeer) handleARP(frame []byte) {
	if len(frame) < types.EthHeaderSize+types.ArpPacketSize {
		return
	}
	a := frame[types.EthHeaderSize:]
	if binary.BigEndian.Uint16(a[6:8]) != types.ArpOpRequest {
		return
	}
	var tpa [4]byte
	copy(tpa[:], a[24:28])
	if !p.owned[tpa] {
		return
	}
	var requesterMAC [6]byte
	var requesterIP [4]byte
	copy(requesterMAC[:], a[8:14])
	copy(requesterIP[:], a[14:18])

	reply := make([]byte, types.ArpPacketSize)
	binary.BigEndian.PutUint16(reply[0:2], types.ArpHTypeEth)
	binary.BigEndian.PutUint16(reply[2:4], types.EtherTypeIPv4)
	reply[4] = types.ArpHwAddrLen
	reply[5] = types.ArpProtAddrLen
	binary.BigEndian.PutUint16(reply[6:8], types.ArpOpReply)
	copy(reply[8:14], p.mac[:])
	copy(reply[14:18], tpa[:])
	copy(reply[18:24], requesterMAC[:])
	copy(reply[24:28], requesterIP[:])
	p.queueFrame(requesterMAC, types.EtherTypeARP, reply)
}

func (p *NetPeer) handleIPv4(srcMAC [6]byte, frame []byte) {
	if len(frame) < types.EthHeaderSize+types.IPv4HeaderMin {
		return
	}
	pkt := frame[types.EthHeaderSize:]
	if pkt[0]>>4 != 4 {
		return
	}
	ihl := int(pkt[0]&0x0F) * 4
	if ihl < types.IPv4HeaderMin || len(pkt) < ihl {
		return
	}
	total := int(binary.BigEndian.Uint16(pkt[2:4]))
	if total < ihl || total > len(pkt) {
		return
	}
	if peerChecksum(pkt[:ihl]) != 0 {
		p.badChecksums++
		return
	}

	var src, dst [4]byte
	copy(src[:], pkt[12:16])
	copy(dst[:], pkt[16:20])
	proto := pkt[9]
	payload := pkt[ihl:total]

	switch proto {
	case types.IPv4ProtoUDP:
		p.handleUDP(srcMAC, src, dst, payload)
	case types.IPv4ProtoICMP:
		if p.owned[dst] {
			p.handleICMP(srcMAC, src, dst, payload)
		}
	case types.IPv4ProtoTCP:
		if p.owned[dst] {
			p.handleTCP(srcMAC, src, dst, payload)
		}
	}
}

func (p *NetPeer) handleUDP(srcMAC [6]byte, src, dst [4]byte, payload []byte) {
	if len(payload) < types.UdpHeaderSize {
		return
	}
	srcPort := binary.BigEndian.Uint16(payload[0:2])
	dstPort := binary.BigEndian.Uint16(payload[2:4])
	udpLen := int(binary.BigEndian.Uint16(payload[4:6]))
	if udpLen < types.UdpHeaderSize || udpLen > len(payload) {
		return
	}
	if binary.BigEndian.Uint16(payload[6:8]) != 0 {
		if peerTransportChecksum(src, dst, types.IPv4ProtoUDP, payload[:udpLen]) != 0 {
			p.badChecksums++
			return
		}
	}
	data := payload[types.UdpHeaderSize:udpLen]

	switch {
	case dstPort == types.DhcpServerPort:
		p.handleDHCP(srcPort, data)
	case dstPort == types.DnsServerPort && p.owned[dst]:
		p.handleDNS(srcMAC, src, dst, srcPort, data)
	}
}

func (p *NetPeer) handleICMP(srcMAC [6]byte, src, dst [4]byte, body []byte) {
	if p.muteICMP || len(body) < 8 {
		return
	}
	if peerChecksum(body) != 0 {
		p.badChecksums++
		return
	}
	if body[0] != types.IcmpEchoRequest || body[1] != 0 {
		return
	}

	reply := make([]byte, len(body))
	copy(reply, body)
	reply[0] = types.IcmpEchoReply
	reply[2] = 0
	reply[3] = 0
	binary.BigEndian.PutUint16(reply[2:4], peerChecksum(reply))

	packet := append(p.ipv4Header(dst, src, types.IPv4ProtoICMP, len(reply)), reply...)
	p.queueFrame(srcMAC, types.EtherTypeIPv4, packet)
}

// handleDHCP answers DISCOVER with an OFFER and REQUEST with an ACK or a
// scripted NAK. Ownership is not checked: the station addresses the
// broadcast address while unconfigured.
func (p *NetPeer) handleDHCP(srcPort uint16, data []byte) {
	if p.dhcp == nil || srcPort != types.DhcpClientPort {
		return
	}
	if len(data) < types.DhcpMinPayload || data[0] != types.DhcpOpRequest {
		return
	}
	if !bytes.Equal(data[types.DhcpCookieStart:types.DhcpMinPayload], types.DhcpMagicCookie[:]) {
		return
	}
	xid := binary.BigEndian.Uint32(data[4:8])
	var chaddr [6]byte
	copy(chaddr[:], data[28:34])

	msgType := byte(0)
	for i := types.DhcpMinPayload; i < len(data); {
		opt := data[i]
		i++
		if opt == 0 {
			continue
		}
		if opt == types.DhcpOptEnd || i >= len(data) {
			break
		}
		length := int(data[i])
		i++
		if i+length > len(data) {
			break
		}
		if opt == types.DhcpOptMsgType && length >= 1 {
			msgType = data[i]
		}
		i += length
	}

	switch msgType {
	case types.DhcpDiscover:
		p.queueDHCPReply(xid, chaddr, types.DhcpOffer)
	case types.DhcpRequest:
		if p.dhcp.Refuse {
			p.queueDHCPReply(xid, chaddr, types.DhcpNak)
		} else {
			p.queueDHCPReply(xid, chaddr, types.DhcpAck)
		}
	}
}

func (p *NetPeer) queueDHCPReply(xid uint32, chaddr [6]byte, msgType byte) {
	cfg := p.dhcp
	d := make([]byte, 300)
	d[0] = types.DhcpOpReply
	d[1] = types.DhcpHTypeEth
	d[2] = types.ArpHwAddrLen
	binary.BigEndian.PutUint32(d[4:8], xid)
	binary.BigEndian.PutUint16(d[10:12], types.DhcpFlagBcast)
	if msgType != types.DhcpNak {
		copy(d[16:20], cfg.Offer[:])
		copy(d[20:24], cfg.ServerID[:])
	}
	copy(d[28:34], chaddr[:])
	copy(d[types.DhcpCookieStart:types.DhcpMinPayload], types.DhcpMagicCookie[:])

	i := types.DhcpMinPayload
	d[i], d[i+1], d[i+2] = types.DhcpOptMsgType, 1, msgType
	i += 3
	d[i], d[i+1] = types.DhcpOptServerID, 4
	copy(d[i+2:i+6], cfg.ServerID[:])
	i += 6
	if msgType != types.DhcpNak {
		d[i], d[i+1] = types.DhcpOptLeaseTime, 4
		binary.BigEndian.PutUint32(d[i+2:i+6], cfg.Lease)
		i += 6
		d[i], d[i+1] = types.DhcpOptSubnetMask, 4
		copy(d[i+2:i+6], cfg.Mask[:])
		i += 6
		d[i], d[i+1] = types.DhcpOptRouter, 4
		copy(d[i+2:i+6], cfg.Router[:])
		i += 6
		d[i], d[i+1] = types.DhcpOptDNS, 4
		copy(d[i+2:i+6], cfg.DNS[:])
		i += 6
	}
	d[i] = types.DhcpOptEnd

	broadcast := [4]byte{255, 255, 255, 255}
	datagram := peerUDP(cfg.ServerID, broadcast, types.DhcpServerPort, types.DhcpClientPort, d)
	packet := append(p.ipv4Header(cfg.ServerID, broadcast, types.IPv4ProtoUDP, len(datagram)), datagram...)
	p.queueFrame(types.EthBroadcast, types.EtherTypeIPv4, packet)
}

// handleDNS answers A queries from the zone, with the answer name
// compressed to a pointer at the question. Unknown names get NXDOMAIN.
func (p *NetPeer) handleDNS(srcMAC [6]byte, src, dst [4]byte, srcPort uint16, query []byte) {
	if p.dnsSilent {
		return
	}
	if len(query) < types.DnsHeaderSize || binary.BigEndian.Uint16(query[4:6]) == 0 {
		return
	}
	name, qEnd, ok := dnsQuestionName(query, types.DnsHeaderSize)
	if !ok || qEnd+4 > len(query) {
		return
	}
	qType := binary.BigEndian.Uint16(query[qEnd : qEnd+2])
	qClass := binary.BigEndian.Uint16(query[qEnd+2 : qEnd+4])
	question := query[types.DnsHeaderSize : qEnd+4]

	ip, found := p.zone[name]
	answers := uint16(0)
	flags := uint16(0x8180) // QR, RD, RA
	switch {
	case p.dnsEmpty:
	case !found:
		flags = 0x8183 // NXDOMAIN
	case qType == types.DnsTypeA && qClass == types.DnsClassIN:
		answers = 1
	}

	resp := make([]byte, 0, types.DnsHeaderSize+len(question)+16)
	resp = append(resp, query[0], query[1])
	resp = binary.BigEndian.AppendUint16(resp, flags)
	resp = binary.BigEndian.AppendUint16(resp, 1)
	resp = binary.BigEndian.AppendUint16(resp, answers)
	resp = binary.BigEndian.AppendUint16(resp, 0)
	resp = binary.BigEndian.AppendUint16(resp, 0)
	resp = append(resp, question...)
	if answers == 1 {
		resp = append(resp, 0xC0, 0x0C) // pointer to the question name
		resp = binary.BigEndian.AppendUint16(resp, types.DnsTypeA)
		resp = binary.BigEndian.AppendUint16(resp, types.DnsClassIN)
		resp = binary.BigEndian.AppendUint32(resp, 60)
		resp = binary.BigEndian.AppendUint16(resp, 4)
		resp = append(resp, ip[:]...)
	}

	datagram := peerUDP(dst, src, types.DnsServerPort, srcPort, resp)
	packet := append(p.ipv4Header(dst, src, types.IPv4ProtoUDP, len(datagram)), datagram...)
	p.queueFrame(srcMAC, types.EtherTypeIPv4, packet)
}

func dnsQuestionName(query []byte, off int) (string, int, bool) {
	var sb strings.Builder
	for {
		if off >= len(query) {
			return "", 0, false
		}
		l := int(query[off])
		if l == 0 {
			return sb.String(), off + 1, true
		}
		if l&types.DnsPointerMask != 0 {
			return "", 0, false
		}
		off++
		if off+l > len(query) {
			return "", 0, false
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.Write(bytes.ToLower(query[off : off+l]))
		off += l
	}
}

func connKey(stationPort, peerPort uint16) uint32 {
	return uint32(stationPort)<<16 | uint32(peerPort)
}

func (p *NetPeer) handleTCP(srcMAC [6]byte, src, dst [4]byte, seg []byte) {
	if len(seg) < types.TcpHeaderMin {
		return
	}
	if peerTransportChecksum(src, dst, types.IPv4ProtoTCP, seg) != 0 {
		p.badChecksums++
		return
	}
	srcPort := binary.BigEndian.Uint16(seg[0:2])
	dstPort := binary.BigEndian.Uint16(seg[2:4])
	seq := binary.BigEndian.Uint32(seg[4:8])
	flags := seg[13]
	dataOff := int(seg[12]>>4) * 4
	if dataOff < types.TcpHeaderMin || dataOff > len(seg) {
		return
	}
	payload := seg[dataOff:]

	key := connKey(srcPort, dstPort)
	conn := p.conns[key]

	if flags&types.TcpFlagRst != 0 {
		delete(p.conns, key)
		return
	}

	if flags&types.TcpFlagSyn != 0 {
		script := p.listeners[dstPort]
		if script == nil || script.RefuseWithRST {
			p.queueReset(dst, src, srcMAC, dstPort, srcPort, seq+1)
			delete(p.conns, key)
			return
		}
		if script.DropSYNs > 0 {
			script.DropSYNs--
			return
		}
		p.nextISS += 0x10000
		conn = &peerTCPConn{
			script:     script,
			ip:         dst,
			stationIP:  src,
			stationMAC: srcMAC,
			localPort:  dstPort,
			remotePort: srcPort,
			seq:        p.nextISS,
			ack:        seq + 1,
		}
		p.conns[key] = conn
		p.queueSegment(conn, types.TcpFlagSyn|types.TcpFlagAck, script.SynAckPayload)
		conn.seq += uint32(1 + len(script.SynAckPayload))
		return
	}

	if conn == nil {
		return
	}

	progressed := false
	if seq == conn.ack {
		if len(payload) > 0 {
			conn.request = append(conn.request, payload...)
			conn.ack += uint32(len(payload))
			progressed = true
		}
		if flags&types.TcpFlagFin != 0 {
			conn.ack++
			progressed = true
		}
	}
	if !progressed {
		return
	}

	if conn.script.ResetOnData && len(conn.request) > 0 {
		p.queueReset(conn.ip, conn.stationIP, conn.stationMAC, conn.localPort, conn.remotePort, conn.ack)
		delete(p.conns, key)
		return
	}

	p.queueSegment(conn, types.TcpFlagAck, nil)
	p.maybeRespond(conn)
}

func (p *NetPeer) maybeRespond(conn *peerTCPConn) {
	script := conn.script
	if conn.responded || script.Mute || script.Respond == nil || len(conn.request) == 0 {
		return
	}
	response, done := script.Respond(conn.request)
	if !done {
		return
	}
	conn.responded = true

	for off := 0; off < len(response); {
		take := min(len(response)-off, types.TcpMSS)
		last := off+take == len(response)
		flags := uint8(types.TcpFlagPsh | types.TcpFlagAck)
		if last && script.FinWithData {
			flags |= types.TcpFlagFin
		}
		p.queueSegment(conn, flags, response[off:off+take])
		conn.seq += uint32(take)
		if last && script.FinWithData {
			conn.seq++
		}
		off += take
	}
	if !script.FinWithData || len(response) == 0 {
		p.queueSegment(conn, types.TcpFlagFin|types.TcpFlagAck, nil)
		conn.seq++
	}
}

func (p *NetPeer) queueSegment(conn *peerTCPConn, flags uint8, payload []byte) {
	seg := make([]byte, types.TcpHeaderMin+len(payload))
	binary.BigEndian.PutUint16(seg[0:2], conn.localPort)
	binary.BigEndian.PutUint16(seg[2:4], conn.remotePort)
	binary.BigEndian.PutUint32(seg[4:8], conn.seq)
	binary.BigEndian.PutUint32(seg[8:12], conn.ack)
	seg[12] = (types.TcpHeaderMin / 4) << 4
	seg[13] = flags
	binary.BigEndian.PutUint16(seg[14:16], 8192)
	copy(seg[types.TcpHeaderMin:], payload)
	binary.BigEndian.PutUint16(seg[16:18], peerTransportChecksum(conn.ip, conn.stationIP, types.IPv4ProtoTCP, seg))

	packet := append(p.ipv4Header(conn.ip, conn.stationIP, types.IPv4ProtoTCP, len(seg)), seg...)
	p.queueFrame(conn.stationMAC, types.EtherTypeIPv4, packet)
}

func (p *NetPeer) queueReset(from, to [4]byte, dstMAC [6]byte, srcPort, dstPort uint16, ack uint32) {
	seg := make([]byte, types.TcpHeaderMin)
	binary.BigEndian.PutUint16(seg[0:2], srcPort)
	binary.BigEndian.PutUint16(seg[2:4], dstPort)
	binary.BigEndian.PutUint32(seg[8:12], ack)
	seg[12] = (types.TcpHeaderMin / 4) << 4
	seg[13] = types.TcpFlagRst | types.TcpFlagAck
	binary.BigEndian.PutUint16(seg[16:18], peerTransportChecksum(from, to, types.IPv4ProtoTCP, seg))

	packet := append(p.ipv4Header(from, to, types.IPv4ProtoTCP, len(seg)), seg...)
	p.queueFrame(dstMAC, types.EtherTypeIPv4, packet)
}

// queueFrame wraps payload in an Ethernet header from the peer's MAC, pads
// to the wire minimum, and queues it for injection.
func (p *NetPeer) queueFrame(dst [6]byte, etherType uint16, payload []byte) {
	frame := make([]byte, 0, types.EthHeaderSize+len(payload))
	frame = append(frame, dst[:]...)
	frame = append(frame, p.mac[:]...)
	frame = binary.BigEndian.AppendUint16(frame, etherType)
	frame = append(frame, payload...)
	for len(frame) < types.NicMinTxFrame {
		frame = append(frame, 0)
	}
	p.egress = append(p.egress, frame)
}

// flushLocked injects queued frames until the ring refuses one. Refused
// frames stay at the head and are retried on the next station frame.
func (p *NetPeer) flushLocked() {
	for len(p.egress) > 0 {
		if !p.nic.InjectFrame(p.egress[0]) {
			return
		}
		p.egress = p.egress[1:]
	}
}

func (p *NetPeer) ipv4Header(src, dst [4]byte, proto uint8, payloadLen int) []byte {
	p.ipID++
	h := make([]byte, types.IPv4HeaderMin)
	h[0] = 0x45
	binary.BigEndian.PutUint16(h[2:4], uint16(types.IPv4HeaderMin+payloadLen))
	binary.BigEndian.PutUint16(h[4:6], p.ipID)
	h[8] = types.IPv4DefaultTTL
	h[9] = proto
	copy(h[12:16], src[:])
	copy(h[16:20], dst[:])
	binary.BigEndian.PutUint16(h[10:12], peerChecksum(h))
	return h
}

func peerUDP(src, dst [4]byte, srcPort, dstPort uint16, payload []byte) []byte {
	d := make([]byte, types.UdpHeaderSize+len(payload))
	binary.BigEndian.PutUint16(d[0:2], srcPort)
	binary.BigEndian.PutUint16(d[2:4], dstPort)
	binary.BigEndian.PutUint16(d[4:6], uint16(len(d)))
	copy(d[types.UdpHeaderSize:], payload)
	binary.BigEndian.PutUint16(d[6:8], peerTransportChecksum(src, dst, types.IPv4ProtoUDP, d))
	return d
}

// peerChecksum is the ones-complement internet checksum. Over data with a
// correct embedded checksum it comes out zero, which is how verification
// works.
func peerChecksum(data []byte) uint16 {
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

func peerTransportChecksum(src, dst [4]byte, proto uint8, segment []byte) uint16 {
	pseudo := make([]byte, 12, 12+len(segment)+1)
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = proto
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	pseudo = append(pseudo, segment...)
	return peerChecksum(pseudo)
}
