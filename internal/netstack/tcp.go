package netstack

import (
	"encoding/binary"

	"github.com/othello-os/go-othello/internal/types"
)

// tcpIPIDXor whitens the cycle counter into the IPv4 identification field.
const tcpIPIDXor = 0x1234

// tcpSegment is the parsed view of a segment addressed to a connection.
type tcpSegment struct {
	flags   uint8
	seq     uint32
	ack     uint32
	payload []byte
}

// Stream is an active-open TCP connection driven entirely by polling. One
// goroutine owns it; there is no receive buffer beyond rx and no
// retransmission, so peers on the simulated link must not lose segments.
type Stream struct {
	stack      *Stack
	remoteIP   [4]byte
	remotePort uint16
	localPort  uint16

	seq uint32 // next sequence number we send
	ack uint32 // next sequence number expected from the remote

	rx      []byte
	finSeen bool
	rstSeen bool
}

// Connect opens a connection to remote:port. The SYN is retried a fixed
// number of times, each attempt polling for up to timeoutSpins iterations.
// Data riding the SYN/ACK is kept and acknowledged immediately.
func (s *Stack) Connect(remote [4]byte, port uint16, timeoutSpins uint32) (*Stream, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	nextHopMAC, err := s.ResolveMAC(s.nextHop(remote), s.budgets.ArpSpins)
	if err != nil {
		return nil, err
	}

	cycles := s.clock.Cycles()
	localPort := uint16(types.TcpEphemeralBase + cycles%types.TcpEphemeralSpan)
	iss := uint32(cycles) ^ types.TcpIssXor

	// MSS option: kind 2, length 4.
	options := []byte{2, 4, byte(types.TcpMSS >> 8), byte(types.TcpMSS & 0xFF)}

	conn := &Stream{stack: s, remoteIP: remote, remotePort: port, localPort: localPort}

	for attempt := 0; attempt < types.TcpConnectRetries; attempt++ {
		if err := conn.sendSegment(nextHopMAC, iss, 0, types.TcpFlagSyn, options, nil); err != nil {
			return nil, err
		}

		for spins := uint32(0); spins < timeoutSpins; spins++ {
			s.pause(spins)
			seg, err := conn.pollSegment()
			if err != nil {
				return nil, err
			}
			if seg == nil {
				continue
			}
			if seg.flags&types.TcpFlagRst != 0 {
				return nil, ErrReset
			}
			if seg.flags&(types.TcpFlagSyn|types.TcpFlagAck) != types.TcpFlagSyn|types.TcpFlagAck {
				continue
			}
			if seg.ack != iss+1 {
				continue
			}

			conn.seq = iss + 1
			conn.ack = seg.seq + 1
			if err := conn.sendSegment(nextHopMAC, conn.seq, conn.ack, types.TcpFlagAck, nil, nil); err != nil {
				return nil, err
			}
			if len(seg.payload) > 0 {
				conn.rx = append(conn.rx, seg.payload...)
				conn.ack += uint32(len(seg.payload))
				conn.sendAck()
			}
			return conn, nil
		}
	}
	return nil, ErrTimeout
}

// WriteAll transmits data as PSH|ACK segments of at most one MSS each,
// servicing the link once between chunks so reverse traffic is not starved.
func (c *Stream) WriteAll(data []byte) error {
	nextHopMAC, err := c.route()
	if err != nil {
		return err
	}

	for off := 0; off < len(data); {
		take := min(len(data)-off, types.TcpMSS)
		chunk := data[off : off+take]

		if err := c.sendSegment(nextHopMAC, c.seq, c.ack, types.TcpFlagPsh|types.TcpFlagAck, nil, chunk); err != nil {
			return err
		}
		c.seq += uint32(take)
		off += take

		c.pollOnce()
	}
	return nil
}

// ReadToEnd polls the connection until the remote finishes, maxBytes have
// accumulated, or the link stays idle for too many rounds of timeoutSpins.
// A reset surfaces as an error even after data arrived; a remote that never
// said anything at all is a timeout.
func (c *Stream) ReadToEnd(maxBytes int, timeoutSpins uint32) ([]byte, error) {
	idle := 0
	gotAny := len(c.rx) > 0

	for !c.finSeen && len(c.rx) < maxBytes {
		progressed := false
		for spins := uint32(0); spins < timeoutSpins; spins++ {
			c.stack.pause(spins)
			if c.pollOnce() {
				progressed = true
				gotAny = true
				break
			}
		}
		if progressed {
			idle = 0
			continue
		}
		idle++
		if idle >= types.TcpIdleLimit {
			break
		}
	}

	if c.rstSeen {
		return nil, ErrReset
	}
	if !gotAny {
		return nil, ErrTimeout
	}

	out := c.rx
	c.rx = nil
	return out, nil
}

// Close sends FIN|ACK and advances our sequence past it. The remote's FIN
// is the read path's business; no time-wait state is kept.
func (c *Stream) Close() error {
	nextHopMAC, err := c.route()
	if err != nil {
		return err
	}
	if err := c.sendSegment(nextHopMAC, c.seq, c.ack, types.TcpFlagFin|types.TcpFlagAck, nil, nil); err != nil {
		return err
	}
	c.seq++
	return nil
}

// Buffered reports how many received bytes are waiting to be taken.
func (c *Stream) Buffered() int {
	return len(c.rx)
}

// Finished reports whether the remote has closed its side.
func (c *Stream) Finished() bool {
	return c.finSeen
}

// route resolves the next hop for the connection's remote address. The ARP
// cache makes this cheap on every call after the first.
func (c *Stream) route() ([6]byte, error) {
	if err := c.stack.ready(); err != nil {
		return [6]byte{}, err
	}
	return c.stack.ResolveMAC(c.stack.nextHop(c.remoteIP), c.stack.budgets.ArpSpins)
}

func (c *Stream) sendAck() {
	nextHopMAC, err := c.route()
	if err != nil {
		return
	}
	_ = c.sendSegment(nextHopMAC, c.seq, c.ack, types.TcpFlagAck, nil, nil)
}

// pollOnce services the link once. In-sequence payload is appended, a FIN
// (possibly riding the same segment) is acknowledged and recorded, and a
// reset marks the stream dead. It reports whether the connection advanced.
func (c *Stream) pollOnce() bool {
	seg, err := c.pollSegment()
	if err != nil || seg == nil {
		return false
	}

	if seg.flags&types.TcpFlagRst != 0 {
		c.rstSeen = true
		c.finSeen = true
		return true
	}

	if seg.seq != c.ack {
		c.stack.dropFrame()
		return false
	}

	advanced := false
	if len(seg.payload) > 0 {
		c.rx = append(c.rx, seg.payload...)
		c.ack += uint32(len(seg.payload))
		advanced = true
	}
	if seg.flags&types.TcpFlagFin != 0 {
		c.ack++
		c.finSeen = true
		advanced = true
	}
	if advanced {
		c.sendAck()
	}
	return advanced
}

// pollSegment polls for one segment on this connection's tuple. Frames for
// anything else count as dropped. The source address is deliberately not
// matched: user-mode NATs rewrite it, so destination plus ports decide.
// A matching segment with an impossible data offset is a protocol error.
func (c *Stream) pollSegment() (*tcpSegment, error) {
	s := c.stack
	frame := s.pollFrame()
	if frame == nil {
		return nil, nil
	}

	ip, ok := parseIPv4(frame)
	if !ok || ip.proto != types.IPv4ProtoTCP || ip.dst != s.config.IP {
		s.dropFrame()
		return nil, nil
	}
	data := ip.payload
	if len(data) < types.TcpHeaderMin {
		s.dropFrame()
		return nil, nil
	}
	srcPort := binary.BigEndian.Uint16(data[0:2])
	dstPort := binary.BigEndian.Uint16(data[2:4])
	if srcPort != c.remotePort || dstPort != c.localPort {
		s.dropFrame()
		return nil, nil
	}

	dataOff := int(data[12]>>4) * 4
	if dataOff < types.TcpHeaderMin || dataOff > len(data) {
		s.dropFrame()
		return nil, ErrProto
	}

	return &tcpSegment{
		flags:   data[13],
		seq:     binary.BigEndian.Uint32(data[4:8]),
		ack:     binary.BigEndian.Uint32(data[8:12]),
		payload: data[dataOff:],
	}, nil
}

// sendSegment emits one checksummed segment inside a fresh IPv4 packet.
func (c *Stream) sendSegment(dstMAC [6]byte, seq, ack uint32, flags uint8, options, payload []byte) error {
	s := c.stack

	headerLen := types.TcpHeaderMin + len(options)
	seg := make([]byte, headerLen, headerLen+len(payload))
	binary.BigEndian.PutUint16(seg[0:2], c.localPort)
	binary.BigEndian.PutUint16(seg[2:4], c.remotePort)
	binary.BigEndian.PutUint32(seg[4:8], seq)
	binary.BigEndian.PutUint32(seg[8:12], ack)
	seg[12] = byte(headerLen/4) << 4
	seg[13] = flags
	binary.BigEndian.PutUint16(seg[14:16], types.TcpWindow)
	copy(seg[types.TcpHeaderMin:], options)
	seg = append(seg, payload...)
	binary.BigEndian.PutUint16(seg[16:18], TransportChecksum(s.config.IP, c.remoteIP, types.IPv4ProtoTCP, seg))

	id := uint16(s.clock.Cycles()) ^ tcpIPIDXor
	packet := append(ipv4Header(s.config.IP, c.remoteIP, types.IPv4ProtoTCP, id, len(seg)), seg...)
	if !s.sendFrame(dstMAC, types.EtherTypeIPv4, packet) {
		return ErrTxFail
	}
	return nil
}
