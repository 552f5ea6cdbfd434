package types

// Wire protocol constants shared by the network stack.

// EtherTypes.
const (
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806
	EtherTypeVLAN = 0x8100
	EtherTypeIPv6 = 0x86DD
)

const (
	// EthHeaderSize is destination + source + EtherType.
	EthHeaderSize = 14

	// EthVlanHeaderSize is the header size with one 802.1Q tag.
	EthVlanHeaderSize = 18
)

// IPv4.
const (
	IPv4HeaderMin  = 20
	IPv4ProtoICMP  = 1
	IPv4ProtoTCP   = 6
	IPv4ProtoUDP   = 17
	IPv4DefaultTTL = 64
)

// ARP (IPv4 over Ethernet).
const (
	ArpPacketSize  = 28
	ArpHTypeEth    = 1
	ArpOpRequest   = 1
	ArpOpReply     = 2
	ArpHwAddrLen   = 6
	ArpProtAddrLen = 4
)

// UDP/TCP.
const (
	UdpHeaderSize = 8
	TcpHeaderMin  = 20

	TcpFlagFin = 0x01
	TcpFlagSyn = 0x02
	TcpFlagRst = 0x04
	TcpFlagPsh = 0x08
	TcpFlagAck = 0x10

	// TcpMSS is the maximum segment size this stack advertises and honors.
	TcpMSS = 1460

	// TcpWindow is the static receive window advertised on every segment.
	TcpWindow = 4096

	// TcpEphemeralBase and TcpEphemeralSpan define the local port range:
	// 49152 + (cycles mod 16384).
	TcpEphemeralBase = 49152
	TcpEphemeralSpan = 16384

	// TcpIssXor whitens the cycle counter into the initial send sequence.
	TcpIssXor = 0xA5A55A5A

	// TcpIdleLimit is the consecutive-empty-poll bound of read_to_end.
	TcpIdleLimit = 200

	// TcpConnectRetries is the SYN retry count.
	TcpConnectRetries = 3
)

// DNS.
const (
	DnsServerPort = 53

	// DnsLocalPortBase and DnsLocalPortSpan define the query source port
	// range: 53000 + (random mod 4096).
	DnsLocalPortBase = 53000
	DnsLocalPortSpan = 4096

	DnsHeaderSize = 12
	DnsFlagsRD    = 0x0100
	DnsFlagsQR    = 0x8000
	DnsRcodeMask  = 0x000F
	DnsTypeA      = 1
	DnsClassIN    = 1
	DnsMaxLabel   = 63

	// DnsPointerMask marks a compressed-name pointer byte.
	DnsPointerMask = 0xC0
)

// DHCP.
const (
	DhcpClientPort = 68
	DhcpServerPort = 67

	DhcpOpRequest   = 1
	DhcpOpReply     = 2
	DhcpHTypeEth    = 1
	DhcpFlagBcast   = 0x8000
	DhcpMinPayload  = 240
	DhcpCookieStart = 236

	DhcpOptSubnetMask = 1
	DhcpOptRouter     = 3
	DhcpOptDNS        = 6
	DhcpOptHostname   = 12
	DhcpOptRequestIP  = 50
	DhcpOptLeaseTime  = 51
	DhcpOptMsgType    = 53
	DhcpOptServerID   = 54
	DhcpOptParamList  = 55
	DhcpOptClientID   = 61
	DhcpOptEnd        = 255

	DhcpDiscover = 1
	DhcpOffer    = 2
	DhcpRequest  = 3
	DhcpAck      = 5
	DhcpNak      = 6

	// DhcpXidXor whitens the cycle counter into the transaction id.
	DhcpXidXor = 0xA5A51234
)

// ICMP.
const (
	IcmpEchoRequest = 8
	IcmpEchoReply   = 0

	// IcmpEchoIdent tags outgoing echo requests ("OT").
	IcmpEchoIdent = 0x4F54

	// IcmpEchoPayload is the ascending-byte payload length of echo requests.
	IcmpEchoPayload = 32
)

// DhcpMagicCookie begins the DHCP options area.
var DhcpMagicCookie = [4]byte{99, 130, 83, 99}

// EthBroadcast is the all-ones MAC address.
var EthBroadcast = [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
