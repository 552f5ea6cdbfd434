package netstack

import "errors"

var (
	// ErrNoNIC indicates no network adapter is attached to the stack.
	ErrNoNIC = errors.New("no network adapter")

	// ErrNotConfigured indicates the interface has no IPv4 address yet.
	ErrNotConfigured = errors.New("interface is not configured")

	// ErrARPTimeout indicates the next hop never answered an ARP request.
	ErrARPTimeout = errors.New("ARP resolution timed out")

	// ErrTimeout indicates a bounded polling loop expired without the
	// awaited reply.
	ErrTimeout = errors.New("network operation timed out")

	// ErrTxFail indicates the link refused an outgoing frame.
	ErrTxFail = errors.New("link refused the frame")

	// ErrMalformed indicates a reply that matched our conversation but
	// could not be parsed.
	ErrMalformed = errors.New("malformed reply")

	// ErrNoAnswer indicates a DNS response without a usable A record.
	ErrNoAnswer = errors.New("no address record in reply")

	// ErrReset indicates the remote end reset the connection.
	ErrReset = errors.New("connection reset by remote")

	// ErrProto indicates a segment on an established connection that the
	// parser could not make sense of.
	ErrProto = errors.New("protocol violation on connection")

	// ErrDHCPNak indicates the server refused the lease request.
	ErrDHCPNak = errors.New("lease request refused")
)
