// File: internal/interfaces/frame_link.go
package interfaces

// FrameLink is the Ethernet surface the network stack consumes. The NIC
// driver implements it; tests may substitute a scripted loopback.
type FrameLink interface {
	// MAC returns the station address of the link
	MAC() [6]byte

	// SendFrame builds an Ethernet frame around payload and queues it for
	// transmission; it reports false when the link refused the frame
	SendFrame(dst [6]byte, etherType uint16, payload []byte) bool

	// PollFrame services the link and dequeues the next received frame,
	// or nil when none is pending
	PollFrame() []byte
}
