package rtl8139

import "github.com/othello-os/go-othello/internal/types"

// packetQueue is the fixed-storage frame queue between the interrupt path
// and the poll path. push copies the frame; when the queue is full the
// oldest entry is overwritten.
type packetQueue struct {
	frames [types.NicMaxPackets][types.NicMaxPacketSize]byte
	sizes  [types.NicMaxPackets]uint16
	head   int
	count  int
}

func (q *packetQueue) len() int { return q.count }

func (q *packetQueue) clear() {
	q.head = 0
	q.count = 0
}

func (q *packetQueue) push(frame []byte) {
	if len(frame) > types.NicMaxPacketSize {
		frame = frame[:types.NicMaxPacketSize]
	}
	if q.count == types.NicMaxPackets {
		q.head = (q.head + 1) % types.NicMaxPackets
		q.count--
	}
	slot := (q.head + q.count) % types.NicMaxPackets
	copy(q.frames[slot][:], frame)
	q.sizes[slot] = uint16(len(frame))
	q.count++
}

// pop returns a copy of the oldest queued frame, or nil when empty.
func (q *packetQueue) pop() []byte {
	if q.count == 0 {
		return nil
	}
	size := q.sizes[q.head]
	out := make([]byte, size)
	copy(out, q.frames[q.head][:size])
	q.head = (q.head + 1) % types.NicMaxPackets
	q.count--
	return out
}
