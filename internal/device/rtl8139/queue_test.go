package rtl8139

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/othello-os/go-othello/internal/types"
)

func TestPacketQueueFIFO(t *testing.T) {
	var q packetQueue

	for i := 0; i < 3; i++ {
		q.push([]byte{byte(i), 0xAA, 0xBB})
	}
	assert.Equal(t, 3, q.len())

	for i := 0; i < 3; i++ {
		frame := q.pop()
		assert.Equal(t, []byte{byte(i), 0xAA, 0xBB}, frame)
	}
	assert.Nil(t, q.pop())
}

func TestPacketQueueDropOldest(t *testing.T) {
	var q packetQueue

	for i := 0; i < types.NicMaxPackets+2; i++ {
		q.push([]byte{byte(i)})
	}
	assert.Equal(t, types.NicMaxPackets, q.len())

	// The first two frames were overwritten.
	assert.Equal(t, []byte{2}, q.pop())
	assert.Equal(t, []byte{3}, q.pop())
}

func TestPacketQueueClear(t *testing.T) {
	var q packetQueue

	q.push([]byte{1, 2, 3})
	q.clear()
	assert.Equal(t, 0, q.len())
	assert.Nil(t, q.pop())
}

func TestPacketQueueTruncatesOversize(t *testing.T) {
	var q packetQueue

	q.push(make([]byte, types.NicMaxPacketSize+100))
	assert.Equal(t, types.NicMaxPacketSize, len(q.pop()))
}
