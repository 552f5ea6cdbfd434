package netstack

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// wikiHeader is the textbook IPv4 header checksum example: the stored
// checksum 0xB861 makes the whole header sum to zero.
var wikiHeader = []byte{
	0x45, 0x00, 0x00, 0x73, 0x00, 0x00, 0x40, 0x00, 0x40, 0x11,
	0xB8, 0x61, 0xC0, 0xA8, 0x00, 0x01, 0xC0, 0xA8, 0x00, 0xC7,
}

func TestChecksum(t *testing.T) {
	zeroed := make([]byte, len(wikiHeader))
	copy(zeroed, wikiHeader)
	zeroed[10], zeroed[11] = 0, 0

	tests := []struct {
		name string
		data []byte
		want uint16
	}{
		{"empty", nil, 0xFFFF},
		{"zero word", []byte{0x00, 0x00}, 0xFFFF},
		{"odd tail pads low byte", []byte{0x01}, 0xFEFF},
		{"carry folds", []byte{0xFF, 0xFF, 0xFF, 0xFF}, 0x0000},
		{"valid header sums to zero", wikiHeader, 0x0000},
		{"zeroed checksum field recomputes", zeroed, 0xB861},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Checksum(tt.data))
		})
	}
}

func TestTransportChecksum(t *testing.T) {
	src := [4]byte{1, 2, 3, 4}
	dst := [4]byte{5, 6, 7, 8}

	got := TransportChecksum(src, dst, 6, []byte{0xAB, 0xCD, 0x00, 0x00})
	assert.Equal(t, uint16(0x4414), got)
}

// A segment carrying its own correct transport checksum verifies to zero;
// the peer model relies on the same property.
func TestTransportChecksumVerifiesToZero(t *testing.T) {
	src := [4]byte{10, 0, 0, 1}
	dst := [4]byte{10, 0, 0, 2}

	seg := []byte{
		0x30, 0x39, 0x00, 0x50, // ports
		0x00, 0x00, 0x00, 0x01,
		0x00, 0x00, 0x00, 0x02,
		0x50, 0x18, 0x10, 0x00,
		0x00, 0x00, 0x00, 0x00, // checksum, urgent
		'h', 'i',
	}
	sum := TransportChecksum(src, dst, 6, seg)
	seg[16] = byte(sum >> 8)
	seg[17] = byte(sum)

	assert.Zero(t, TransportChecksum(src, dst, 6, seg))
}
