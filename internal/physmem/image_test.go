package physmem

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/types"
)

func TestNewImageRoundsUpToPageSize(t *testing.T) {
	m := NewImage(types.PageSize4K + 1)
	assert.Equal(t, uint64(2*types.PageSize4K), m.Size())

	m = NewImage(0)
	assert.Equal(t, uint64(types.PageSize4K), m.Size())
}

func TestAllocPages(t *testing.T) {
	m := NewImage(16 * types.PageSize4K)

	first, err := m.AllocPages(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(types.PageSize4K), first, "allocation starts past page zero")
	assert.Zero(t, first%types.PageSize4K)

	second, err := m.AllocPages(1)
	require.NoError(t, err)
	assert.Equal(t, first+2*types.PageSize4K, second, "allocations are contiguous")
	assert.Equal(t, 3, m.PagesAllocated())
}

func TestAllocPagesExhaustion(t *testing.T) {
	m := NewImage(4 * types.PageSize4K)

	_, err := m.AllocPages(3)
	require.NoError(t, err)

	_, err = m.AllocPages(1)
	assert.Error(t, err, "page zero is reserved, so only 3 pages were available")

	_, err = m.AllocPages(0)
	assert.Error(t, err)
}

func TestReadWritePhys(t *testing.T) {
	m := NewImage(2 * types.PageSize4K)

	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	require.NoError(t, m.WritePhys(0x100, payload))

	got := make([]byte, 4)
	require.NoError(t, m.ReadPhys(0x100, got))
	assert.Equal(t, payload, got)

	err := m.WritePhys(m.Size()-2, payload)
	assert.Error(t, err, "write crossing the end of memory")

	err = m.ReadPhys(m.Size(), got)
	assert.Error(t, err)
}

func TestU64Accessors(t *testing.T) {
	m := NewImage(types.PageSize4K)

	require.NoError(t, m.WriteU64(0x40, 0x1122334455667788))
	v, err := m.ReadU64(0x40)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x1122334455667788), v)

	// Little-endian byte order on the wire.
	b := make([]byte, 8)
	require.NoError(t, m.ReadPhys(0x40, b))
	assert.Equal(t, []byte{0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11}, b)
}

func TestZeroRangeAndSlice(t *testing.T) {
	m := NewImage(types.PageSize4K)

	require.NoError(t, m.WritePhys(0, []byte{1, 2, 3, 4}))
	require.NoError(t, m.ZeroRange(1, 2))

	got := make([]byte, 4)
	require.NoError(t, m.ReadPhys(0, got))
	assert.Equal(t, []byte{1, 0, 0, 4}, got)

	win, err := m.Slice(0x10, 4)
	require.NoError(t, err)
	win[0] = 0xAA
	require.NoError(t, m.ReadPhys(0x10, got[:1]))
	assert.Equal(t, byte(0xAA), got[0], "slice aliases the backing memory")

	_, err = m.Slice(m.Size()-1, 2)
	assert.Error(t, err)
}
