package physmem

import (
	"fmt"

	"github.com/othello-os/go-othello/internal/types"
)

// Image models a span of guest physical memory backed by a host byte slice.
// The loader stages the kernel into it, the paging builder allocates tables
// from it, and DMA-capable device models read and write it directly.
type Image struct {
	data []byte

	// nextPage is the bump cursor of the page allocator, in bytes.
	nextPage uint64

	pagesAllocated int
}

// NewImage creates an image of the given size. The size is rounded up to a
// whole page; allocation starts at the first page so that address 0 stays
// unused (a zero physical address doubles as "nothing here" in boot code).
func NewImage(size uint64) *Image {
	if size == 0 {
		size = types.PageSize4K
	}
	if rem := size % types.PageSize4K; rem != 0 {
		size += types.PageSize4K - rem
	}
	return &Image{
		data:     make([]byte, size),
		nextPage: types.PageSize4K,
	}
}

// Size returns the extent of the image in bytes.
func (m *Image) Size() uint64 {
	return uint64(len(m.data))
}

// PagesAllocated returns how many pages AllocPages has handed out.
func (m *Image) PagesAllocated() int {
	return m.pagesAllocated
}

// AllocPages hands out count contiguous zeroed pages and returns the physical
// address of the first. The backing slice is never reused, so pages come back
// zeroed without an explicit clear.
func (m *Image) AllocPages(count int) (uint64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("invalid page count %d", count)
	}
	need := uint64(count) * types.PageSize4K
	if m.nextPage+need > uint64(len(m.data)) {
		return 0, fmt.Errorf("out of physical memory: need %d pages, %d bytes free",
			count, uint64(len(m.data))-m.nextPage)
	}
	addr := m.nextPage
	m.nextPage += need
	m.pagesAllocated += count
	return addr, nil
}

// ReadPhys copies len(p) bytes at addr into p.
func (m *Image) ReadPhys(addr uint64, p []byte) error {
	if err := m.check(addr, uint64(len(p))); err != nil {
		return err
	}
	copy(p, m.data[addr:addr+uint64(len(p))])
	return nil
}

// WritePhys copies p into the image at addr.
func (m *Image) WritePhys(addr uint64, p []byte) error {
	if err := m.check(addr, uint64(len(p))); err != nil {
		return err
	}
	copy(m.data[addr:addr+uint64(len(p))], p)
	return nil
}

// ZeroRange clears length bytes starting at addr.
func (m *Image) ZeroRange(addr, length uint64) error {
	if err := m.check(addr, length); err != nil {
		return err
	}
	region := m.data[addr : addr+length]
	for i := range region {
		region[i] = 0
	}
	return nil
}

// ReadU64 reads a little-endian 64-bit value, the unit of page-table access.
func (m *Image) ReadU64(addr uint64) (uint64, error) {
	var buf [8]byte
	if err := m.ReadPhys(addr, buf[:]); err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(buf[i])
	}
	return v, nil
}

// WriteU64 writes a little-endian 64-bit value.
func (m *Image) WriteU64(addr, v uint64) error {
	var buf [8]byte
	for i := 0; i < 8; i++ {
		buf[i] = byte(v >> (8 * i))
	}
	return m.WritePhys(addr, buf[:])
}

// Slice returns a window directly into the backing memory. Device models use
// it as their DMA view; the caller must stay within the returned bounds.
func (m *Image) Slice(addr, length uint64) ([]byte, error) {
	if err := m.check(addr, length); err != nil {
		return nil, err
	}
	return m.data[addr : addr+length], nil
}

func (m *Image) check(addr, length uint64) error {
	end := addr + length
	if end < addr || end > uint64(len(m.data)) {
		return fmt.Errorf("physical access out of range: addr=0x%X len=%d size=%d",
			addr, length, len(m.data))
	}
	return nil
}
