package devsim

import (
	"errors"
	"fmt"
	"sync"
)

// ErrOutOfMemory reports an exhausted page allocator.
var ErrOutOfMemory = errors.New("physical memory exhausted")

const pageSize = 4096

// memAllocBase is where the bump allocator starts handing out pages; low
// memory stays clear of the legacy real-mode areas and address zero is
// never a valid buffer.
const memAllocBase = 0x10000

// Memory is a flat RAM model with bounds-checked access and a bump page
// allocator. Pages are handed out zeroed and never reclaimed.
type Memory struct {
	mu   sync.RWMutex
	data []byte
	next uint64
}

// NewMemory creates size bytes of zeroed RAM, rounded up to a whole page.
func NewMemory(size uint64) (*Memory, error) {
	if size == 0 {
		return nil, errors.New("memory size must be positive")
	}
	size = (size + pageSize - 1) &^ (pageSize - 1)
	if size <= memAllocBase {
		return nil, fmt.Errorf("memory size %d leaves no allocatable pages", size)
	}
	return &Memory{data: make([]byte, size), next: memAllocBase}, nil
}

// Size returns the extent of physical memory in bytes.
func (m *Memory) Size() uint64 {
	return uint64(len(m.data))
}

// AllocPages hands out count contiguous zeroed pages.
func (m *Memory) AllocPages(count int) (uint64, error) {
	if count <= 0 {
		return 0, fmt.Errorf("page count must be positive, got %d", count)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	bytes := uint64(count) * pageSize
	if bytes > uint64(len(m.data))-m.next {
		return 0, fmt.Errorf("%w: %d pages requested, %d bytes free",
			ErrOutOfMemory, count, uint64(len(m.data))-m.next)
	}
	addr := m.next
	m.next += bytes
	return addr, nil
}

// ReadPhys copies len(p) bytes starting at addr into p.
func (m *Memory) ReadPhys(addr uint64, p []byte) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := m.check(addr, uint64(len(p))); err != nil {
		return err
	}
	copy(p, m.data[addr:])
	return nil
}

// WritePhys copies p into memory starting at addr.
func (m *Memory) WritePhys(addr uint64, p []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, uint64(len(p))); err != nil {
		return err
	}
	copy(m.data[addr:], p)
	return nil
}

// ZeroRange clears length bytes starting at addr.
func (m *Memory) ZeroRange(addr, length uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.check(addr, length); err != nil {
		return err
	}
	span := m.data[addr : addr+length]
	for i := range span {
		span[i] = 0
	}
	return nil
}

func (m *Memory) check(addr, length uint64) error {
	size := uint64(len(m.data))
	if addr > size || length > size-addr {
		return fmt.Errorf("access of %d bytes at %#x exceeds %d-byte memory", length, addr, size)
	}
	return nil
}
