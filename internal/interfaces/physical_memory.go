// File: internal/interfaces/physical_memory.go
package interfaces

// PhysicalMemoryReader provides bounds-checked reads of guest physical memory
type PhysicalMemoryReader interface {
	// ReadPhys copies len(p) bytes starting at physical address addr into p
	ReadPhys(addr uint64, p []byte) error

	// Size returns the extent of physical memory in bytes
	Size() uint64
}

// PhysicalMemoryWriter provides bounds-checked writes of guest physical memory
type PhysicalMemoryWriter interface {
	// WritePhys copies p into physical memory starting at addr
	WritePhys(addr uint64, p []byte) error

	// ZeroRange clears length bytes starting at addr
	ZeroRange(addr, length uint64) error
}

// PageAllocator hands out page-aligned physical memory
type PageAllocator interface {
	// AllocPages allocates count contiguous zeroed 4 KiB pages and returns
	// the physical address of the first page
	AllocPages(count int) (uint64, error)
}

// PhysicalMemory is the full memory surface shared by the loader, the paging
// builder and DMA-capable device models
type PhysicalMemory interface {
	PhysicalMemoryReader
	PhysicalMemoryWriter
	PageAllocator
}
