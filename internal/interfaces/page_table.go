// File: internal/interfaces/page_table.go
package interfaces

// PageTableBuilder constructs the long-mode page tables handed to the kernel
// at boot. Tables are written into emulated physical memory through a
// PhysicalMemory implementation.
type PageTableBuilder interface {
	// BuildIdentityMap creates the root table and identity maps [0, 4 GiB)
	// with 2 MiB pages. It returns the physical address of the PML4.
	BuildIdentityMap() (uint64, error)

	// MapKernel4K overrides the range [virt, virt+size) with 4 KiB pages
	// backed by contiguous physical memory starting at phys. Any covering
	// 2 MiB mapping is split into a freshly allocated page table.
	MapKernel4K(virt, phys, size uint64) error

	// RootPhys returns the physical address of the PML4, or zero before
	// BuildIdentityMap has run.
	RootPhys() uint64
}
