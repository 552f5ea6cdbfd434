// File: internal/interfaces/boot_info.go
package interfaces

import "github.com/othello-os/go-othello/internal/types"

// BootInfoReader provides access to the boot-info page the loader hands to
// the kernel entry point
type BootInfoReader interface {
	// VideoInfo returns the framebuffer descriptor at page offset 0
	VideoInfo() types.BootVideoInfo

	// KernelMap returns the kernel map payload and whether its magic was
	// present; absence means identity mapping must be assumed
	KernelMap() (types.BootKernelMap, bool)

	// VirtToPhys translates a kernel virtual address to physical using the
	// kernel map, falling back to identity
	VirtToPhys(vaddr uint64) uint64

	// DMAAddr32 translates vaddr and narrows it to a 32-bit DMA register
	// value, failing when the physical address does not fit
	DMAAddr32(vaddr uint64) (uint32, error)
}

// VideoSource answers the loader's one-time framebuffer mode query
type VideoSource interface {
	// QueryMode returns the active video mode
	QueryMode() (types.BootVideoInfo, error)
}

// BootMedia reads boot-volume files for the loader
type BootMedia interface {
	// ReadKernelImage returns the raw bytes of the kernel ELF
	ReadKernelImage() ([]byte, error)
}
