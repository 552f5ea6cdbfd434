package types

// Boot hand-off structures and early memory layout constants.
// The loader publishes a single 4 KiB page to the kernel: BootVideoInfo at
// offset 0 and BootKernelMap at offset 16, both little-endian and packed.

const (
	// BootInfoPageSize is the size of the page handed to the kernel entry point.
	BootInfoPageSize = 4096

	// BootVideoInfoSize is the packed size of the video descriptor:
	// u16 width, u16 height, u16 bpp, u64 fb_phys, u16 pitch.
	BootVideoInfoSize = 16

	// BootKernelMapOffset is the byte offset of BootKernelMap within the page.
	BootKernelMapOffset = 16

	// BootKernelMapSize is the packed size of the kernel map:
	// u32 magic, u16 version, u16 reserved, u64 virt, u64 phys, u64 size.
	BootKernelMapSize = 32

	// BootKernelMapMagic identifies a valid kernel map payload ("OTHK").
	// A different value at the magic offset means the map is absent and the
	// kernel must assume identity mapping.
	BootKernelMapMagic = 0x4F54484B

	// BootKernelMapVersion is the only version this codebase emits or accepts.
	BootKernelMapVersion = 1

	// BootVideoBPP is the bits-per-pixel the UEFI path hard-codes. GOP modes
	// are 32-bit BGRx; legacy 24-bit paths are not part of the boot protocol.
	BootVideoBPP = 32
)

// BootVideoInfo describes the firmware-provided linear framebuffer.
type BootVideoInfo struct {
	Width       uint16
	Height      uint16
	BitsPerPix  uint16
	FramebufPhy uint64
	Pitch       uint16
}

// BootKernelMap records where the kernel's linked virtual range was placed in
// physical memory, so kernel code can translate virtual addresses used as DMA
// sources back to the addresses the hardware will see.
type BootKernelMap struct {
	Magic          uint32
	Version        uint16
	Reserved       uint16
	KernelVirtBase uint64
	KernelPhysBase uint64
	KernelSize     uint64
}

// Page table geometry and entry flags.
// Reference: Intel SDM Vol 3A, 4-level paging.
const (
	PageSize4K = 0x1000
	PageSize2M = 0x200000

	// EntriesPerTable is the entry count of every paging structure level.
	EntriesPerTable = 512

	PtePresent  = 1 << 0
	PteWritable = 1 << 1
	PtePageSize = 1 << 7 // PS: 2 MiB page when set in a PDE

	// PteAddrMask extracts the physical address from a table entry.
	PteAddrMask = 0x000F_FFFF_FFFF_F000
)

const (
	// IdentityMapSize is the extent of the boot-time identity mapping,
	// installed as 2 MiB pages.
	IdentityMapSize = 4 << 30

	// IdentityPDCount is the number of page directories covering the
	// identity range (one per GiB).
	IdentityPDCount = 4

	// KernelStackSize is the stack handed to the kernel entry point.
	KernelStackSize = 64 * 1024

	// KernelStackPages is KernelStackSize in 4 KiB pages.
	KernelStackPages = KernelStackSize / PageSize4K

	// DMAAddrLimit is the highest physical address programmable into a
	// 32-bit DMA register.
	DMAAddrLimit = 0xFFFF_FFFF
)
