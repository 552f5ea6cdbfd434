package bootinfo

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// ErrTruncated indicates the boot info page is too small to carry the packed
// video descriptor and kernel map slots.
var ErrTruncated = errors.New("boot info page truncated")

// ErrDMAAddrTooHigh indicates a physical address that does not fit into a
// 32-bit DMA register.
var ErrDMAAddrTooHigh = errors.New("physical address above 32-bit DMA range")

// bootInfoReader implements the BootInfoReader interface
type bootInfoReader struct {
	video  types.BootVideoInfo
	kmap   types.BootKernelMap
	hasMap bool
}

// NewBootInfoReader parses a boot info page. The packed video descriptor
// occupies the first 16 bytes; the kernel map payload follows at offset 16
// and counts as present only when its magic matches.
func NewBootInfoReader(data []byte) (interfaces.BootInfoReader, error) {
	if len(data) < types.BootKernelMapOffset+types.BootKernelMapSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}
	le := binary.LittleEndian

	reader := &bootInfoReader{
		video: types.BootVideoInfo{
			Width:       le.Uint16(data[0:2]),
			Height:      le.Uint16(data[2:4]),
			BitsPerPix:  le.Uint16(data[4:6]),
			FramebufPhy: le.Uint64(data[6:14]),
			Pitch:       le.Uint16(data[14:16]),
		},
	}

	km := data[types.BootKernelMapOffset:]
	if le.Uint32(km[0:4]) == types.BootKernelMapMagic {
		reader.kmap = types.BootKernelMap{
			Magic:          le.Uint32(km[0:4]),
			Version:        le.Uint16(km[4:6]),
			Reserved:       le.Uint16(km[6:8]),
			KernelVirtBase: le.Uint64(km[8:16]),
			KernelPhysBase: le.Uint64(km[16:24]),
			KernelSize:     le.Uint64(km[24:32]),
		}
		reader.hasMap = true
	}
	return reader, nil
}

// VideoInfo returns the framebuffer geometry handed over at boot.
func (bir *bootInfoReader) VideoInfo() types.BootVideoInfo {
	return bir.video
}

// KernelMap returns the relocation payload and whether it was present.
func (bir *bootInfoReader) KernelMap() (types.BootKernelMap, bool) {
	return bir.kmap, bir.hasMap
}

// VirtToPhys translates a kernel virtual address for DMA. Addresses inside
// the relocated kernel range follow the map; everything else is assumed
// identity mapped.
func (bir *bootInfoReader) VirtToPhys(vaddr uint64) uint64 {
	if bir.hasMap {
		start := bir.kmap.KernelVirtBase
		end := start + bir.kmap.KernelSize
		if vaddr >= start && vaddr < end {
			return bir.kmap.KernelPhysBase + (vaddr - start)
		}
	}
	return vaddr
}

// DMAAddr32 translates a virtual address and narrows it for 32-bit bus
// master registers.
func (bir *bootInfoReader) DMAAddr32(vaddr uint64) (uint32, error) {
	phys := bir.VirtToPhys(vaddr)
	if phys > types.DMAAddrLimit {
		return 0, fmt.Errorf("%w: 0x%X", ErrDMAAddrTooHigh, phys)
	}
	return uint32(phys), nil
}

// EncodePage serializes a full boot info page. The kernel map slot is left
// zeroed when kmap is nil, which readers treat as absent.
func EncodePage(video types.BootVideoInfo, kmap *types.BootKernelMap) []byte {
	page := make([]byte, types.BootInfoPageSize)
	le := binary.LittleEndian

	le.PutUint16(page[0:2], video.Width)
	le.PutUint16(page[2:4], video.Height)
	le.PutUint16(page[4:6], video.BitsPerPix)
	le.PutUint64(page[6:14], video.FramebufPhy)
	le.PutUint16(page[14:16], video.Pitch)

	if kmap != nil {
		km := page[types.BootKernelMapOffset:]
		le.PutUint32(km[0:4], kmap.Magic)
		le.PutUint16(km[4:6], kmap.Version)
		le.PutUint16(km[6:8], kmap.Reserved)
		le.PutUint64(km[8:16], kmap.KernelVirtBase)
		le.PutUint64(km[16:24], kmap.KernelPhysBase)
		le.PutUint64(km[24:32], kmap.KernelSize)
	}
	return page
}
