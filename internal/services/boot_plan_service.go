package services

import (
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/managers/paging"
	"github.com/othello-os/go-othello/internal/parsers/bootinfo"
	"github.com/othello-os/go-othello/internal/parsers/elfimage"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrAlloc indicates the physical memory image could not satisfy a page
	// allocation request.
	ErrAlloc = errors.New("page allocation failed")

	// ErrIORead indicates the kernel image could not be read from boot media.
	ErrIORead = errors.New("kernel image read failed")

	// ErrNoGOP indicates no usable graphics output mode was found.
	ErrNoGOP = errors.New("no usable graphics output mode")
)

// BootPlan captures everything the hand-off to the kernel needs: the page
// table root loaded into CR3, the stack pointer, the entry RIP and the boot
// info page passed in RDI. Interrupts stay disabled across the jump and RBP
// is cleared so unwinds terminate at the entry frame.
type BootPlan struct {
	PML4         uint64
	StackTop     uint64
	Entry        uint64
	BootInfoPhys uint64
	KernelPhys   uint64
	Layout       elfimage.LoadLayout
	Video        types.BootVideoInfo
	KernelMap    types.BootKernelMap
}

// BootPlanService stages a kernel ELF image into emulated physical memory
// and prepares the structures the loader hands to the kernel.
type BootPlanService struct {
	mem   interfaces.PhysicalMemory
	video interfaces.VideoSource
}

// NewBootPlanService creates a new BootPlanService instance
func NewBootPlanService(mem interfaces.PhysicalMemory, video interfaces.VideoSource) (*BootPlanService, error) {
	if mem == nil {
		return nil, fmt.Errorf("physical memory cannot be nil")
	}
	if video == nil {
		return nil, fmt.Errorf("video source cannot be nil")
	}
	return &BootPlanService{
		mem:   mem,
		video: video,
	}, nil
}

// StageFrom reads the kernel image from boot media and stages it.
func (bps *BootPlanService) StageFrom(media interfaces.BootMedia) (*BootPlan, error) {
	kernel, err := media.ReadKernelImage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIORead, err)
	}
	return bps.Stage(kernel)
}

// Stage validates the ELF image, relocates its loadable segments into a
// fresh contiguous physical region, builds the page tables and the boot info
// page, and allocates the kernel stack.
func (bps *BootPlanService) Stage(kernel []byte) (*BootPlan, error) {
	reader, err := elfimage.NewELFReader(kernel)
	if err != nil {
		return nil, err
	}

	layout, err := elfimage.ComputeLoadLayout(reader.ProgramHeaders())
	if err != nil {
		return nil, err
	}

	kernelPhys, err := bps.mem.AllocPages(layout.Pages())
	if err != nil {
		return nil, fmt.Errorf("%w: kernel region of %d pages: %v", ErrAlloc, layout.Pages(), err)
	}

	if err := bps.copySegments(reader, layout, kernelPhys); err != nil {
		return nil, err
	}

	ptm := paging.NewPageTableManager(bps.mem)
	pml4, err := ptm.BuildIdentityMap()
	if err != nil {
		return nil, fmt.Errorf("%w: identity map: %v", ErrAlloc, err)
	}
	if err := ptm.MapKernel4K(layout.MinVaddr, kernelPhys, layout.Size); err != nil {
		return nil, fmt.Errorf("%w: kernel map: %v", ErrAlloc, err)
	}

	video, err := bps.video.QueryMode()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoGOP, err)
	}
	if video.BitsPerPix != types.BootVideoBPP {
		return nil, fmt.Errorf("%w: %d bpp mode", ErrNoGOP, video.BitsPerPix)
	}

	kmap := types.BootKernelMap{
		Magic:          types.BootKernelMapMagic,
		Version:        types.BootKernelMapVersion,
		KernelVirtBase: layout.MinVaddr,
		KernelPhysBase: kernelPhys,
		KernelSize:     layout.Size,
	}

	infoPhys, err := bps.mem.AllocPages(1)
	if err != nil {
		return nil, fmt.Errorf("%w: boot info page: %v", ErrAlloc, err)
	}
	if err := bps.mem.WritePhys(infoPhys, bootinfo.EncodePage(video, &kmap)); err != nil {
		return nil, err
	}

	stackBase, err := bps.mem.AllocPages(types.KernelStackPages)
	if err != nil {
		return nil, fmt.Errorf("%w: kernel stack: %v", ErrAlloc, err)
	}

	return &BootPlan{
		PML4:         pml4,
		StackTop:     stackBase + types.KernelStackSize,
		Entry:        reader.Entry(),
		BootInfoPhys: infoPhys,
		KernelPhys:   kernelPhys,
		Layout:       layout,
		Video:        video,
		KernelMap:    kmap,
	}, nil
}

// copySegments performs the load pass: file bytes land at the relocated
// physical base plus the segment's offset from the lowest mapped address,
// and the [filesz, memsz) tail is zero filled.
func (bps *BootPlanService) copySegments(reader interfaces.ELFImage, layout elfimage.LoadLayout, kernelPhys uint64) error {
	for _, ph := range reader.ProgramHeaders() {
		if ph.Type != types.ElfPtLoad || ph.Memsz == 0 {
			continue
		}
		dst := kernelPhys + (ph.Vaddr - layout.MinVaddr)

		data, err := reader.SegmentData(ph)
		if err != nil {
			return err
		}
		if len(data) > 0 {
			if err := bps.mem.WritePhys(dst, data); err != nil {
				return err
			}
		}
		if ph.Memsz > ph.Filesz {
			if err := bps.mem.ZeroRange(dst+ph.Filesz, ph.Memsz-ph.Filesz); err != nil {
				return err
			}
		}
	}
	return nil
}
