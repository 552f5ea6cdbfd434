package elfimage

import (
	"fmt"

	"github.com/othello-os/go-othello/internal/types"
)

// LoadLayout is the page-aligned virtual extent of all loadable segments.
// The loader allocates one contiguous physical region of Size bytes and
// places each segment at base + (p_vaddr - MinVaddr).
type LoadLayout struct {
	MinVaddr uint64
	MaxVaddr uint64
	Size     uint64
}

// Pages returns the physical allocation size in 4 KiB pages.
func (l LoadLayout) Pages() int {
	return int((l.Size + types.PageSize4K - 1) / types.PageSize4K)
}

// ComputeLoadLayout runs the first program-header pass: the virtual span of
// every PT_LOAD segment with a non-zero memory size, rounded out to page
// boundaries.
func ComputeLoadLayout(headers []types.ElfProgramHeader) (LoadLayout, error) {
	var (
		minV  uint64
		maxV  uint64
		found bool
	)
	for _, ph := range headers {
		if ph.Type != types.ElfPtLoad || ph.Memsz == 0 {
			continue
		}
		if !found || ph.Vaddr < minV {
			minV = ph.Vaddr
		}
		if end := ph.Vaddr + ph.Memsz; end > maxV {
			maxV = end
		}
		found = true
	}
	if !found {
		return LoadLayout{}, fmt.Errorf("%w: no loadable segments", ErrBadELF)
	}

	layout := LoadLayout{
		MinVaddr: alignDown(minV, types.PageSize4K),
		MaxVaddr: alignUp(maxV, types.PageSize4K),
	}
	layout.Size = layout.MaxVaddr - layout.MinVaddr
	return layout, nil
}

func alignDown(v, align uint64) uint64 {
	return v &^ (align - 1)
}

func alignUp(v, align uint64) uint64 {
	return (v + align - 1) &^ (align - 1)
}
