package paging

import (
	"encoding/binary"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// pageTableManager implements the PageTableBuilder interface
type pageTableManager struct {
	mem  interfaces.PhysicalMemory
	root uint64
}

// NewPageTableManager creates a new PageTableBuilder writing into the given
// physical memory image.
func NewPageTableManager(mem interfaces.PhysicalMemory) interfaces.PageTableBuilder {
	return &pageTableManager{
		mem: mem,
	}
}

// allocTable allocates one zeroed 4 KiB page for a paging structure.
func (ptm *pageTableManager) allocTable() (uint64, error) {
	addr, err := ptm.mem.AllocPages(1)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate page table: %w", err)
	}
	return addr, nil
}

func (ptm *pageTableManager) readEntry(table uint64, index int) (uint64, error) {
	var buf [8]byte
	if err := ptm.mem.ReadPhys(table+uint64(index)*8, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func (ptm *pageTableManager) writeEntry(table uint64, index int, entry uint64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], entry)
	return ptm.mem.WritePhys(table+uint64(index)*8, buf[:])
}

// BuildIdentityMap creates PML4 -> PDPT[0..3] -> 4 page directories whose
// entries identity map [0, 4 GiB) as 2 MiB pages (present, writable, PS).
func (ptm *pageTableManager) BuildIdentityMap() (uint64, error) {
	pml4, err := ptm.allocTable()
	if err != nil {
		return 0, err
	}
	pdpt, err := ptm.allocTable()
	if err != nil {
		return 0, err
	}
	if err := ptm.writeEntry(pml4, 0, pdpt|types.PtePresent|types.PteWritable); err != nil {
		return 0, err
	}

	for gi := 0; gi < types.IdentityPDCount; gi++ {
		pd, err := ptm.allocTable()
		if err != nil {
			return 0, err
		}
		if err := ptm.writeEntry(pdpt, gi, pd|types.PtePresent|types.PteWritable); err != nil {
			return 0, err
		}
		base := uint64(gi) << 30
		for mi := 0; mi < types.EntriesPerTable; mi++ {
			phys := base + uint64(mi)*types.PageSize2M
			entry := phys | types.PtePresent | types.PteWritable | types.PtePageSize
			if err := ptm.writeEntry(pd, mi, entry); err != nil {
				return 0, err
			}
		}
	}

	ptm.root = pml4
	return pml4, nil
}

// MapKernel4K walks [virt, virt+size) page by page and points each 4 KiB
// entry at phys plus the same offset. A page directory entry that is absent
// or still a 2 MiB mapping is replaced with a fresh zeroed page table, so
// addresses sharing that 2 MiB window resolve only through explicit 4 KiB
// entries afterwards.
func (ptm *pageTableManager) MapKernel4K(virt, phys, size uint64) error {
	if ptm.root == 0 {
		return fmt.Errorf("identity map not built")
	}

	start := virt &^ (types.PageSize4K - 1)
	end := (virt + size + types.PageSize4K - 1) &^ (types.PageSize4K - 1)

	for v := start; v < end; v += types.PageSize4K {
		p := phys + (v - start)
		if err := ptm.map4K(v, p); err != nil {
			return err
		}
	}
	return nil
}

func (ptm *pageTableManager) map4K(v, p uint64) error {
	pml4i := int((v >> 39) & 0x1FF)
	pdpti := int((v >> 30) & 0x1FF)
	pdi := int((v >> 21) & 0x1FF)
	pti := int((v >> 12) & 0x1FF)

	pml4e, err := ptm.readEntry(ptm.root, pml4i)
	if err != nil {
		return err
	}
	if pml4e&types.PtePresent == 0 {
		pdpt, err := ptm.allocTable()
		if err != nil {
			return err
		}
		pml4e = pdpt | types.PtePresent | types.PteWritable
		if err := ptm.writeEntry(ptm.root, pml4i, pml4e); err != nil {
			return err
		}
	}
	pdpt := pml4e & types.PteAddrMask

	pdpte, err := ptm.readEntry(pdpt, pdpti)
	if err != nil {
		return err
	}
	if pdpte&types.PtePresent == 0 {
		pd, err := ptm.allocTable()
		if err != nil {
			return err
		}
		pdpte = pd | types.PtePresent | types.PteWritable
		if err := ptm.writeEntry(pdpt, pdpti, pdpte); err != nil {
			return err
		}
	}
	pd := pdpte & types.PteAddrMask

	pde, err := ptm.readEntry(pd, pdi)
	if err != nil {
		return err
	}
	if pde&types.PtePresent == 0 || pde&types.PtePageSize != 0 {
		pt, err := ptm.allocTable()
		if err != nil {
			return err
		}
		pde = pt | types.PtePresent | types.PteWritable
		if err := ptm.writeEntry(pd, pdi, pde); err != nil {
			return err
		}
	}
	pt := pde & types.PteAddrMask

	entry := (p & types.PteAddrMask) | types.PtePresent | types.PteWritable
	return ptm.writeEntry(pt, pti, entry)
}

// RootPhys returns the physical address of the PML4.
func (ptm *pageTableManager) RootPhys() uint64 {
	return ptm.root
}

// Translate resolves a virtual address through the page tables rooted at
// cr3, following both 2 MiB and 4 KiB mappings. The second return value is
// false when the address is unmapped.
func Translate(mem interfaces.PhysicalMemoryReader, cr3, vaddr uint64) (uint64, bool) {
	entry, ok := translateEntry(mem, cr3, int((vaddr>>39)&0x1FF))
	if !ok {
		return 0, false
	}
	entry, ok = translateEntry(mem, entry&types.PteAddrMask, int((vaddr>>30)&0x1FF))
	if !ok {
		return 0, false
	}
	entry, ok = translateEntry(mem, entry&types.PteAddrMask, int((vaddr>>21)&0x1FF))
	if !ok {
		return 0, false
	}
	if entry&types.PtePageSize != 0 {
		return (entry & types.PteAddrMask) + (vaddr & (types.PageSize2M - 1)), true
	}
	entry, ok = translateEntry(mem, entry&types.PteAddrMask, int((vaddr>>12)&0x1FF))
	if !ok {
		return 0, false
	}
	return (entry & types.PteAddrMask) + (vaddr & (types.PageSize4K - 1)), true
}

func translateEntry(mem interfaces.PhysicalMemoryReader, table uint64, index int) (uint64, bool) {
	var buf [8]byte
	if err := mem.ReadPhys(table+uint64(index)*8, buf[:]); err != nil {
		return 0, false
	}
	entry := binary.LittleEndian.Uint64(buf[:])
	if entry&types.PtePresent == 0 {
		return 0, false
	}
	return entry, true
}
