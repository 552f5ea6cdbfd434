package paging

import (
	"testing"

	"github.com/othello-os/go-othello/internal/physmem"
	"github.com/othello-os/go-othello/internal/types"
)

func createTestMemory(t *testing.T) *physmem.Image {
	t.Helper()
	return physmem.NewImage(64 << 20)
}

func TestBuildIdentityMap(t *testing.T) {
	mem := createTestMemory(t)
	ptm := NewPageTableManager(mem)

	root, err := ptm.BuildIdentityMap()
	if err != nil {
		t.Fatalf("BuildIdentityMap() error = %v", err)
	}
	if root == 0 {
		t.Fatal("BuildIdentityMap() returned zero root")
	}
	if got := ptm.RootPhys(); got != root {
		t.Errorf("RootPhys() = 0x%X, want 0x%X", got, root)
	}

	tests := []struct {
		name  string
		vaddr uint64
	}{
		{"first page", 0x0},
		{"below 1 MiB", 0xB8000},
		{"middle of second GiB", 0x5000_1234},
		{"last byte under 4 GiB", 0xFFFF_FFFF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phys, ok := Translate(mem, root, tt.vaddr)
			if !ok {
				t.Fatalf("Translate(0x%X) reported unmapped", tt.vaddr)
			}
			if phys != tt.vaddr {
				t.Errorf("Translate(0x%X) = 0x%X, want identity", tt.vaddr, phys)
			}
		})
	}

	if _, ok := Translate(mem, root, 4<<30); ok {
		t.Error("Translate(4 GiB) resolved, want unmapped")
	}
}

func TestMapKernel4KOverridesIdentity(t *testing.T) {
	mem := createTestMemory(t)
	ptm := NewPageTableManager(mem)

	root, err := ptm.BuildIdentityMap()
	if err != nil {
		t.Fatalf("BuildIdentityMap() error = %v", err)
	}

	virtBase := uint64(0xFFFF_FFFF_8010_0000)
	physBase := uint64(0x0120_0000)
	size := uint64(0x101000)

	if err := ptm.MapKernel4K(virtBase, physBase, size); err != nil {
		t.Fatalf("MapKernel4K() error = %v", err)
	}

	tests := []struct {
		name   string
		vaddr  uint64
		expect uint64
	}{
		{"kernel base", virtBase, physBase},
		{"inside first page", virtBase + 0x123, physBase + 0x123},
		{"page boundary", virtBase + 0x1000, physBase + 0x1000},
		{"last mapped byte", virtBase + size - 1, physBase + size - 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phys, ok := Translate(mem, root, tt.vaddr)
			if !ok {
				t.Fatalf("Translate(0x%X) reported unmapped", tt.vaddr)
			}
			if phys != tt.expect {
				t.Errorf("Translate(0x%X) = 0x%X, want 0x%X", tt.vaddr, phys, tt.expect)
			}
		})
	}

	// The identity window below 4 GiB must survive the kernel override.
	phys, ok := Translate(mem, root, physBase)
	if !ok || phys != physBase {
		t.Errorf("identity Translate(0x%X) = (0x%X, %v), want unchanged", physBase, phys, ok)
	}
}

func TestMapKernel4KSplitsHugePage(t *testing.T) {
	mem := createTestMemory(t)
	ptm := NewPageTableManager(mem)

	root, err := ptm.BuildIdentityMap()
	if err != nil {
		t.Fatalf("BuildIdentityMap() error = %v", err)
	}

	// Remap one 4 KiB page inside an identity-mapped 2 MiB window. The
	// covering huge page is replaced by a fresh table, so its siblings
	// become unmapped rather than silently identity mapped.
	virt := uint64(0x0040_0000)
	phys := uint64(0x0200_0000)
	if err := ptm.MapKernel4K(virt, phys, types.PageSize4K); err != nil {
		t.Fatalf("MapKernel4K() error = %v", err)
	}

	got, ok := Translate(mem, root, virt)
	if !ok || got != phys {
		t.Fatalf("Translate(0x%X) = (0x%X, %v), want (0x%X, true)", virt, got, ok, phys)
	}
	if _, ok := Translate(mem, root, virt+types.PageSize4K); ok {
		t.Error("sibling page inside split window resolved, want unmapped")
	}
	// Neighbouring 2 MiB windows keep their identity mapping.
	neighbour := virt + types.PageSize2M
	got, ok = Translate(mem, root, neighbour)
	if !ok || got != neighbour {
		t.Errorf("Translate(0x%X) = (0x%X, %v), want identity", neighbour, got, ok)
	}
}

func TestMapKernel4KRequiresIdentityMap(t *testing.T) {
	mem := createTestMemory(t)
	ptm := NewPageTableManager(mem)

	if err := ptm.MapKernel4K(0xFFFF_FFFF_8010_0000, 0x100000, types.PageSize4K); err == nil {
		t.Error("MapKernel4K() before BuildIdentityMap() succeeded, want error")
	}
}
