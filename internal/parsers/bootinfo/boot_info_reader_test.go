package bootinfo

import (
	"errors"
	"testing"

	"github.com/othello-os/go-othello/internal/types"
)

func createTestVideoInfo() types.BootVideoInfo {
	return types.BootVideoInfo{
		Width:       1024,
		Height:      768,
		BitsPerPix:  types.BootVideoBPP,
		FramebufPhy: 0x8000_0000,
		Pitch:       4096,
	}
}

func createTestKernelMap() types.BootKernelMap {
	return types.BootKernelMap{
		Magic:          types.BootKernelMapMagic,
		Version:        types.BootKernelMapVersion,
		KernelVirtBase: 0xFFFF_FFFF_8010_0000,
		KernelPhysBase: 0x0120_0000,
		KernelSize:     0x101000,
	}
}

func TestNewBootInfoReader(t *testing.T) {
	kmap := createTestKernelMap()
	page := EncodePage(createTestVideoInfo(), &kmap)

	reader, err := NewBootInfoReader(page)
	if err != nil {
		t.Fatalf("NewBootInfoReader() error = %v", err)
	}

	video := reader.VideoInfo()
	if video.Width != 1024 || video.Height != 768 {
		t.Errorf("VideoInfo() geometry = %dx%d, want 1024x768", video.Width, video.Height)
	}
	if video.BitsPerPix != types.BootVideoBPP {
		t.Errorf("VideoInfo() bpp = %d, want %d", video.BitsPerPix, types.BootVideoBPP)
	}
	if video.FramebufPhy != 0x8000_0000 {
		t.Errorf("VideoInfo() framebuffer = 0x%X, want 0x80000000", video.FramebufPhy)
	}
	if video.Pitch != 4096 {
		t.Errorf("VideoInfo() pitch = %d, want 4096", video.Pitch)
	}

	got, ok := reader.KernelMap()
	if !ok {
		t.Fatal("KernelMap() reported absent, want present")
	}
	if got != kmap {
		t.Errorf("KernelMap() = %+v, want %+v", got, kmap)
	}
}

func TestNewBootInfoReaderWithoutMap(t *testing.T) {
	page := EncodePage(createTestVideoInfo(), nil)

	reader, err := NewBootInfoReader(page)
	if err != nil {
		t.Fatalf("NewBootInfoReader() error = %v", err)
	}
	if _, ok := reader.KernelMap(); ok {
		t.Error("KernelMap() reported present for zeroed slot")
	}
	// Without a map every address is identity translated.
	if got := reader.VirtToPhys(0xFFFF_FFFF_8010_0000); got != 0xFFFF_FFFF_8010_0000 {
		t.Errorf("VirtToPhys() = 0x%X, want identity", got)
	}
}

func TestNewBootInfoReaderTruncated(t *testing.T) {
	_, err := NewBootInfoReader(make([]byte, 32))
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("NewBootInfoReader() error = %v, want ErrTruncated", err)
	}
}

func TestBootInfoReaderWrongMagic(t *testing.T) {
	kmap := createTestKernelMap()
	kmap.Magic = 0xDEAD_BEEF
	page := EncodePage(createTestVideoInfo(), &kmap)

	reader, err := NewBootInfoReader(page)
	if err != nil {
		t.Fatalf("NewBootInfoReader() error = %v", err)
	}
	if _, ok := reader.KernelMap(); ok {
		t.Error("KernelMap() accepted wrong magic")
	}
}

func TestVirtToPhys(t *testing.T) {
	kmap := createTestKernelMap()
	page := EncodePage(createTestVideoInfo(), &kmap)
	reader, err := NewBootInfoReader(page)
	if err != nil {
		t.Fatalf("NewBootInfoReader() error = %v", err)
	}

	tests := []struct {
		name  string
		vaddr uint64
		want  uint64
	}{
		{"kernel base", 0xFFFF_FFFF_8010_0000, 0x0120_0000},
		{"inside kernel", 0xFFFF_FFFF_8010_4A00, 0x0120_4A00},
		{"last kernel byte", 0xFFFF_FFFF_8020_0FFF, 0x0130_0FFF},
		{"just past kernel", 0xFFFF_FFFF_8020_1000, 0xFFFF_FFFF_8020_1000},
		{"below kernel", 0x000B_8000, 0x000B_8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := reader.VirtToPhys(tt.vaddr); got != tt.want {
				t.Errorf("VirtToPhys(0x%X) = 0x%X, want 0x%X", tt.vaddr, got, tt.want)
			}
		})
	}
}

func TestDMAAddr32(t *testing.T) {
	kmap := createTestKernelMap()
	page := EncodePage(createTestVideoInfo(), &kmap)
	reader, err := NewBootInfoReader(page)
	if err != nil {
		t.Fatalf("NewBootInfoReader() error = %v", err)
	}

	addr, err := reader.DMAAddr32(0xFFFF_FFFF_8010_0000)
	if err != nil {
		t.Fatalf("DMAAddr32() error = %v", err)
	}
	if addr != 0x0120_0000 {
		t.Errorf("DMAAddr32() = 0x%X, want 0x1200000", addr)
	}

	// Untranslated high-half addresses overflow the 32-bit register.
	if _, err := reader.DMAAddr32(0xFFFF_FFFF_9000_0000); !errors.Is(err, ErrDMAAddrTooHigh) {
		t.Errorf("DMAAddr32() error = %v, want ErrDMAAddrTooHigh", err)
	}
}

func BenchmarkNewBootInfoReader(b *testing.B) {
	kmap := createTestKernelMap()
	page := EncodePage(createTestVideoInfo(), &kmap)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := NewBootInfoReader(page); err != nil {
			b.Fatal(err)
		}
	}
}
