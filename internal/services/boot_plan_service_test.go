package services

import (
	"encoding/binary"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/managers/paging"
	"github.com/othello-os/go-othello/internal/parsers/bootinfo"
	"github.com/othello-os/go-othello/internal/parsers/elfimage"
	"github.com/othello-os/go-othello/internal/physmem"
	"github.com/othello-os/go-othello/internal/types"
)

type stubVideoSource struct {
	mode types.BootVideoInfo
	err  error
}

func (s *stubVideoSource) QueryMode() (types.BootVideoInfo, error) {
	return s.mode, s.err
}

type stubBootMedia struct {
	image []byte
	err   error
}

func (s *stubBootMedia) ReadKernelImage() ([]byte, error) {
	return s.image, s.err
}

func defaultVideoSource() *stubVideoSource {
	return &stubVideoSource{
		mode: types.BootVideoInfo{
			Width:       1024,
			Height:      768,
			BitsPerPix:  types.BootVideoBPP,
			FramebufPhy: 0x8000_0000,
			Pitch:       4096,
		},
	}
}

type bootTestSegment struct {
	vaddr  uint64
	fill   byte
	filesz int
	memsz  uint64
}

// buildKernelELF assembles an ELF64 image whose segment bytes are constant
// fills, so relocated copies are easy to verify.
func buildKernelELF(entry uint64, segs []bootTestSegment) []byte {
	le := binary.LittleEndian
	phoff := uint64(types.ElfHeaderSize)
	dataOff := phoff + uint64(len(segs))*types.ElfPhdrSize

	total := dataOff
	for _, s := range segs {
		total += uint64(s.filesz)
	}
	buf := make([]byte, total)

	copy(buf[0:4], types.ElfMagic[:])
	buf[types.ElfOffIdentClass] = types.ElfClass64
	buf[types.ElfOffIdentData] = types.ElfDataLE
	buf[types.ElfOffIdentVersion] = types.ElfVersionCur
	le.PutUint16(buf[types.ElfOffType:], 2)
	le.PutUint16(buf[types.ElfOffMachine:], types.ElfMachineX86_64)
	le.PutUint64(buf[types.ElfOffEntry:], entry)
	le.PutUint64(buf[types.ElfOffPhoff:], phoff)
	le.PutUint16(buf[types.ElfOffPhentsize:], types.ElfPhdrSize)
	le.PutUint16(buf[types.ElfOffPhnum:], uint16(len(segs)))

	off := dataOff
	for i, s := range segs {
		ph := buf[phoff+uint64(i)*types.ElfPhdrSize:]
		le.PutUint32(ph[types.ElfPhOffType:], types.ElfPtLoad)
		le.PutUint64(ph[types.ElfPhOffOffset:], off)
		le.PutUint64(ph[types.ElfPhOffVaddr:], s.vaddr)
		le.PutUint64(ph[types.ElfPhOffFilesz:], uint64(s.filesz))
		le.PutUint64(ph[types.ElfPhOffMemsz:], s.memsz)
		le.PutUint64(ph[types.ElfPhOffAlign:], types.PageSize4K)
		for j := 0; j < s.filesz; j++ {
			buf[off+uint64(j)] = s.fill
		}
		off += uint64(s.filesz)
	}
	return buf
}

func TestBootPlanServiceStage(t *testing.T) {
	mem := physmem.NewImage(128 << 20)
	bps, err := NewBootPlanService(mem, defaultVideoSource())
	require.NoError(t, err, "failed to create boot plan service")

	entry := uint64(0xFFFF_FFFF_8010_0000)
	kernel := buildKernelELF(entry, []bootTestSegment{
		{vaddr: 0xFFFF_FFFF_8010_0000, fill: 0xAA, filesz: 0x2000, memsz: 0x4000},
		{vaddr: 0xFFFF_FFFF_8020_0000, fill: 0xBB, filesz: 0x1000, memsz: 0x1000},
	})

	plan, err := bps.Stage(kernel)
	require.NoError(t, err, "staging failed")

	assert.Equal(t, entry, plan.Entry, "entry point should come from the ELF header")
	assert.Equal(t, uint64(0xFFFF_FFFF_8010_0000), plan.Layout.MinVaddr)
	assert.Equal(t, uint64(0x101000), plan.Layout.Size)
	assert.NotZero(t, plan.PML4, "PML4 root must be allocated")
	assert.NotZero(t, plan.BootInfoPhys, "boot info page must be allocated")

	// Stack is 64 KiB of fresh pages and the top stays 16-byte aligned for
	// the SysV entry frame.
	assert.Zero(t, plan.StackTop%16, "stack top must be 16-byte aligned")
	stackBase := plan.StackTop - types.KernelStackSize
	assert.Zero(t, stackBase%types.PageSize4K, "stack base must be page aligned")

	// First segment file bytes land at the relocated base.
	buf := make([]byte, 4)
	require.NoError(t, mem.ReadPhys(plan.KernelPhys, buf))
	assert.Equal(t, []byte{0xAA, 0xAA, 0xAA, 0xAA}, buf, "first segment bytes")

	// Second segment sits at its vaddr delta from the lowest mapped address.
	require.NoError(t, mem.ReadPhys(plan.KernelPhys+0x100000, buf))
	assert.Equal(t, []byte{0xBB, 0xBB, 0xBB, 0xBB}, buf, "second segment bytes")

	// The [filesz, memsz) tail of the first segment is zero filled.
	tail := make([]byte, 0x2000)
	require.NoError(t, mem.ReadPhys(plan.KernelPhys+0x2000, tail))
	for i, b := range tail {
		if b != 0 {
			t.Fatalf("bss byte at +0x%X = 0x%02X, want zero fill", 0x2000+i, b)
		}
	}
}

func TestBootPlanServicePageTables(t *testing.T) {
	mem := physmem.NewImage(128 << 20)
	bps, err := NewBootPlanService(mem, defaultVideoSource())
	require.NoError(t, err)

	entry := uint64(0xFFFF_FFFF_8010_0000)
	kernel := buildKernelELF(entry, []bootTestSegment{
		{vaddr: entry, fill: 0xCC, filesz: 0x1000, memsz: 0x1000},
	})

	plan, err := bps.Stage(kernel)
	require.NoError(t, err)

	// The entry virtual address resolves to the relocated physical kernel.
	phys, ok := paging.Translate(mem, plan.PML4, plan.Entry)
	require.True(t, ok, "entry address must be mapped")
	assert.Equal(t, plan.KernelPhys, phys, "entry should translate to the relocated base")

	// Identity mapping still covers low memory and the framebuffer.
	for _, vaddr := range []uint64{0x1000, 0xB8000, 0x8000_0000} {
		phys, ok := paging.Translate(mem, plan.PML4, vaddr)
		require.True(t, ok, "identity address 0x%X must be mapped", vaddr)
		assert.Equal(t, vaddr, phys, "identity translation for 0x%X", vaddr)
	}
}

func TestBootPlanServiceBootInfoPage(t *testing.T) {
	mem := physmem.NewImage(128 << 20)
	video := defaultVideoSource()
	bps, err := NewBootPlanService(mem, video)
	require.NoError(t, err)

	entry := uint64(0xFFFF_FFFF_8010_0000)
	kernel := buildKernelELF(entry, []bootTestSegment{
		{vaddr: entry, fill: 0x11, filesz: 0x1000, memsz: 0x1000},
	})
	plan, err := bps.Stage(kernel)
	require.NoError(t, err)

	page := make([]byte, types.BootInfoPageSize)
	require.NoError(t, mem.ReadPhys(plan.BootInfoPhys, page))

	reader, err := bootinfo.NewBootInfoReader(page)
	require.NoError(t, err, "staged boot info page must parse")

	assert.Equal(t, video.mode, reader.VideoInfo(), "video descriptor round trip")

	kmap, ok := reader.KernelMap()
	require.True(t, ok, "kernel map must be present")
	assert.Equal(t, plan.KernelPhys, kmap.KernelPhysBase)
	assert.Equal(t, plan.Layout.MinVaddr, kmap.KernelVirtBase)
	assert.Equal(t, plan.Layout.Size, kmap.KernelSize)

	// DMA translation for the kernel base fits 32 bits.
	addr, err := reader.DMAAddr32(entry)
	require.NoError(t, err)
	assert.Equal(t, uint32(plan.KernelPhys), addr)
}

func TestBootPlanServiceErrors(t *testing.T) {
	t.Run("bad elf propagates", func(t *testing.T) {
		mem := physmem.NewImage(64 << 20)
		bps, err := NewBootPlanService(mem, defaultVideoSource())
		require.NoError(t, err)

		_, err = bps.Stage([]byte("not an elf"))
		assert.ErrorIs(t, err, elfimage.ErrBadELF)
	})

	t.Run("allocation failure", func(t *testing.T) {
		// Memory too small for the kernel region.
		mem := physmem.NewImage(64 << 10)
		bps, err := NewBootPlanService(mem, defaultVideoSource())
		require.NoError(t, err)

		entry := uint64(0xFFFF_FFFF_8010_0000)
		kernel := buildKernelELF(entry, []bootTestSegment{
			{vaddr: entry, fill: 0x22, filesz: 0x1000, memsz: 0x100000},
		})
		_, err = bps.Stage(kernel)
		assert.ErrorIs(t, err, ErrAlloc)
	})

	t.Run("video query failure", func(t *testing.T) {
		mem := physmem.NewImage(128 << 20)
		video := &stubVideoSource{err: fmt.Errorf("no modes")}
		bps, err := NewBootPlanService(mem, video)
		require.NoError(t, err)

		entry := uint64(0xFFFF_FFFF_8010_0000)
		kernel := buildKernelELF(entry, []bootTestSegment{
			{vaddr: entry, fill: 0x33, filesz: 0x1000, memsz: 0x1000},
		})
		_, err = bps.Stage(kernel)
		assert.ErrorIs(t, err, ErrNoGOP)
	})

	t.Run("unsupported bpp", func(t *testing.T) {
		mem := physmem.NewImage(128 << 20)
		video := defaultVideoSource()
		video.mode.BitsPerPix = 24
		bps, err := NewBootPlanService(mem, video)
		require.NoError(t, err)

		entry := uint64(0xFFFF_FFFF_8010_0000)
		kernel := buildKernelELF(entry, []bootTestSegment{
			{vaddr: entry, fill: 0x44, filesz: 0x1000, memsz: 0x1000},
		})
		_, err = bps.Stage(kernel)
		assert.ErrorIs(t, err, ErrNoGOP)
	})

	t.Run("media read failure", func(t *testing.T) {
		mem := physmem.NewImage(64 << 20)
		bps, err := NewBootPlanService(mem, defaultVideoSource())
		require.NoError(t, err)

		_, err = bps.StageFrom(&stubBootMedia{err: errors.New("sector error")})
		assert.ErrorIs(t, err, ErrIORead)
	})
}
