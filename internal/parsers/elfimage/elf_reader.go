package elfimage

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// Validation failures of the boot path.
var (
	// ErrBadELF covers malformed or truncated images.
	ErrBadELF = errors.New("bad elf image")

	// ErrUnsupportedArch covers well-formed images for the wrong machine.
	ErrUnsupportedArch = errors.New("unsupported architecture")
)

// elfReader implements the ELFImage interface
type elfReader struct {
	data    []byte
	entry   uint64
	headers []types.ElfProgramHeader
}

// NewELFReader validates an ELF64 kernel image and exposes its program
// headers. The boot protocol only accepts little-endian x86-64 executables,
// so byte order is fixed rather than parameterized.
func NewELFReader(data []byte) (interfaces.ELFImage, error) {
	if len(data) < types.ElfHeaderSize {
		return nil, fmt.Errorf("%w: %d bytes is smaller than the file header", ErrBadELF, len(data))
	}

	if data[0] != types.ElfMagic[0] || data[1] != types.ElfMagic[1] ||
		data[2] != types.ElfMagic[2] || data[3] != types.ElfMagic[3] {
		return nil, fmt.Errorf("%w: invalid magic 0x%02X%02X%02X%02X",
			ErrBadELF, data[0], data[1], data[2], data[3])
	}

	if data[types.ElfOffIdentClass] != types.ElfClass64 {
		return nil, fmt.Errorf("%w: class %d, want ELF64", ErrBadELF, data[types.ElfOffIdentClass])
	}
	if data[types.ElfOffIdentData] != types.ElfDataLE {
		return nil, fmt.Errorf("%w: data encoding %d, want little-endian", ErrBadELF, data[types.ElfOffIdentData])
	}
	if data[types.ElfOffIdentVersion] != types.ElfVersionCur {
		return nil, fmt.Errorf("%w: ident version %d", ErrBadELF, data[types.ElfOffIdentVersion])
	}

	le := binary.LittleEndian
	machine := le.Uint16(data[types.ElfOffMachine : types.ElfOffMachine+2])
	if machine != types.ElfMachineX86_64 {
		return nil, fmt.Errorf("%w: machine 0x%02X, want x86-64 (0x3E)", ErrUnsupportedArch, machine)
	}

	phoff := le.Uint64(data[types.ElfOffPhoff : types.ElfOffPhoff+8])
	phentsize := int(le.Uint16(data[types.ElfOffPhentsize : types.ElfOffPhentsize+2]))
	phnum := int(le.Uint16(data[types.ElfOffPhnum : types.ElfOffPhnum+2]))

	if phnum > 0 && phentsize < types.ElfPhdrSize {
		return nil, fmt.Errorf("%w: program header entry size %d", ErrBadELF, phentsize)
	}
	end := phoff + uint64(phnum)*uint64(phentsize)
	if end < phoff || end > uint64(len(data)) {
		return nil, fmt.Errorf("%w: program header table [0x%X..0x%X) outside file", ErrBadELF, phoff, end)
	}

	headers := make([]types.ElfProgramHeader, 0, phnum)
	for i := 0; i < phnum; i++ {
		base := phoff + uint64(i)*uint64(phentsize)
		ph := data[base : base+types.ElfPhdrSize]
		headers = append(headers, types.ElfProgramHeader{
			Type:   le.Uint32(ph[types.ElfPhOffType : types.ElfPhOffType+4]),
			Flags:  le.Uint32(ph[types.ElfPhOffFlags : types.ElfPhOffFlags+4]),
			Offset: le.Uint64(ph[types.ElfPhOffOffset : types.ElfPhOffOffset+8]),
			Vaddr:  le.Uint64(ph[types.ElfPhOffVaddr : types.ElfPhOffVaddr+8]),
			Paddr:  le.Uint64(ph[types.ElfPhOffPaddr : types.ElfPhOffPaddr+8]),
			Filesz: le.Uint64(ph[types.ElfPhOffFilesz : types.ElfPhOffFilesz+8]),
			Memsz:  le.Uint64(ph[types.ElfPhOffMemsz : types.ElfPhOffMemsz+8]),
			Align:  le.Uint64(ph[types.ElfPhOffAlign : types.ElfPhOffAlign+8]),
		})
	}

	return &elfReader{
		data:    data,
		entry:   le.Uint64(data[types.ElfOffEntry : types.ElfOffEntry+8]),
		headers: headers,
	}, nil
}

// Entry returns the virtual entry point address
func (r *elfReader) Entry() uint64 {
	return r.entry
}

// ProgramHeaders returns all parsed program headers in file order
func (r *elfReader) ProgramHeaders() []types.ElfProgramHeader {
	return r.headers
}

// SegmentData returns the file bytes of a segment
func (r *elfReader) SegmentData(ph types.ElfProgramHeader) ([]byte, error) {
	end := ph.Offset + ph.Filesz
	if end < ph.Offset || end > uint64(len(r.data)) {
		return nil, fmt.Errorf("%w: segment file range [0x%X..0x%X) outside file",
			ErrBadELF, ph.Offset, end)
	}
	return r.data[ph.Offset:end], nil
}
