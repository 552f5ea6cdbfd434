// File: internal/interfaces/elf_image.go
package interfaces

import "github.com/othello-os/go-othello/internal/types"

// ELFImage provides access to a validated ELF64 kernel image
type ELFImage interface {
	// Entry returns the virtual entry point address
	Entry() uint64

	// ProgramHeaders returns all parsed program headers in file order
	ProgramHeaders() []types.ElfProgramHeader

	// SegmentData returns the file bytes of a segment (p_filesz bytes at
	// p_offset)
	SegmentData(ph types.ElfProgramHeader) ([]byte, error)
}
