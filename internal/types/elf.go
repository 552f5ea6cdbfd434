package types

// ELF64 constants used by the kernel image loader.
// Reference: System V ABI, ELF-64 object file format.

const (
	// ElfHeaderSize is the size of the ELF64 file header.
	ElfHeaderSize = 64

	// ElfPhdrSize is the size of one ELF64 program header.
	ElfPhdrSize = 56

	ElfClass64       = 2 // e_ident[EI_CLASS]
	ElfDataLE        = 1 // e_ident[EI_DATA]
	ElfVersionCur    = 1 // e_ident[EI_VERSION]
	ElfMachineX86_64 = 0x3E

	// ElfPtLoad marks a program header whose segment is copied into memory.
	ElfPtLoad = 1
)

// ELF64 file header field offsets.
const (
	ElfOffIdentMagic   = 0  // 4 bytes: 0x7F 'E' 'L' 'F'
	ElfOffIdentClass   = 4  // 1 byte
	ElfOffIdentData    = 5  // 1 byte
	ElfOffIdentVersion = 6  // 1 byte
	ElfOffType         = 16 // u16
	ElfOffMachine      = 18 // u16
	ElfOffEntry        = 24 // u64
	ElfOffPhoff        = 32 // u64
	ElfOffPhentsize    = 54 // u16
	ElfOffPhnum        = 56 // u16
)

// ELF64 program header field offsets.
const (
	ElfPhOffType   = 0  // u32
	ElfPhOffFlags  = 4  // u32
	ElfPhOffOffset = 8  // u64
	ElfPhOffVaddr  = 16 // u64
	ElfPhOffPaddr  = 24 // u64
	ElfPhOffFilesz = 32 // u64
	ElfPhOffMemsz  = 40 // u64
	ElfPhOffAlign  = 48 // u64
)

// ElfMagic is the four identification bytes at the start of every ELF file.
var ElfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// ElfProgramHeader is one parsed ELF64 program header.
type ElfProgramHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}
