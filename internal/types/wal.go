package types

// Persistent log layout. The log lives in the last WalReservedSectors sectors
// of the disk: a superblock in sector 0 of the region, records from sector 1.
// All fields little-endian.

const (
	// WalSectorSize is the unit of log I/O.
	WalSectorSize = 512

	// WalReservedSectors is the size of the tail region (32 MiB).
	WalReservedSectors = 65536

	// WalSuperblockMagic identifies a formatted region ("OFSB").
	WalSuperblockMagic = 0x4F465342

	// WalSuperblockVersion is the only on-disk version in use.
	WalSuperblockVersion = 1

	// WalSuperblockSize is the meaningful prefix of the superblock sector:
	// u32 magic, u16 version, u16 reserved, u32 head_rel, u32 crc.
	WalSuperblockSize = 16

	// WalRecordMagic starts every record ("OFS1"). A zero magic terminates
	// the log.
	WalRecordMagic = 0x4F465331

	// WalRecordHeaderSize is the fixed record prefix:
	// u32 magic, u8 kind, u8 pad, u16 path_len, u32 data_len, u32 crc.
	WalRecordHeaderSize = 16
)

// Record kinds. Replay skips kinds it does not recognize, so new kinds stay
// compatible with older readers.
const (
	WalKindPut   = 1
	WalKindDel   = 2
	WalKindMkdir = 3
)

// WalSuperblock is the parsed region superblock. HeadRel is the
// region-relative sector at which the next record will be appended.
type WalSuperblock struct {
	Magic   uint32
	Version uint16
	HeadRel uint32
	Crc     uint32
}

// WalRecordHeader is the parsed fixed prefix of a log record. The CRC covers
// kind, pad, path_len, data_len, then the path and data bytes.
type WalRecordHeader struct {
	Magic   uint32
	Kind    uint8
	PathLen uint16
	DataLen uint32
	Crc     uint32
}

// WalRecordSectors returns how many sectors a record with the given path and
// data lengths occupies on disk.
func WalRecordSectors(pathLen, dataLen int) int {
	total := WalRecordHeaderSize + pathLen + dataLen
	return (total + WalSectorSize - 1) / WalSectorSize
}
