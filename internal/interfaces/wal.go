// File: internal/interfaces/wal.go
package interfaces

// WalSuperblockReader provides access to a validated log-region superblock
type WalSuperblockReader interface {
	// Version returns the on-disk format version
	Version() uint16

	// HeadRel returns the region-relative sector of the next append
	HeadRel() uint32

	// Checksum returns the stored CRC32 of the superblock prefix
	Checksum() uint32
}

// WalRecordReader provides access to a validated log record
type WalRecordReader interface {
	// Kind returns the record kind (put or delete)
	Kind() uint8

	// Path returns the absolute path the record applies to
	Path() string

	// Data returns the file contents of a put record (empty for deletes)
	Data() []byte

	// SectorCount returns how many sectors the record occupies on disk
	SectorCount() int
}
