package types

// Disk image file layout. An image is a header sector followed by the raw
// payload the ATA model exposes as sectors [0..PayloadSectors). The header is
// tooling metadata only; kernel-side code never sees it.

const (
	// DiskImageMagic identifies an image header sector ("OTHD").
	DiskImageMagic = 0x4F544844

	// DiskImageVersion is the current header layout version.
	DiskImageVersion = 1

	// DiskImageHeaderSectors is the tooling prefix excluded from the
	// ATA-visible payload.
	DiskImageHeaderSectors = 1

	// DiskImageSerialLen is the stored serial length (UUID string prefix,
	// padded with spaces).
	DiskImageSerialLen = 20

	// DiskImageDefaultSectors sizes newly created images (64 MiB): room for
	// the reserved log tail plus general storage.
	DiskImageDefaultSectors = 131072
)

// DiskImageHeader is the parsed tooling header: u32 magic, u16 version,
// u16 reserved, u64 payload sectors, 20 bytes serial, zero pad. Little-endian.
type DiskImageHeader struct {
	Magic          uint32
	Version        uint16
	PayloadSectors uint64
	Serial         string
}
