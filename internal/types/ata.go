package types

// ATA PIO (LBA28) constants for the primary IDE channel.
// Reference: ATA/ATAPI-6, PIO data-in/data-out command protocol.

const (
	AtaIoBase = 0x1F0

	AtaRegData     = 0x1F0 // 16-bit data window
	AtaRegError    = 0x1F1 // read: error; write: features
	AtaRegSecCount = 0x1F2
	AtaRegLBALow   = 0x1F3
	AtaRegLBAMid   = 0x1F4
	AtaRegLBAHigh  = 0x1F5
	AtaRegDrive    = 0x1F6
	AtaRegStatus   = 0x1F7 // read: status; write: command
)

// Status register bits.
const (
	AtaStatusErr  = 0x01
	AtaStatusDrq  = 0x08
	AtaStatusDrdy = 0x40
	AtaStatusBsy  = 0x80
)

// Commands.
const (
	AtaCmdReadSectors  = 0x20
	AtaCmdWriteSectors = 0x30
	AtaCmdIdentify     = 0xEC
)

const (
	// AtaDriveLBA selects the master device in LBA mode; the low nibble
	// carries LBA bits 24..27.
	AtaDriveLBA = 0xE0

	// AtaSectorSize is the transfer unit for LBA28 PIO.
	AtaSectorSize = 512

	// AtaWordsPerSector is the number of 16-bit data-port transfers per sector.
	AtaWordsPerSector = AtaSectorSize / 2

	// AtaPollLimit bounds every BSY/DRQ polling loop.
	AtaPollLimit = 1_000_000
)

// IDENTIFY data layout (word indices into the 256-word block).
const (
	AtaIdentSerialStart = 10 // 10 words, byte-swapped ASCII
	AtaIdentSerialWords = 10
	AtaIdentModelStart  = 27 // 20 words, byte-swapped ASCII
	AtaIdentModelWords  = 20
	AtaIdentLBA28Low    = 60 // total addressable sectors, low word
	AtaIdentLBA28High   = 61
)
