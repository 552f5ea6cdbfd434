// File: internal/interfaces/block_device.go
package interfaces

import "io"

// BlockDeviceReader provides methods for reading from sector devices
type BlockDeviceReader interface {
	// ReadSector reads one 512-byte sector into buf
	ReadSector(lba uint32, buf []byte) error

	// SectorSize returns the size of a single sector in bytes
	SectorSize() int

	// TotalSectors returns the number of addressable sectors on the device
	TotalSectors() uint64
}

// BlockDeviceWriter provides methods for writing to sector devices
type BlockDeviceWriter interface {
	// WriteSector writes one 512-byte sector from buf
	WriteSector(lba uint32, buf []byte) error
}

// BlockDeviceInfo provides identification for a sector device
type BlockDeviceInfo interface {
	// SerialNumber returns the device serial number
	SerialNumber() string

	// ModelNumber returns the device model string
	ModelNumber() string
}

// BlockDevice represents a complete sector device
type BlockDevice interface {
	BlockDeviceReader
	BlockDeviceWriter
	BlockDeviceInfo
	io.Closer
}
