package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrTruncated indicates a buffer smaller than the structure it should
	// contain.
	ErrTruncated = errors.New("log structure truncated")

	// ErrBadMagic indicates an unformatted or foreign region.
	ErrBadMagic = errors.New("invalid log magic")

	// ErrUnsupportedVersion indicates a superblock written by a newer layout.
	ErrUnsupportedVersion = errors.New("unsupported log version")

	// ErrChecksumMismatch indicates a structure whose stored CRC32 does not
	// match its contents.
	ErrChecksumMismatch = errors.New("log checksum mismatch")
)

// superblockReader implements the WalSuperblockReader interface
type superblockReader struct {
	superblock types.WalSuperblock
}

// NewSuperblockReader parses the region superblock from its sector. The
// stored CRC32 covers the first 12 bytes (magic, version, reserved, head).
func NewSuperblockReader(data []byte) (interfaces.WalSuperblockReader, error) {
	if len(data) < types.WalSuperblockSize {
		return nil, fmt.Errorf("%w: superblock needs %d bytes, got %d",
			ErrTruncated, types.WalSuperblockSize, len(data))
	}
	le := binary.LittleEndian

	magic := le.Uint32(data[0:4])
	if magic != types.WalSuperblockMagic {
		return nil, fmt.Errorf("%w: 0x%08X", ErrBadMagic, magic)
	}

	version := le.Uint16(data[4:6])
	if version != types.WalSuperblockVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	stored := le.Uint32(data[12:16])
	if calc := crc32.ChecksumIEEE(data[0:12]); calc != stored {
		return nil, fmt.Errorf("%w: stored 0x%08X, computed 0x%08X",
			ErrChecksumMismatch, stored, calc)
	}

	return &superblockReader{
		superblock: types.WalSuperblock{
			Magic:   magic,
			Version: version,
			HeadRel: le.Uint32(data[8:12]),
			Crc:     stored,
		},
	}, nil
}

// Version returns the on-disk layout version.
func (sr *superblockReader) Version() uint16 {
	return sr.superblock.Version
}

// HeadRel returns the region-relative sector of the next append.
func (sr *superblockReader) HeadRel() uint32 {
	return sr.superblock.HeadRel
}

// Checksum returns the stored superblock CRC32.
func (sr *superblockReader) Checksum() uint32 {
	return sr.superblock.Crc
}

// EncodeSuperblock serializes a superblock sector for the given head.
func EncodeSuperblock(headRel uint32) []byte {
	sector := make([]byte, types.WalSectorSize)
	le := binary.LittleEndian

	le.PutUint32(sector[0:4], types.WalSuperblockMagic)
	le.PutUint16(sector[4:6], types.WalSuperblockVersion)
	le.PutUint32(sector[8:12], headRel)
	le.PutUint32(sector[12:16], crc32.ChecksumIEEE(sector[0:12]))
	return sector
}
