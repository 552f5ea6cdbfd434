package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"unicode/utf8"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrRecordTooLarge indicates a record whose path or data exceeds the
	// header field ranges.
	ErrRecordTooLarge = errors.New("log record too large")

	// ErrBadPath indicates record path bytes that are not valid UTF-8.
	ErrBadPath = errors.New("log record path not valid UTF-8")
)

// recordReader implements the WalRecordReader interface
type recordReader struct {
	header types.WalRecordHeader
	path   string
	data   []byte
}

// IsEndOfLog reports whether the sector starts the log terminator: a record
// slot whose magic is zero.
func IsEndOfLog(sector []byte) bool {
	return len(sector) >= 4 && binary.LittleEndian.Uint32(sector[0:4]) == 0
}

// ParseRecordHeader decodes the fixed 16-byte record prefix without touching
// the payload. Callers use it to size the continuation read before full
// validation.
func ParseRecordHeader(sector []byte) (types.WalRecordHeader, error) {
	var hdr types.WalRecordHeader
	if len(sector) < types.WalRecordHeaderSize {
		return hdr, fmt.Errorf("%w: record header needs %d bytes, got %d",
			ErrTruncated, types.WalRecordHeaderSize, len(sector))
	}
	le := binary.LittleEndian

	hdr.Magic = le.Uint32(sector[0:4])
	if hdr.Magic != types.WalRecordMagic {
		return hdr, fmt.Errorf("%w: 0x%08X", ErrBadMagic, hdr.Magic)
	}
	hdr.Kind = sector[4]
	hdr.PathLen = le.Uint16(sector[6:8])
	hdr.DataLen = le.Uint32(sector[8:12])
	hdr.Crc = le.Uint32(sector[12:16])
	return hdr, nil
}

// NewRecordReader parses and verifies a complete record. data must hold the
// header and the full payload; the stored CRC32 covers bytes [4..16) of the
// header followed by the path and data bytes.
func NewRecordReader(data []byte) (interfaces.WalRecordReader, error) {
	hdr, err := ParseRecordHeader(data)
	if err != nil {
		return nil, err
	}

	total := types.WalRecordHeaderSize + int(hdr.PathLen) + int(hdr.DataLen)
	if len(data) < total {
		return nil, fmt.Errorf("%w: record needs %d bytes, got %d",
			ErrTruncated, total, len(data))
	}

	if calc := recordChecksum(data[:total]); calc != hdr.Crc {
		return nil, fmt.Errorf("%w: stored 0x%08X, computed 0x%08X",
			ErrChecksumMismatch, hdr.Crc, calc)
	}

	pathBytes := data[types.WalRecordHeaderSize : types.WalRecordHeaderSize+int(hdr.PathLen)]
	if !utf8.Valid(pathBytes) {
		return nil, ErrBadPath
	}

	payload := make([]byte, hdr.DataLen)
	copy(payload, data[types.WalRecordHeaderSize+int(hdr.PathLen):total])

	return &recordReader{
		header: hdr,
		path:   string(pathBytes),
		data:   payload,
	}, nil
}

// Kind returns the record kind.
func (rr *recordReader) Kind() uint8 {
	return rr.header.Kind
}

// Path returns the absolute path the record applies to.
func (rr *recordReader) Path() string {
	return rr.path
}

// Data returns the record payload.
func (rr *recordReader) Data() []byte {
	return rr.data
}

// SectorCount returns how many sectors the record occupies on disk.
func (rr *recordReader) SectorCount() int {
	return types.WalRecordSectors(int(rr.header.PathLen), int(rr.header.DataLen))
}

// EncodeRecord serializes a record padded to whole sectors. The CRC field is
// excluded from its own coverage, so verification is independent of when the
// field is filled in.
func EncodeRecord(kind uint8, path string, data []byte) ([]byte, error) {
	pathLen := len(path)
	dataLen := len(data)
	if pathLen > 0xFFFF {
		return nil, fmt.Errorf("%w: path of %d bytes", ErrRecordTooLarge, pathLen)
	}
	if uint64(dataLen) > 0xFFFF_FFFF {
		return nil, fmt.Errorf("%w: data of %d bytes", ErrRecordTooLarge, dataLen)
	}

	sectors := types.WalRecordSectors(pathLen, dataLen)
	buf := make([]byte, sectors*types.WalSectorSize)
	le := binary.LittleEndian

	le.PutUint32(buf[0:4], types.WalRecordMagic)
	buf[4] = kind
	le.PutUint16(buf[6:8], uint16(pathLen))
	le.PutUint32(buf[8:12], uint32(dataLen))
	copy(buf[types.WalRecordHeaderSize:], path)
	copy(buf[types.WalRecordHeaderSize+pathLen:], data)

	total := types.WalRecordHeaderSize + pathLen + dataLen
	le.PutUint32(buf[12:16], recordChecksum(buf[:total]))
	return buf, nil
}

// recordChecksum computes the record CRC32: header bytes after the magic and
// before the CRC field, then path and data.
func recordChecksum(record []byte) uint32 {
	h := crc32.NewIEEE()
	h.Write(record[4:12])
	h.Write(record[types.WalRecordHeaderSize:])
	return h.Sum32()
}
