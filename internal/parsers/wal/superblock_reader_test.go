package wal

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/othello-os/go-othello/internal/types"
)

func TestSuperblockRoundTrip(t *testing.T) {
	sector := EncodeSuperblock(42)
	if len(sector) != types.WalSectorSize {
		t.Fatalf("EncodeSuperblock() length = %d, want %d", len(sector), types.WalSectorSize)
	}

	reader, err := NewSuperblockReader(sector)
	if err != nil {
		t.Fatalf("NewSuperblockReader() error = %v", err)
	}
	if got := reader.HeadRel(); got != 42 {
		t.Errorf("HeadRel() = %d, want 42", got)
	}
	if got := reader.Version(); got != types.WalSuperblockVersion {
		t.Errorf("Version() = %d, want %d", got, types.WalSuperblockVersion)
	}
	if got := reader.Checksum(); got != binary.LittleEndian.Uint32(sector[12:16]) {
		t.Errorf("Checksum() = 0x%08X, want stored field", got)
	}
}

func TestNewSuperblockReaderValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func([]byte) []byte
		wantErr error
	}{
		{
			name:    "truncated",
			mutate:  func(b []byte) []byte { return b[:8] },
			wantErr: ErrTruncated,
		},
		{
			name: "unformatted region",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[0:4], 0)
				return b
			},
			wantErr: ErrBadMagic,
		},
		{
			name: "newer version",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint16(b[4:6], 9)
				return b
			},
			wantErr: ErrUnsupportedVersion,
		},
		{
			name: "corrupted head",
			mutate: func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[8:12], 0xFFFF)
				return b
			},
			wantErr: ErrChecksumMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sector := tt.mutate(EncodeSuperblock(7))
			_, err := NewSuperblockReader(sector)
			if err == nil {
				t.Fatal("NewSuperblockReader() succeeded, want error")
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewSuperblockReader() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSuperblockVersionBeforeChecksum(t *testing.T) {
	// A foreign-version superblock reports the version problem even though
	// its checksum also fails our computation.
	sector := EncodeSuperblock(3)
	binary.LittleEndian.PutUint16(sector[4:6], 2)

	_, err := NewSuperblockReader(sector)
	if !errors.Is(err, ErrUnsupportedVersion) {
		t.Errorf("NewSuperblockReader() error = %v, want ErrUnsupportedVersion", err)
	}
}
