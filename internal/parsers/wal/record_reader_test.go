package wal

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/othello-os/go-othello/internal/types"
)

func TestRecordRoundTrip(t *testing.T) {
	tests := []struct {
		name        string
		kind        uint8
		path        string
		data        []byte
		wantSectors int
	}{
		{
			name:        "small put",
			kind:        types.WalKindPut,
			path:        "/a",
			data:        []byte("hi"),
			wantSectors: 1,
		},
		{
			name:        "empty file put",
			kind:        types.WalKindPut,
			path:        "/empty",
			data:        nil,
			wantSectors: 1,
		},
		{
			name:        "delete",
			kind:        types.WalKindDel,
			path:        "/gone",
			data:        nil,
			wantSectors: 1,
		},
		{
			name:        "directory",
			kind:        types.WalKindMkdir,
			path:        "/home/user",
			data:        nil,
			wantSectors: 1,
		},
		{
			name:        "payload spanning sectors",
			kind:        types.WalKindPut,
			path:        "/big",
			data:        bytes.Repeat([]byte{0x5A}, 1200),
			wantSectors: 3,
		},
		{
			name:        "exactly one sector",
			kind:        types.WalKindPut,
			path:        "/x",
			data:        bytes.Repeat([]byte{1}, types.WalSectorSize-types.WalRecordHeaderSize-2),
			wantSectors: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeRecord(tt.kind, tt.path, tt.data)
			if err != nil {
				t.Fatalf("EncodeRecord() error = %v", err)
			}
			if len(encoded) != tt.wantSectors*types.WalSectorSize {
				t.Fatalf("EncodeRecord() length = %d, want %d sectors",
					len(encoded), tt.wantSectors)
			}

			reader, err := NewRecordReader(encoded)
			if err != nil {
				t.Fatalf("NewRecordReader() error = %v", err)
			}
			if reader.Kind() != tt.kind {
				t.Errorf("Kind() = %d, want %d", reader.Kind(), tt.kind)
			}
			if reader.Path() != tt.path {
				t.Errorf("Path() = %q, want %q", reader.Path(), tt.path)
			}
			if !bytes.Equal(reader.Data(), tt.data) {
				t.Errorf("Data() = %d bytes, want %d bytes", len(reader.Data()), len(tt.data))
			}
			if reader.SectorCount() != tt.wantSectors {
				t.Errorf("SectorCount() = %d, want %d", reader.SectorCount(), tt.wantSectors)
			}
		})
	}
}

func TestParseRecordHeader(t *testing.T) {
	encoded, err := EncodeRecord(types.WalKindPut, "/file", []byte("data"))
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	hdr, err := ParseRecordHeader(encoded[:types.WalSectorSize])
	if err != nil {
		t.Fatalf("ParseRecordHeader() error = %v", err)
	}
	if hdr.Kind != types.WalKindPut {
		t.Errorf("header kind = %d, want PUT", hdr.Kind)
	}
	if hdr.PathLen != 5 || hdr.DataLen != 4 {
		t.Errorf("header lengths = (%d, %d), want (5, 4)", hdr.PathLen, hdr.DataLen)
	}
}

func TestRecordCorruptionDetected(t *testing.T) {
	encoded, err := EncodeRecord(types.WalKindPut, "/file", []byte("payload"))
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	tests := []struct {
		name    string
		mutate  func([]byte)
		wantErr error
	}{
		{
			name:    "flipped data byte",
			mutate:  func(b []byte) { b[types.WalRecordHeaderSize+5] ^= 0xFF },
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "flipped kind",
			mutate:  func(b []byte) { b[4] = types.WalKindDel },
			wantErr: ErrChecksumMismatch,
		},
		{
			name:    "foreign magic",
			mutate:  func(b []byte) { b[0] = 0xEE },
			wantErr: ErrBadMagic,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			corrupt := make([]byte, len(encoded))
			copy(corrupt, encoded)
			tt.mutate(corrupt)

			_, err := NewRecordReader(corrupt)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("NewRecordReader() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestRecordTruncatedPayload(t *testing.T) {
	encoded, err := EncodeRecord(types.WalKindPut, "/big", bytes.Repeat([]byte{9}, 800))
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}

	_, err = NewRecordReader(encoded[:types.WalSectorSize])
	if !errors.Is(err, ErrTruncated) {
		t.Errorf("NewRecordReader() error = %v, want ErrTruncated", err)
	}
}

func TestEncodeRecordLimits(t *testing.T) {
	_, err := EncodeRecord(types.WalKindPut, "/"+strings.Repeat("p", 0x10000), nil)
	if !errors.Is(err, ErrRecordTooLarge) {
		t.Errorf("EncodeRecord() error = %v, want ErrRecordTooLarge", err)
	}
}

func TestIsEndOfLog(t *testing.T) {
	zero := make([]byte, types.WalSectorSize)
	if !IsEndOfLog(zero) {
		t.Error("IsEndOfLog(zero sector) = false, want true")
	}

	record, err := EncodeRecord(types.WalKindDel, "/x", nil)
	if err != nil {
		t.Fatalf("EncodeRecord() error = %v", err)
	}
	if IsEndOfLog(record) {
		t.Error("IsEndOfLog(record) = true, want false")
	}
	if IsEndOfLog(zero[:2]) {
		t.Error("IsEndOfLog(short buffer) = true, want false")
	}
}

func BenchmarkEncodeRecord(b *testing.B) {
	data := bytes.Repeat([]byte{0xAB}, 4096)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := EncodeRecord(types.WalKindPut, "/bench/file", data); err != nil {
			b.Fatal(err)
		}
	}
}
