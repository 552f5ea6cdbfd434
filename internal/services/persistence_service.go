package services

import (
	"errors"
	"fmt"
	"log"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/parsers/wal"
	"github.com/othello-os/go-othello/internal/ramfs"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrCorrupt indicates the log region failed magic or checksum
	// validation.
	ErrCorrupt = errors.New("persistent log is corrupt")

	// ErrNoSpace indicates the log region cannot hold the next record.
	ErrNoSpace = errors.New("no space left in persistent log region")

	// ErrDisabled indicates persistence is unavailable on this disk.
	ErrDisabled = errors.New("persistence is disabled")
)

const (
	// persistMinDiskSectors is the smallest disk that carries a log region
	// at all.
	persistMinDiskSectors = 16384

	// formatWipeSectors is how much of the region Format zeroes before
	// writing the fresh superblock.
	formatWipeSectors = 128
)

// PersistenceService keeps a RAM filesystem durable through an append-only
// record log in the tail region of a disk. Mount loads the region
// superblock, Replay rebuilds the filesystem from the log, and Sync appends
// records for everything dirtied since.
type PersistenceService struct {
	device  interfaces.BlockDevice
	fs      *ramfs.RamFS
	baseLBA uint32
	reserve uint32
	headRel uint32
	mounted bool
}

// NewPersistenceService sizes the log region on the given device. The
// region is the disk tail: the last WalReservedSectors sectors, or a
// quarter of a disk too small to give that up. Disks under
// persistMinDiskSectors get no region and persistence stays disabled.
func NewPersistenceService(device interfaces.BlockDevice, fs *ramfs.RamFS) (*PersistenceService, error) {
	if fs == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if device == nil {
		return nil, ErrDisabled
	}

	total := device.TotalSectors()
	if total < persistMinDiskSectors {
		return nil, fmt.Errorf("disk of %d sectors is too small: %w", total, ErrDisabled)
	}

	reserve := uint32(types.WalReservedSectors)
	if total <= types.WalReservedSectors {
		reserve = uint32(total / 4)
	}

	return &PersistenceService{
		device:  device,
		fs:      fs,
		baseLBA: uint32(total) - reserve,
		reserve: reserve,
	}, nil
}

// Enabled reports whether the service has a usable, mounted region.
func (p *PersistenceService) Enabled() bool {
	return p.mounted
}

// BaseLBA returns the first sector of the log region.
func (p *PersistenceService) BaseLBA() uint32 {
	return p.baseLBA
}

// RegionSectors returns the size of the log region in sectors.
func (p *PersistenceService) RegionSectors() uint32 {
	return p.reserve
}

// Head returns the region-relative sector where the next record goes.
func (p *PersistenceService) Head() uint32 {
	return p.headRel
}

// FreeSectors returns how many record sectors the region can still take.
func (p *PersistenceService) FreeSectors() uint32 {
	if !p.mounted || p.headRel >= p.reserve {
		return 0
	}
	return p.reserve - p.headRel
}

// Mount loads the region superblock. A region without the magic has never
// been used and is formatted in place with an empty log. A superblock with
// an unknown version disables the service; a bad checksum reports
// ErrCorrupt.
func (p *PersistenceService) Mount() error {
	sector := make([]byte, types.WalSectorSize)
	if err := p.device.ReadSector(p.baseLBA, sector); err != nil {
		return fmt.Errorf("failed to read superblock: %w", err)
	}

	sb, err := wal.NewSuperblockReader(sector)
	switch {
	case err == nil:
		head := sb.HeadRel()
		if head < 1 {
			head = 1
		}
		p.headRel = head
		p.mounted = true
		return nil

	case errors.Is(err, wal.ErrBadMagic):
		// Virgin region: start an empty log.
		p.headRel = 1
		if werr := p.writeSuperblock(); werr != nil {
			return werr
		}
		p.mounted = true
		return nil

	case errors.Is(err, wal.ErrUnsupportedVersion):
		return fmt.Errorf("superblock version is not supported: %w", ErrDisabled)

	case errors.Is(err, wal.ErrChecksumMismatch):
		return fmt.Errorf("superblock checksum mismatch: %w", ErrCorrupt)

	default:
		return fmt.Errorf("failed to parse superblock: %w", err)
	}
}

// Replay walks the log from the start of the region to the head and applies
// every record to the filesystem without dirtying it. Unknown record kinds
// are skipped. A record that fails magic, checksum or path validation stops
// the replay, disables the service and reports ErrCorrupt; records applied
// up to that point remain in the filesystem.
func (p *PersistenceService) Replay() (int, error) {
	if !p.mounted {
		return 0, ErrDisabled
	}

	applied := 0
	rel := uint32(1)
	sector := make([]byte, types.WalSectorSize)

	for rel < p.headRel {
		if err := p.device.ReadSector(p.baseLBA+rel, sector); err != nil {
			return applied, fmt.Errorf("failed to read record at +%d: %w", rel, err)
		}
		if wal.IsEndOfLog(sector) {
			break
		}

		header, err := wal.ParseRecordHeader(sector)
		if err != nil {
			p.mounted = false
			return applied, fmt.Errorf("record at +%d: %w", rel, ErrCorrupt)
		}

		sectors := types.WalRecordSectors(int(header.PathLen), int(header.DataLen))
		record := sector
		if sectors > 1 {
			record = make([]byte, sectors*types.WalSectorSize)
			copy(record, sector)
			for i := 1; i < sectors; i++ {
				chunk := record[i*types.WalSectorSize : (i+1)*types.WalSectorSize]
				if err := p.device.ReadSector(p.baseLBA+rel+uint32(i), chunk); err != nil {
					return applied, fmt.Errorf("failed to read record at +%d: %w", rel, err)
				}
			}
		}

		reader, err := wal.NewRecordReader(record)
		if err != nil {
			p.mounted = false
			return applied, fmt.Errorf("record at +%d: %w", rel, ErrCorrupt)
		}

		// Apply errors are tolerated so one odd record cannot shadow
		// the rest of the log.
		switch reader.Kind() {
		case types.WalKindPut:
			_ = p.fs.ApplyPut(reader.Path(), reader.Data())
			applied++
		case types.WalKindMkdir:
			_ = p.fs.ApplyMkdir(reader.Path())
			applied++
		case types.WalKindDel:
			_ = p.fs.ApplyDel(reader.Path())
			applied++
		}

		rel += uint32(sectors)
	}

	return applied, nil
}

// Sync appends one record per dirty path: deletes first, then puts in
// lexical order, so parent directories precede their children. Paths that
// vanished since they were dirtied are skipped. If an append fails, the
// paths not yet written are marked dirty again for the next sync. Returns
// the number of records written.
func (p *PersistenceService) Sync() (int, error) {
	if !p.mounted {
		return 0, ErrDisabled
	}

	puts, dels := p.fs.TakeDirtySets()
	wrote := 0

	for i, path := range dels {
		if err := p.appendRecord(types.WalKindDel, path, nil); err != nil {
			p.fs.RestoreDirty(puts, dels[i:])
			return wrote, err
		}
		wrote++
	}

	for i, path := range puts {
		var kind uint8
		var data []byte
		switch {
		case p.fs.IsDir(path):
			kind = types.WalKindMkdir
		case p.fs.Exists(path):
			bytes, err := p.fs.ReadAll(path)
			if err != nil {
				continue
			}
			kind = types.WalKindPut
			data = bytes
		default:
			log.Printf("Warning: dirty path %s vanished before sync, skipping", path)
			continue
		}

		if err := p.appendRecord(kind, path, data); err != nil {
			p.fs.RestoreDirty(puts[i:], nil)
			return wrote, err
		}
		wrote++
	}

	return wrote, nil
}

// Format wipes the head of the region and writes a fresh superblock with an
// empty log. It works on an unmounted service, which is how a corrupt
// region is recovered.
func (p *PersistenceService) Format() error {
	zero := make([]byte, types.WalSectorSize)
	wipe := uint32(formatWipeSectors)
	if wipe > p.reserve {
		wipe = p.reserve
	}
	for i := uint32(0); i < wipe; i++ {
		if err := p.device.WriteSector(p.baseLBA+i, zero); err != nil {
			return fmt.Errorf("failed to wipe region sector +%d: %w", i, err)
		}
	}

	p.headRel = 1
	p.mounted = true
	return p.writeSuperblock()
}

// appendRecord writes the record sectors at the head, then advances the
// head and rewrites the superblock. A failed sector write leaves the head
// untouched, so the partial record stays beyond the end of the log.
func (p *PersistenceService) appendRecord(kind uint8, path string, data []byte) error {
	record, err := wal.EncodeRecord(kind, path, data)
	if err != nil {
		return fmt.Errorf("failed to encode record for %s: %w", path, err)
	}

	sectors := uint32(len(record) / types.WalSectorSize)
	if p.headRel+sectors >= p.reserve {
		return fmt.Errorf("record of %d sectors at head %d: %w", sectors, p.headRel, ErrNoSpace)
	}

	for i := uint32(0); i < sectors; i++ {
		chunk := record[i*types.WalSectorSize : (i+1)*types.WalSectorSize]
		if err := p.device.WriteSector(p.baseLBA+p.headRel+i, chunk); err != nil {
			return fmt.Errorf("failed to write record sector +%d: %w", p.headRel+i, err)
		}
	}

	p.headRel += sectors
	return p.writeSuperblock()
}

func (p *PersistenceService) writeSuperblock() error {
	if err := p.device.WriteSector(p.baseLBA, wal.EncodeSuperblock(p.headRel)); err != nil {
		return fmt.Errorf("failed to write superblock: %w", err)
	}
	return nil
}
