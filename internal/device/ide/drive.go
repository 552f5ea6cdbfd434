package ide

import (
	"errors"
	"fmt"
	"strings"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrNoDevice indicates no drive answered on the primary channel.
	ErrNoDevice = errors.New("no device on primary ATA channel")

	// ErrTimeout indicates a status poll exhausted its iteration bound.
	ErrTimeout = errors.New("ATA status poll timed out")
)

// DeviceError carries the ATA error register captured when a command
// failed.
type DeviceError struct {
	Code uint8
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("ATA device error 0x%02X", e.Code)
}

// Short-buffer failures reuse the device error path with reserved codes, so
// callers handle one error shape for all command failures.
const (
	codeShortReadBuf  = 0xFF
	codeShortWriteBuf = 0xFE
)

// maxSectorsPerCommand is the LBA28 transfer ceiling; a zero count register
// means 256 sectors.
const maxSectorsPerCommand = 256

// Drive is an ATA drive on the primary channel, reached through port I/O.
// Larger transfers are split into LBA28-sized commands transparently.
type Drive struct {
	io     interfaces.PortIO
	total  uint32
	serial string
	model  string
}

// Identify probes the primary channel with IDENTIFY DEVICE and returns a
// Drive on success. A zero status register or a zero sector count means no
// usable drive is attached.
func Identify(portIO interfaces.PortIO) (*Drive, error) {
	if portIO == nil {
		return nil, fmt.Errorf("port I/O is required")
	}

	d := &Drive{io: portIO}

	d.io.Outb(types.AtaRegDrive, types.AtaDriveLBA)
	d.io.Outb(types.AtaRegSecCount, 0)
	d.io.Outb(types.AtaRegLBALow, 0)
	d.io.Outb(types.AtaRegLBAMid, 0)
	d.io.Outb(types.AtaRegLBAHigh, 0)
	d.io.Outb(types.AtaRegStatus, types.AtaCmdIdentify)

	if st := d.io.Inb(types.AtaRegStatus); st == 0 {
		return nil, ErrNoDevice
	}
	if err := d.pollReady(); err != nil {
		return nil, fmt.Errorf("IDENTIFY: %w", err)
	}

	identify := make([]uint16, types.AtaWordsPerSector)
	for i := range identify {
		identify[i] = d.io.Inw(types.AtaRegData)
	}

	d.total = uint32(identify[types.AtaIdentLBA28High])<<16 |
		uint32(identify[types.AtaIdentLBA28Low])
	if d.total == 0 {
		return nil, ErrNoDevice
	}

	d.serial = decodeIdentifyString(identify[types.AtaIdentSerialStart : types.AtaIdentSerialStart+types.AtaIdentSerialWords])
	d.model = decodeIdentifyString(identify[types.AtaIdentModelStart : types.AtaIdentModelStart+types.AtaIdentModelWords])

	return d, nil
}

// TotalSectors returns the LBA28-addressable sector count.
func (d *Drive) TotalSectors() uint64 {
	return uint64(d.total)
}

// SectorSize returns the PIO transfer unit.
func (d *Drive) SectorSize() int {
	return types.AtaSectorSize
}

// SerialNumber returns the drive serial reported by IDENTIFY.
func (d *Drive) SerialNumber() string {
	return d.serial
}

// ModelNumber returns the drive model reported by IDENTIFY.
func (d *Drive) ModelNumber() string {
	return d.model
}

// Close satisfies the block device surface; the drive itself holds no
// host resources.
func (d *Drive) Close() error {
	return nil
}

// ReadSector reads one sector into buf.
func (d *Drive) ReadSector(lba uint32, buf []byte) error {
	return d.ReadSectors(lba, 1, buf)
}

// WriteSector writes one sector from buf.
func (d *Drive) WriteSector(lba uint32, buf []byte) error {
	return d.WriteSectors(lba, 1, buf)
}

// ReadSectors reads count sectors starting at lba into buf.
func (d *Drive) ReadSectors(lba uint32, count int, buf []byte) error {
	if len(buf) < count*types.AtaSectorSize {
		return &DeviceError{Code: codeShortReadBuf}
	}

	for count > 0 {
		chunk := count
		if chunk > maxSectorsPerCommand {
			chunk = maxSectorsPerCommand
		}
		if err := d.readChunk(lba, chunk, buf); err != nil {
			return err
		}
		lba += uint32(chunk)
		count -= chunk
		buf = buf[chunk*types.AtaSectorSize:]
	}
	return nil
}

// WriteSectors writes count sectors starting at lba from data.
func (d *Drive) WriteSectors(lba uint32, count int, data []byte) error {
	if len(data) < count*types.AtaSectorSize {
		return &DeviceError{Code: codeShortWriteBuf}
	}

	for count > 0 {
		chunk := count
		if chunk > maxSectorsPerCommand {
			chunk = maxSectorsPerCommand
		}
		if err := d.writeChunk(lba, chunk, data); err != nil {
			return err
		}
		lba += uint32(chunk)
		count -= chunk
		data = data[chunk*types.AtaSectorSize:]
	}
	return nil
}

func (d *Drive) readChunk(lba uint32, count int, buf []byte) error {
	d.setupTaskfile(lba, count)
	d.io.Outb(types.AtaRegStatus, types.AtaCmdReadSectors)

	for s := 0; s < count; s++ {
		if err := d.pollReady(); err != nil {
			return fmt.Errorf("read LBA %d: %w", lba+uint32(s), err)
		}
		base := s * types.AtaSectorSize
		for w := 0; w < types.AtaWordsPerSector; w++ {
			v := d.io.Inw(types.AtaRegData)
			buf[base+2*w] = uint8(v)
			buf[base+2*w+1] = uint8(v >> 8)
		}
	}
	return nil
}

func (d *Drive) writeChunk(lba uint32, count int, data []byte) error {
	d.setupTaskfile(lba, count)
	d.io.Outb(types.AtaRegStatus, types.AtaCmdWriteSectors)

	for s := 0; s < count; s++ {
		if err := d.pollReady(); err != nil {
			return fmt.Errorf("write LBA %d: %w", lba+uint32(s), err)
		}
		base := s * types.AtaSectorSize
		for w := 0; w < types.AtaWordsPerSector; w++ {
			v := uint16(data[base+2*w]) | uint16(data[base+2*w+1])<<8
			d.io.Outw(types.AtaRegData, v)
		}
		if err := d.pollNotBusy(); err != nil {
			return fmt.Errorf("write LBA %d: %w", lba+uint32(s), err)
		}
	}
	return nil
}

// setupTaskfile programs drive select, sector count and the LBA bytes. A
// count of 256 is encoded as zero.
func (d *Drive) setupTaskfile(lba uint32, count int) {
	d.io.Outb(types.AtaRegDrive, types.AtaDriveLBA|uint8((lba>>24)&0x0F))
	d.io.Outb(types.AtaRegSecCount, uint8(count))
	d.io.Outb(types.AtaRegLBALow, uint8(lba))
	d.io.Outb(types.AtaRegLBAMid, uint8(lba>>8))
	d.io.Outb(types.AtaRegLBAHigh, uint8(lba>>16))
}

// pollReady spins until BSY clears and DRQ rises.
func (d *Drive) pollReady() error {
	for i := 0; i < types.AtaPollLimit; i++ {
		st := d.io.Inb(types.AtaRegStatus)
		if st&types.AtaStatusBsy == 0 && st&types.AtaStatusDrq != 0 {
			return nil
		}
		if st&types.AtaStatusErr != 0 {
			return &DeviceError{Code: d.io.Inb(types.AtaRegError)}
		}
	}
	return ErrTimeout
}

// pollNotBusy spins until BSY clears, then checks for a command error.
func (d *Drive) pollNotBusy() error {
	for i := 0; i < types.AtaPollLimit; i++ {
		st := d.io.Inb(types.AtaRegStatus)
		if st&types.AtaStatusBsy == 0 {
			if st&types.AtaStatusErr != 0 {
				return &DeviceError{Code: d.io.Inb(types.AtaRegError)}
			}
			return nil
		}
	}
	return ErrTimeout
}

// decodeIdentifyString reverses the byte-swapped two-characters-per-word
// IDENTIFY string encoding and trims the space padding.
func decodeIdentifyString(words []uint16) string {
	out := make([]byte, 0, len(words)*2)
	for _, w := range words {
		out = append(out, uint8(w>>8), uint8(w))
	}
	return strings.TrimRight(string(out), " \x00")
}
