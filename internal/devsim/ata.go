package devsim

import (
	"encoding/binary"
	"sync"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// Error register codes the model raises.
const (
	ataErrAbort  = 0x04 // ABRT: command not recognized
	ataErrIDNF   = 0x10 // IDNF: LBA out of range
	ataErrUncorr = 0x40 // UNC: backing store failure
)

const (
	ataXferNone = iota
	ataXferIn
	ataXferOut
)

// AtaDevice models a single ATA drive on the primary channel, ports
// 0x1F0-0x1F7. Reads and writes complete instantly, so BSY is never
// observed; drivers see DRDY, then DRQ while a PIO transfer is pending.
//
// A nil storage models an empty channel: every register reads zero, which
// is how drivers detect the missing drive.
type AtaDevice struct {
	mu      sync.Mutex
	storage interfaces.BlockDevice

	secCount uint8
	lbaLow   uint8
	lbaMid   uint8
	lbaHigh  uint8
	drive    uint8
	status   uint8
	errReg   uint8

	xfer     int
	buf      []byte
	pos      int
	writeLBA uint32

	nextReadErr  uint8
	nextWriteErr uint8
}

// NewAtaDevice creates a drive model backed by storage. Pass nil to model
// a channel with no drive attached.
func NewAtaDevice(storage interfaces.BlockDevice) *AtaDevice {
	d := &AtaDevice{storage: storage}
	if storage != nil {
		d.status = types.AtaStatusDrdy
	}
	return d
}

// FailNextRead makes the next READ SECTORS command fail with the given
// error register code.
func (d *AtaDevice) FailNextRead(code uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextReadErr = code
}

// FailNextWrite makes the next WRITE SECTORS command fail with the given
// error register code.
func (d *AtaDevice) FailNextWrite(code uint8) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextWriteErr = code
}

// PortRange reports the eight ports of the primary channel.
func (d *AtaDevice) PortRange() (uint16, uint16) {
	return types.AtaIoBase, 8
}

// PortIn handles register reads.
func (d *AtaDevice) PortIn(port uint16, width int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.storage == nil {
		return 0
	}

	switch port {
	case types.AtaRegData:
		return uint32(d.popWord())
	case types.AtaRegError:
		return uint32(d.errReg)
	case types.AtaRegSecCount:
		return uint32(d.secCount)
	case types.AtaRegLBALow:
		return uint32(d.lbaLow)
	case types.AtaRegLBAMid:
		return uint32(d.lbaMid)
	case types.AtaRegLBAHigh:
		return uint32(d.lbaHigh)
	case types.AtaRegDrive:
		return uint32(d.drive)
	case types.AtaRegStatus:
		return uint32(d.status)
	}
	return 0
}

// PortOut handles register writes.
func (d *AtaDevice) PortOut(port uint16, width int, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.storage == nil {
		return
	}

	switch port {
	case types.AtaRegData:
		d.pushWord(uint16(value))
	case types.AtaRegError:
		// features register, unused
	case types.AtaRegSecCount:
		d.secCount = uint8(value)
	case types.AtaRegLBALow:
		d.lbaLow = uint8(value)
	case types.AtaRegLBAMid:
		d.lbaMid = uint8(value)
	case types.AtaRegLBAHigh:
		d.lbaHigh = uint8(value)
	case types.AtaRegDrive:
		d.drive = uint8(value)
	case types.AtaRegStatus:
		d.command(uint8(value))
	}
}

func (d *AtaDevice) command(cmd uint8) {
	d.errReg = 0
	switch cmd {
	case types.AtaCmdIdentify:
		d.startIdentify()
	case types.AtaCmdReadSectors:
		d.startRead()
	case types.AtaCmdWriteSectors:
		d.startWrite()
	default:
		d.fail(ataErrAbort)
	}
}

func (d *AtaDevice) fail(code uint8) {
	d.errReg = code
	d.status = types.AtaStatusDrdy | types.AtaStatusErr
	d.xfer = ataXferNone
	d.buf = nil
}

func (d *AtaDevice) currentLBA() uint32 {
	return uint32(d.drive&0x0F)<<24 |
		uint32(d.lbaHigh)<<16 |
		uint32(d.lbaMid)<<8 |
		uint32(d.lbaLow)
}

// sectorCount interprets the count register; zero means 256 sectors.
func (d *AtaDevice) sectorCount() int {
	if d.secCount == 0 {
		return 256
	}
	return int(d.secCount)
}

func (d *AtaDevice) startIdentify() {
	d.buf = d.identifyBlock()
	d.pos = 0
	d.xfer = ataXferIn
	d.status = types.AtaStatusDrdy | types.AtaStatusDrq
}

func (d *AtaDevice) startRead() {
	if d.nextReadErr != 0 {
		code := d.nextReadErr
		d.nextReadErr = 0
		d.fail(code)
		return
	}

	count := d.sectorCount()
	lba := d.currentLBA()
	if uint64(lba)+uint64(count) > d.storage.TotalSectors() {
		d.fail(ataErrIDNF)
		return
	}

	buf := make([]byte, count*types.AtaSectorSize)
	for i := 0; i < count; i++ {
		sector := buf[i*types.AtaSectorSize : (i+1)*types.AtaSectorSize]
		if err := d.storage.ReadSector(lba+uint32(i), sector); err != nil {
			d.fail(ataErrUncorr)
			return
		}
	}

	d.buf = buf
	d.pos = 0
	d.xfer = ataXferIn
	d.status = types.AtaStatusDrdy | types.AtaStatusDrq
}

func (d *AtaDevice) startWrite() {
	if d.nextWriteErr != 0 {
		code := d.nextWriteErr
		d.nextWriteErr = 0
		d.fail(code)
		return
	}

	count := d.sectorCount()
	lba := d.currentLBA()
	if uint64(lba)+uint64(count) > d.storage.TotalSectors() {
		d.fail(ataErrIDNF)
		return
	}

	d.buf = make([]byte, count*types.AtaSectorSize)
	d.pos = 0
	d.writeLBA = lba
	d.xfer = ataXferOut
	d.status = types.AtaStatusDrdy | types.AtaStatusDrq
}

// popWord feeds one word of a pending data-in transfer.
func (d *AtaDevice) popWord() uint16 {
	if d.xfer != ataXferIn || d.pos+1 >= len(d.buf) {
		return 0
	}
	w := binary.LittleEndian.Uint16(d.buf[d.pos:])
	d.pos += 2
	if d.pos >= len(d.buf) {
		d.xfer = ataXferNone
		d.buf = nil
		d.status = types.AtaStatusDrdy
	}
	return w
}

// pushWord accepts one word of a pending data-out transfer, flushing each
// completed sector to storage.
func (d *AtaDevice) pushWord(v uint16) {
	if d.xfer != ataXferOut || d.pos+1 >= len(d.buf) {
		return
	}
	binary.LittleEndian.PutUint16(d.buf[d.pos:], v)
	d.pos += 2

	if d.pos%types.AtaSectorSize != 0 {
		return
	}

	n := uint32(d.pos/types.AtaSectorSize) - 1
	sector := d.buf[int(n)*types.AtaSectorSize : int(n+1)*types.AtaSectorSize]
	if err := d.storage.WriteSector(d.writeLBA+n, sector); err != nil {
		d.fail(ataErrUncorr)
		return
	}

	if d.pos >= len(d.buf) {
		d.xfer = ataXferNone
		d.buf = nil
		d.status = types.AtaStatusDrdy
	}
}

// identifyBlock builds the 512-byte IDENTIFY DEVICE response.
func (d *AtaDevice) identifyBlock() []byte {
	words := make([]uint16, 256)
	words[0] = 0x0040 // fixed device
	putAtaString(words[types.AtaIdentSerialStart:types.AtaIdentSerialStart+types.AtaIdentSerialWords],
		d.storage.SerialNumber())
	putAtaString(words[types.AtaIdentModelStart:types.AtaIdentModelStart+types.AtaIdentModelWords],
		d.storage.ModelNumber())
	words[49] = 1 << 9 // LBA supported

	total := d.storage.TotalSectors()
	if total > 0x0FFF_FFFF {
		total = 0x0FFF_FFFF
	}
	words[types.AtaIdentLBA28Low] = uint16(total)
	words[types.AtaIdentLBA28High] = uint16(total >> 16)

	buf := make([]byte, types.AtaSectorSize)
	for i, w := range words {
		binary.LittleEndian.PutUint16(buf[i*2:], w)
	}
	return buf
}

// putAtaString encodes an ASCII string into IDENTIFY words: two characters
// per word with the bytes swapped, space padded.
func putAtaString(dst []uint16, s string) {
	n := len(dst) * 2
	padded := make([]byte, n)
	for i := range padded {
		padded[i] = ' '
	}
	copy(padded, s)
	for i := range dst {
		dst[i] = uint16(padded[2*i])<<8 | uint16(padded[2*i+1])
	}
}
