package devsim

import (
	"encoding/binary"
	"sync"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// Rtl8139Device models the RTL8139 register file and its DMA behavior. RX
// frames are injected with InjectFrame, which writes the 4-byte header plus
// frame into the ring at the hardware cursor and raises RX_OK. TX descriptor
// writes read the staged frame out of physical memory, append it to an
// outbox, optionally hand it to a sink, and complete the descriptor
// immediately with TOK.
//
// The model is deliberately scriptable for fault drills: ForceCBR moves the
// hardware cursor anywhere, HoldTx suppresses TX completion, and register
// writes from outside the driver land unfiltered, which is exactly what a
// register-tamper audit has to notice.
type Rtl8139Device struct {
	mu   sync.Mutex
	mem  interfaces.PhysicalMemory
	base uint16
	mac  [6]byte

	rbstart uint32
	cr      uint8
	capr    uint16
	cbr     uint16
	imr     uint16
	isr     uint16
	tcr     uint32
	rcr     uint32
	tsd     [types.NicNumTxDesc]uint32
	tsad    [types.NicNumTxDesc]uint32

	holdTx bool
	outbox [][]byte
	txSink func(frame []byte)
}

// NewRtl8139Device creates a NIC model decoding 256 ports at base, with the
// given station address, performing DMA through mem.
func NewRtl8139Device(base uint16, mac [6]byte, mem interfaces.PhysicalMemory) *Rtl8139Device {
	return &Rtl8139Device{base: base, mac: mac, mem: mem, capr: nicCaprDefault}
}

// SetTxSink routes every transmitted frame to fn in addition to the outbox.
func (d *Rtl8139Device) SetTxSink(fn func(frame []byte)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.txSink = fn
}

// HoldTx controls whether TX completion is suppressed; while held, TSD
// never reports TOK and drivers see their completion polls time out.
func (d *Rtl8139Device) HoldTx(hold bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.holdTx = hold
}

// ForceCBR moves the hardware write cursor without any DMA, modeling a
// glitched or hostile register.
func (d *Rtl8139Device) ForceCBR(value uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cbr = value
}

// RaiseISR asserts interrupt status bits directly.
func (d *Rtl8139Device) RaiseISR(bits uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.isr |= bits
}

// TxFrames drains and returns the frames transmitted since the last call.
func (d *Rtl8139Device) TxFrames() [][]byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := d.outbox
	d.outbox = nil
	return out
}

// PortRange reports the 256-port window of the I/O BAR.
func (d *Rtl8139Device) PortRange() (uint16, uint16) {
	return d.base, 0x100
}

// PortIn handles register reads.
func (d *Rtl8139Device) PortIn(port uint16, width int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	reg := port - d.base
	switch {
	case reg >= types.NicRegIDR0 && reg < types.NicRegIDR0+6:
		return uint32(d.mac[reg-types.NicRegIDR0])
	case reg >= types.NicRegTSD0 && reg < types.NicRegTSD0+4*types.NicNumTxDesc:
		return d.tsd[(reg-types.NicRegTSD0)/4]
	case reg >= types.NicRegTSAD0 && reg < types.NicRegTSAD0+4*types.NicNumTxDesc:
		return d.tsad[(reg-types.NicRegTSAD0)/4]
	}

	switch reg {
	case types.NicRegRBSTART:
		return d.rbstart
	case types.NicRegCR:
		return uint32(d.cr)
	case types.NicRegCAPR:
		return uint32(d.capr)
	case types.NicRegCBR:
		return uint32(d.cbr)
	case types.NicRegIMR:
		return uint32(d.imr)
	case types.NicRegISR:
		return uint32(d.isr)
	case types.NicRegTCR:
		return d.tcr
	case types.NicRegRCR:
		return d.rcr
	}
	return 0
}

// PortOut handles register writes. The TX sink runs after the register
// state settles and the lock drops, so a scripted peer may inject reply
// frames from inside its callback.
func (d *Rtl8139Device) PortOut(port uint16, width int, value uint32) {
	d.mu.Lock()

	var sink func(frame []byte)
	var sent []byte

	reg := port - d.base
	switch {
	case reg >= types.NicRegTSD0 && reg < types.NicRegTSD0+4*types.NicNumTxDesc:
		sent = d.writeTSD(int(reg-types.NicRegTSD0)/4, value)
		sink = d.txSink
	case reg >= types.NicRegTSAD0 && reg < types.NicRegTSAD0+4*types.NicNumTxDesc:
		d.tsad[(reg-types.NicRegTSAD0)/4] = value
	default:
		d.writeNamedReg(reg, value)
	}

	d.mu.Unlock()

	if sink != nil && sent != nil {
		sink(sent)
	}
}

func (d *Rtl8139Device) writeNamedReg(reg uint16, value uint32) {
	switch reg {
	case types.NicRegRBSTART:
		d.rbstart = value
	case types.NicRegCR:
		if value&types.NicCrReset != 0 {
			d.resetChip()
			return
		}
		d.cr = uint8(value)
	case types.NicRegCAPR:
		d.capr = uint16(value)
	case types.NicRegIMR:
		d.imr = uint16(value)
	case types.NicRegISR:
		// Write 1 to clear.
		d.isr &^= uint16(value)
	case types.NicRegTCR:
		d.tcr = value
	case types.NicRegRCR:
		d.rcr = value
	}
}

// nicCaprDefault is the chip's power-on CAPR value, 16 bytes behind the
// start of the ring so an untouched ring reads as empty.
const nicCaprDefault = 0xFFF0

// resetChip models the self-clearing CR.RESET: every register except the
// station address returns to its power-on value.
func (d *Rtl8139Device) resetChip() {
	d.rbstart = 0
	d.cr = 0
	d.capr = nicCaprDefault
	d.cbr = 0
	d.imr = 0
	d.isr = 0
	d.tcr = 0
	d.rcr = 0
	d.tsd = [types.NicNumTxDesc]uint32{}
	d.tsad = [types.NicNumTxDesc]uint32{}
}

// writeTSD starts a transmit when a length is programmed; writing zero
// releases the descriptor. It returns the transmitted frame for the sink.
func (d *Rtl8139Device) writeTSD(idx int, value uint32) []byte {
	if value == 0 {
		d.tsd[idx] = 0
		return nil
	}
	d.tsd[idx] = value

	if d.cr&types.NicCrTxEnable == 0 {
		return nil
	}

	length := value & types.NicTsdSizeMask
	frame := make([]byte, length)
	if err := d.mem.ReadPhys(uint64(d.tsad[idx]), frame); err != nil {
		return nil
	}
	d.outbox = append(d.outbox, frame)

	if !d.holdTx {
		d.tsd[idx] = length | types.NicTsdTok
		d.isr |= types.NicIsrTxOK
	}
	return frame
}

// InjectFrame delivers a good frame into the RX ring.
func (d *Rtl8139Device) InjectFrame(frame []byte) bool {
	return d.InjectFrameWithStatus(frame, types.NicRxStatusOK)
}

// InjectFrameWithStatus delivers a frame with an arbitrary RX header
// status, so receivers can be fed CRC/alignment/runt rejects. The header
// and frame are written contiguously at the hardware cursor; frames that
// start near the ring end spill into the slack area and the cursor wraps
// for the next frame. A ring without room raises RX_OVF and drops the
// frame.
func (d *Rtl8139Device) InjectFrameWithStatus(frame []byte, status uint16) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cr&types.NicCrRxEnable == 0 {
		return false
	}

	total := types.NicRxHeaderSize + len(frame)
	aligned := uint32(total+3) &^ 3

	// Free space runs from the hardware cursor to the software read
	// cursor, which trails CAPR by the 16-byte headroom.
	read := (uint32(d.capr) + 16) % types.NicRxRingLen
	used := (uint32(d.cbr) + types.NicRxRingLen - read) % types.NicRxRingLen
	if used+aligned >= types.NicRxRingLen {
		d.isr |= types.NicIsrRxOverflow
		return false
	}
	if uint32(d.cbr)+uint32(total) > types.NicRxBufferSize {
		d.isr |= types.NicIsrRxOverflow
		return false
	}

	buf := make([]byte, total)
	binary.LittleEndian.PutUint16(buf[0:2], status)
	binary.LittleEndian.PutUint16(buf[2:4], uint16(len(frame)))
	copy(buf[types.NicRxHeaderSize:], frame)
	if err := d.mem.WritePhys(uint64(d.rbstart)+uint64(d.cbr), buf); err != nil {
		return false
	}

	d.cbr = uint16((uint32(d.cbr) + aligned) % types.NicRxRingLen)
	d.isr |= types.NicIsrRxOK
	return true
}
