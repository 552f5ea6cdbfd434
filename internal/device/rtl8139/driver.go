package rtl8139

import (
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// ErrResetTimeout reports a chip reset that never completed.
	ErrResetTimeout = errors.New("chip reset poll timed out")

	// ErrTxTimeout reports a transmit descriptor that never signalled
	// completion within the wait limit.
	ErrTxTimeout = errors.New("transmit completion poll timed out")

	// ErrNoTxSlot reports that all four transmit descriptors are busy.
	ErrNoTxSlot = errors.New("all transmit descriptors busy")

	// ErrFrameSize reports a frame outside the transmittable range.
	ErrFrameSize = errors.New("frame length outside the transmittable range")

	// ErrPromiscuousRefused reports a refused promiscuous-mode request.
	ErrPromiscuousRefused = errors.New("promiscuous mode is administratively refused")
)

const (
	resetWaitLimit = 1_000_000

	tcrValue = types.NicTcrIFGStandard | types.NicTcrMaxDMAUnlimited
	rcrValue = types.NicRcrAcceptBroadcast | types.NicRcrAcceptPhysMatch |
		types.NicRcrWrap | types.NicRcrMaxDMAUnlimited
)

// Stats is the driver's observable surface for everything that is not a
// delivered frame. Counters are cumulative and wrap at 32 bits.
type Stats struct {
	RxPackets            uint32
	TxPackets            uint32
	RxBroadcastsAccepted uint32
	RxOverflows          uint32
	RxErrors             uint32
	RxDrops              uint32
	RxPolicyDrops        uint32
	RxSpoofDrops         uint32
	TxErrors             uint32
	FaultResets          uint32
	TamperEvents         uint32
	HighFlowEvents       uint32
	RegisterTamperEvents uint32
}

// Driver operates one RTL8139 through port I/O and DMA buffers it allocates
// from physical memory. It hardens the receive path: shadowed configuration
// registers are audited and rewritten every interrupt, the hardware cursor
// is range- and distance-checked before any ring access, admission is
// bounded by a load-adaptive budget, and Ethernet-level policy drops
// spoofed sources, foreign destinations and unknown protocols before a
// frame reaches the packet queue.
//
// The interrupt path and the poll path are the same goroutine; the driver
// performs no locking of its own.
type Driver struct {
	io   interfaces.PortIO
	mem  interfaces.PhysicalMemory
	base uint16
	mac  [6]byte

	rxBufPhys uint64
	txBufPhys [types.NicNumTxDesc]uint64

	shadowRBStart uint32
	shadowRCR     uint32

	rxOffset uint32
	lastCBR  uint16
	txNext   int

	faultStreak    uint32
	highFlowStreak uint32

	queue packetQueue
	stats Stats
}

// NewDriver allocates DMA buffers, resets the chip at the given I/O base
// and brings the receiver and transmitter up.
func NewDriver(portIO interfaces.PortIO, mem interfaces.PhysicalMemory, ioBase uint16) (*Driver, error) {
	if portIO == nil {
		return nil, errors.New("port I/O surface is required")
	}
	if mem == nil {
		return nil, errors.New("physical memory is required")
	}

	d := &Driver{io: portIO, mem: mem, base: ioBase}

	rxPhys, err := mem.AllocPages((types.NicRxBufferSize + 4095) / 4096)
	if err != nil {
		return nil, fmt.Errorf("allocating receive ring: %w", err)
	}
	txPhys, err := mem.AllocPages((types.NicNumTxDesc*types.NicTxBufSize + 4095) / 4096)
	if err != nil {
		return nil, fmt.Errorf("allocating transmit buffers: %w", err)
	}
	if rxPhys > 0xFFFF_FFFF || txPhys+types.NicNumTxDesc*types.NicTxBufSize > 0xFFFF_FFFF {
		return nil, errors.New("DMA buffers above the chip's 32-bit reach")
	}
	d.rxBufPhys = rxPhys
	for i := range d.txBufPhys {
		d.txBufPhys[i] = txPhys + uint64(i*types.NicTxBufSize)
	}

	d.shadowRBStart = uint32(rxPhys)
	d.shadowRCR = rcrValue

	if err := d.resetChip(); err != nil {
		return nil, err
	}
	for i := range d.mac {
		d.mac[i] = d.io.Inb(d.base + types.NicRegIDR0 + uint16(i))
	}
	d.programChip()
	d.clearSoftState()
	return d, nil
}

// MAC returns the station address read from the chip.
func (d *Driver) MAC() [6]byte { return d.mac }

// Stats returns a snapshot of the driver counters.
func (d *Driver) Stats() Stats { return d.stats }

// QueueLen reports the number of frames waiting in the packet queue.
func (d *Driver) QueueLen() int { return d.queue.len() }

// SetReceiveMode rejects promiscuous operation; the receive configuration
// is pinned to broadcast plus station match, and a request to widen it is
// treated the same as a tampered register.
func (d *Driver) SetReceiveMode(promiscuous bool) error {
	if promiscuous {
		d.stats.RegisterTamperEvents++
		d.stats.TamperEvents++
		return ErrPromiscuousRefused
	}
	return nil
}

// ServiceIRQ acknowledges pending interrupt causes, audits the shadowed
// registers and drains the receive ring under the current budget. It
// returns the number of frames admitted to the packet queue.
func (d *Driver) ServiceIRQ() int {
	isr := d.io.Inw(d.base + types.NicRegISR)
	if isr != 0 {
		d.io.Outw(d.base+types.NicRegISR, isr)
	}

	d.auditRegisters()

	if isr&types.NicIsrRxOverflow != 0 {
		d.stats.RxOverflows++
	}
	if isr&types.NicIsrTxErr != 0 {
		d.stats.TxErrors++
	}

	return d.drainRing()
}

// PollFrame services the link and dequeues the next received frame.
func (d *Driver) PollFrame() []byte {
	if frame := d.queue.pop(); frame != nil {
		return frame
	}
	d.ServiceIRQ()
	return d.queue.pop()
}

// SendFrame wraps payload in an Ethernet header from the station address
// and transmits it, padding to the wire minimum.
func (d *Driver) SendFrame(dst [6]byte, etherType uint16, payload []byte) bool {
	if len(payload) > types.NicMaxPacketSize-types.EthHeaderSize {
		return false
	}
	size := types.EthHeaderSize + len(payload)
	if size < types.NicMinTxFrame {
		size = types.NicMinTxFrame
	}
	frame := make([]byte, size)
	copy(frame[0:6], dst[:])
	copy(frame[6:12], d.mac[:])
	frame[12] = byte(etherType >> 8)
	frame[13] = byte(etherType)
	copy(frame[types.EthHeaderSize:], payload)
	return d.Transmit(frame) == nil
}

// Transmit stages frame in the next free descriptor's buffer, starts the
// transfer and polls for completion. The descriptor and its buffer are
// released whether the transfer completed or timed out; a descriptor that
// still reports busy is never reprogrammed.
func (d *Driver) Transmit(frame []byte) error {
	if len(frame) == 0 || len(frame) > types.NicMaxPacketSize {
		return ErrFrameSize
	}

	slot, ok := d.freeTxSlot()
	if !ok {
		return ErrNoTxSlot
	}

	if err := d.mem.WritePhys(d.txBufPhys[slot], frame); err != nil {
		return fmt.Errorf("staging frame: %w", err)
	}
	tsdPort := d.base + types.NicRegTSD0 + uint16(slot*4)
	d.io.Outl(d.base+types.NicRegTSAD0+uint16(slot*4), uint32(d.txBufPhys[slot]))
	d.io.Outl(tsdPort, uint32(len(frame)))

	for i := 0; i < types.NicTxWaitLimit; i++ {
		if d.io.Inl(tsdPort)&types.NicTsdTok != 0 {
			d.releaseTxSlot(slot, tsdPort)
			d.stats.TxPackets++
			return nil
		}
	}

	d.releaseTxSlot(slot, tsdPort)
	d.stats.TxErrors++
	return ErrTxTimeout
}

func (d *Driver) freeTxSlot() (int, bool) {
	for i := 0; i < types.NicNumTxDesc; i++ {
		slot := (d.txNext + i) % types.NicNumTxDesc
		if d.io.Inl(d.base+types.NicRegTSD0+uint16(slot*4)) == 0 {
			return slot, true
		}
	}
	return 0, false
}

func (d *Driver) releaseTxSlot(slot int, tsdPort uint16) {
	d.io.Outl(tsdPort, 0)
	_ = d.mem.ZeroRange(d.txBufPhys[slot], types.NicTxBufSize)
	d.txNext = (slot + 1) % types.NicNumTxDesc
}

// auditRegisters compares the receive configuration and ring base against
// the driver's shadow copies and rewrites any register that diverged.
func (d *Driver) auditRegisters() {
	if got := d.io.Inl(d.base + types.NicRegRCR); got != d.shadowRCR {
		d.stats.RegisterTamperEvents++
		d.stats.TamperEvents++
		d.io.Outl(d.base+types.NicRegRCR, d.shadowRCR)
	}
	if got := d.io.Inl(d.base + types.NicRegRBSTART); got != d.shadowRBStart {
		d.stats.RegisterTamperEvents++
		d.stats.TamperEvents++
		d.io.Outl(d.base+types.NicRegRBSTART, d.shadowRBStart)
	}
}

// drainRing is the budgeted receive loop.
func (d *Driver) drainRing() int {
	admitted := 0
	processed := 0
	broadcasts := 0
	sawHighFlow := false

	for {
		cbr := d.io.Inw(d.base + types.NicRegCBR)
		if !d.cbrPlausible(cbr) {
			d.stats.RxErrors++
			d.stats.RxDrops++
			d.stats.TamperEvents++
			d.recoveryReset()
			return admitted
		}
		d.lastCBR = cbr

		backlog := (uint32(cbr) + types.NicRxRingLen - d.rxOffset) % types.NicRxRingLen
		if backlog >= types.NicHighFlowBacklog || d.queue.len() >= types.NicHighFlowQueueLevel {
			if !sawHighFlow {
				sawHighFlow = true
				if d.highFlowStreak == 0 {
					d.stats.HighFlowEvents++
				}
			}
		}
		budget := types.NicRxBudgetBase
		if sawHighFlow {
			budget = types.NicRxBudgetHighFlow
			if d.highFlowStreak >= types.NicHighFlowPersistIRQs {
				budget = types.NicRxBudgetSustained
			}
		}

		if d.rxOffset == uint32(cbr) || processed >= budget {
			break
		}
		processed++

		var hdr [types.NicRxHeaderSize]byte
		if err := d.mem.ReadPhys(d.rxBufPhys+uint64(d.rxOffset), hdr[:]); err != nil {
			d.stats.RxErrors++
			d.recoveryReset()
			return admitted
		}
		status := uint16(hdr[0]) | uint16(hdr[1])<<8
		length := uint32(hdr[2]) | uint32(hdr[3])<<8

		if length == 0 || length > types.NicMaxPacketSize ||
			d.rxOffset+types.NicRxHeaderSize+length > types.NicRxBufferSize {
			d.stats.RxErrors++
			d.stats.RxDrops++
			d.stats.TamperEvents++
			d.faultStreak++
			d.advanceRead(4)
			if d.faultStreak >= types.NicFaultResetThreshold {
				d.recoveryReset()
				return admitted
			}
			continue
		}

		stride := (types.NicRxHeaderSize + length + 3) &^ 3

		if status&types.NicRxStatusOK == 0 || status&types.NicRxStatusRejectMask != 0 ||
			length < types.EthHeaderSize {
			d.stats.RxErrors++
			d.stats.RxDrops++
			d.advanceRead(stride)
			continue
		}

		frame := make([]byte, length)
		if err := d.mem.ReadPhys(d.rxBufPhys+uint64(d.rxOffset)+types.NicRxHeaderSize, frame); err != nil {
			d.stats.RxErrors++
			d.recoveryReset()
			return admitted
		}

		verdict := d.admissible(frame, broadcasts)
		if verdict != admitFrame {
			switch verdict {
			case dropPolicy:
				d.stats.RxPolicyDrops++
			case dropSpoof:
				d.stats.RxSpoofDrops++
			}
			d.advanceRead(stride)
			continue
		}

		if d.queue.len() >= types.NicBackpressureLevel {
			d.stats.RxDrops++
			d.stats.TamperEvents++
			d.faultStreak++
			d.advanceRead(stride)
			if d.faultStreak >= types.NicFaultResetThreshold {
				d.recoveryReset()
				return admitted
			}
			continue
		}

		d.queue.push(frame)
		d.faultStreak = 0
		d.stats.RxPackets++
		admitted++
		if isBroadcast(frame[0:6]) {
			broadcasts++
			d.stats.RxBroadcastsAccepted++
		}
		d.advanceRead(stride)
	}

	if sawHighFlow {
		d.highFlowStreak++
	} else {
		d.highFlowStreak = 0
	}
	return admitted
}

type rxVerdict int

const (
	admitFrame rxVerdict = iota
	dropPolicy
	dropSpoof
)

// admissible applies the Ethernet-level policy: the destination must be us
// or broadcast (broadcast within its per-interrupt budget), the source must
// be a plausible unicast station that is not our own, and the protocol must
// be one the stack speaks.
func (d *Driver) admissible(frame []byte, broadcastsAdmitted int) rxVerdict {
	dst := frame[0:6]
	src := frame[6:12]
	etherType := uint16(frame[12])<<8 | uint16(frame[13])

	toUs := macEqual(dst, d.mac[:])
	toAll := isBroadcast(dst)
	if !toUs && !toAll {
		return dropPolicy
	}
	if toAll && broadcastsAdmitted >= types.NicBroadcastBudgetPerIRQ {
		return dropPolicy
	}

	if isBroadcast(src) || isZeroMAC(src) || macEqual(src, d.mac[:]) {
		return dropSpoof
	}

	switch etherType {
	case types.EtherTypeIPv4, types.EtherTypeARP, types.EtherTypeIPv6:
		return admitFrame
	}
	return dropPolicy
}

// cbrPlausible bounds the hardware cursor: inside the buffer, aligned, and
// not teleported. The forward distance from the last accepted cursor must
// stay under one ring length; anything larger means the register moved
// backwards or jumped, and the ring contents can no longer be trusted.
func (d *Driver) cbrPlausible(cbr uint16) bool {
	if uint32(cbr) > types.NicRxBufferSize-types.NicRxHeaderSize || cbr%4 != 0 {
		return false
	}
	dist := (uint32(cbr) + types.NicRxBufferSize - uint32(d.lastCBR)) % types.NicRxBufferSize
	return dist < types.NicRxRingLen
}

// advanceRead moves the software cursor and parks CAPR the customary 16
// bytes behind it.
func (d *Driver) advanceRead(stride uint32) {
	d.rxOffset = (d.rxOffset + stride) % types.NicRxRingLen
	capr := (d.rxOffset + types.NicRxRingLen - 16) % types.NicRxRingLen
	d.io.Outw(d.base+types.NicRegCAPR, uint16(capr))
}

// recoveryReset returns the chip and the driver to a blank, enabled state.
// Every queued frame and in-flight cursor is discarded.
func (d *Driver) recoveryReset() {
	d.stats.FaultResets++

	// Best effort; a wedged chip is reprogrammed anyway.
	_ = d.resetChip()

	_ = d.mem.ZeroRange(d.rxBufPhys, types.NicRxBufferSize)
	for _, phys := range d.txBufPhys {
		_ = d.mem.ZeroRange(phys, types.NicTxBufSize)
	}

	d.programChip()
	d.clearSoftState()
}

func (d *Driver) resetChip() error {
	d.io.Outb(d.base+types.NicRegCR, types.NicCrReset)
	for i := 0; i < resetWaitLimit; i++ {
		if d.io.Inb(d.base+types.NicRegCR)&types.NicCrReset == 0 {
			return nil
		}
	}
	return ErrResetTimeout
}

func (d *Driver) programChip() {
	d.io.Outl(d.base+types.NicRegRBSTART, d.shadowRBStart)
	d.io.Outl(d.base+types.NicRegTCR, tcrValue)
	d.io.Outl(d.base+types.NicRegRCR, d.shadowRCR)
	d.io.Outw(d.base+types.NicRegIMR, types.NicIsrUnmask)
	d.io.Outw(d.base+types.NicRegISR, 0xFFFF)
	d.io.Outb(d.base+types.NicRegCR, types.NicCrRxEnable|types.NicCrTxEnable)
}

func (d *Driver) clearSoftState() {
	d.queue.clear()
	d.rxOffset = 0
	d.lastCBR = 0
	d.txNext = 0
	d.faultStreak = 0
	d.highFlowStreak = 0
}

func macEqual(a, b []byte) bool {
	for i := 0; i < 6; i++ {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func isBroadcast(mac []byte) bool {
	for i := 0; i < 6; i++ {
		if mac[i] != 0xFF {
			return false
		}
	}
	return true
}

func isZeroMAC(mac []byte) bool {
	for i := 0; i < 6; i++ {
		if mac[i] != 0 {
			return false
		}
	}
	return true
}
