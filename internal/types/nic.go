package types

// RTL8139 register map and driver policy constants.
// Register offsets are relative to the I/O BAR.
// Reference: RTL8139C(L) datasheet, section 6.

const (
	NicRegIDR0    = 0x00 // 6 bytes of station MAC
	NicRegTSD0    = 0x10 // 4 transmit status descriptors, 4 bytes apart
	NicRegTSAD0   = 0x20 // 4 transmit start addresses, 4 bytes apart
	NicRegRBSTART = 0x30 // receive buffer start (physical, 32-bit)
	NicRegCR      = 0x37 // command register
	NicRegCAPR    = 0x38 // current address of packet read
	NicRegCBR     = 0x3A // current buffer address (hardware write cursor)
	NicRegIMR     = 0x3C // interrupt mask
	NicRegISR     = 0x3E // interrupt status (write 1 to clear)
	NicRegTCR     = 0x40 // transmit configuration
	NicRegRCR     = 0x44 // receive configuration
)

// Command register bits.
const (
	NicCrReset    = 0x10
	NicCrRxEnable = 0x08
	NicCrTxEnable = 0x04
)

// Interrupt status/mask bits.
const (
	NicIsrRxOK       = 0x0001
	NicIsrRxErr      = 0x0002
	NicIsrTxOK       = 0x0004
	NicIsrTxErr      = 0x0008
	NicIsrRxOverflow = 0x0010

	// NicIsrUnmask is the set of sources the driver keeps enabled.
	NicIsrUnmask = NicIsrRxOK | NicIsrRxErr | NicIsrTxOK | NicIsrTxErr | NicIsrRxOverflow
)

// Receive configuration bits.
const (
	NicRcrAcceptAll       = 1 << 0 // promiscuous; never set by this driver
	NicRcrAcceptPhysMatch = 1 << 1
	NicRcrAcceptMulticast = 1 << 2
	NicRcrAcceptBroadcast = 1 << 3
	NicRcrWrap            = 1 << 7
	NicRcrMaxDMAUnlimited = 0x7 << 8
)

// Transmit configuration: standard interframe gap plus unlimited DMA burst.
const (
	NicTcrIFGStandard     = 0x3 << 24
	NicTcrMaxDMAUnlimited = 0x7 << 8
)

// Transmit status descriptor bits.
const (
	NicTsdOwn = 1 << 13 // set while the chip owns the descriptor
	NicTsdTok = 1 << 15 // transmit completed OK

	// NicTsdSizeMask extracts the programmed length from a TSD.
	NicTsdSizeMask = 0x1FFF
)

// RX frame header status bits (the 4-byte header the chip prepends to each
// frame in the ring: u16 status, u16 length, both little-endian).
const (
	NicRxStatusOK   = 1 << 0
	NicRxStatusFAE  = 1 << 1 // frame alignment error
	NicRxStatusCRC  = 1 << 2 // CRC error
	NicRxStatusLong = 1 << 3
	NicRxStatusRunt = 1 << 4

	NicRxStatusRejectMask = NicRxStatusFAE | NicRxStatusCRC | NicRxStatusLong | NicRxStatusRunt

	// NicRxHeaderSize is the per-frame ring header.
	NicRxHeaderSize = 4
)

// Ring and queue geometry.
const (
	// NicRxRingLen is the ring proper; cursors wrap at this boundary.
	NicRxRingLen = 8192

	// NicRxBufferSize adds the slack the chip needs to finish a maximum-size
	// frame that begins near the ring end without wrapping mid-frame.
	NicRxBufferSize = NicRxRingLen + 16 + 1500

	// NicMaxPacketSize bounds a single queued frame.
	NicMaxPacketSize = 1536

	// NicMaxPackets is the software packet queue depth. The queue drops its
	// oldest entry when full.
	NicMaxPackets = 64

	// NicNumTxDesc is the number of hardware transmit descriptors.
	NicNumTxDesc = 4

	// NicTxBufSize is the size of one transmit staging buffer.
	NicTxBufSize = 1600

	// NicMinTxFrame pads transmitted frames to the Ethernet minimum
	// (without FCS); short frames are dropped by some receivers.
	NicMinTxFrame = 60

	// NicTxWaitLimit bounds the TSD completion poll.
	NicTxWaitLimit = 200_000
)

// Receive policy.
const (
	// NicRxBudgetBase is the per-interrupt receive budget under normal load.
	NicRxBudgetBase = 8

	// NicRxBudgetHighFlow applies when the ring backlog reaches
	// NicHighFlowBacklog or the queue reaches NicHighFlowQueueLevel.
	NicRxBudgetHighFlow = 32

	// NicRxBudgetSustained applies after NicHighFlowPersistIRQs consecutive
	// high-flow interrupts.
	NicRxBudgetSustained = 64

	NicHighFlowBacklog     = 2048
	NicHighFlowQueueLevel  = NicMaxPackets/2 - 2
	NicHighFlowPersistIRQs = 8

	// NicBroadcastBudgetPerIRQ bounds broadcast admissions in one interrupt.
	NicBroadcastBudgetPerIRQ = 4

	// NicBackpressureLevel is the queue length at which further receive work
	// is refused until the consumer drains.
	NicBackpressureLevel = NicMaxPackets - 4

	// NicFaultResetThreshold is the shared fault streak that forces a full
	// recovery reset.
	NicFaultResetThreshold = 64
)

// PCI configuration access and RTL8139 identity.
const (
	PciConfigAddrPort = 0xCF8
	PciConfigDataPort = 0xCFC

	PciVendorRealtek = 0x10EC
	PciDeviceRTL8139 = 0x8139

	PciCmdIOSpace   = 0x0001
	PciCmdBusMaster = 0x0004
)
