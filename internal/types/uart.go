package types

// 16550 UART constants for the COM1 console.
// Reference: PC16550D datasheet, register set with DLAB addressing.

const (
	UartCom1Base = 0x3F8

	// Register offsets from the port base. Data and the interrupt-enable
	// register double as the divisor latch while LCR bit 7 is set.
	UartRegData       = 0 // read: RBR; write: THR; DLAB: divisor low
	UartRegIntrEnable = 1 // DLAB: divisor high
	UartRegFifoCtrl   = 2
	UartRegLineCtrl   = 3
	UartRegModemCtrl  = 4
	UartRegLineStatus = 5

	UartPortCount = 8
)

const (
	// UartLsrTxEmpty is the transmit-holding-register-empty bit polled
	// before every byte.
	UartLsrTxEmpty = 0x20

	// UartLcrDLAB exposes the divisor latch at offsets 0 and 1.
	UartLcrDLAB = 0x80

	// UartLcr8N1 selects 8 data bits, no parity, one stop bit.
	UartLcr8N1 = 0x03

	// UartFifoEnableClear enables the FIFOs, clears both, and sets the
	// 14-byte receive threshold.
	UartFifoEnableClear = 0xC7

	// UartMcrReady raises DTR and RTS with the auxiliary output for IRQ
	// routing.
	UartMcrReady = 0x0B

	// UartDivisor115200 programs the 115200 baud divisor (low byte 1,
	// high byte 0).
	UartDivisor115200 = 1

	// UartTxPollLimit bounds the transmit-ready spin. A console that never
	// reports ready is written to anyway; dropping diagnostics is worse
	// than racing a slow UART.
	UartTxPollLimit = 100_000
)
