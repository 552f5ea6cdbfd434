package devsim

import (
	"strings"
	"sync"

	"github.com/othello-os/go-othello/internal/types"
)

// SerialDevice models the COM1 16550. The transmitter is always ready, so
// drivers never spin on LSR; everything written to the data register is
// captured for test inspection. Divisor and line-control latches are kept so
// tests can verify the init sequence.
type SerialDevice struct {
	mu sync.Mutex

	lcr        uint8
	fcr        uint8
	mcr        uint8
	divisorLow uint8
	divisorHi  uint8

	out []byte
}

// NewSerialDevice creates the COM1 model with an empty capture buffer.
func NewSerialDevice() *SerialDevice {
	return &SerialDevice{}
}

// Output returns everything written to the transmit register so far.
func (d *SerialDevice) Output() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return string(d.out)
}

// Lines splits the captured output into lines, normalizing CRLF.
func (d *SerialDevice) Lines() []string {
	text := strings.ReplaceAll(d.Output(), "\r\n", "\n")
	text = strings.TrimSuffix(text, "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Clear discards the capture buffer.
func (d *SerialDevice) Clear() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.out = nil
}

// Divisor returns the programmed baud divisor latch.
func (d *SerialDevice) Divisor() uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return uint16(d.divisorHi)<<8 | uint16(d.divisorLow)
}

// LineControl returns the LCR value with the DLAB bit as last written.
func (d *SerialDevice) LineControl() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lcr
}

// FifoControl returns the last FCR write.
func (d *SerialDevice) FifoControl() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fcr
}

// ModemControl returns the last MCR write.
func (d *SerialDevice) ModemControl() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mcr
}

// PortRange reports the eight COM1 ports.
func (d *SerialDevice) PortRange() (uint16, uint16) {
	return types.UartCom1Base, types.UartPortCount
}

// PortIn handles register reads. There is no receive side; the line status
// register always reports the transmitter empty.
func (d *SerialDevice) PortIn(port uint16, width int) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch port - types.UartCom1Base {
	case types.UartRegData:
		if d.lcr&types.UartLcrDLAB != 0 {
			return uint32(d.divisorLow)
		}
		return 0
	case types.UartRegIntrEnable:
		if d.lcr&types.UartLcrDLAB != 0 {
			return uint32(d.divisorHi)
		}
		return 0
	case types.UartRegLineCtrl:
		return uint32(d.lcr)
	case types.UartRegModemCtrl:
		return uint32(d.mcr)
	case types.UartRegLineStatus:
		return uint32(types.UartLsrTxEmpty | 0x40)
	}
	return 0
}

// PortOut handles register writes.
func (d *SerialDevice) PortOut(port uint16, width int, value uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	b := uint8(value)
	switch port - types.UartCom1Base {
	case types.UartRegData:
		if d.lcr&types.UartLcrDLAB != 0 {
			d.divisorLow = b
			return
		}
		d.out = append(d.out, b)
	case types.UartRegIntrEnable:
		if d.lcr&types.UartLcrDLAB != 0 {
			d.divisorHi = b
		}
	case types.UartRegFifoCtrl:
		d.fcr = b
	case types.UartRegLineCtrl:
		d.lcr = b
	case types.UartRegModemCtrl:
		d.mcr = b
	}
}
