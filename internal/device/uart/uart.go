// Package uart drives the COM1 16550 console through port I/O. It is the
// output path for trap diagnostics and early boot logging, so it never
// returns errors: a wedged UART drops bytes rather than wedging the caller.
package uart

import (
	"fmt"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// Port is a write-only serial console on COM1.
type Port struct {
	io   interfaces.PortIO
	base uint16
}

// New programs COM1 for 115200 8N1 with FIFOs enabled and returns the
// console writer.
func New(portIO interfaces.PortIO) (*Port, error) {
	if portIO == nil {
		return nil, fmt.Errorf("port I/O is required")
	}
	p := &Port{io: portIO, base: types.UartCom1Base}

	p.io.Outb(p.base+types.UartRegIntrEnable, 0x00)
	p.io.Outb(p.base+types.UartRegLineCtrl, types.UartLcrDLAB)
	p.io.Outb(p.base+types.UartRegData, types.UartDivisor115200)
	p.io.Outb(p.base+types.UartRegIntrEnable, 0x00)
	p.io.Outb(p.base+types.UartRegLineCtrl, types.UartLcr8N1)
	p.io.Outb(p.base+types.UartRegFifoCtrl, types.UartFifoEnableClear)
	p.io.Outb(p.base+types.UartRegModemCtrl, types.UartMcrReady)

	return p, nil
}

// WriteByte waits for the transmitter and emits one byte. The wait is
// bounded; on timeout the byte is written regardless.
func (p *Port) WriteByte(b byte) {
	for i := 0; i < types.UartTxPollLimit; i++ {
		if p.io.Inb(p.base+types.UartRegLineStatus)&types.UartLsrTxEmpty != 0 {
			break
		}
	}
	p.io.Outb(p.base+types.UartRegData, b)
}

// WriteString emits s with newline expanded to CRLF for terminal capture.
func (p *Port) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			p.WriteByte('\r')
		}
		p.WriteByte(s[i])
	}
}
