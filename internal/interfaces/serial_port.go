// File: internal/interfaces/serial_port.go
package interfaces

// SerialPort is a byte-oriented console sink
type SerialPort interface {
	// WriteByte emits a single byte
	WriteByte(b byte)

	// WriteString emits every byte of s
	WriteString(s string)
}
