// File: internal/interfaces/port_io.go
package interfaces

// PortIO provides x86 I/O port access. Drivers are written against this
// surface; device models implement the other side of it.
type PortIO interface {
	// Inb reads one byte from an I/O port
	Inb(port uint16) uint8

	// Outb writes one byte to an I/O port
	Outb(port uint16, value uint8)

	// Inw reads a 16-bit word from an I/O port
	Inw(port uint16) uint16

	// Outw writes a 16-bit word to an I/O port
	Outw(port uint16, value uint16)

	// Inl reads a 32-bit doubleword from an I/O port
	Inl(port uint16) uint32

	// Outl writes a 32-bit doubleword to an I/O port
	Outl(port uint16, value uint32)
}

// PortDevice is a device model that claims a range of the port space
type PortDevice interface {
	// PortRange returns the first port and the number of ports the device decodes
	PortRange() (base uint16, count uint16)

	// PortIn handles a read of the given width (1, 2 or 4 bytes) at port
	PortIn(port uint16, width int) uint32

	// PortOut handles a write of the given width (1, 2 or 4 bytes) at port
	PortOut(port uint16, width int, value uint32)
}
