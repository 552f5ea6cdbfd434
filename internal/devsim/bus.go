package devsim

import (
	"fmt"
	"sync"

	"github.com/othello-os/go-othello/internal/interfaces"
)

// Bus routes port I/O to registered device models. Unclaimed ports behave
// like an open ISA bus: reads return all ones, writes vanish.
type Bus struct {
	mu      sync.RWMutex
	devices []interfaces.PortDevice
}

// NewBus creates an empty port I/O bus.
func NewBus() *Bus {
	return &Bus{}
}

// Register attaches a device model. Overlapping port ranges are refused.
func (b *Bus) Register(dev interfaces.PortDevice) error {
	base, count := dev.PortRange()
	if count == 0 {
		return fmt.Errorf("device claims no ports")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.devices {
		eBase, eCount := existing.PortRange()
		if base < eBase+eCount && eBase < base+count {
			return fmt.Errorf("port range [0x%X, 0x%X) overlaps existing device at 0x%X",
				base, base+count, eBase)
		}
	}
	b.devices = append(b.devices, dev)
	return nil
}

func (b *Bus) find(port uint16) interfaces.PortDevice {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, dev := range b.devices {
		base, count := dev.PortRange()
		if port >= base && port < base+count {
			return dev
		}
	}
	return nil
}

func (b *Bus) in(port uint16, width int) uint32 {
	if dev := b.find(port); dev != nil {
		return dev.PortIn(port, width)
	}
	switch width {
	case 1:
		return 0xFF
	case 2:
		return 0xFFFF
	default:
		return 0xFFFF_FFFF
	}
}

func (b *Bus) out(port uint16, width int, value uint32) {
	if dev := b.find(port); dev != nil {
		dev.PortOut(port, width, value)
	}
}

// Inb reads one byte from a port.
func (b *Bus) Inb(port uint16) uint8 {
	return uint8(b.in(port, 1))
}

// Outb writes one byte to a port.
func (b *Bus) Outb(port uint16, value uint8) {
	b.out(port, 1, uint32(value))
}

// Inw reads a 16-bit word from a port.
func (b *Bus) Inw(port uint16) uint16 {
	return uint16(b.in(port, 2))
}

// Outw writes a 16-bit word to a port.
func (b *Bus) Outw(port uint16, value uint16) {
	b.out(port, 2, uint32(value))
}

// Inl reads a 32-bit doubleword from a port.
func (b *Bus) Inl(port uint16) uint32 {
	return b.in(port, 4)
}

// Outl writes a 32-bit doubleword to a port.
func (b *Bus) Outl(port uint16, value uint32) {
	b.out(port, 4, value)
}
