package rtl8139

import (
	"errors"

	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/types"
)

// ErrNoAdapter reports that no RTL8139 function answered the PCI scan.
var ErrNoAdapter = errors.New("no RTL8139 adapter on the PCI bus")

// Probe walks PCI configuration space for the first RTL8139 function,
// enables I/O space and bus mastering on it, and returns the port base
// decoded from BAR0.
func Probe(portIO interfaces.PortIO) (uint16, error) {
	if portIO == nil {
		return 0, errors.New("port I/O surface is required")
	}

	for bus := 0; bus < 256; bus++ {
		for dev := 0; dev < 32; dev++ {
			id := configRead(portIO, uint8(bus), uint8(dev), 0, 0x00)
			if uint16(id) != types.PciVendorRealtek || uint16(id>>16) != types.PciDeviceRTL8139 {
				continue
			}

			bar0 := configRead(portIO, uint8(bus), uint8(dev), 0, 0x10)
			if bar0&1 == 0 {
				// Memory-mapped BAR; this driver only speaks port I/O.
				continue
			}

			cmd := configRead(portIO, uint8(bus), uint8(dev), 0, 0x04)
			configWrite(portIO, uint8(bus), uint8(dev), 0, 0x04,
				cmd|types.PciCmdIOSpace|types.PciCmdBusMaster)
			return uint16(bar0 &^ 0x3), nil
		}
	}
	return 0, ErrNoAdapter
}

func configAddr(bus, dev, fn, offset uint8) uint32 {
	return 1<<31 | uint32(bus)<<16 | uint32(dev)<<11 | uint32(fn)<<8 | uint32(offset&0xFC)
}

func configRead(portIO interfaces.PortIO, bus, dev, fn, offset uint8) uint32 {
	portIO.Outl(types.PciConfigAddrPort, configAddr(bus, dev, fn, offset))
	return portIO.Inl(types.PciConfigDataPort)
}

func configWrite(portIO interfaces.PortIO, bus, dev, fn, offset uint8, value uint32) {
	portIO.Outl(types.PciConfigAddrPort, configAddr(bus, dev, fn, offset))
	portIO.Outl(types.PciConfigDataPort, value)
}
