package devsim

import (
	"fmt"
	"sync"

	"github.com/othello-os/go-othello/internal/types"
)

// PciFunction describes one device function visible through configuration
// space. BAR0 is reported verbatim, so I/O BARs must carry bit 0.
type PciFunction struct {
	Bus      uint8
	Device   uint8
	Function uint8
	VendorID uint16
	DeviceID uint16
	ClassRev uint32
	BAR0     uint32

	command uint16
}

// PciConfigSpace models configuration mechanism #1: an address register at
// 0xCF8 selecting bus/device/function/offset, and a data window at
// 0xCFC..0xCFF. Absent functions read all-ones.
type PciConfigSpace struct {
	mu    sync.Mutex
	addr  uint32
	funcs []*PciFunction
}

func NewPciConfigSpace() *PciConfigSpace {
	return &PciConfigSpace{}
}

// AddFunction makes fn discoverable. Duplicate addresses are rejected.
func (p *PciConfigSpace) AddFunction(fn PciFunction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, existing := range p.funcs {
		if existing.Bus == fn.Bus && existing.Device == fn.Device && existing.Function == fn.Function {
			return fmt.Errorf("pci function %02x:%02x.%d already present", fn.Bus, fn.Device, fn.Function)
		}
	}
	p.funcs = append(p.funcs, &fn)
	return nil
}

// Command returns the command register of the addressed function, so tests
// can observe bus-master and I/O-space enablement.
func (p *PciConfigSpace) Command(bus, device, function uint8) uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if fn := p.lookup(bus, device, function); fn != nil {
		return fn.command
	}
	return 0
}

// PortRange covers 0xCF8..0xCFF.
func (p *PciConfigSpace) PortRange() (uint16, uint16) {
	return types.PciConfigAddrPort, 8
}

func (p *PciConfigSpace) PortIn(port uint16, width int) uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < types.PciConfigDataPort {
		return p.addr
	}

	dword := p.readConfig()
	lane := uint32(port-types.PciConfigDataPort) * 8
	switch width {
	case 1:
		return (dword >> lane) & 0xFF
	case 2:
		return (dword >> lane) & 0xFFFF
	default:
		return dword
	}
}

func (p *PciConfigSpace) PortOut(port uint16, width int, value uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if port < types.PciConfigDataPort {
		p.addr = value
		return
	}
	p.writeConfig(value, width, uint16(port-types.PciConfigDataPort))
}

func (p *PciConfigSpace) decodeAddr() (fn *PciFunction, offset uint16, enabled bool) {
	if p.addr&0x8000_0000 == 0 {
		return nil, 0, false
	}
	bus := uint8(p.addr >> 16)
	device := uint8(p.addr>>11) & 0x1F
	function := uint8(p.addr>>8) & 0x7
	offset = uint16(p.addr) & 0xFC
	return p.lookup(bus, device, function), offset, true
}

func (p *PciConfigSpace) lookup(bus, device, function uint8) *PciFunction {
	for _, fn := range p.funcs {
		if fn.Bus == bus && fn.Device == device && fn.Function == function {
			return fn
		}
	}
	return nil
}

func (p *PciConfigSpace) readConfig() uint32 {
	fn, offset, enabled := p.decodeAddr()
	if !enabled || fn == nil {
		return 0xFFFF_FFFF
	}
	switch offset {
	case 0x00:
		return uint32(fn.DeviceID)<<16 | uint32(fn.VendorID)
	case 0x04:
		return uint32(fn.command)
	case 0x08:
		return fn.ClassRev
	case 0x10:
		return fn.BAR0
	}
	return 0
}

func (p *PciConfigSpace) writeConfig(value uint32, width int, lane uint16) {
	fn, offset, enabled := p.decodeAddr()
	if !enabled || fn == nil {
		return
	}
	// Only the command register accepts writes; the BARs are fixed.
	if offset != 0x04 || lane != 0 {
		return
	}
	fn.command = uint16(value)
}
