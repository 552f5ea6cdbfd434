package kernel

import (
	"errors"
	"fmt"

	"github.com/othello-os/go-othello/internal/device/ide"
	"github.com/othello-os/go-othello/internal/device/rtl8139"
	"github.com/othello-os/go-othello/internal/device/uart"
	"github.com/othello-os/go-othello/internal/interfaces"
	"github.com/othello-os/go-othello/internal/netstack"
	"github.com/othello-os/go-othello/internal/parsers/bootinfo"
	"github.com/othello-os/go-othello/internal/ramfs"
	"github.com/othello-os/go-othello/internal/services"
	"github.com/othello-os/go-othello/internal/types"
)

// BootParams is everything the kernel entry point receives: the hardware
// surfaces and the physical address of the loader's boot info page.
type BootParams struct {
	Bus          interfaces.PortIO
	Memory       interfaces.PhysicalMemory
	Clock        interfaces.Clock
	BootInfoPhys uint64

	// NetBudgets overrides the network spin budgets; nil selects defaults.
	NetBudgets *netstack.StackConfig

	// Halt is invoked by the trap catch-all after reporting a fault.
	Halt func()
}

// System is the booted kernel core. Optional hardware that was absent or
// broken leaves its field nil; the console, filesystem, trap table and
// network stack are always present.
type System struct {
	Console     *uart.Port
	BootInfo    interfaces.BootInfoReader
	Framebuffer *Framebuffer
	Traps       *TrapTable
	FS          *ramfs.RamFS
	Persist     *services.PersistenceService
	Replayed    int
	NIC         *rtl8139.Driver
	Net         *netstack.Stack
}

// Boot runs the hand-off sequence: console, boot page, framebuffer, traps,
// disk mount and log replay, NIC scan, network stack. Missing devices
// degrade the system instead of failing it; only an unusable boot page or
// dependency aborts the boot.
func Boot(params BootParams) (*System, error) {
	if params.Bus == nil || params.Memory == nil || params.Clock == nil {
		return nil, fmt.Errorf("bus, memory and clock are required")
	}

	console, err := uart.New(params.Bus)
	if err != nil {
		return nil, err
	}
	console.WriteString("othello: kernel up\n")

	page := make([]byte, types.BootInfoPageSize)
	if err := params.Memory.ReadPhys(params.BootInfoPhys, page); err != nil {
		return nil, fmt.Errorf("boot info page at 0x%X: %w", params.BootInfoPhys, err)
	}
	info, err := bootinfo.NewBootInfoReader(page)
	if err != nil {
		return nil, fmt.Errorf("boot info page: %w", err)
	}

	sys := &System{Console: console, BootInfo: info, FS: ramfs.New()}

	if fb, err := NewFramebuffer(info.VideoInfo(), params.Memory); err != nil {
		console.WriteString(fmt.Sprintf("framebuffer: %v\n", err))
	} else if err := fb.Clear(0x000000); err != nil {
		console.WriteString(fmt.Sprintf("framebuffer: %v\n", err))
	} else {
		sys.Framebuffer = fb
		console.WriteString(fmt.Sprintf("framebuffer %dx%d\n", fb.Width(), fb.Height()))
	}

	sys.Traps, err = NewTrapTable(console, params.Halt)
	if err != nil {
		return nil, err
	}

	bootStorage(sys, params)
	if err := bootNetwork(sys, params); err != nil {
		return nil, err
	}

	console.WriteString("othello: ready\n")
	return sys, nil
}

// bootStorage mounts the log region of the primary drive and replays it
// into the filesystem. Every failure leaves the filesystem RAM-only.
func bootStorage(sys *System, params BootParams) {
	drive, err := ide.Identify(params.Bus)
	if err != nil {
		if errors.Is(err, ide.ErrNoDevice) {
			sys.Console.WriteString("disk: none\n")
		} else {
			sys.Console.WriteString(fmt.Sprintf("disk: %v\n", err))
		}
		return
	}

	persist, err := services.NewPersistenceService(drive, sys.FS)
	if err != nil {
		sys.Console.WriteString(fmt.Sprintf("fs: %v\n", err))
		return
	}
	if err := persist.Mount(); err != nil {
		sys.Console.WriteString(fmt.Sprintf("fs: %v\n", err))
		return
	}
	n, err := persist.Replay()
	if err != nil {
		sys.Console.WriteString(fmt.Sprintf("fs: replay: %v\n", err))
		return
	}
	sys.Persist = persist
	sys.Replayed = n
	sys.Console.WriteString(fmt.Sprintf("fs: replayed %d records\n", n))
}

// bootNetwork scans PCI for the NIC and builds the network stack. Without
// an adapter the stack still exists and reports the missing NIC per call.
func bootNetwork(sys *System, params BootParams) error {
	var link interfaces.FrameLink

	base, err := rtl8139.Probe(params.Bus)
	switch {
	case errors.Is(err, rtl8139.ErrNoAdapter):
		sys.Console.WriteString("nic: none\n")
	case err != nil:
		sys.Console.WriteString(fmt.Sprintf("nic: %v\n", err))
	default:
		drv, derr := rtl8139.NewDriver(params.Bus, params.Memory, base)
		if derr != nil {
			sys.Console.WriteString(fmt.Sprintf("nic: %v\n", derr))
			break
		}
		sys.NIC = drv
		link = drv
		mac := drv.MAC()
		sys.Console.WriteString(fmt.Sprintf("nic %02X:%02X:%02X:%02X:%02X:%02X at 0x%X\n",
			mac[0], mac[1], mac[2], mac[3], mac[4], mac[5], base))
	}

	stack, err := netstack.NewStack(link, params.Clock, params.NetBudgets)
	if err != nil {
		return fmt.Errorf("network stack: %w", err)
	}
	sys.Net = stack
	return nil
}
