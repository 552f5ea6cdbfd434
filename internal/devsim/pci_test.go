package devsim

import (
	"testing"

	"github.com/othello-os/go-othello/internal/types"
)

// createTestPciBus registers one RTL8139 function at 00:03.0 behind the
// configuration ports.
func createTestPciBus(t *testing.T) (*Bus, *PciConfigSpace) {
	t.Helper()

	cfg := NewPciConfigSpace()
	err := cfg.AddFunction(PciFunction{
		Bus: 0, Device: 3, Function: 0,
		VendorID: types.PciVendorRealtek,
		DeviceID: types.PciDeviceRTL8139,
		ClassRev: 0x0200_0010,
		BAR0:     0xC001,
	})
	if err != nil {
		t.Fatalf("AddFunction failed: %v", err)
	}

	bus := NewBus()
	if err := bus.Register(cfg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return bus, cfg
}

func pciAddr(busNo, dev, fn, offset uint32) uint32 {
	return 1<<31 | busNo<<16 | dev<<11 | fn<<8 | (offset &^ 3)
}

func TestPciConfigRead(t *testing.T) {
	bus, _ := createTestPciBus(t)

	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x00))
	if got := bus.Inl(types.PciConfigDataPort); got != 0x8139_10EC {
		t.Errorf("vendor/device dword = 0x%08X, want 0x813910EC", got)
	}

	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x10))
	if got := bus.Inl(types.PciConfigDataPort); got != 0xC001 {
		t.Errorf("BAR0 = 0x%08X, want 0xC001", got)
	}

	// Absent functions read all-ones.
	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 4, 0, 0x00))
	if got := bus.Inl(types.PciConfigDataPort); got != 0xFFFF_FFFF {
		t.Errorf("absent function reads 0x%08X, want all-ones", got)
	}

	// So does a disabled address register.
	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x00)&^(1<<31))
	if got := bus.Inl(types.PciConfigDataPort); got != 0xFFFF_FFFF {
		t.Errorf("disabled access reads 0x%08X, want all-ones", got)
	}
}

func TestPciByteLanes(t *testing.T) {
	bus, _ := createTestPciBus(t)

	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x00))
	if got := bus.Inw(types.PciConfigDataPort); got != uint16(types.PciVendorRealtek) {
		t.Errorf("low word = 0x%04X, want the vendor id", got)
	}
	if got := bus.Inw(types.PciConfigDataPort + 2); got != uint16(types.PciDeviceRTL8139) {
		t.Errorf("high word = 0x%04X, want the device id", got)
	}
	if got := bus.Inb(types.PciConfigDataPort + 2); got != 0x39 {
		t.Errorf("byte lane 2 = 0x%02X, want 0x39", got)
	}
}

func TestPciCommandWrite(t *testing.T) {
	bus, cfg := createTestPciBus(t)

	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x04))
	bus.Outl(types.PciConfigDataPort, types.PciCmdIOSpace|types.PciCmdBusMaster)

	if got := cfg.Command(0, 3, 0); got != types.PciCmdIOSpace|types.PciCmdBusMaster {
		t.Errorf("command register = 0x%04X, want I/O space and bus master", got)
	}

	// BARs are fixed; writes land nowhere.
	bus.Outl(types.PciConfigAddrPort, pciAddr(0, 3, 0, 0x10))
	bus.Outl(types.PciConfigDataPort, 0xFFFF_FFFF)
	if got := bus.Inl(types.PciConfigDataPort); got != 0xC001 {
		t.Errorf("BAR0 = 0x%08X after write, want unchanged 0xC001", got)
	}
}

func TestPciDuplicateFunction(t *testing.T) {
	_, cfg := createTestPciBus(t)

	err := cfg.AddFunction(PciFunction{Bus: 0, Device: 3, Function: 0, VendorID: 1, DeviceID: 2})
	if err == nil {
		t.Fatal("duplicate AddFunction succeeded")
	}
}
