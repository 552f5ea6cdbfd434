package kernel

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/disk"
	"github.com/othello-os/go-othello/internal/netstack"
	"github.com/othello-os/go-othello/internal/parsers/bootinfo"
	"github.com/othello-os/go-othello/internal/ramfs"
	"github.com/othello-os/go-othello/internal/services"
	"github.com/othello-os/go-othello/internal/types"
)

const (
	bootInfoPhys = 0x6000
	nicIOBase    = 0xC000
	fbPhys       = 0x0080_0000
)

var (
	bootStationMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	bootPeerMAC    = [6]byte{0x00, 0x1B, 0x21, 0xAA, 0xBB, 0xCC}

	bootStationIP = [4]byte{192, 168, 77, 2}
	bootRouterIP  = [4]byte{192, 168, 77, 1}
	bootDNSIP     = [4]byte{192, 168, 77, 53}
	bootMask      = [4]byte{255, 255, 255, 0}
)

func bootNetBudgets() *netstack.StackConfig {
	return &netstack.StackConfig{
		ArpSpins:        128,
		DhcpSpins:       256,
		DnsSpins:        256,
		TcpConnectSpins: 128,
		TcpReadSpins:    64,
		PingSpins:       256,
	}
}

// seedDisk creates a disk image whose log region already holds a directory
// and a file, as a previous run's sync would leave it.
func seedDisk(t *testing.T) *disk.ImageDevice {
	t.Helper()

	path := filepath.Join(t.TempDir(), "boot.img")
	image, err := disk.CreateImage(path, 16384, disk.DefaultDiskConfig())
	require.NoError(t, err)
	t.Cleanup(func() { image.Close() })

	fs := ramfs.New()
	persist, err := services.NewPersistenceService(image, fs)
	require.NoError(t, err)
	require.NoError(t, persist.Mount())
	require.NoError(t, fs.MkdirP("/etc"))
	require.NoError(t, fs.WriteAll("/etc/motd", []byte("hello from last boot\n")))

	wrote, err := persist.Sync()
	require.NoError(t, err)
	require.Equal(t, 2, wrote)
	return image
}

func TestBootFullSystem(t *testing.T) {
	image := seedDisk(t)

	mem, err := devsim.NewMemory(16 << 20)
	require.NoError(t, err)
	bus := devsim.NewBus()

	serial := devsim.NewSerialDevice()
	require.NoError(t, bus.Register(serial))
	require.NoError(t, bus.Register(devsim.NewAtaDevice(image)))

	nicDev := devsim.NewRtl8139Device(nicIOBase, bootStationMAC, mem)
	require.NoError(t, bus.Register(nicDev))
	cfg := devsim.NewPciConfigSpace()
	require.NoError(t, cfg.AddFunction(devsim.PciFunction{
		Bus: 0, Device: 3, Function: 0,
		VendorID: types.PciVendorRealtek,
		DeviceID: types.PciDeviceRTL8139,
		ClassRev: 0x0200_0010,
		BAR0:     uint32(nicIOBase) | 1,
	}))
	require.NoError(t, bus.Register(cfg))

	video := types.BootVideoInfo{
		Width: 640, Height: 480, BitsPerPix: 32,
		FramebufPhy: fbPhys, Pitch: 2560,
	}
	require.NoError(t, mem.WritePhys(bootInfoPhys, bootinfo.EncodePage(video, nil)))

	// Stain the surface so the boot-time clear is observable.
	require.NoError(t, mem.WritePhys(fbPhys, []byte{0xDE, 0xAD, 0xBE, 0xEF}))

	halted := false
	sys, err := Boot(BootParams{
		Bus:          bus,
		Memory:       mem,
		Clock:        devsim.NewVirtualClock(1_000_003),
		BootInfoPhys: bootInfoPhys,
		NetBudgets:   bootNetBudgets(),
		Halt:         func() { halted = true },
	})
	require.NoError(t, err)

	require.NotNil(t, sys.Framebuffer)
	assert.Equal(t, 640, sys.Framebuffer.Width())
	assert.Equal(t, 480, sys.Framebuffer.Height())
	stain := make([]byte, 4)
	require.NoError(t, mem.ReadPhys(fbPhys, stain))
	assert.Equal(t, []byte{0, 0, 0, 0}, stain, "boot must clear the screen")

	require.NotNil(t, sys.Persist)
	assert.Equal(t, 2, sys.Replayed)
	motd, err := sys.FS.ReadAll("/etc/motd")
	require.NoError(t, err)
	assert.Equal(t, "hello from last boot\n", string(motd))

	require.NotNil(t, sys.NIC)
	assert.Equal(t, bootStationMAC, sys.NIC.MAC())
	require.NotNil(t, sys.Net)

	lines := serial.Lines()
	assert.Contains(t, lines, "othello: kernel up")
	assert.Contains(t, lines, "framebuffer 640x480")
	assert.Contains(t, lines, "fs: replayed 2 records")
	assert.Contains(t, lines, "nic 52:54:00:12:34:56 at 0xC000")
	assert.Contains(t, lines, "othello: ready")

	// Faults reach the console through the booted trap table.
	serial.Clear()
	sys.Traps.Dispatch(6)
	assert.Equal(t, []string{"EXCEPTION vector=6"}, serial.Lines())
	assert.True(t, halted)

	// The stack drives the same NIC the boot sequence found.
	peer := devsim.NewNetPeer(nicDev, bootPeerMAC)
	peer.Own(bootRouterIP)
	sys.Net.SetStaticConfig(bootStationIP, bootMask, bootRouterIP, bootDNSIP)
	reply, err := sys.Net.Ping(bootRouterIP, 7)
	require.NoError(t, err)
	assert.Equal(t, uint16(7), reply.Seq)
}

func TestBootWithoutOptionalHardware(t *testing.T) {
	mem, err := devsim.NewMemory(16 << 20)
	require.NoError(t, err)
	bus := devsim.NewBus()

	serial := devsim.NewSerialDevice()
	require.NoError(t, bus.Register(serial))
	require.NoError(t, bus.Register(devsim.NewAtaDevice(nil)))

	// A boot page with no video descriptor at all.
	require.NoError(t, mem.WritePhys(bootInfoPhys, bootinfo.EncodePage(types.BootVideoInfo{}, nil)))

	sys, err := Boot(BootParams{
		Bus:          bus,
		Memory:       mem,
		Clock:        devsim.NewVirtualClock(1),
		BootInfoPhys: bootInfoPhys,
		NetBudgets:   bootNetBudgets(),
	})
	require.NoError(t, err, "missing hardware degrades, it does not abort")

	assert.Nil(t, sys.Framebuffer)
	assert.Nil(t, sys.Persist)
	assert.Nil(t, sys.NIC)
	require.NotNil(t, sys.Net)

	lines := serial.Lines()
	assert.Contains(t, lines, "disk: none")
	assert.Contains(t, lines, "nic: none")
	assert.Contains(t, lines, "othello: ready")

	_, err = sys.Net.Ping(bootRouterIP, 1)
	assert.ErrorIs(t, err, netstack.ErrNoNIC)

	// The filesystem still works RAM-only.
	require.NoError(t, sys.FS.WriteAll("/tmp.txt", []byte("x")))
	data, err := sys.FS.ReadAll("/tmp.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
}

func TestBootValidation(t *testing.T) {
	_, err := Boot(BootParams{})
	assert.Error(t, err)

	mem, err := devsim.NewMemory(1 << 20)
	require.NoError(t, err)
	bus := devsim.NewBus()
	require.NoError(t, bus.Register(devsim.NewSerialDevice()))

	// Boot page off the end of memory.
	_, err = Boot(BootParams{
		Bus:          bus,
		Memory:       mem,
		Clock:        devsim.NewVirtualClock(1),
		BootInfoPhys: mem.Size() - 64,
	})
	assert.Error(t, err)
}
