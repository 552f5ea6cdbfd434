package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/disk"
	"github.com/othello-os/go-othello/internal/kernel"
	"github.com/othello-os/go-othello/internal/netstack"
	"github.com/othello-os/go-othello/internal/parsers/bootinfo"
	"github.com/othello-os/go-othello/internal/services"
	"github.com/othello-os/go-othello/internal/types"
)

// simBootInfoPhys is where the boot info page lands when no ELF is staged,
// below the page allocator's first address.
const simBootInfoPhys = 0x6000

var (
	// Guest machine shape (sim-specific)
	simMemMB  int
	simWidth  uint16
	simHeight uint16

	// Attached hardware
	simDiskPath string
	simNoNet    bool
)

var simCmd = &cobra.Command{
	Use:   "sim",
	Short: "Boot the full system and show its console",
}

var simBootCmd = &cobra.Command{
	Use:   "boot [kernel-elf]",
	Short: "Run the boot sequence against emulated hardware",
	Long: `Bring the system up: serial console, boot info page, framebuffer, trap
table, disk mount with log replay, and the NIC with its network stack.

With a kernel ELF the image is staged first and the hand-off page the
loader would build is the one the kernel parses. With --disk the mount
replays the image's log and the boot count is bumped and synced back,
so it survives to the next boot. Unless --no-net is given the station
pings its scripted router after coming up.

Examples:
  # Boot with nothing attached
  go-othello sim boot

  # Boot with a persistent disk, twice to see the count climb
  go-othello image create othello.img
  go-othello sim boot --disk othello.img
  go-othello sim boot --disk othello.img

  # Stage a kernel image into the same machine
  go-othello sim boot kernel.elf --mem-mb 256`,

	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		elfPath := ""
		if len(args) == 1 {
			elfPath = args[0]
		}
		if err := runSimBoot(elfPath); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(simCmd)
	simCmd.AddCommand(simBootCmd)

	// Guest machine shape
	simBootCmd.Flags().IntVar(&simMemMB, "mem-mb", 128, "guest memory in MiB")
	simBootCmd.Flags().Uint16Var(&simWidth, "width", 1024, "display width in pixels")
	simBootCmd.Flags().Uint16Var(&simHeight, "height", 768, "display height in pixels")

	// Attached hardware
	simBootCmd.Flags().StringVar(&simDiskPath, "disk", "", "disk image to attach")
	simBootCmd.Flags().BoolVar(&simNoNet, "no-net", false, "boot without a network adapter")
}

func runSimBoot(elfPath string) error {
	mem, err := devsim.NewMemory(uint64(simMemMB) << 20)
	if err != nil {
		return err
	}
	bus := devsim.NewBus()

	serial := devsim.NewSerialDevice()
	if err := bus.Register(serial); err != nil {
		return err
	}

	var image *disk.ImageDevice
	if simDiskPath != "" {
		cfg, err := disk.LoadDiskConfig()
		if err != nil {
			return err
		}
		image, err = disk.OpenImage(simDiskPath, cfg)
		if err != nil {
			return err
		}
		defer image.Close()
	}
	if image != nil {
		err = bus.Register(devsim.NewAtaDevice(image))
	} else {
		err = bus.Register(devsim.NewAtaDevice(nil))
	}
	if err != nil {
		return err
	}

	var peer *devsim.NetPeer
	if !simNoNet {
		nic := devsim.NewRtl8139Device(netNicIOBase, netStationMAC, mem)
		if err := bus.Register(nic); err != nil {
			return err
		}
		pci := devsim.NewPciConfigSpace()
		if err := pci.AddFunction(devsim.PciFunction{
			Device:   3,
			VendorID: types.PciVendorRealtek,
			DeviceID: types.PciDeviceRTL8139,
			ClassRev: 0x0200_0010,
			BAR0:     netNicIOBase | 1,
		}); err != nil {
			return err
		}
		if err := bus.Register(pci); err != nil {
			return err
		}
		peer = devsim.NewNetPeer(nic, netPeerMAC)
		peer.Own(netRouterIP)
		peer.Own(netDnsIP)
		peer.ServeDNS("files.lan", netWebIP)
	}

	infoPhys, err := stageBootInfo(mem, elfPath)
	if err != nil {
		return err
	}

	budgets, err := netstack.LoadStackConfig()
	if err != nil {
		return err
	}

	sys, err := kernel.Boot(kernel.BootParams{
		Bus:          bus,
		Memory:       mem,
		Clock:        devsim.NewVirtualClock(1_000_003),
		BootInfoPhys: infoPhys,
		NetBudgets:   budgets,
	})
	if err != nil {
		printConsole(serial)
		return fmt.Errorf("boot failed: %w", err)
	}
	printConsole(serial)

	if sys.Persist != nil {
		count, err := bumpBootCount(sys)
		if err != nil {
			return err
		}
		fmt.Printf("boot count: %d\n", count)
	}

	if sys.Net != nil && peer != nil {
		sys.Net.SetStaticConfig(netStationIP, netMask, netRouterIP, netDnsIP)
		for seq := uint16(1); seq <= 2; seq++ {
			reply, err := sys.Net.Ping(netRouterIP, seq)
			if err != nil {
				return fmt.Errorf("router ping: %w", err)
			}
			fmt.Printf("router answered seq=%d in %d cycles\n", reply.Seq, reply.RTTCycles)
		}
	}
	return nil
}

// stageBootInfo prepares the page the kernel entry parses. With an ELF the
// whole loader path runs; without one an equivalent hand-off page is
// written below the allocator base.
func stageBootInfo(mem *devsim.Memory, elfPath string) (uint64, error) {
	aperture := framebufferAperture(mem.Size(), simWidth, simHeight)
	display := devsim.NewDisplay(simWidth, simHeight, aperture)

	if elfPath == "" {
		mode, err := display.QueryMode()
		if err != nil {
			return 0, err
		}
		if err := mem.WritePhys(simBootInfoPhys, bootinfo.EncodePage(mode, nil)); err != nil {
			return 0, err
		}
		return simBootInfoPhys, nil
	}

	elf, err := os.ReadFile(elfPath)
	if err != nil {
		return 0, fmt.Errorf("failed to read kernel image: %w", err)
	}
	staging, err := services.NewBootPlanService(mem, display)
	if err != nil {
		return 0, err
	}
	plan, err := staging.Stage(elf)
	if err != nil {
		return 0, fmt.Errorf("failed to stage %s: %w", elfPath, err)
	}
	if !quiet {
		fmt.Printf("staged %s: entry 0x%X, pml4 0x%X, stack 0x%X\n",
			elfPath, plan.Entry, plan.PML4, plan.StackTop)
	}
	return plan.BootInfoPhys, nil
}

// printConsole echoes the captured serial output.
func printConsole(serial *devsim.SerialDevice) {
	if quiet {
		return
	}
	for _, line := range serial.Lines() {
		fmt.Printf("  | %s\n", line)
	}
}

// bumpBootCount reads, increments and persists the boot counter.
func bumpBootCount(sys *kernel.System) (int, error) {
	count := 0
	if data, err := sys.FS.ReadAll("/boot_count"); err == nil {
		if n, perr := strconv.Atoi(strings.TrimSpace(string(data))); perr == nil {
			count = n
		}
	}
	count++
	if err := sys.FS.WriteAll("/boot_count", []byte(strconv.Itoa(count)+"\n")); err != nil {
		return 0, err
	}
	if _, err := sys.Persist.Sync(); err != nil {
		return 0, err
	}
	return count, nil
}
