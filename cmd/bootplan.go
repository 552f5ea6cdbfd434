package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/managers/paging"
	"github.com/othello-os/go-othello/internal/parsers/elfimage"
	"github.com/othello-os/go-othello/internal/services"
	"github.com/othello-os/go-othello/internal/types"
)

var (
	// Guest machine shape (bootplan-specific)
	bootplanMemMB  int
	bootplanWidth  uint16
	bootplanHeight uint16

	// Post-stage checks
	bootplanVerify bool
)

var bootplanCmd = &cobra.Command{
	Use:   "bootplan [kernel-elf]",
	Short: "Stage a kernel ELF and print the boot hand-off plan",
	Long: `Stage a kernel ELF image into emulated physical memory and print the
state a loader would hand to it: page table root, stack top, entry
point and the boot info page.

Examples:
  # Stage a kernel with the default machine shape
  go-othello bootplan kernel.elf

  # More guest memory and a different display mode
  go-othello bootplan kernel.elf --mem-mb 256 --width 1280 --height 800

  # Walk the staged page tables for the mapped extremes
  go-othello bootplan kernel.elf --verify`,

	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runBootplan(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(bootplanCmd)

	// Guest machine shape
	bootplanCmd.Flags().IntVar(&bootplanMemMB, "mem-mb", 128, "guest memory in MiB")
	bootplanCmd.Flags().Uint16Var(&bootplanWidth, "width", 1024, "display width in pixels")
	bootplanCmd.Flags().Uint16Var(&bootplanHeight, "height", 768, "display height in pixels")

	// Post-stage checks
	bootplanCmd.Flags().BoolVar(&bootplanVerify, "verify", false, "translate the mapped extremes through the staged page tables")
}

func runBootplan(path string) error {
	kernel, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read kernel image: %w", err)
	}

	mem, err := devsim.NewMemory(uint64(bootplanMemMB) << 20)
	if err != nil {
		return err
	}
	display := devsim.NewDisplay(bootplanWidth, bootplanHeight, framebufferAperture(mem.Size(), bootplanWidth, bootplanHeight))

	staging, err := services.NewBootPlanService(mem, display)
	if err != nil {
		return err
	}
	plan, err := staging.Stage(kernel)
	if err != nil {
		return fmt.Errorf("failed to stage %s: %w", path, err)
	}

	fmt.Printf("Kernel: %s (%d bytes)\n", path, len(kernel))
	fmt.Printf("    Load span:  0x%X-0x%X (%d pages)\n", plan.Layout.MinVaddr, plan.Layout.MaxVaddr, plan.Layout.Pages())
	fmt.Printf("    Placed at:  0x%X\n", plan.KernelPhys)
	fmt.Printf("    Entry:      0x%X\n", plan.Entry)
	if verbose {
		printSegments(kernel)
	}
	fmt.Println("Hand-off:")
	fmt.Printf("    PML4:       0x%X\n", plan.PML4)
	fmt.Printf("    Stack top:  0x%X\n", plan.StackTop)
	fmt.Printf("    Boot info:  0x%X\n", plan.BootInfoPhys)
	fmt.Printf("    Video:      %dx%d %dbpp, pitch %d, framebuffer 0x%X\n",
		plan.Video.Width, plan.Video.Height, plan.Video.BitsPerPix, plan.Video.Pitch, plan.Video.FramebufPhy)
	fmt.Printf("    Kernel map: virt 0x%X -> phys 0x%X, %d bytes\n",
		plan.KernelMap.KernelVirtBase, plan.KernelMap.KernelPhysBase, plan.KernelMap.KernelSize)

	if bootplanVerify {
		fmt.Println("Translations:")
		samples := []uint64{
			plan.Entry,
			plan.Layout.MinVaddr,
			plan.Layout.MinVaddr + plan.Layout.Size - 1,
			plan.BootInfoPhys,
			plan.StackTop - 8,
		}
		for _, vaddr := range samples {
			printTranslation(mem, plan.PML4, vaddr)
		}
	}
	return nil
}

func printSegments(kernel []byte) {
	img, err := elfimage.NewELFReader(kernel)
	if err != nil {
		return
	}
	fmt.Println("    Segments:")
	for _, ph := range img.ProgramHeaders() {
		kind := "other"
		if ph.Type == types.ElfPtLoad {
			kind = "load"
		}
		fmt.Printf("        %-6s vaddr 0x%X  file %d  mem %d  align 0x%X\n",
			kind, ph.Vaddr, ph.Filesz, ph.Memsz, ph.Align)
	}
}

func printTranslation(mem *devsim.Memory, pml4, vaddr uint64) {
	phys, ok := paging.Translate(mem, pml4, vaddr)
	if !ok {
		fmt.Printf("    0x%016X -> unmapped\n", vaddr)
		return
	}
	fmt.Printf("    0x%016X -> 0x%X\n", vaddr, phys)
}

// framebufferAperture places the emulated framebuffer at the top of guest
// memory, clear of the page allocator growing up from the low megabytes.
func framebufferAperture(memBytes uint64, width, height uint16) uint64 {
	fbBytes := uint64(width) * uint64(height) * types.BootVideoBPP / 8
	if fbBytes >= memBytes {
		return memBytes - types.PageSize4K
	}
	return (memBytes - fbBytes) &^ (types.PageSize4K - 1)
}
