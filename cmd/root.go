package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global output flags only
	verbose bool
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "go-othello",
	Short: "Hosted Othello kernel core: boot staging, disk images, and the network stack",
	Long: `go-othello runs the Othello kernel core on a development machine.

The kernel's drivers, persistent filesystem and network stack execute
unchanged against register-accurate device models, so boot plans, disk
images and protocol conversations can be built and inspected without
hardware or an emulator.

Commands:
  bootplan    Stage a kernel ELF and print the boot hand-off plan
  image       Create and inspect virtual disk images
  fs          Operate on the persistent filesystem inside an image
  net         Exercise the network stack against a scripted peer
  sim         Boot the full system and show its console
  config      Show the effective configuration`,
	Version: "0.1.0-dev",
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	// Only global output control flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
}
