package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/othello-os/go-othello/internal/disk"
	"github.com/othello-os/go-othello/internal/netstack"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the effective configuration",
	Long: `Show the disk and network settings every command runs with.

Values come from othello-config.yaml, searched in ., ./config,
$HOME/.othello and /etc/othello, with OTHELLO_* environment variables
taking precedence and built-in defaults filling the rest.

Examples:
  # Show the effective configuration
  go-othello config

  # Override a poll budget for one invocation
  OTHELLO_DNS_SPINS=40000000 go-othello config`,

	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		if err := runConfig(); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig() error {
	diskCfg, err := disk.LoadDiskConfig()
	if err != nil {
		return fmt.Errorf("disk configuration: %w", err)
	}
	stackCfg, err := netstack.LoadStackConfig()
	if err != nil {
		return fmt.Errorf("network configuration: %w", err)
	}

	fmt.Println("Disk:")
	fmt.Printf("    cache_enabled:     %v\n", diskCfg.CacheEnabled)
	fmt.Printf("    cache_size:        %d MiB\n", diskCfg.CacheSize)
	fmt.Printf("    default_sectors:   %d\n", diskCfg.DefaultSectors)
	fmt.Printf("    data_path:         %s\n", diskCfg.DataPath)

	fmt.Println("Network poll budgets:")
	fmt.Printf("    arp_spins:         %d\n", stackCfg.ArpSpins)
	fmt.Printf("    dhcp_spins:        %d\n", stackCfg.DhcpSpins)
	fmt.Printf("    dns_spins:         %d\n", stackCfg.DnsSpins)
	fmt.Printf("    tcp_connect_spins: %d\n", stackCfg.TcpConnectSpins)
	fmt.Printf("    tcp_read_spins:    %d\n", stackCfg.TcpReadSpins)
	fmt.Printf("    ping_spins:        %d\n", stackCfg.PingSpins)
	return nil
}
