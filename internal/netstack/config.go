package netstack

import (
	"fmt"

	"github.com/spf13/viper"
)

// NetConfig is the interface state the stack exposes: adapter presence, the
// station address, and the IPv4 binding with its origin.
type NetConfig struct {
	NICPresent bool
	MAC        [6]byte

	DHCPBound    bool
	IP           [4]byte
	Mask         [4]byte
	Gateway      [4]byte
	DNS          [4]byte
	ServerID     [4]byte
	LeaseSeconds uint32
}

// Stats counts traffic at the stack level, independent of the driver's own
// ring accounting.
type Stats struct {
	RxPackets uint32
	TxPackets uint32
	RxDropped uint32
}

// StackConfig holds the spin budgets of the blocking poll loops
type StackConfig struct {
	ArpSpins        uint32 `mapstructure:"arp_spins"`
	DhcpSpins       uint32 `mapstructure:"dhcp_spins"`
	DnsSpins        uint32 `mapstructure:"dns_spins"`
	TcpConnectSpins uint32 `mapstructure:"tcp_connect_spins"`
	TcpReadSpins    uint32 `mapstructure:"tcp_read_spins"`
	PingSpins       uint32 `mapstructure:"ping_spins"`
}

// LoadStackConfig loads poll budgets using Viper
func LoadStackConfig() (*StackConfig, error) {
	v := viper.New()
	v.SetConfigName("othello-config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.othello")
	v.AddConfigPath("/etc/othello")

	// Set defaults
	v.SetDefault("arp_spins", 6_000_000)
	v.SetDefault("dhcp_spins", 12_000_000)
	v.SetDefault("dns_spins", 18_000_000)
	v.SetDefault("tcp_connect_spins", 10_000_000)
	v.SetDefault("tcp_read_spins", 10_000_000)
	v.SetDefault("ping_spins", 12_000_000)

	// Allow environment variables
	v.SetEnvPrefix("OTHELLO")
	v.AutomaticEnv()

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, we'll use defaults
	}

	var config StackConfig
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// DefaultStackConfig returns the budgets used when no file or environment
// overrides exist.
func DefaultStackConfig() *StackConfig {
	return &StackConfig{
		ArpSpins:        6_000_000,
		DhcpSpins:       12_000_000,
		DnsSpins:        18_000_000,
		TcpConnectSpins: 10_000_000,
		TcpReadSpins:    10_000_000,
		PingSpins:       12_000_000,
	}
}
