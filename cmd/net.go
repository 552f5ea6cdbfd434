package cmd

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/othello-os/go-othello/internal/device/rtl8139"
	"github.com/othello-os/go-othello/internal/devsim"
	"github.com/othello-os/go-othello/internal/netstack"
	"github.com/othello-os/go-othello/internal/netstack/httpclient"
	"github.com/othello-os/go-othello/internal/types"
)

// The scripted segment: the station and a peer answering as router, DNS
// server and web host on 192.168.77.0/24.
const netNicIOBase = 0xC000

var (
	netStationMAC = [6]byte{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	netPeerMAC    = [6]byte{0x52, 0x54, 0x00, 0xEE, 0xEE, 0x01}
	netStationIP  = [4]byte{192, 168, 77, 2}
	netRouterIP   = [4]byte{192, 168, 77, 1}
	netDnsIP      = [4]byte{192, 168, 77, 53}
	netWebIP      = [4]byte{192, 168, 77, 80}
	netMask       = [4]byte{255, 255, 255, 0}
)

var (
	// Address acquisition and name service (shared by all net commands)
	netDHCP  bool
	netHosts map[string]string

	// Ping options
	netPingCount int

	// Fetch options
	netServe map[string]string
	netOut   string
)

var netCmd = &cobra.Command{
	Use:   "net",
	Short: "Exercise the network stack against a scripted peer",
	Long: `Run the kernel's network stack over the emulated RTL8139, talking to a
scripted peer that answers as the router (.1), the DNS server (.53) and
a web host (.80) on 192.168.77.0/24.

The peer's zone starts with files.lan pointing at the web host; --host
adds entries. With --dhcp the station leases its address instead of
using the static .2 binding.

Examples:
  # Resolve a name against the peer's zone
  go-othello net resolve files.lan

  # Ping the router, then an added host
  go-othello net ping 192.168.77.1
  go-othello net ping printer.lan --host printer.lan=192.168.77.9

  # Fetch a local file through DNS, TCP and HTTP
  go-othello net fetch http://files.lan/motd --serve /motd=./motd.txt

  # Lease the address first
  go-othello net ping 192.168.77.1 --dhcp`,
}

var netResolveCmd = &cobra.Command{
	Use:   "resolve [host]",
	Short: "Resolve a hostname through the stack's DNS client",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNetResolve(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var netPingCmd = &cobra.Command{
	Use:   "ping [host]",
	Short: "Send ICMP echo requests",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNetPing(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

var netFetchCmd = &cobra.Command{
	Use:   "fetch [url]",
	Short: "GET a URL from the scripted web host",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runNetFetch(args[0]); err != nil {
			cobra.CheckErr(err)
		}
	},
}

func init() {
	rootCmd.AddCommand(netCmd)
	netCmd.AddCommand(netResolveCmd)
	netCmd.AddCommand(netPingCmd)
	netCmd.AddCommand(netFetchCmd)

	// Address acquisition and name service
	netCmd.PersistentFlags().BoolVar(&netDHCP, "dhcp", false, "lease the station address over DHCP")
	netCmd.PersistentFlags().StringToStringVar(&netHosts, "host", nil, "extra zone entries as name=ip")

	netPingCmd.Flags().IntVar(&netPingCount, "count", 4, "number of echo requests")

	netFetchCmd.Flags().StringToStringVar(&netServe, "serve", nil, "routes served by the web host as /path=local-file")
	netFetchCmd.Flags().StringVarP(&netOut, "out", "o", "", "write the body to a file instead of stdout")
}

// netRig is one station plus its scripted segment.
type netRig struct {
	stack  *netstack.Stack
	driver *rtl8139.Driver
	peer   *devsim.NetPeer
}

// buildNetRig assembles the segment and binds the station's address, over
// DHCP when requested.
func buildNetRig() (*netRig, error) {
	mem, err := devsim.NewMemory(16 << 20)
	if err != nil {
		return nil, err
	}
	bus := devsim.NewBus()

	nic := devsim.NewRtl8139Device(netNicIOBase, netStationMAC, mem)
	if err := bus.Register(nic); err != nil {
		return nil, err
	}
	pci := devsim.NewPciConfigSpace()
	if err := pci.AddFunction(devsim.PciFunction{
		Device:   3,
		VendorID: types.PciVendorRealtek,
		DeviceID: types.PciDeviceRTL8139,
		ClassRev: 0x0200_0010,
		BAR0:     netNicIOBase | 1,
	}); err != nil {
		return nil, err
	}
	if err := bus.Register(pci); err != nil {
		return nil, err
	}

	ioBase, err := rtl8139.Probe(bus)
	if err != nil {
		return nil, err
	}
	driver, err := rtl8139.NewDriver(bus, mem, ioBase)
	if err != nil {
		return nil, err
	}

	budgets, err := netstack.LoadStackConfig()
	if err != nil {
		return nil, err
	}
	stack, err := netstack.NewStack(driver, devsim.NewVirtualClock(1_000_003), budgets)
	if err != nil {
		return nil, err
	}

	peer := devsim.NewNetPeer(nic, netPeerMAC)
	peer.Own(netRouterIP)
	peer.Own(netDnsIP)
	peer.Own(netWebIP)
	peer.ServeDNS("files.lan", netWebIP)
	for name, addr := range netHosts {
		ip, err := parseDottedQuad(addr)
		if err != nil {
			return nil, fmt.Errorf("--host %s=%s: %w", name, addr, err)
		}
		peer.ServeDNS(name, ip)
	}

	if netDHCP {
		peer.ServeDHCP(devsim.DhcpServer{
			Offer:    netStationIP,
			Mask:     netMask,
			Router:   netRouterIP,
			DNS:      netDnsIP,
			ServerID: netRouterIP,
			Lease:    86400,
		})
		if err := stack.AcquireDHCP(); err != nil {
			return nil, fmt.Errorf("DHCP failed: %w", err)
		}
	} else {
		stack.SetStaticConfig(netStationIP, netMask, netRouterIP, netDnsIP)
	}

	return &netRig{stack: stack, driver: driver, peer: peer}, nil
}

// report prints the traffic counters of one run.
func (r *netRig) report() {
	if !verbose {
		return
	}
	cfg := r.stack.Config()
	origin := "static"
	if cfg.DHCPBound {
		origin = fmt.Sprintf("dhcp, lease %ds", cfg.LeaseSeconds)
	}
	stats := r.stack.Stats()
	drv := r.driver.Stats()
	fmt.Printf("station %d.%d.%d.%d (%s)\n", cfg.IP[0], cfg.IP[1], cfg.IP[2], cfg.IP[3], origin)
	fmt.Printf("stack   rx=%d tx=%d dropped=%d\n", stats.RxPackets, stats.TxPackets, stats.RxDropped)
	fmt.Printf("driver  rx=%d tx=%d rxerr=%d txerr=%d\n", drv.RxPackets, drv.TxPackets, drv.RxErrors, drv.TxErrors)
	fmt.Printf("peer    frames=%d badsum=%d\n", r.peer.FramesSeen(), r.peer.BadChecksums())
}

func runNetResolve(host string) error {
	rig, err := buildNetRig()
	if err != nil {
		return err
	}
	ip, err := rig.stack.ResolveA(host)
	if err != nil {
		return err
	}
	fmt.Printf("%s -> %d.%d.%d.%d\n", host, ip[0], ip[1], ip[2], ip[3])
	rig.report()
	return nil
}

func runNetPing(host string) error {
	rig, err := buildNetRig()
	if err != nil {
		return err
	}
	dst, err := rig.stack.ResolveA(host)
	if err != nil {
		return err
	}

	for seq := 1; seq <= netPingCount; seq++ {
		reply, err := rig.stack.Ping(dst, uint16(seq))
		if err != nil {
			fmt.Printf("seq=%d %v\n", seq, err)
			continue
		}
		fmt.Printf("reply from %d.%d.%d.%d: seq=%d ttl=%d rtt=%d cycles\n",
			dst[0], dst[1], dst[2], dst[3], reply.Seq, reply.TTL, reply.RTTCycles)
	}
	rig.report()
	return nil
}

func runNetFetch(rawURL string) error {
	routes := map[string][]byte{
		"/": []byte("othello scripted web host\n"),
	}
	for route, localPath := range netServe {
		data, err := os.ReadFile(localPath)
		if err != nil {
			return err
		}
		if !strings.HasPrefix(route, "/") {
			route = "/" + route
		}
		routes[route] = data
	}

	rig, err := buildNetRig()
	if err != nil {
		return err
	}
	rig.peer.Listen(80, devsim.TcpListener{Respond: respondWithRoutes(routes)})

	client := httpclient.NewClient(rig.stack, nil)
	resp, err := client.Get(rawURL)
	if err != nil {
		return err
	}
	if resp.Status != 200 {
		return fmt.Errorf("HTTP status %d", resp.Status)
	}

	if netOut != "" {
		if err := os.WriteFile(netOut, resp.Body, 0o644); err != nil {
			return err
		}
		fmt.Printf("wrote %d bytes to %s\n", len(resp.Body), netOut)
	} else {
		os.Stdout.Write(resp.Body)
	}
	rig.report()
	return nil
}

// respondWithRoutes scripts a one-request HTTP exchange: wait for the blank
// line, serve the requested path or a 404.
func respondWithRoutes(routes map[string][]byte) func([]byte) ([]byte, bool) {
	return func(request []byte) ([]byte, bool) {
		if !bytes.Contains(request, []byte("\r\n\r\n")) {
			return nil, false
		}
		fields := strings.Fields(strings.SplitN(string(request), "\r\n", 2)[0])
		if len(fields) < 2 {
			return []byte("HTTP/1.1 400 Bad Request\r\nContent-Length: 0\r\n\r\n"), true
		}
		body, ok := routes[fields[1]]
		if !ok {
			return []byte("HTTP/1.1 404 Not Found\r\nContent-Length: 9\r\n\r\nnot found"), true
		}
		header := fmt.Sprintf("HTTP/1.1 200 OK\r\nContent-Type: application/octet-stream\r\nContent-Length: %d\r\n\r\n", len(body))
		return append([]byte(header), body...), true
	}
}

// parseDottedQuad parses a strict a.b.c.d address.
func parseDottedQuad(s string) ([4]byte, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return [4]byte{}, fmt.Errorf("not a dotted-quad address")
	}
	var ip [4]byte
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 || n > 255 {
			return [4]byte{}, fmt.Errorf("not a dotted-quad address")
		}
		ip[i] = byte(n)
	}
	return ip, nil
}
