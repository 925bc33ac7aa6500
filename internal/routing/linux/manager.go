//go:build linux

package linux

import (
	"fmt"
	"net"
	"net/netip"
	"os/exec"
	"strings"
	"sync"

	"github.com/vishvananda/netlink"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
)

// Fwmark is the fixed mark tunnel-originated packets carry, so they can be
// pinned to a dedicated routing table independent of the main table's
// default route (§4.8: "fwmark (fixed constant, e.g. 0x6d6f6c65)").
const Fwmark = 0x6d6f6c65

// RoutingTable is the dedicated table fwmarked packets are routed through.
const RoutingTable = 51820

const nftableName = "nymvpn"

// Manager implements routing.Manager for Linux using netlink for routes,
// rules and link state, and nft(8) for the firewall, generalizing the
// teacher's exec-based platform layer (darwin's route(8)/pfctl(8) calls)
// into the Linux-native netlink/nftables equivalents.
type Manager struct {
	mu sync.Mutex

	tunIfName string

	installedRoutes []*netlink.Route
	installedRules  []*netlink.Rule
	nftLoaded       bool
}

// New creates a Linux routing manager bound to the given tun interface
// name.
func New(tunIfName string) *Manager {
	return &Manager{tunIfName: tunIfName}
}

// Install sets a default route in a dedicated table through tun, an
// ip-rule pinning fwmarked packets to that table, an exception route for
// the entry gateway via the main table's default gateway, DNS replacement,
// and an nftables ruleset blocking all non-tunnel egress (§4.8).
func (m *Manager) Install(cfg routing.InstallConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.installedRoutes) > 0 {
		return fmt.Errorf("routing already installed")
	}

	link, err := netlink.LinkByName(m.tunIfName)
	if err != nil {
		return fmt.Errorf("find tun interface %q: %w", m.tunIfName, err)
	}

	mainGateway, mainIfIndex, err := discoverMainDefaultGateway()
	if err != nil {
		return fmt.Errorf("discover main default gateway: %w", err)
	}

	defaultRoute := &netlink.Route{
		LinkIndex: link.Attrs().Index,
		Table:     RoutingTable,
		Dst:       nil, // 0.0.0.0/0
	}
	if err := netlink.RouteAdd(defaultRoute); err != nil {
		return fmt.Errorf("add default route in table %d: %w", RoutingTable, err)
	}
	m.installedRoutes = append(m.installedRoutes, defaultRoute)

	rule := netlink.NewRule()
	rule.Mark = Fwmark
	rule.Table = RoutingTable
	if err := netlink.RuleAdd(rule); err != nil {
		m.rollbackLocked()
		return fmt.Errorf("add fwmark ip rule: %w", err)
	}
	m.installedRules = append(m.installedRules, rule)

	if cfg.EntryGatewayIP.IsValid() && mainGateway.IsValid() {
		bits := 32
		if cfg.EntryGatewayIP.Is6() {
			bits = 128
		}
		exceptionRoute := &netlink.Route{
			LinkIndex: mainIfIndex,
			Dst: &net.IPNet{
				IP:   cfg.EntryGatewayIP.AsSlice(),
				Mask: net.CIDRMask(bits, bits),
			},
			Gw: mainGateway.AsSlice(),
		}
		if err := netlink.RouteAdd(exceptionRoute); err != nil {
			m.rollbackLocked()
			return fmt.Errorf("add entry gateway exception route: %w", err)
		}
		m.installedRoutes = append(m.installedRoutes, exceptionRoute)
	}

	if err := setResolvConf(m.tunIfName, cfg.DNSServers); err != nil {
		core.Log.Warnf("routing", "set resolv.conf: %v", err)
	}

	if err := m.loadFirewallLocked(cfg); err != nil {
		core.Log.Warnf("routing", "load nftables ruleset: %v", err)
	}

	core.Log.Infof("routing", "default route installed in table %d via %s", RoutingTable, m.tunIfName)
	return nil
}

// Teardown removes every route, rule, and firewall table Install added.
// Idempotent (§4.8: "teardown must execute even on abnormal termination").
func (m *Manager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbackLocked()
}

func (m *Manager) rollbackLocked() error {
	var lastErr error
	for _, r := range m.installedRoutes {
		if err := netlink.RouteDel(r); err != nil {
			lastErr = err
		}
	}
	m.installedRoutes = nil

	for _, r := range m.installedRules {
		if err := netlink.RuleDel(r); err != nil {
			lastErr = err
		}
	}
	m.installedRules = nil

	if m.nftLoaded {
		exec.Command("nft", "delete", "table", "inet", nftableName).Run()
		m.nftLoaded = false
	}

	if lastErr != nil {
		core.Log.Warnf("routing", "teardown completed with errors: %v", lastErr)
	}
	return lastErr
}

// loadFirewallLocked installs an nftables ruleset blocking all egress
// except loopback, DHCP, and the entry gateway endpoint.
func (m *Manager) loadFirewallLocked(cfg routing.InstallConfig) error {
	var rules strings.Builder
	fmt.Fprintf(&rules, "table inet %s {\n", nftableName)
	rules.WriteString("  chain output {\n")
	rules.WriteString("    type filter hook output priority 0; policy drop;\n")
	rules.WriteString("    oif lo accept\n")
	fmt.Fprintf(&rules, "    oifname %q accept\n", m.tunIfName)
	rules.WriteString("    udp sport 68 udp dport 67 accept\n")
	if cfg.EntryGatewayIP.IsValid() {
		fmt.Fprintf(&rules, "    ip daddr %s accept\n", cfg.EntryGatewayIP)
	}
	rules.WriteString("  }\n")
	rules.WriteString("}\n")

	cmd := exec.Command("nft", "-f", "-")
	cmd.Stdin = strings.NewReader(rules.String())
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("nft -f -: %s: %w", strings.TrimSpace(string(out)), err)
	}
	m.nftLoaded = true
	return nil
}

func discoverMainDefaultGateway() (netip.Addr, int, error) {
	routes, err := netlink.RouteList(nil, netlink.FAMILY_V4)
	if err != nil {
		return netip.Addr{}, 0, fmt.Errorf("list routes: %w", err)
	}
	for _, r := range routes {
		if r.Dst == nil && r.Gw != nil {
			addr, ok := netip.AddrFromSlice(r.Gw.To4())
			if !ok {
				continue
			}
			return addr, r.LinkIndex, nil
		}
	}
	return netip.Addr{}, 0, fmt.Errorf("no default gateway found in main table")
}

func setResolvConf(tunIfName string, servers []netip.Addr) error {
	if len(servers) == 0 {
		return nil
	}
	out, err := exec.Command("resolvectl", append([]string{"dns", tunIfName}, addrStrings(servers)...)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("resolvectl dns: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func addrStrings(addrs []netip.Addr) []string {
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	return out
}
