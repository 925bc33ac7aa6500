//go:build darwin

package darwin

import (
	"fmt"
	"net/netip"
	"os/exec"
	"strings"
	"sync"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
)

const (
	pfAnchorRoot       = "com.nymvpn"
	pfAnchorKillSwitch = "com.nymvpn/killswitch"
)

// Manager implements routing.Manager using macOS route(8) for routing and
// pfctl(8) for the firewall, with a kill-switch anchor generalized from
// per-process advisory blocking to the whole-device firewall §4.8
// requires.
type Manager struct {
	mu sync.Mutex

	tunIfName string

	defaultRoutes [][]string // delete args for the two v4 split routes (0.0.0.0/1, 128.0.0.0/1)
	bypassRoutes  [][]string

	pfToken string
	pfSetup bool
}

// New creates a macOS routing manager bound to the given tun interface name
// (e.g. "utun5").
func New(tunIfName string) *Manager {
	return &Manager{tunIfName: tunIfName}
}

// Install sets the default route through tun, an exception route for the
// entry gateway via the discovered real NIC, DNS replacement, and a pfctl
// kill-switch anchor (§4.8).
func (m *Manager) Install(cfg InstallConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.defaultRoutes) > 0 {
		return fmt.Errorf("routing already installed")
	}

	realGateway, realIfName, err := discoverRealDefaultGateway()
	if err != nil {
		return fmt.Errorf("discover real default gateway: %w", err)
	}

	for _, prefix := range []string{"0.0.0.0/1", "128.0.0.0/1"} {
		addArgs := []string{"-n", "add", "-net", prefix, "-interface", m.tunIfName}
		delArgs := []string{"-n", "delete", "-net", prefix, "-interface", m.tunIfName}
		if err := routeExec(addArgs, true); err != nil {
			m.rollbackLocked()
			return fmt.Errorf("install default route %s: %w", prefix, err)
		}
		m.defaultRoutes = append(m.defaultRoutes, delArgs)
	}

	if cfg.EntryGatewayIP.IsValid() {
		addArgs := []string{"-n", "add", "-host", cfg.EntryGatewayIP.String(), realGateway.String()}
		delArgs := []string{"-n", "delete", "-host", cfg.EntryGatewayIP.String()}
		if err := routeExec(addArgs, true); err != nil {
			m.rollbackLocked()
			return fmt.Errorf("install entry gateway exception route: %w", err)
		}
		m.bypassRoutes = append(m.bypassRoutes, delArgs)
	}

	if err := setTunDNS(m.tunIfName, cfg.DNSServers); err != nil {
		core.Log.Warnf("routing", "set tun DNS: %v", err)
	}

	if err := m.enableKillSwitchLocked(cfg, realIfName); err != nil {
		core.Log.Warnf("routing", "enable kill switch: %v", err)
	}

	core.Log.Infof("routing", "default route installed via %s, exception route via %s", m.tunIfName, realGateway)
	return nil
}

// Teardown removes every route and firewall rule Install added. Idempotent
// and safe to call on a partially-completed Install (§4.8: "teardown must
// execute even on abnormal termination").
func (m *Manager) Teardown() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rollbackLocked()
}

func (m *Manager) rollbackLocked() error {
	var lastErr error
	for _, delArgs := range m.defaultRoutes {
		if err := routeExec(delArgs, false); err != nil {
			lastErr = err
		}
	}
	m.defaultRoutes = nil

	for _, delArgs := range m.bypassRoutes {
		if err := routeExec(delArgs, false); err != nil {
			lastErr = err
		}
	}
	m.bypassRoutes = nil

	if m.pfSetup {
		pfctlFlushAnchor(pfAnchorKillSwitch)
		if out, err := exec.Command("pfctl", "-f", "/etc/pf.conf").CombinedOutput(); err != nil {
			core.Log.Warnf("routing", "restore pf.conf: %s: %v", strings.TrimSpace(string(out)), err)
		}
		m.pfSetup = false
	}
	if m.pfToken != "" {
		exec.Command("pfctl", "-X", m.pfToken).Run()
		m.pfToken = ""
	}

	flushSystemDNS()

	if lastErr != nil {
		core.Log.Warnf("routing", "teardown completed with errors: %v", lastErr)
	}
	return lastErr
}

// enableKillSwitchLocked loads a pfctl anchor blocking all egress except
// loopback, DHCP (udp/67-68), and the entry gateway endpoint (§4.8).
func (m *Manager) enableKillSwitchLocked(cfg InstallConfig, realIfName string) error {
	token, err := pfctlEnable()
	if err != nil {
		return fmt.Errorf("enable pf: %w", err)
	}
	m.pfToken = token

	if err := ensureAnchorReference(); err != nil {
		return fmt.Errorf("register pf anchor: %w", err)
	}
	m.pfSetup = true

	var rules strings.Builder
	rules.WriteString("pass out quick on lo0 all\n")
	rules.WriteString("pass in quick on lo0 all\n")
	fmt.Fprintf(&rules, "pass out quick on %s all\n", m.tunIfName)
	fmt.Fprintf(&rules, "pass in quick on %s all\n", m.tunIfName)
	fmt.Fprintf(&rules, "pass out quick on %s proto udp from any port 68 to any port 67\n", realIfName)
	fmt.Fprintf(&rules, "pass in quick on %s proto udp from any port 67 to any port 68\n", realIfName)
	if cfg.EntryGatewayIP.IsValid() {
		fmt.Fprintf(&rules, "pass out quick proto udp to %s\n", cfg.EntryGatewayIP)
		fmt.Fprintf(&rules, "pass out quick proto tcp to %s\n", cfg.EntryGatewayIP)
	}
	rules.WriteString("block drop out quick all\n")
	rules.WriteString("block drop in quick all\n")

	return pfctlLoadAnchor(pfAnchorKillSwitch, rules.String())
}

// discoverRealDefaultGateway parses `route -n get default` to find the
// pre-tunnel default gateway and its outbound interface.
func discoverRealDefaultGateway() (netip.Addr, string, error) {
	out, err := exec.Command("route", "-n", "get", "default").CombinedOutput()
	if err != nil {
		return netip.Addr{}, "", fmt.Errorf("route get default: %w", err)
	}

	var gateway, ifName string
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "gateway:") {
			gateway = strings.TrimSpace(line[len("gateway:"):])
		} else if strings.HasPrefix(line, "interface:") {
			ifName = strings.TrimSpace(line[len("interface:"):])
		}
	}
	if gateway == "" || ifName == "" {
		return netip.Addr{}, "", fmt.Errorf("no default gateway found")
	}
	addr, err := netip.ParseAddr(gateway)
	if err != nil {
		return netip.Addr{}, "", fmt.Errorf("parse gateway %q: %w", gateway, err)
	}
	return addr, ifName, nil
}

func setTunDNS(tunIfName string, servers []netip.Addr) error {
	if len(servers) == 0 {
		return nil
	}
	args := []string{"-setdnsservers", tunIfName}
	for _, s := range servers {
		args = append(args, s.String())
	}
	out, err := exec.Command("networksetup", args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("networksetup -setdnsservers: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func flushSystemDNS() error {
	if err := exec.Command("dscacheutil", "-flushcache").Run(); err != nil {
		return err
	}
	return exec.Command("killall", "-HUP", "mDNSResponder").Run()
}

func routeExec(args []string, tolerateExists bool) error {
	out, err := exec.Command("route", args...).CombinedOutput()
	if err != nil {
		outStr := strings.TrimSpace(string(out))
		if tolerateExists && strings.Contains(outStr, "File exists") {
			return nil
		}
		if strings.Contains(outStr, "not in table") {
			return nil
		}
		return fmt.Errorf("route %s: %s", strings.Join(args, " "), outStr)
	}
	return nil
}

func pfctlEnable() (string, error) {
	out, _ := exec.Command("pfctl", "-E").CombinedOutput()
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "Token") {
			if parts := strings.SplitN(line, ":", 2); len(parts) == 2 {
				return strings.TrimSpace(parts[1]), nil
			}
		}
	}
	return "", fmt.Errorf("no PF token in output: %s", strings.TrimSpace(string(out)))
}

// ensureAnchorReference registers the kill-switch anchor directly via
// `pfctl -a`, which (unlike the main ruleset) does not require patching
// /etc/pf.conf to pick up the anchor.
func ensureAnchorReference() error {
	out, err := exec.Command("pfctl", "-a", pfAnchorRoot, "-F", "all").CombinedOutput()
	if err != nil {
		return fmt.Errorf("pfctl init anchor: %s: %w", strings.TrimSpace(string(out)), err)
	}
	return nil
}

func pfctlLoadAnchor(anchor, rules string) error {
	cmd := exec.Command("pfctl", "-a", anchor, "-f", "-")
	cmd.Stdin = strings.NewReader(rules)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pfctl -a %s: %s: %w", anchor, strings.TrimSpace(string(out)), err)
	}
	return nil
}

func pfctlFlushAnchor(anchor string) error {
	out, err := exec.Command("pfctl", "-a", anchor, "-F", "all").CombinedOutput()
	if err != nil {
		return fmt.Errorf("pfctl flush %s: %s: %w", anchor, strings.TrimSpace(string(out)), err)
	}
	return nil
}

// InstallConfig is a local alias so this file reads standalone; identical
// to routing.InstallConfig.
type InstallConfig = routing.InstallConfig
