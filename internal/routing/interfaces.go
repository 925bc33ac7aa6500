// Package routing defines the platform-abstracted interface C9 drives to
// install and tear down system routes, DNS, and firewall rules around the
// tunnel interface (§4.8).
package routing

import "net/netip"

// InstallConfig names everything a Manager needs to wire one tunnel
// interface into the system: the tun interface itself, its assigned
// overlay addresses, the entry gateway's resolved IP (which needs a bypass
// route via the prior default gateway so tunnel traffic itself doesn't
// loop through the tunnel), and the DNS servers to scope to the tun
// interface.
type InstallConfig struct {
	TunInterface   string
	TunAddrV4      netip.Addr
	TunAddrV6      netip.Addr
	EntryGatewayIP netip.Addr
	DNSServers     []netip.Addr
}

// Manager installs and tears down the OS resources a connected tunnel
// needs: default route through tun, an exception route for the entry
// gateway via the real NIC, DNS replacement, and firewall rules blocking
// all egress except loopback, DHCP, and the entry gateway endpoint (§4.8).
//
// Teardown must be idempotent and safe to call on an Install that never
// fully completed (partial acquisition on error still leaves something to
// release).
type Manager interface {
	Install(cfg InstallConfig) error
	Teardown() error
}
