package platform

import "net/netip"

// TUNAdapter abstracts a TUN adapter (WinTUN on Windows, utun on macOS),
// used by the Mixnet branch (§4.4) to decode inbound IP datagrams onto a
// kernel-visible interface. The Wireguard branch (§4.7) uses
// golang.zx2c4.com/wireguard/tun directly instead, via
// tunnel.Deps.NewExitTun.
type TUNAdapter interface {
	// LUID returns the adapter's locally unique identifier.
	LUID() uint64
	// InterfaceIndex returns the adapter's interface index.
	InterfaceIndex() uint32
	// IP returns the adapter's assigned IP address.
	IP() netip.Addr
	// ReadPacket reads one IP packet into buf and returns the number of bytes read.
	ReadPacket(buf []byte) (int, error)
	// WritePacket writes one IP packet to the TUN adapter.
	WritePacket(pkt []byte) error
	// SetDNS configures DNS servers on the TUN adapter.
	SetDNS(servers []netip.Addr) error
	// Close tears down the adapter.
	Close() error
}

// Notifier sends system notifications (e.g. surfacing a tunnel state
// change or a daemon error to the user outside the RPC surface).
type Notifier interface {
	// Show displays a system notification.
	Show(title, message string) error
}
