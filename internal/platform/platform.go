package platform

import "net/netip"

// Platform aggregates the platform-specific collaborators the Mixnet
// branch of the Connect pipeline needs. Populated by the platform's
// factory (NewPlatform) in platform/windows/ or platform/darwin/.
type Platform struct {
	// NewTUNAdapter creates the OS-facing TUN device with the given
	// addresses, DNS servers and MTU (tunnel.Deps.NewOSTun).
	NewTUNAdapter func(addrs []netip.Addr, dns []netip.Addr, mtu int) (TUNAdapter, error)
	Notifier      Notifier

	// FlushSystemDNS flushes the system DNS cache
	// (ipconfig /flushdns on Windows, dscacheutil on macOS).
	FlushSystemDNS func() error
}
