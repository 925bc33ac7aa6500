//go:build darwin

// Package darwin provides macOS-specific platform implementations: a
// utun TUN adapter for the Mixnet branch, osascript notifications, and
// launchd socket activation for the daemon's RPC listener.
package darwin

import (
	"net/netip"

	"github.com/nymtech/nym-vpn-core-go/internal/platform"
)

// NewPlatform creates a Platform configured for macOS.
func NewPlatform() *platform.Platform {
	return &platform.Platform{
		NewTUNAdapter: func(addrs []netip.Addr, dns []netip.Addr, mtu int) (platform.TUNAdapter, error) {
			return NewTUNAdapter(addrs, dns, mtu)
		},
		Notifier:       &Notifier{},
		FlushSystemDNS: flushSystemDNS,
	}
}
