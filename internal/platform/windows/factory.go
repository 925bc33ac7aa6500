//go:build windows

// Package windows provides Windows-specific platform implementations: a
// WinTUN TUN adapter for the Mixnet branch and toast notifications.
package windows

import (
	"net/netip"
	"os/exec"
	"syscall"

	"github.com/nymtech/nym-vpn-core-go/internal/platform"
)

// NewPlatform creates a Platform configured for Windows.
func NewPlatform() *platform.Platform {
	return &platform.Platform{
		NewTUNAdapter: func(addrs []netip.Addr, dns []netip.Addr, mtu int) (platform.TUNAdapter, error) {
			return NewTUNAdapter(addrs, dns, mtu)
		},
		Notifier: &Notifier{},

		FlushSystemDNS: func() error {
			cmd := exec.Command("ipconfig", "/flushdns")
			cmd.SysProcAttr = &syscall.SysProcAttr{HideWindow: true}
			return cmd.Run()
		},
	}
}
