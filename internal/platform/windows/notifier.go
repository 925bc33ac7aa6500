//go:build windows

package windows

import (
	"github.com/go-toast/toast"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// Notifier implements platform.Notifier using Windows toast notifications
// (§4.5 Info events, fatal tunnel errors surfaced outside the RPC
// stream).
type Notifier struct{}

// Show displays a system notification.
func (n *Notifier) Show(title, message string) error {
	notif := toast.Notification{
		AppID:   "Nym VPN",
		Title:   title,
		Message: message,
	}
	if err := notif.Push(); err != nil {
		core.Log.Warnf("tunnel", "toast notification failed: %v", err)
		return err
	}
	return nil
}
