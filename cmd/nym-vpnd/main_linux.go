//go:build linux

package main

import (
	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
	netpathlinux "github.com/nymtech/nym-vpn-core-go/internal/netpath/linux"
	"github.com/nymtech/nym-vpn-core-go/internal/platform"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
	routinglinux "github.com/nymtech/nym-vpn-core-go/internal/routing/linux"
)

// newPlatform returns an empty Platform on Linux (no TUN adapter factory,
// notifier or DNS flush is set): the Mixnet branch's OS-facing TUN
// adapter and desktop notifications are a darwin/windows concern here
// (§4.4 §4.10); Linux routes IP datagrams straight to the kernel tun
// device routing (C8) manages instead of a separate platform.TUNAdapter.
func newPlatform() *platform.Platform {
	return &platform.Platform{}
}

func newNetPathObserver(h netpath.Handler) (netpath.Observer, error) {
	return netpathlinux.New(h)
}

func newRoutingManager(tunIfName string) routing.Manager {
	return routinglinux.New(tunIfName)
}
