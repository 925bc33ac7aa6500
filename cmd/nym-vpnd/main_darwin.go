//go:build darwin

package main

import (
	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
	netpathdarwin "github.com/nymtech/nym-vpn-core-go/internal/netpath/darwin"
	"github.com/nymtech/nym-vpn-core-go/internal/platform"
	platformdarwin "github.com/nymtech/nym-vpn-core-go/internal/platform/darwin"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
	routingdarwin "github.com/nymtech/nym-vpn-core-go/internal/routing/darwin"
)

func newPlatform() *platform.Platform {
	return platformdarwin.NewPlatform()
}

func newNetPathObserver(h netpath.Handler) (netpath.Observer, error) {
	return netpathdarwin.New(h)
}

func newRoutingManager(tunIfName string) routing.Manager {
	return routingdarwin.New(tunIfName)
}
