//go:build windows

package main

import (
	"fmt"

	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
	"github.com/nymtech/nym-vpn-core-go/internal/platform"
	platformwindows "github.com/nymtech/nym-vpn-core-go/internal/platform/windows"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
)

func newPlatform() *platform.Platform {
	return platformwindows.NewPlatform()
}

// newNetPathObserver has no Windows implementation yet. The returned error
// is logged as a non-fatal warning by the connect pipeline, which then
// continues without an observer: peers are never re-resolved on a path
// change.
func newNetPathObserver(h netpath.Handler) (netpath.Observer, error) {
	return nil, fmt.Errorf("network-path observer not implemented on windows")
}

func newRoutingManager(tunIfName string) routing.Manager {
	return unsupportedRoutingManager{}
}

type unsupportedRoutingManager struct{}

func (unsupportedRoutingManager) Install(cfg routing.InstallConfig) error {
	return fmt.Errorf("route/DNS/firewall management not implemented on windows")
}

func (unsupportedRoutingManager) Teardown() error { return nil }
