//go:build linux

// Package linux implements the Network-Path Observer (C10) for Linux,
// subscribing to netlink route updates the same way internal/routing/linux
// drives route installation, generalized here to classify path state
// rather than mutate it.
package linux

import (
	"net"
	"sync"
	"time"

	"github.com/vishvananda/netlink"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
)

const debounceDuration = 2 * time.Second

// Monitor implements netpath.Observer using netlink route/link subscriptions.
type Monitor struct {
	handler netpath.Handler

	routeUpdates chan netlink.RouteUpdate
	linkUpdates  chan netlink.LinkUpdate
	done         chan struct{}
	stopped      chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a network-path observer bound to the given handler.
func New(handler netpath.Handler) (*Monitor, error) {
	return &Monitor{
		handler:      handler,
		routeUpdates: make(chan netlink.RouteUpdate, 32),
		linkUpdates:  make(chan netlink.LinkUpdate, 32),
		done:         make(chan struct{}),
		stopped:      make(chan struct{}),
	}, nil
}

// Start subscribes to route and link changes and begins evaluating.
func (m *Monitor) Start() error {
	if err := netlink.RouteSubscribe(m.routeUpdates, m.done); err != nil {
		return err
	}
	if err := netlink.LinkSubscribe(m.linkUpdates, m.done); err != nil {
		return err
	}
	go m.loop()
	core.Log.Infof("netpath", "observer started (netlink)")
	m.handler(evaluate())
	return nil
}

// Stop unsubscribes and stops the monitor goroutine.
func (m *Monitor) Stop() error {
	close(m.done)
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	<-m.stopped
	core.Log.Infof("netpath", "observer stopped")
	return nil
}

func (m *Monitor) loop() {
	defer close(m.stopped)
	for {
		select {
		case <-m.done:
			return
		case <-m.routeUpdates:
			m.fireDebounced()
		case <-m.linkUpdates:
			m.fireDebounced()
		}
	}
}

func (m *Monitor) fireDebounced() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.timer == nil {
		m.timer = time.AfterFunc(debounceDuration, func() {
			select {
			case <-m.done:
				return
			default:
				m.handler(evaluate())
			}
		})
	} else {
		m.timer.Reset(debounceDuration)
	}
}

// evaluate classifies the current default-route state by listing the
// system's IPv4 default routes via netlink and cross-referencing link state.
func evaluate() netpath.Update {
	links, err := netlink.LinkList()
	if err != nil {
		return netpath.Update{Status: netpath.Invalid}
	}

	routes, routeErr := netlink.RouteList(nil, netlink.FAMILY_V4)

	gatewayByIndex := make(map[int]string)
	if routeErr == nil {
		for _, r := range routes {
			if r.Dst == nil && r.Gw != nil {
				gatewayByIndex[r.LinkIndex] = r.Gw.String()
			}
		}
	}

	result := make([]netpath.Interface, 0, len(links))
	anyUp := false
	hasGateway := false
	for _, l := range links {
		attrs := l.Attrs()
		if attrs.Name == "lo" {
			continue
		}
		up := attrs.Flags&net.FlagUp != 0
		if up {
			anyUp = true
		}
		gw := gatewayByIndex[attrs.Index]
		if gw != "" {
			hasGateway = true
		}
		result = append(result, netpath.Interface{Name: attrs.Name, Up: up, Gateway: gw})
	}

	status := netpath.Unsatisfied
	switch {
	case routeErr == nil && hasGateway:
		status = netpath.Satisfied
	case anyUp:
		status = netpath.Satisfiable
	}

	return netpath.Update{Status: status, Interfaces: result}
}
