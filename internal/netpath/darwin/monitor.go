//go:build darwin

// Package darwin implements the Network-Path Observer (C10) for macOS using
// a PF_ROUTE socket, adapted from the platform layer's former route-socket
// network monitor and generalized to emit the four-token netpath.Status
// classification instead of a bare onChange callback.
package darwin

import (
	"net"
	"os/exec"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
)

// Route message types we care about (from <net/route.h>).
const (
	rtmNewAddr = 0xC
	rtmDelAddr = 0xD
	rtmIfInfo  = 0xE
	rtmAdd     = 0x1
	rtmDelete  = 0x2
	rtmChange  = 0x3
)

const rtMsghdrMinSize = 4

const debounceDuration = 2 * time.Second

// Monitor implements netpath.Observer using a PF_ROUTE socket.
type Monitor struct {
	routeFD int
	handler netpath.Handler
	done    chan struct{}
	stopped chan struct{}

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a network-path observer bound to the given handler. The
// handler is invoked (debounced, ~2s) whenever routing/address changes are
// detected, and once synchronously from Start with the initial evaluation.
func New(handler netpath.Handler) (*Monitor, error) {
	fd, err := unix.Socket(unix.AF_ROUTE, unix.SOCK_RAW, unix.AF_UNSPEC)
	if err != nil {
		return nil, err
	}
	return &Monitor{
		routeFD: fd,
		handler: handler,
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}, nil
}

// Start begins listening for route socket events in a goroutine.
func (m *Monitor) Start() error {
	go m.loop()
	core.Log.Infof("netpath", "observer started (PF_ROUTE socket)")
	m.handler(evaluate())
	return nil
}

// Stop closes the route socket and stops the monitor goroutine.
func (m *Monitor) Stop() error {
	close(m.done)
	m.mu.Lock()
	if m.timer != nil {
		m.timer.Stop()
	}
	m.mu.Unlock()
	err := unix.Close(m.routeFD)
	<-m.stopped
	core.Log.Infof("netpath", "observer stopped")
	return err
}

func (m *Monitor) loop() {
	defer close(m.stopped)

	buf := make([]byte, 4096)
	for {
		select {
		case <-m.done:
			return
		default:
		}

		n, err := unix.Read(m.routeFD, buf)
		if err != nil {
			select {
			case <-m.done:
				return
			default:
				core.Log.Warnf("netpath", "route socket read error: %v", err)
				return
			}
		}
		if n < rtMsghdrMinSize {
			continue
		}

		if isRelevant(buf[3]) {
			m.fireDebounced()
		}
	}
}

func isRelevant(msgType byte) bool {
	switch msgType {
	case rtmNewAddr, rtmDelAddr, rtmIfInfo, rtmAdd, rtmDelete, rtmChange:
		return true
	default:
		return false
	}
}

// fireDebounced schedules an evaluation with a 2-second debounce, so a
// burst of route events collapses into exactly one Update delivered
// debounceDuration after the last event in the burst.
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

// evaluate classifies the current default-route state into a netpath
// Update by combining net.Interfaces() with `route -n get default`'s
// resolved gateway.
func evaluate() netpath.Update {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netpath.Update{Status: netpath.Invalid}
	}

	gateway, gwErr := defaultGateway()

	result := make([]netpath.Interface, 0, len(ifaces))
	anyUp := false
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		up := ifc.Flags&net.FlagUp != 0
		if up {
			anyUp = true
		}
		gw := ""
		if up && gwErr == nil {
			gw = gateway
		}
		result = append(result, netpath.Interface{Name: ifc.Name, Up: up, Gateway: gw})
	}

	status := netpath.Unsatisfied
	switch {
	case gwErr == nil && gateway != "":
		status = netpath.Satisfied
	case anyUp:
		status = netpath.Satisfiable
	}

	return netpath.Update{Status: status, Interfaces: result}
}

func defaultGateway() (string, error) {
	out, err := exec.Command("route", "-n", "get", "default").CombinedOutput()
	if err != nil {
		return "", err
	}
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "gateway:") {
			return strings.TrimSpace(strings.TrimPrefix(line, "gateway:")), nil
		}
	}
	return "", nil
}
