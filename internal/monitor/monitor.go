package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// PingKind tags one inbound reply/self-ping observation (§4.6).
type PingKind int

const (
	Icmpv4IprTunDevicePingReply PingKind = iota
	Icmpv4IprExternalPingReply
	Icmpv6IprTunDevicePingReply
	Icmpv6IprExternalPingReply
	MixnetSelfPingReply
)

// Status is the coarse connectivity verdict C11 consumes (§4.6).
type Status string

const (
	StatusEntryGatewayDown Status = "EntryGatewayDown"
	StatusExitGatewayDown  Status = "ExitGatewayDown"
	StatusRoutingEntry     Status = "RoutingEntry"
	StatusRoutingExit      Status = "RoutingExit"
	StatusConnectedIPv4    Status = "ConnectedIpv4"
	StatusConnectedIPv6    Status = "ConnectedIpv6"
)

// PingSink sends the four beacon probes; implemented by the C5 client
// (tun-local and external v4/v6 ICMP bundled through the exit, plus a
// mixnet self-ping request).
type PingSink interface {
	SendSelfPing() error
	SendIcmpV4TunDevice(seq int) error
	SendIcmpV4External(seq int) error
	SendIcmpV6TunDevice(seq int) error
	SendIcmpV6External(seq int) error
}

// ProbeInterval is how often the monitor emits a fresh round of beacons.
const ProbeInterval = 5 * time.Second

// ReplyTimeout is how long a reply is awaited before its corresponding
// leg is considered failed for the current round.
const ReplyTimeout = 3 * time.Second

// Monitor aggregates beacon round-trip observations into a coarse status
// and publishes changes on the event bus (§4.6).
type Monitor struct {
	sink PingSink
	bus  *core.EventBus

	mu     sync.Mutex
	status Status
	seq    int

	replies chan PingKind
}

// NewMonitor constructs a monitor. Call Observe from the component
// decoding inbound mixnet/ICMP traffic whenever a beacon reply or
// self-ping arrives.
func NewMonitor(sink PingSink, bus *core.EventBus) *Monitor {
	return &Monitor{sink: sink, bus: bus, replies: make(chan PingKind, 16)}
}

// Observe records an inbound reply observation; safe to call from any
// goroutine.
func (m *Monitor) Observe(kind PingKind) {
	select {
	case m.replies <- kind:
	default:
	}
}

// Run sends periodic beacon rounds and aggregates replies until ctx is
// cancelled.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(ProbeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.runRound(ctx)
		}
	}
}

func (m *Monitor) runRound(ctx context.Context) {
	m.mu.Lock()
	m.seq++
	seq := m.seq
	m.mu.Unlock()

	_ = m.sink.SendSelfPing()
	_ = m.sink.SendIcmpV4TunDevice(seq)
	_ = m.sink.SendIcmpV4External(seq)
	_ = m.sink.SendIcmpV6TunDevice(seq)
	_ = m.sink.SendIcmpV6External(seq)

	roundCtx, cancel := context.WithTimeout(ctx, ReplyTimeout)
	defer cancel()

	var gotSelfPing, gotV4Tun, gotV4Ext, gotV6Tun, gotV6Ext bool
	deadline := time.After(ReplyTimeout)
	for {
		select {
		case k := <-m.replies:
			switch k {
			case MixnetSelfPingReply:
				gotSelfPing = true
			case Icmpv4IprTunDevicePingReply:
				gotV4Tun = true
			case Icmpv4IprExternalPingReply:
				gotV4Ext = true
			case Icmpv6IprTunDevicePingReply:
				gotV6Tun = true
			case Icmpv6IprExternalPingReply:
				gotV6Ext = true
			}
		case <-deadline:
			m.applyAggregation(gotSelfPing, gotV4Tun, gotV4Ext, gotV6Tun, gotV6Ext)
			return
		case <-roundCtx.Done():
			m.applyAggregation(gotSelfPing, gotV4Tun, gotV4Ext, gotV6Tun, gotV6Ext)
			return
		}
	}
}

// applyAggregation maps the round's observations to a coarse status,
// worst-first: no mixnet round trip at all implicates the entry gateway;
// a mixnet round trip but no reply from the exit's own tun device
// implicates the exit gateway or entry-side routing; a reply from the
// exit's tun device but not from an external address implicates exit-side
// routing; otherwise the tunnel is confirmed connected (per protocol
// family probed).
func (m *Monitor) applyAggregation(selfPing, v4Tun, v4Ext, v6Tun, v6Ext bool) {
	var next Status
	switch {
	case !selfPing:
		next = StatusEntryGatewayDown
	case !v4Tun && !v6Tun:
		next = StatusExitGatewayDown
	case !v4Tun || !v6Tun:
		next = StatusRoutingEntry
	case !v4Ext && !v6Ext:
		next = StatusRoutingExit
	case v4Ext:
		next = StatusConnectedIPv4
	default:
		next = StatusConnectedIPv6
	}

	m.mu.Lock()
	changed := m.status != next
	m.status = next
	m.mu.Unlock()

	if changed && m.bus != nil {
		m.bus.Publish(core.Event{Type: core.EventConnectionMonitorStatus, Payload: core.MonitorStatusPayload{Status: string(next)}})
	}
}

// Status returns the last computed aggregate status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}
