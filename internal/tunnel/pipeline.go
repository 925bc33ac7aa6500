package tunnel

import (
	"context"
	"fmt"
	"net"
	"net/netip"

	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/nymtech/nym-vpn-core-go/internal/account"
	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
	"github.com/nymtech/nym-vpn-core-go/internal/ipr"
	"github.com/nymtech/nym-vpn-core-go/internal/mixnet"
	"github.com/nymtech/nym-vpn-core-go/internal/monitor"
	"github.com/nymtech/nym-vpn-core-go/internal/netpath"
	"github.com/nymtech/nym-vpn-core-go/internal/platform"
	"github.com/nymtech/nym-vpn-core-go/internal/routing"
	"github.com/nymtech/nym-vpn-core-go/internal/wireguard"
)

// Deps collects every collaborator the Connect pipeline drives. Each is an
// interface or a plain func value so tests can substitute fakes for C1-C8
// (§9 design note: "internal/tunnel tested with fake C1-C8 collaborators").
type Deps struct {
	AccountState *account.SharedAccountState
	Selector     *gateway.Selector

	MixnetDialer mixnet.Dialer

	// AuthenticatorAddress resolves the mixnet address of a gateway's
	// authenticator service, used by the Wireguard branch (§4.7 step 1).
	AuthenticatorAddress func(g gateway.Gateway) (string, error)

	// Credential supplies opaque bandwidth-credential bytes for the
	// authenticator handshake; nil when none is required.
	Credential func() []byte

	// NewOSTun creates the OS-backed tun device the Mixnet branch decodes
	// inbound IP datagrams onto.
	NewOSTun func(addrs []netip.Addr, dns []netip.Addr, mtu int) (platform.TUNAdapter, error)

	// NewExitTun creates the kernel-facing tun device for the Wireguard
	// branch's exit hop (§4.7).
	NewExitTun func(mtu int) (wgtun.Device, error)

	// NewNetPathObserver starts the Network-Path Observer (C10), bound to
	// the given handler. Only consulted by the Wireguard branch, which is
	// the sole consumer of its Satisfied-after-Unsatisfied signal (§4.10).
	NewNetPathObserver func(netpath.Handler) (netpath.Observer, error)

	Routing routing.Manager
	Bus     *core.EventBus
}

// ConnectedTunnel is everything the state machine must hold onto while
// Connected and tear down, in reverse order, on Disconnect or fatal error.
type ConnectedTunnel struct {
	Entry, Exit gateway.Gateway
	TunAddrV4   string
	TunAddrV6   string

	mixnetClient  *mixnet.SharedMixnetClient
	iprClient     *ipr.Client
	monitor       *monitor.Monitor
	monitorCancel context.CancelFunc
	osTun         platform.TUNAdapter
	twoHop        *wireguard.TwoHop
	netpathObs    netpath.Observer

	// Fatal carries a steady-state failure surfaced by a background
	// component (C4/C5/C7) while Connected, driving the state machine's
	// Connected -> Disconnecting transition (§4.9: "fatal error from
	// C6/C7/C4"). Buffered so the reporting goroutine never blocks; closed
	// by Close() so a watcher reading it unblocks on ordinary teardown too.
	Fatal chan error

	teardown []func()
	closed   bool
}

// Close runs every registered teardown step in reverse order (§4.9:
// "teardown in reverse"; §8: "all OS resources released before Disconnected
// fires").
func (c *ConnectedTunnel) Close() {
	for i := len(c.teardown) - 1; i >= 0; i-- {
		c.teardown[i]()
	}
	c.teardown = nil
	if !c.closed {
		c.closed = true
		close(c.Fatal)
	}
}

func (c *ConnectedTunnel) addTeardown(fn func()) {
	c.teardown = append(c.teardown, fn)
}

// reportFatal signals a steady-state failure to whoever is watching Fatal.
// Safe to call from any goroutine, any number of times.
func (c *ConnectedTunnel) reportFatal(err error) {
	select {
	case c.Fatal <- err:
	default:
	}
}

// Connect runs the full pipeline described by §4.9: readiness check, gateway
// selection, session establishment (mixnet or two-hop wireguard), routing
// install, in that order. Any step failure unwinds everything acquired so
// far before returning.
func Connect(ctx context.Context, deps Deps, settings Settings) (*ConnectedTunnel, error) {
	// Step 1: account readiness (bypassable when credentials_mode=false,
	// since a free/unauthenticated tunnel type may not need an account at
	// all — §4.9 step 1: "configurable bypass when credentials_mode=false").
	if settings.CredentialsMode && deps.AccountState != nil {
		if r := deps.AccountState.Get().IsReadyToConnect(); r != account.Ready {
			return nil, core.NewError(core.KindNoValidCredentials).WithData("reason", string(r))
		}
	}

	// Step 2: gateway selection.
	selected, err := deps.Selector.Select(settings.Entry, settings.Exit, settings.TunnelType)
	if err != nil {
		return nil, err
	}
	if selected.Entry.IdentityBase58() == selected.Exit.IdentityBase58() {
		return nil, fmt.Errorf("selected entry and exit resolved to the same gateway")
	}

	ct := &ConnectedTunnel{Entry: selected.Entry, Exit: selected.Exit, Fatal: make(chan error, 1)}

	var credential []byte
	if deps.Credential != nil {
		credential = deps.Credential()
	}

	// Step 3/4.
	switch settings.TunnelType {
	case gateway.TunnelMixnet:
		if err := connectMixnet(ctx, deps, settings, selected, ct, credential); err != nil {
			ct.Close()
			return nil, err
		}
	case gateway.TunnelWireguard:
		if err := connectWireguard(ctx, deps, selected, ct, credential); err != nil {
			ct.Close()
			return nil, err
		}
	default:
		ct.Close()
		return nil, fmt.Errorf("unknown tunnel type %d", settings.TunnelType)
	}

	// Step 5: routing/DNS/firewall.
	if deps.Routing != nil {
		dnsAddrs := make([]netip.Addr, 0, len(settings.DNSServers))
		for _, s := range settings.DNSServers {
			if a, err := netip.ParseAddr(s); err == nil {
				dnsAddrs = append(dnsAddrs, a)
			}
		}
		entryIP, err := resolveGatewayIP(selected.Entry.Host)
		if err != nil {
			ct.Close()
			return nil, core.NewError(core.KindFailedToLookupGatewayIp).WithData("gateway_id", selected.Entry.IdentityBase58())
		}
		cfg := routing.InstallConfig{
			EntryGatewayIP: entryIP,
			DNSServers:     dnsAddrs,
		}
		if err := deps.Routing.Install(cfg); err != nil {
			ct.Close()
			return nil, core.Wrap(core.KindFailedToBringInterfaceUp, err).WithData("stage", "routing_install")
		}
		ct.addTeardown(func() {
			if err := deps.Routing.Teardown(); err != nil {
				core.Log.Warnf("tunnel", "routing teardown: %v", err)
			}
		})
	}

	return ct, nil
}

func connectMixnet(ctx context.Context, deps Deps, settings Settings, selected gateway.SelectedGateways, ct *ConnectedTunnel, credential []byte) error {
	if selected.Exit.IPPacketRouterAddress == nil {
		return core.NewError(core.KindAuthenticatorAddressNotFound).WithData("gateway_id", selected.Exit.IdentityBase58())
	}

	client, err := mixnet.Start(ctx, deps.MixnetDialer, selected.Entry.IdentityBase58(), "", settings.CredentialsMode, mixnet.DebugOpts{}, nil)
	if err != nil {
		return err
	}
	ct.mixnetClient = client
	ct.addTeardown(func() { client.Disconnect() })

	tunSink := make(chan []byte, 64)
	selfPing := make(chan struct{}, 4)

	iprClient, err := ipr.NewClient(client, selected.Exit.IPPacketRouterAddress.String(), deps.Bus, tunSink, selfPing)
	if err != nil {
		return err
	}
	ct.iprClient = iprClient
	ct.addTeardown(func() { iprClient.Close() })

	assigned, err := iprClient.Connect(ctx, settings.RequestedIPv4, settings.RequestedIPv6)
	if err != nil {
		return err
	}
	ct.TunAddrV4, ct.TunAddrV6 = assigned.IPv4, assigned.IPv6

	if deps.NewOSTun != nil {
		addrs := make([]netip.Addr, 0, 2)
		if a, err := netip.ParseAddr(assigned.IPv4); err == nil {
			addrs = append(addrs, a)
		}
		if a, err := netip.ParseAddr(assigned.IPv6); err == nil {
			addrs = append(addrs, a)
		}
		osTun, err := deps.NewOSTun(addrs, nil, 1500)
		if err != nil {
			return fmt.Errorf("create os tun device: %w", err)
		}
		ct.osTun = osTun
		ct.addTeardown(func() { osTun.Close() })
	}

	sink := &mixnetPingSink{ipr: iprClient}
	if a, err := netip.ParseAddr(assigned.IPv4); err == nil {
		sink.tunAddrV4 = net.IP(a.AsSlice())
	}
	if a, err := netip.ParseAddr(assigned.IPv6); err == nil {
		sink.tunAddrV6 = net.IP(a.AsSlice())
	}
	m := monitor.NewMonitor(sink, deps.Bus)

	runCtx, cancel := context.WithCancel(ctx)
	ct.addTeardown(cancel)
	go func() {
		if err := iprClient.Run(runCtx); err != nil && runCtx.Err() == nil {
			ct.reportFatal(fmt.Errorf("ip-packet-router session ended: %w", err))
		}
	}()
	go pumpTunSink(runCtx, tunSink, ct.osTun, m, sink.tunAddrV4, sink.tunAddrV6)

	ct.monitor = m
	monCtx, monCancel := context.WithCancel(ctx)
	ct.monitorCancel = monCancel
	ct.addTeardown(monCancel)
	go m.Run(monCtx)
	go drainSelfPing(monCtx, selfPing, m)

	return nil
}

func connectWireguard(ctx context.Context, deps Deps, selected gateway.SelectedGateways, ct *ConnectedTunnel, credential []byte) error {
	client, err := mixnet.Start(ctx, deps.MixnetDialer, selected.Entry.IdentityBase58(), "", true, mixnet.DebugOpts{}, nil)
	if err != nil {
		return err
	}
	ct.mixnetClient = client
	ct.addTeardown(func() { client.Disconnect() })

	recv, err := client.Lock()
	if err != nil {
		return err
	}
	ct.addTeardown(func() { recv.Unlock() })
	sender := client.SplitSender()

	entryAuth, err := deps.AuthenticatorAddress(selected.Entry)
	if err != nil {
		return core.NewError(core.KindAuthenticatorAddressNotFound).WithData("gateway_id", selected.Entry.IdentityBase58())
	}
	exitAuth, err := deps.AuthenticatorAddress(selected.Exit)
	if err != nil {
		return core.NewError(core.KindAuthenticatorAddressNotFound).WithData("gateway_id", selected.Exit.IdentityBase58())
	}

	exitTunFactory := deps.NewExitTun
	if exitTunFactory == nil {
		return fmt.Errorf("no exit tun factory configured")
	}

	twoHop, err := wireguard.Up(ctx, sender, recv,
		wireguard.GatewayConfig{Identity: selected.Entry.IdentityBase58(), AuthenticatorAddress: entryAuth},
		wireguard.GatewayConfig{Identity: selected.Exit.IdentityBase58(), AuthenticatorAddress: exitAuth},
		credential, exitTunFactory)
	if err != nil {
		return fmt.Errorf("establish two-hop wireguard tunnel: %w", err)
	}
	ct.twoHop = twoHop
	ct.addTeardown(func() {
		if err := twoHop.Down(); err != nil {
			core.Log.Warnf("tunnel", "wireguard teardown: %v", err)
		}
	})
	ct.TunAddrV4 = twoHop.ExitIP().String()

	if deps.NewNetPathObserver != nil {
		_, entryPort, splitErr := net.SplitHostPort(selected.Entry.WireguardEndpoint)
		if splitErr != nil {
			entryPort = ""
		}

		var sawUnsatisfied bool
		observer, obsErr := deps.NewNetPathObserver(func(u netpath.Update) {
			switch u.Status {
			case netpath.Unsatisfied:
				sawUnsatisfied = true
			case netpath.Satisfied:
				if !sawUnsatisfied {
					return
				}
				sawUnsatisfied = false
				ip, err := resolveGatewayIP(selected.Entry.Host)
				if err != nil {
					core.Log.Warnf("tunnel", "netpath: re-resolve entry endpoint: %v", err)
					return
				}
				endpoint := net.JoinHostPort(ip.String(), entryPort)
				if err := twoHop.UpdateEntryEndpoint(selected.Entry.WireguardPublicKey, endpoint); err != nil {
					core.Log.Warnf("tunnel", "netpath: update entry endpoint: %v", err)
				}
			}
		})
		if obsErr != nil {
			core.Log.Warnf("tunnel", "netpath: start observer: %v", obsErr)
		} else if err := observer.Start(); err != nil {
			core.Log.Warnf("tunnel", "netpath: observer.Start: %v", err)
		} else {
			ct.netpathObs = observer
			ct.addTeardown(func() {
				if err := observer.Stop(); err != nil {
					core.Log.Warnf("tunnel", "netpath: observer.Stop: %v", err)
				}
			})
		}
	}

	return nil
}

// resolveGatewayIP accepts either a literal IP or a hostname, matching the
// directory's "hostname or literal IP" Host field (§3).
func resolveGatewayIP(host string) (netip.Addr, error) {
	if a, err := netip.ParseAddr(host); err == nil {
		return a, nil
	}
	ips, err := net.LookupIP(host)
	if err != nil || len(ips) == 0 {
		return netip.Addr{}, fmt.Errorf("resolve gateway host %q: %w", host, err)
	}
	addr, ok := netip.AddrFromSlice(ips[0].To4())
	if !ok {
		addr, ok = netip.AddrFromSlice(ips[0].To16())
		if !ok {
			return netip.Addr{}, fmt.Errorf("resolve gateway host %q: unparseable address", host)
		}
	}
	return addr, nil
}

// pumpTunSink drains decoded inbound IP datagrams, routing beacon echo
// replies to the monitor and everything else to the OS tun device (§4.6:
// "replies are consumed by the connection monitor rather than delivered to
// the application").
func pumpTunSink(ctx context.Context, sink <-chan []byte, tun platform.TUNAdapter, m *monitor.Monitor, tunAddrV4, tunAddrV6 net.IP) {
	for {
		select {
		case <-ctx.Done():
			return
		case pkt := <-sink:
			if kind, ok := classifyBeaconReply(pkt, tunAddrV4, tunAddrV6); ok {
				m.Observe(kind)
				continue
			}
			if tun == nil {
				continue
			}
			if err := tun.WritePacket(pkt); err != nil {
				core.Log.Warnf("tunnel", "write tun packet: %v", err)
			}
		}
	}
}

// classifyBeaconReply reports whether pkt is one of our own ICMP echo
// replies, and if so which leg it answers: a reply whose IP source is our
// own tun address came back from the tun-device leg of the round, anything
// else from the external leg (§4.6).
func classifyBeaconReply(pkt, tunAddrV4, tunAddrV6 net.IP) (monitor.PingKind, bool) {
	if len(pkt) < 1 {
		return 0, false
	}
	switch pkt[0] >> 4 {
	case 4:
		if len(pkt) < 20 {
			return 0, false
		}
		if _, ok := monitor.ParseEchoReply(pkt[20:], false); !ok {
			return 0, false
		}
		if tunAddrV4 != nil && net.IP(pkt[12:16]).Equal(tunAddrV4.To4()) {
			return monitor.Icmpv4IprTunDevicePingReply, true
		}
		return monitor.Icmpv4IprExternalPingReply, true
	case 6:
		if len(pkt) < 40 {
			return 0, false
		}
		if _, ok := monitor.ParseEchoReply(pkt[40:], true); !ok {
			return 0, false
		}
		if tunAddrV6 != nil && net.IP(pkt[8:24]).Equal(tunAddrV6.To16()) {
			return monitor.Icmpv6IprTunDevicePingReply, true
		}
		return monitor.Icmpv6IprExternalPingReply, true
	}
	return 0, false
}

func drainSelfPing(ctx context.Context, ch <-chan struct{}, m *monitor.Monitor) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch:
			m.Observe(monitor.MixnetSelfPingReply)
		}
	}
}

// externalProbeV4/V6 are well-known reachable addresses used as the
// "external" leg of a beacon round (§4.6: "an external address reachable
// only via the exit's own default route").
var (
	externalProbeV4 = net.ParseIP("1.1.1.1")
	externalProbeV6 = net.ParseIP("2606:4700:4700::1111")
)

// mixnetPingSink implements monitor.PingSink by bundling ICMP echo requests
// through the IP-Packet-Router client, with the tun-device leg addressed to
// our own assigned tunnel IP so the exit loops it straight back (§4.6).
type mixnetPingSink struct {
	ipr       *ipr.Client
	tunAddrV4 net.IP
	tunAddrV6 net.IP
}

func (s *mixnetPingSink) SendSelfPing() error {
	return s.ipr.SendPacket([]byte("self-ping"))
}
func (s *mixnetPingSink) SendIcmpV4TunDevice(seq int) error {
	return s.sendICMP(seq, s.tunAddrV4, s.tunAddrV4, false)
}
func (s *mixnetPingSink) SendIcmpV4External(seq int) error {
	return s.sendICMP(seq, s.tunAddrV4, externalProbeV4, false)
}
func (s *mixnetPingSink) SendIcmpV6TunDevice(seq int) error {
	return s.sendICMP(seq, s.tunAddrV6, s.tunAddrV6, true)
}
func (s *mixnetPingSink) SendIcmpV6External(seq int) error {
	return s.sendICMP(seq, s.tunAddrV6, externalProbeV6, true)
}

func (s *mixnetPingSink) sendICMP(seq int, src, dst net.IP, v6 bool) error {
	if src == nil || dst == nil {
		return fmt.Errorf("beacon address unavailable")
	}
	var pkt []byte
	var err error
	if v6 {
		pkt, err = monitor.BuildEchoRequestV6(src, dst, seq)
	} else {
		pkt, err = monitor.BuildEchoRequestV4(src, dst, seq)
	}
	if err != nil {
		return err
	}
	return s.ipr.SendPacket(pkt)
}
