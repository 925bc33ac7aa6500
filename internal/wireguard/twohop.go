package wireguard

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"golang.zx2c4.com/wireguard/conn"
	"golang.zx2c4.com/wireguard/device"
	"golang.zx2c4.com/wireguard/tun"
	"golang.zx2c4.com/wireguard/tun/netstack"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/mixnet"
)

// EntryMTU/ExitMTU follow §4.7: the inner (exit) hop's WireGuard packets
// travel inside the outer (entry) hop's tunnel, so the exit hop's
// kernel-facing tun device runs a smaller MTU than the entry hop to leave
// room for the outer WireGuard overhead.
const (
	EntryMTU = 1440
	ExitMTU  = 1360
)

// GatewayConfig names one gateway the handshake authenticates against and
// the mixnet address used to reach its authenticator.
type GatewayConfig struct {
	Identity            string
	AuthenticatorAddress string
}

// TwoHop is the live two-hop WireGuard data plane: a netstack tunnel to the
// entry gateway, and a second, kernel-tun-backed tunnel to the exit
// gateway whose WireGuard packets are carried as ordinary payload inside
// the first (§4.7: "the exit hop's WireGuard packets become payload for
// the entry hop's [tunnel]").
type TwoHop struct {
	entryDev  *device.Device
	entryTnet *netstack.Net

	exitDev *device.Device
	exitTun tun.Device

	bridge *udpBridge

	mu      sync.RWMutex
	entryIP netip.Addr
	exitIP  netip.Addr
}

// Up authenticates against both gateways over the mixnet, then constructs
// the two WireGuard hops and bridges them (§4.7 steps 1-3).
//
// exitTunFactory creates the OS-backed tun device the exit hop's decrypted
// traffic ultimately lands on; it is a parameter so platform packages can
// supply their own (e.g. a pre-created utun on darwin vs. a fresh one on
// linux).
func Up(ctx context.Context, sender mixnet.Sender, recv *mixnet.Receiver, entry, exit GatewayConfig, credential []byte, exitTunFactory func(mtu int) (tun.Device, error)) (*TwoHop, error) {
	entryReg, err := Authenticate(ctx, sender, recv, entry.AuthenticatorAddress, credential)
	if err != nil {
		return nil, fmt.Errorf("authenticate entry gateway %s: %w", entry.Identity, err)
	}
	exitReg, err := Authenticate(ctx, sender, recv, exit.AuthenticatorAddress, credential)
	if err != nil {
		return nil, fmt.Errorf("authenticate exit gateway %s: %w", exit.Identity, err)
	}

	entryIP, err := netip.ParseAddr(entryReg.AssignedIPv4)
	if err != nil {
		return nil, core.NewError(core.KindFailedToLookupGatewayIp).WithData("gateway_id", entry.Identity)
	}
	exitIP, err := netip.ParseAddr(exitReg.AssignedIPv4)
	if err != nil {
		return nil, core.NewError(core.KindFailedToLookupGatewayIp).WithData("gateway_id", exit.Identity)
	}

	entryTunDev, entryTnet, err := netstack.CreateNetTUN([]netip.Addr{entryIP}, nil, EntryMTU)
	if err != nil {
		return nil, fmt.Errorf("create entry netstack tun: %w", err)
	}

	entryDev := device.NewDevice(entryTunDev, conn.NewDefaultBind(), device.NewLogger(device.LogLevelSilent, ""))
	entryCfg := UAPIConfig{
		PrivateKey:   [32]byte(entryReg.LocalPrivateKey),
		ReplacePeers: true,
		Peers: []UAPIPeer{{
			PublicKey:                   entryReg.PeerPublicKey,
			Endpoint:                    fmt.Sprintf("%s:%d", entry.Identity, entryReg.WgPort),
			AllowedIPs:                  []string{"0.0.0.0/0", "::/0"},
			PersistentKeepaliveInterval: 25,
		}},
	}
	if err := entryDev.IpcSet(BuildUAPIConfig(entryCfg)); err != nil {
		entryDev.Close()
		return nil, core.Wrap(core.KindFailedToBringInterfaceUp, err).WithData("hop", "entry")
	}
	if err := entryDev.Up(); err != nil {
		entryDev.Close()
		return nil, core.Wrap(core.KindFailedToBringInterfaceUp, err).WithData("hop", "entry")
	}

	// The exit hop's outer (WireGuard) packets are forwarded through the
	// entry tunnel's userspace network stack to the exit gateway's real
	// endpoint; a local loopback UDP socket stands in as that endpoint for
	// the kernel-facing device below.
	bridge, err := newUDPBridge(entryTnet, fmt.Sprintf("%s:%d", exit.Identity, exitReg.WgPort))
	if err != nil {
		entryDev.Close()
		return nil, fmt.Errorf("bridge to exit gateway: %w", err)
	}

	exitTunDev, err := exitTunFactory(ExitMTU)
	if err != nil {
		bridge.Close()
		entryDev.Close()
		return nil, fmt.Errorf("create exit tun device: %w", err)
	}

	exitDev := device.NewDevice(exitTunDev, conn.NewDefaultBind(), device.NewLogger(device.LogLevelSilent, ""))
	exitCfg := UAPIConfig{
		PrivateKey:   [32]byte(exitReg.LocalPrivateKey),
		ReplacePeers: true,
		Peers: []UAPIPeer{{
			PublicKey:                   exitReg.PeerPublicKey,
			Endpoint:                    bridge.LocalAddr().String(),
			AllowedIPs:                  []string{"0.0.0.0/0", "::/0"},
			PersistentKeepaliveInterval: 25,
		}},
	}
	if err := exitDev.IpcSet(BuildUAPIConfig(exitCfg)); err != nil {
		exitDev.Close()
		bridge.Close()
		entryDev.Close()
		return nil, core.Wrap(core.KindFailedToBringInterfaceUp, err).WithData("hop", "exit")
	}
	if err := exitDev.Up(); err != nil {
		exitDev.Close()
		bridge.Close()
		entryDev.Close()
		return nil, core.Wrap(core.KindFailedToBringInterfaceUp, err).WithData("hop", "exit")
	}

	return &TwoHop{
		entryDev:  entryDev,
		entryTnet: entryTnet,
		exitDev:   exitDev,
		exitTun:   exitTunDev,
		bridge:    bridge,
		entryIP:   entryIP,
		exitIP:    exitIP,
	}, nil
}

// UpdateEntryEndpoint pushes the given (already resolved) entry-peer endpoint into
// the running device's UAPI config, then nudges it to re-bind sockets
// (§4.10: network path change handling).
func (t *TwoHop) UpdateEntryEndpoint(peerPublicKey [32]byte, newEndpoint string) error {
	cfg := UAPIConfig{
		ReplacePeers: false,
		Peers: []UAPIPeer{{
			PublicKey:  peerPublicKey,
			Endpoint:   newEndpoint,
			AllowedIPs: nil,
		}},
	}
	if err := t.entryDev.IpcSet(BuildUAPIConfig(cfg)); err != nil {
		return fmt.Errorf("update entry peer endpoint: %w", err)
	}
	t.entryDev.BindUpdate()
	return nil
}

// ExitIP reports the exit gateway's view of our address (for diagnostics
// and netpath re-resolution).
func (t *TwoHop) ExitIP() netip.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.exitIP
}

// EntryIP reports the entry hop's assigned overlay address.
func (t *TwoHop) EntryIP() netip.Addr {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.entryIP
}

// Down tears both hops and the bridge down, in reverse construction order
// (§4.7 step reverse teardown).
func (t *TwoHop) Down() error {
	if t.exitDev != nil {
		t.exitDev.Close()
	}
	if t.bridge != nil {
		t.bridge.Close()
	}
	if t.entryDev != nil {
		t.entryDev.Close()
	}
	return nil
}

// udpBridge forwards datagrams between a loopback UDP listener and a
// connection dialed through the entry hop's netstack, giving the exit
// hop's kernel-facing WireGuard device a plain local endpoint to talk to
// (generalizes the reference bridge wrapper's netstack.Net.DialContext
// shape, run in reverse: host -> netstack here instead of app -> netstack).
type udpBridge struct {
	local *net.UDPConn
	conn  net.Conn

	mu      sync.Mutex
	lastSrc *net.UDPAddr
}

func newUDPBridge(tnet *netstack.Net, peer string) (*udpBridge, error) {
	local, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		return nil, fmt.Errorf("listen local bridge socket: %w", err)
	}
	c, err := tnet.Dial("udp", peer)
	if err != nil {
		local.Close()
		return nil, fmt.Errorf("dial exit gateway through entry tunnel: %w", err)
	}
	b := &udpBridge{local: local, conn: c}
	go b.pumpFromExit()
	go b.pumpToExit()
	return b, nil
}

// pumpToExit reads datagrams the kernel-facing device sent to our local
// bridge address and forwards them to the exit gateway through the entry
// tunnel.
func (b *udpBridge) pumpToExit() {
	buf := make([]byte, 65535)
	for {
		n, src, err := b.local.ReadFromUDP(buf)
		if err != nil {
			return
		}
		b.mu.Lock()
		b.lastSrc = src
		b.mu.Unlock()

		if _, err := b.conn.Write(buf[:n]); err != nil {
			return
		}
	}
}

// pumpFromExit reads the exit gateway's replies back out of the entry
// tunnel and delivers them to whichever local address last wrote to us.
func (b *udpBridge) pumpFromExit() {
	buf := make([]byte, 65535)
	for {
		n, err := b.conn.Read(buf)
		if err != nil {
			return
		}
		b.mu.Lock()
		dst := b.lastSrc
		b.mu.Unlock()
		if dst == nil {
			continue
		}
		_, _ = b.local.WriteToUDP(buf[:n], dst)
	}
}

func (b *udpBridge) LocalAddr() net.Addr {
	return b.local.LocalAddr()
}

func (b *udpBridge) Close() error {
	b.mu.Lock()
	if b.conn != nil {
		b.conn.Close()
	}
	b.mu.Unlock()
	return b.local.Close()
}
