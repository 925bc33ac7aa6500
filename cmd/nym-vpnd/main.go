// Command nym-vpnd is the VPN daemon: it owns every controller (C1-C11),
// serves the local RPC surface (§6) and runs until told to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/netip"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	wgtun "golang.zx2c4.com/wireguard/tun"

	"github.com/nymtech/nym-vpn-core-go/internal/account"
	"github.com/nymtech/nym-vpn-core-go/internal/config"
	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/dispatcher"
	"github.com/nymtech/nym-vpn-core-go/internal/dispatcher/rpc"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
	"github.com/nymtech/nym-vpn-core-go/internal/mixnet"
	"github.com/nymtech/nym-vpn-core-go/internal/platform"
	"github.com/nymtech/nym-vpn-core-go/internal/storage"
	"github.com/nymtech/nym-vpn-core-go/internal/tunnel"
)

// Build identity, injected at link time via
// -ldflags "-X main.version=... -X main.commit=... -X main.buildDate=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	// === 1. Flags & config ===
	var (
		configPath = flag.String("config", defaultConfigPath(), "path to the daemon's YAML config file")
		dataDir    = flag.String("data-dir", defaultDataDir(), "override the data directory from the config file")
		foreground = flag.Bool("foreground", false, "run attached to the terminal, disabling idle auto-shutdown")
		apiURL     = flag.String("api-url", "https://nymvpn.com/api", "base URL of the VPN account/device API")
		gwDirURL   = flag.String("gateway-directory-url", "https://nymvpn.com/api/directory", "base URL of the gateway directory API")
	)
	flag.Parse()

	bus := core.NewEventBus()

	cfgMgr := config.NewManager(*configPath, bus)
	if err := cfgMgr.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "nym-vpnd: load config: %v\n", err)
		os.Exit(1)
	}
	cfg := cfgMgr.Get()
	core.Log = core.NewLogger(cfg.Daemon.Logging)

	root := cfg.Daemon.DataDir
	if *dataDir != "" {
		root = *dataDir
	}
	if root == "" {
		root = defaultDataDir()
	}

	// === 2. Data directory & persisted state ===
	dd, err := core.OpenDataDir(root)
	if err != nil {
		core.Log.Fatalf("main", "open data dir: %v", err)
	}
	defer dd.Close()

	deviceKeys := storage.NewDeviceKeys(dd)
	if err := deviceKeys.Init(nil); err != nil {
		core.Log.Fatalf("main", "init device keys: %v", err)
	}
	mnemonicStore := storage.NewMnemonic(dd)
	networkCache := storage.NewNetworkCache(dd)
	credentials, err := storage.OpenCredentials(dd)
	if err != nil {
		core.Log.Fatalf("main", "open credentials store: %v", err)
	}
	defer credentials.Close()

	// === 3. Account controller (C3) ===
	api := account.NewApiClient(*apiURL, mnemonicAuth{mnemonicStore})
	accountCtl := account.NewController(api, deviceKeys, mnemonicStore, bus)
	accountCtx, cancelAccount := context.WithCancel(context.Background())
	defer cancelAccount()
	go accountCtl.Run(accountCtx)

	// === 4. Gateway directory + prober + selector (C1/C2) ===
	directoryURL := *gwDirURL
	if cfg.Daemon.GatewayDirectoryURL != "" {
		directoryURL = cfg.Daemon.GatewayDirectoryURL
	}
	dirClient := gateway.NewClient(directoryURL)
	prober := gateway.NewProber()
	selector := gateway.NewSelector(dirClient, prober)

	// === 5. Platform collaborators (TUN, notifications, DNS flush) ===
	plat := newPlatform()
	if plat.Notifier != nil {
		bus.Subscribe(core.EventInfoMessage, func(e core.Event) {
			if p, ok := e.Payload.(core.InfoPayload); ok {
				plat.Notifier.Show("Nym VPN", p.Reply)
			}
		})
		bus.Subscribe(core.EventTunnelStateChanged, func(e core.Event) {
			if p, ok := e.Payload.(core.TunnelStatePayload); ok && p.NewState == string(tunnel.PhaseError) {
				plat.Notifier.Show("Nym VPN", fmt.Sprintf("tunnel error: %s", p.ErrKind))
			}
		})
	}

	// === 6. Tunnel controller (C9), wired over C1/C3/C4/C5/C6/C7/C8/C10 ===
	deps := tunnel.Deps{
		AccountState: accountCtl.State(),
		Selector:     selector,
		MixnetDialer: unimplementedMixnetDialer{},
		AuthenticatorAddress: func(g gateway.Gateway) (string, error) {
			return "", fmt.Errorf("authenticator address resolution is a mixnet SDK concern, not implemented here")
		},
		Credential: func() []byte {
			payload, err := credentials.ActivePayload()
			if err != nil {
				return nil
			}
			return payload
		},
		NewExitTun: func(mtu int) (wgtun.Device, error) {
			return wgtun.CreateTUN("nym-exit", mtu)
		},
		NewNetPathObserver: newNetPathObserver,
		Routing:            newRoutingManager("nym-exit"),
		Bus:                bus,
	}
	if plat.NewTUNAdapter != nil {
		deps.NewOSTun = func(addrs []netip.Addr, dns []netip.Addr, mtu int) (platform.TUNAdapter, error) {
			return plat.NewTUNAdapter(addrs, dns, mtu)
		}
	}
	tunnelCtl := tunnel.NewController(deps, bus)

	// === 7. Command Dispatcher (C11) & RPC surface (§6) ===
	dispatchDeps := dispatcher.Deps{
		Tunnel:       tunnelCtl,
		Account:      accountCtl,
		Directory:    dirClient,
		Credentials:  credentials,
		NetworkCache: networkCache,
		Mnemonic:     mnemonicStore,
		Bus:          bus,
		Info: dispatcher.InfoResponse{
			Build: dispatcher.BuildInfo{
				Version:   version,
				BuildTS:   buildDate,
				Platform:  runtime.GOOS,
				Triple:    runtime.GOOS + "/" + runtime.GOARCH,
				GitCommit: commit,
			},
			VpnApiURL: *apiURL,
		},
	}
	d := dispatcher.New(dispatchDeps)
	handlers := rpc.NewHandlers(d)

	var onIdle func()
	shutdownCh := make(chan struct{})
	if !*foreground {
		onIdle = func() {
			core.Log.Infof("main", "idle grace period elapsed with no clients, shutting down")
			close(shutdownCh)
		}
	}
	server := rpc.NewServer(handlers, onIdle)

	go func() {
		if err := server.Serve(); err != nil {
			core.Log.Errorf("main", "rpc server: %v", err)
			close(shutdownCh)
		}
	}()
	core.Log.Infof("main", "nym-vpnd %s (%s, built %s) listening", version, commit, buildDate)

	// === 8. Signal handling & graceful shutdown ===
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

mainLoop:
	for {
		select {
		case sig := <-sigCh:
			core.Log.Infof("main", "received signal %v, shutting down", sig)
			break mainLoop
		case <-shutdownCh:
			break mainLoop
		}
	}

	done := make(chan struct{})
	go func() {
		if tunnelCtl.State().Phase != tunnel.PhaseDisconnected {
			_ = tunnelCtl.Disconnect()
		}
		if plat.FlushSystemDNS != nil {
			if err := plat.FlushSystemDNS(); err != nil {
				core.Log.Warnf("main", "flush system dns: %v", err)
			}
		}
		server.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		core.Log.Warnf("main", "graceful shutdown timed out, forcing exit")
	}
}

// mnemonicAuth adapts storage.Mnemonic to account.MnemonicAuth. The bearer
// token itself is signed server-side from the submitted mnemonic; the
// signing scheme is the VPN API's concern, not the daemon's (the account
// API client is a thin REST wrapper, §4.3).
type mnemonicAuth struct {
	store *storage.Mnemonic
}

func (m mnemonicAuth) AuthToken() (string, error) {
	return m.store.Load()
}

// unimplementedMixnetDialer satisfies tunnel.Deps.MixnetDialer. The
// Sphinx mixnet SDK that would construct a real session is an explicitly
// out-of-scope collaborator (§1); wiring a concrete client is future
// work tracked outside this repo.
type unimplementedMixnetDialer struct{}

func (unimplementedMixnetDialer) Dial(ctx context.Context, entryIdentity string, opts mixnet.DebugOpts) (mixnet.RawClient, error) {
	return nil, fmt.Errorf("mixnet dialer not implemented: entry %s", entryIdentity)
}

func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "nym-vpnd", "config.yaml")
	case "darwin":
		return "/Library/Application Support/nym-vpnd/config.yaml"
	default:
		return "/etc/nym-vpnd/config.yaml"
	}
}

func defaultDataDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "nym-vpnd")
	case "darwin":
		return "/Library/Application Support/nym-vpnd"
	default:
		return "/var/lib/nym-vpnd"
	}
}
