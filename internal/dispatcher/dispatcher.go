// Package dispatcher implements the Command Dispatcher (C11): the sole
// translation layer between the external RPC surface (§6) and the
// single-writer controllers C9 (tunnel) and C3 (account). Tunnel and
// account calls go to their controller and block for its reply; the other
// unary calls (info, credential import, gateway lists, mnemonic storage,
// network cache reads) go straight to the store or client behind them.
// The two streaming subscriptions are served by
// bounded, lossy-latest broadcast channels fed from the shared event bus
// (§4.11, §5).
package dispatcher

import (
	"context"
	"fmt"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/account"
	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
	"github.com/nymtech/nym-vpn-core-go/internal/storage"
	"github.com/nymtech/nym-vpn-core-go/internal/tunnel"
)

// BuildInfo is the static build-identity half of the Info RPC response,
// populated by cmd/nym-vpnd from ldflags-injected package vars the way
// the original entrypoint reported its own version/commit/build date.
type BuildInfo struct {
	Version   string
	BuildTS   string
	Platform  string
	Triple    string
	GitCommit string
}

// NetworkInfo is the network-identity half of the Info RPC response,
// sourced from the cached env overlay (§6 "Info → {..., network: {chain,
// endpoints, contracts}, vpn_api_url}").
type NetworkInfo struct {
	Chain     string
	Endpoints map[string]string
	Contracts map[string]string
}

// InfoResponse is the full Info RPC reply.
type InfoResponse struct {
	Build      BuildInfo
	Network    NetworkInfo
	VpnApiURL  string
}

// Deps collects every collaborator the dispatcher fronts.
type Deps struct {
	Tunnel    *tunnel.Controller
	Account   *account.Controller
	Directory *gateway.Client

	Credentials  *storage.Credentials
	NetworkCache *storage.NetworkCache
	Mnemonic     *storage.Mnemonic

	Bus  *core.EventBus
	Info InfoResponse
}

// Dispatcher is C11: a thin RPC-facing façade with no state of its own
// beyond the broadcast hubs, since every durable state lives in C9/C3.
type Dispatcher struct {
	deps Deps

	status *broadcaster[StatusUpdate]
	state  *broadcaster[StateChange]
}

// StatusUpdate is one ListenToConnectionStatus event (C6's monitor.Status).
type StatusUpdate struct {
	Status string
}

// StateChange is one ListenToConnectionStateChanges event (C9's
// TunnelStatePayload, re-exported so rpc/ need not import internal/core).
type StateChange struct {
	OldState string
	NewState string
	Since    time.Time
	ErrKind  string
}

// New wires a dispatcher over deps, subscribing to the event bus so both
// broadcast hubs stay live for the process lifetime.
func New(deps Deps) *Dispatcher {
	d := &Dispatcher{
		deps:   deps,
		status: newBroadcaster[StatusUpdate](),
		state:  newBroadcaster[StateChange](),
	}
	if deps.Bus != nil {
		deps.Bus.Subscribe(core.EventConnectionMonitorStatus, func(e core.Event) {
			if p, ok := e.Payload.(core.MonitorStatusPayload); ok {
				d.status.publish(StatusUpdate{Status: p.Status})
			}
		})
		deps.Bus.Subscribe(core.EventTunnelStateChanged, func(e core.Event) {
			if p, ok := e.Payload.(core.TunnelStatePayload); ok {
				d.state.publish(StateChange{
					OldState: p.OldState,
					NewState: p.NewState,
					Since:    p.Since,
					ErrKind:  p.ErrKind,
				})
			}
		})
	}
	return d
}

// ConnectOutcome is the {Success | Fail} tag of a Connect reply (§6).
type ConnectOutcome string

const (
	ConnectSuccess ConnectOutcome = "Success"
	ConnectFail    ConnectOutcome = "Fail"
)

// ConnectResult is the Connect RPC reply.
type ConnectResult struct {
	Outcome ConnectOutcome
	Kind    core.Kind
	Detail  string
}

// Connect translates a Connect RPC into a single C9.Connect command. Per
// §4.9, acceptance only means the Connecting transition was recorded; the
// eventual Connected/Error outcome is observed via Status or
// ListenToConnectionStateChanges.
func (d *Dispatcher) Connect(settings tunnel.Settings) ConnectResult {
	if err := d.deps.Tunnel.Connect(settings); err != nil {
		return ConnectResult{Outcome: ConnectFail, Kind: core.KindOf(err), Detail: err.Error()}
	}
	return ConnectResult{Outcome: ConnectSuccess}
}

// DisconnectOutcome is the {Success | NotRunning | Fail} tag of a
// Disconnect reply (§6).
type DisconnectOutcome string

const (
	DisconnectSuccess    DisconnectOutcome = "Success"
	DisconnectNotRunning DisconnectOutcome = "NotRunning"
	DisconnectFail       DisconnectOutcome = "Fail"
)

// DisconnectResult is the Disconnect RPC reply.
type DisconnectResult struct {
	Outcome DisconnectOutcome
	Detail  string
}

// Disconnect translates a Disconnect RPC into a single C9.Disconnect
// command. A call while already Disconnected returns NotRunning without
// side effects (§8: "Idempotence: Disconnect from Disconnected returns
// NotRunning").
func (d *Dispatcher) Disconnect() DisconnectResult {
	wasDisconnected := d.deps.Tunnel.State().Phase == tunnel.PhaseDisconnected
	if err := d.deps.Tunnel.Disconnect(); err != nil {
		return DisconnectResult{Outcome: DisconnectFail, Detail: err.Error()}
	}
	if wasDisconnected {
		return DisconnectResult{Outcome: DisconnectNotRunning}
	}
	return DisconnectResult{Outcome: DisconnectSuccess}
}

// Status translates the Status RPC into a snapshot read of C9's state.
func (d *Dispatcher) Status() tunnel.State {
	return d.deps.Tunnel.State()
}

// Info answers the Info RPC from the build/network identity captured at
// construction (§9: "a single process-wide cell is acceptable only as an
// init-once configuration surface with documented lifecycle").
func (d *Dispatcher) Info() InfoResponse {
	return d.deps.Info
}

// ImportCredential translates the ImportCredential RPC into a single
// storage.Credentials write, returning the credential's expiry on
// success.
func (d *Dispatcher) ImportCredential(raw []byte) (*time.Time, error) {
	if d.deps.Credentials == nil {
		return nil, core.NewError(core.KindStorageError).WithData("reason", "no credential store configured")
	}
	return d.deps.Credentials.ImportCredential(raw)
}

// ListEntryGateways translates the ListEntryGateways RPC into a single C1
// lookup, filtered by the capability the given tunnel type requires for
// its entry hop (mirrors gateway.Selector.Select's own kind mapping).
func (d *Dispatcher) ListEntryGateways(tunnelType gateway.TunnelKind) (*gateway.GatewayList, error) {
	kind := gateway.KindMixnetEntry
	if tunnelType == gateway.TunnelWireguard {
		kind = gateway.KindWireguard
	}
	return d.deps.Directory.LookupGateways(kind, gateway.DefaultMinPerformance)
}

// ListExitGateways translates the ListExitGateways RPC.
func (d *Dispatcher) ListExitGateways(tunnelType gateway.TunnelKind) (*gateway.GatewayList, error) {
	kind := gateway.KindMixnetExit
	if tunnelType == gateway.TunnelWireguard {
		kind = gateway.KindWireguard
	}
	return d.deps.Directory.LookupGateways(kind, gateway.DefaultMinPerformance)
}

// StoreAccountMnemonic translates the RPC into a single C3.UpdateMnemonic
// command.
func (d *Dispatcher) StoreAccountMnemonic(ctx context.Context, words string) error {
	if d.deps.Mnemonic != nil && d.deps.Mnemonic.IsStored() {
		return core.NewError(core.KindCredentialAlreadyImported)
	}
	return d.deps.Account.UpdateMnemonic(ctx, words)
}

// IsAccountMnemonicStored answers without going through the command
// mailbox: storage presence is a pure filesystem check, not account
// state C3 owns exclusively.
func (d *Dispatcher) IsAccountMnemonicStored() bool {
	return d.deps.Mnemonic != nil && d.deps.Mnemonic.IsStored()
}

// RemoveAccountMnemonic translates the RPC into a single
// C3.RemoveMnemonic command.
func (d *Dispatcher) RemoveAccountMnemonic(ctx context.Context) (bool, error) {
	wasStored := d.IsAccountMnemonicStored()
	if err := d.deps.Account.RemoveMnemonic(ctx); err != nil {
		return false, err
	}
	return wasStored, nil
}

// GetAccountSummary translates the RPC into a snapshot read of C3's
// shared state cell.
func (d *Dispatcher) GetAccountSummary() account.State {
	return d.deps.Account.State().Get()
}

// WaitForAccountReadyToConnect polls C3's shared state until Ready or
// timeout elapses, returning Timeout immediately when the account isn't
// currently Ready and timeout is zero (§8 boundary behaviour).
func (d *Dispatcher) WaitForAccountReadyToConnect(ctx context.Context, timeout time.Duration) (account.Readiness, error) {
	state := d.deps.Account.State()
	if r := state.Get().IsReadyToConnect(); r == account.Ready {
		return account.Ready, nil
	}
	if timeout <= 0 {
		return "", core.NewError(core.KindTimeout)
	}

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	poll := time.NewTicker(50 * time.Millisecond)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline.C:
			return "", core.NewError(core.KindTimeout)
		case <-poll.C:
			if r := state.Get().IsReadyToConnect(); r == account.Ready {
				return account.Ready, nil
			}
		}
	}
}

// FetchNetworkEnvironment translates the RPC into a single NetworkCache
// read of the named network's cached directory descriptor. The cache is
// not refreshed here: a missing or stale entry (§9 network cache TTLs)
// returns a DirectoryFetch error.
func (d *Dispatcher) FetchNetworkEnvironment(name string, out any) error {
	if d.deps.NetworkCache == nil {
		return fmt.Errorf("no network cache configured")
	}
	fresh, err := d.deps.NetworkCache.LoadNetwork(name, out)
	if err != nil {
		return err
	}
	if !fresh {
		return core.NewError(core.KindDirectoryFetch).WithData("network", name)
	}
	return nil
}

// FetchSystemMessages translates the RPC into a read of the named
// network's cached discovery blob, which carries system_messages (§6
// "gateways endpoint returns ... optional system_messages").
func (d *Dispatcher) FetchSystemMessages(name string, out any) error {
	if d.deps.NetworkCache == nil {
		return fmt.Errorf("no network cache configured")
	}
	fresh, err := d.deps.NetworkCache.LoadDiscovery(out)
	if err != nil {
		return err
	}
	if !fresh {
		return core.NewError(core.KindDirectoryFetch).WithData("network", name)
	}
	return nil
}

// FetchAccountLinks renders the account-management URL for the given
// path/network/locale from the cached env overlay's vpn_api_url entry.
func (d *Dispatcher) FetchAccountLinks(path, name, locale string) (string, error) {
	if d.deps.NetworkCache == nil {
		return "", fmt.Errorf("no network cache configured")
	}
	envs, err := d.deps.NetworkCache.LoadEnvs()
	if err != nil {
		return "", err
	}
	base := envs["vpn_api_url"]
	if base == "" {
		return "", core.NewError(core.KindDirectoryFetch).WithData("network", name)
	}
	return fmt.Sprintf("%s%s?locale=%s", base, path, locale), nil
}

// ListenToStatus subscribes to the connection-monitor broadcast hub. The
// returned cancel func must be called when the subscriber disconnects.
func (d *Dispatcher) ListenToStatus() (<-chan StatusUpdate, func()) {
	return d.status.subscribe()
}

// ListenToStateChanges subscribes to the tunnel-state broadcast hub; a
// subscriber never observes transitions published before it subscribed
// (§8 scenario 6).
func (d *Dispatcher) ListenToStateChanges() (<-chan StateChange, func()) {
	return d.state.subscribe()
}
