package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/account"
	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/dispatcher"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
	"github.com/nymtech/nym-vpn-core-go/internal/tunnel"
)

// adapter implements Handlers by translating wire messages to and from
// C11's dispatcher.Dispatcher calls. It is the only place in this
// package that knows about domain types.
type adapter struct {
	d *dispatcher.Dispatcher
}

// NewHandlers wraps a Dispatcher as a gRPC Handlers implementation.
func NewHandlers(d *dispatcher.Dispatcher) Handlers {
	return &adapter{d: d}
}

func (a *adapter) Connect(ctx context.Context, req *ConnectRequest) (*ConnectReply, error) {
	settings, err := settingsFromWire(req.Settings)
	if err != nil {
		return &ConnectReply{Outcome: string(dispatcher.ConnectFail), Kind: string(core.KindInternalError), Detail: err.Error()}, nil
	}
	res := a.d.Connect(settings)
	return &ConnectReply{Outcome: string(res.Outcome), Kind: string(res.Kind), Detail: res.Detail}, nil
}

func (a *adapter) Disconnect(ctx context.Context, req *DisconnectRequest) (*DisconnectReply, error) {
	res := a.d.Disconnect()
	return &DisconnectReply{Outcome: string(res.Outcome), Detail: res.Detail}, nil
}

func (a *adapter) Status(ctx context.Context, req *StatusRequest) (*StatusReply, error) {
	st := a.d.Status()
	reply := &StatusReply{
		Phase:     string(st.Phase),
		TunAddrV4: st.TunAddrV4,
		TunAddrV6: st.TunAddrV6,
		Since:     st.Since,
		ErrKind:   string(st.ErrKind),
		ErrData:   st.ErrData,
	}
	if st.Phase == tunnel.PhaseConnected {
		reply.EntryIdentity = st.Entry.IdentityBase58()
		reply.ExitIdentity = st.Exit.IdentityBase58()
	}
	return reply, nil
}

func (a *adapter) Info(ctx context.Context, req *InfoRequest) (*InfoReply, error) {
	info := a.d.Info()
	return &InfoReply{
		Version:   info.Build.Version,
		BuildTS:   info.Build.BuildTS,
		Platform:  info.Build.Platform,
		Triple:    info.Build.Triple,
		GitCommit: info.Build.GitCommit,
		Chain:     info.Network.Chain,
		Endpoints: info.Network.Endpoints,
		Contracts: info.Network.Contracts,
		VpnApiURL: info.VpnApiURL,
	}, nil
}

func (a *adapter) ImportCredential(ctx context.Context, req *ImportCredentialRequest) (*ImportCredentialReply, error) {
	expiry, err := a.d.ImportCredential(req.Raw)
	if err != nil {
		return &ImportCredentialReply{ErrKind: string(core.KindOf(err)), ErrData: dataOf(err)}, nil
	}
	if expiry == nil {
		return &ImportCredentialReply{}, nil
	}
	return &ImportCredentialReply{HasExpiry: true, Expiry: *expiry}, nil
}

func (a *adapter) ListEntryGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error) {
	list, err := a.d.ListEntryGateways(tunnelKindFromWire(req.TunnelType))
	if err != nil {
		return &ListGatewaysReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &ListGatewaysReply{Gateways: gatewaysToWire(list)}, nil
}

func (a *adapter) ListExitGateways(ctx context.Context, req *ListGatewaysRequest) (*ListGatewaysReply, error) {
	list, err := a.d.ListExitGateways(tunnelKindFromWire(req.TunnelType))
	if err != nil {
		return &ListGatewaysReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &ListGatewaysReply{Gateways: gatewaysToWire(list)}, nil
}

func (a *adapter) StoreAccountMnemonic(ctx context.Context, req *StoreAccountMnemonicRequest) (*StoreAccountMnemonicReply, error) {
	if err := a.d.StoreAccountMnemonic(ctx, req.Words); err != nil {
		return &StoreAccountMnemonicReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &StoreAccountMnemonicReply{}, nil
}

func (a *adapter) IsAccountMnemonicStored(ctx context.Context, req *IsAccountMnemonicStoredRequest) (*IsAccountMnemonicStoredReply, error) {
	return &IsAccountMnemonicStoredReply{Stored: a.d.IsAccountMnemonicStored()}, nil
}

func (a *adapter) RemoveAccountMnemonic(ctx context.Context, req *RemoveAccountMnemonicRequest) (*RemoveAccountMnemonicReply, error) {
	wasStored, err := a.d.RemoveAccountMnemonic(ctx)
	if err != nil {
		return &RemoveAccountMnemonicReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &RemoveAccountMnemonicReply{WasStored: wasStored}, nil
}

func (a *adapter) GetAccountSummary(ctx context.Context, req *GetAccountSummaryRequest) (*GetAccountSummaryReply, error) {
	s := a.d.GetAccountSummary()
	return &GetAccountSummaryReply{
		MnemonicStored: s.Mnemonic == account.MnemonicStored,
		Account:        accountRegistrationToWire(s.Account),
		Subscription:   subscriptionToWire(s.Subscription),
		Device:         deviceRegistrationToWire(s.Device),
		Synced:         s.Synced,
		Readiness:      string(s.IsReadyToConnect()),
	}, nil
}

func (a *adapter) WaitForAccountReadyToConnect(ctx context.Context, req *WaitForAccountReadyToConnectRequest) (*WaitForAccountReadyToConnectReply, error) {
	readiness, err := a.d.WaitForAccountReadyToConnect(ctx, time.Duration(req.TimeoutSeconds*float64(time.Second)))
	if err != nil {
		return &WaitForAccountReadyToConnectReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &WaitForAccountReadyToConnectReply{Readiness: string(readiness)}, nil
}

func (a *adapter) FetchNetworkEnvironment(ctx context.Context, req *FetchNetworkEnvironmentRequest) (*FetchNetworkEnvironmentReply, error) {
	var raw map[string]any
	if err := a.d.FetchNetworkEnvironment(req.Name, &raw); err != nil {
		return &FetchNetworkEnvironmentReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &FetchNetworkEnvironmentReply{RawJSON: mustJSON(raw)}, nil
}

func (a *adapter) FetchSystemMessages(ctx context.Context, req *FetchSystemMessagesRequest) (*FetchSystemMessagesReply, error) {
	var raw map[string]any
	if err := a.d.FetchSystemMessages(req.Name, &raw); err != nil {
		return &FetchSystemMessagesReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &FetchSystemMessagesReply{RawJSON: mustJSON(raw)}, nil
}

func (a *adapter) FetchAccountLinks(ctx context.Context, req *FetchAccountLinksRequest) (*FetchAccountLinksReply, error) {
	url, err := a.d.FetchAccountLinks(req.Path, req.Name, req.Locale)
	if err != nil {
		return &FetchAccountLinksReply{ErrKind: string(core.KindOf(err))}, nil
	}
	return &FetchAccountLinksReply{URL: url}, nil
}

func (a *adapter) ListenToStatus(req *ListenToStatusRequest, stream StatusStream) error {
	ch, cancel := a.d.ListenToStatus()
	defer cancel()
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&StatusUpdateWire{Status: u.Status}); err != nil {
				return err
			}
		}
	}
}

func (a *adapter) ListenToStateChanges(req *ListenToStateChangesRequest, stream StateChangeStream) error {
	ch, cancel := a.d.ListenToStateChanges()
	defer cancel()
	for {
		select {
		case <-stream.Context().Done():
			return stream.Context().Err()
		case u, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.Send(&StateChangeWire{
				OldState: u.OldState,
				NewState: u.NewState,
				Since:    u.Since,
				ErrKind:  u.ErrKind,
			}); err != nil {
				return err
			}
		}
	}
}

func settingsFromWire(w SettingsWire) (tunnel.Settings, error) {
	s := tunnel.Settings{
		CredentialsMode: w.CredentialsMode,
		RequestedIPv4:   w.RequestedIPv4,
		RequestedIPv6:   w.RequestedIPv6,
		DNSServers:      w.DNSServers,
	}
	switch w.TunnelType {
	case "wireguard":
		s.TunnelType = gateway.TunnelWireguard
	default:
		s.TunnelType = gateway.TunnelMixnet
	}

	entry, err := entryPointFromWire(w.EntryKind, w.EntryIdentity, w.EntryISOCode)
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("entry point: %w", err)
	}
	s.Entry = entry

	exit, err := exitPointFromWire(w.ExitKind, w.ExitIdentity, w.ExitISOCode, w.ExitRecipient)
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("exit point: %w", err)
	}
	s.Exit = exit

	return s, nil
}

func entryPointFromWire(kind, identity, iso string) (gateway.EntryPoint, error) {
	switch kind {
	case "gateway":
		return gateway.EntryPoint{Kind: gateway.PointGateway, Identity: identity}, nil
	case "location":
		return gateway.EntryPoint{Kind: gateway.PointLocation, ISOCode: iso}, nil
	case "random":
		return gateway.EntryPoint{Kind: gateway.PointRandom}, nil
	case "", "random_low_latency":
		return gateway.EntryPoint{Kind: gateway.PointRandomLowLatency}, nil
	default:
		return gateway.EntryPoint{}, fmt.Errorf("unknown entry kind %q", kind)
	}
}

func exitPointFromWire(kind, identity, iso, recipient string) (gateway.ExitPoint, error) {
	switch kind {
	case "gateway":
		return gateway.ExitPoint{Kind: gateway.PointGateway, Identity: identity}, nil
	case "location":
		return gateway.ExitPoint{Kind: gateway.PointLocation, ISOCode: iso}, nil
	case "random":
		return gateway.ExitPoint{Kind: gateway.PointRandom}, nil
	case "address":
		r, err := gateway.ParseRecipient(recipient)
		if err != nil {
			return gateway.ExitPoint{}, err
		}
		return gateway.ExitPoint{Kind: gateway.PointAddress, Recipient: r}, nil
	case "", "random_low_latency":
		return gateway.ExitPoint{Kind: gateway.PointRandomLowLatency}, nil
	default:
		return gateway.ExitPoint{}, fmt.Errorf("unknown exit kind %q", kind)
	}
}

func tunnelKindFromWire(s string) gateway.TunnelKind {
	if s == "wireguard" {
		return gateway.TunnelWireguard
	}
	return gateway.TunnelMixnet
}

func gatewaysToWire(list *gateway.GatewayList) []GatewayWire {
	if list == nil {
		return nil
	}
	all := list.All()
	out := make([]GatewayWire, 0, len(all))
	for _, g := range all {
		w := GatewayWire{
			IdentityKey:          g.IdentityBase58(),
			Host:                 g.Host,
			MixnetPerformance:    int(g.MixnetPerformance),
			WireguardPerformance: int(g.WireguardPerformance),
		}
		if g.Location != nil {
			w.CountryCode = g.Location.TwoLetterISOCountryCode
			w.Latitude = g.Location.Latitude
			w.Longitude = g.Location.Longitude
		}
		for c := range g.Capabilities {
			w.Capabilities = append(w.Capabilities, string(c))
		}
		out = append(out, w)
	}
	return out
}

func accountRegistrationToWire(s account.AccountRegistration) string {
	switch s {
	case account.AccountActive:
		return "active"
	case account.AccountInactive:
		return "inactive"
	default:
		return "not_registered"
	}
}

func subscriptionToWire(s account.SubscriptionState) string {
	if s == account.SubscriptionSubscribed {
		return "subscribed"
	}
	return "not_subscribed"
}

func deviceRegistrationToWire(s account.DeviceRegistration) string {
	switch s {
	case account.DeviceActive:
		return "active"
	case account.DeviceInactive:
		return "inactive"
	default:
		return "not_registered"
	}
}

// mustJSON marshals v, returning nil on failure rather than propagating a
// marshal error for what is always one of our own already-decoded types.
func mustJSON(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return raw
}

// dataOf extracts the supplementary data map from a typed error.
func dataOf(err error) map[string]string {
	for err != nil {
		if te, ok := err.(*core.Error); ok {
			return te.Data
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return nil
}
