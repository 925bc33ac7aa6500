package rpc

import "time"

// SettingsWire mirrors tunnel.Settings over the wire (§3 TunnelSettings).
type SettingsWire struct {
	TunnelType      string `json:"tunnel_type"` // "mixnet" | "wireguard"
	CredentialsMode bool   `json:"credentials_mode"`

	EntryKind     string `json:"entry_kind"` // "gateway" | "location" | "random_low_latency" | "random"
	EntryIdentity string `json:"entry_identity,omitempty"`
	EntryISOCode  string `json:"entry_iso_code,omitempty"`

	ExitKind      string `json:"exit_kind"`
	ExitIdentity  string `json:"exit_identity,omitempty"`
	ExitISOCode   string `json:"exit_iso_code,omitempty"`
	ExitRecipient string `json:"exit_recipient,omitempty"` // PointAddress, canonical Recipient string

	RequestedIPv4 string   `json:"requested_ipv4,omitempty"`
	RequestedIPv6 string   `json:"requested_ipv6,omitempty"`
	DNSServers    []string `json:"dns_servers,omitempty"`
}

// ConnectRequest/ConnectReply implement Connect(settings) → {Success |
// Fail{kind, detail}} (§6).
type ConnectRequest struct {
	Settings SettingsWire `json:"settings"`
}

type ConnectReply struct {
	Outcome string `json:"outcome"`
	Kind    string `json:"kind,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

// DisconnectRequest/DisconnectReply implement Disconnect →
// {Success|NotRunning|Fail} (§6).
type DisconnectRequest struct{}

type DisconnectReply struct {
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

// StatusRequest/StatusReply implement Status → TunnelState (§6, §3).
type StatusRequest struct{}

type StatusReply struct {
	Phase string `json:"phase"`

	EntryIdentity string `json:"entry_identity,omitempty"`
	ExitIdentity  string `json:"exit_identity,omitempty"`

	TunAddrV4 string    `json:"tun_addr_v4,omitempty"`
	TunAddrV6 string    `json:"tun_addr_v6,omitempty"`
	Since     time.Time `json:"since,omitempty"`

	ErrKind string            `json:"err_kind,omitempty"`
	ErrData map[string]string `json:"err_data,omitempty"`
}

// InfoRequest/InfoReply implement Info → {version, build_ts, platform,
// triple, git_commit, network, vpn_api_url} (§6).
type InfoRequest struct{}

type InfoReply struct {
	Version   string            `json:"version"`
	BuildTS   string            `json:"build_ts"`
	Platform  string            `json:"platform"`
	Triple    string            `json:"triple"`
	GitCommit string            `json:"git_commit"`
	Chain     string            `json:"chain"`
	Endpoints map[string]string `json:"endpoints"`
	Contracts map[string]string `json:"contracts"`
	VpnApiURL string            `json:"vpn_api_url"`
}

// ImportCredentialRequest/ImportCredentialReply implement
// ImportCredential(raw) → {expiry? | Error{kind, data}} (§6).
type ImportCredentialRequest struct {
	Raw []byte `json:"raw"`
}

type ImportCredentialReply struct {
	HasExpiry bool              `json:"has_expiry"`
	Expiry    time.Time         `json:"expiry,omitempty"`
	ErrKind   string            `json:"err_kind,omitempty"`
	ErrData   map[string]string `json:"err_data,omitempty"`
}

// GatewayWire is one directory entry as rendered over the wire (§6
// "gateways endpoint returns ... identity_key, optional location{...},
// optional last_probe{...}").
type GatewayWire struct {
	IdentityKey          string   `json:"identity_key"`
	Host                 string   `json:"host"`
	CountryCode          string   `json:"two_letter_iso_country_code,omitempty"`
	Latitude             float64  `json:"latitude,omitempty"`
	Longitude            float64  `json:"longitude,omitempty"`
	MixnetPerformance    int      `json:"mixnet_performance"`
	WireguardPerformance int      `json:"wireguard_performance"`
	Capabilities         []string `json:"capabilities,omitempty"`
}

// ListGatewaysRequest/ListGatewaysReply implement both ListEntryGateways()
// and ListExitGateways() (§6); the request's TunnelType selects which
// capability-filtered view to return, mirroring gateway.Selector's own
// mixnet/wireguard kind split.
type ListGatewaysRequest struct {
	TunnelType string `json:"tunnel_type"`
}

type ListGatewaysReply struct {
	Gateways []GatewayWire `json:"gateways"`
	ErrKind  string        `json:"err_kind,omitempty"`
}

// StoreAccountMnemonicRequest/Reply implement StoreAccountMnemonic(str)
// (§6).
type StoreAccountMnemonicRequest struct {
	Words string `json:"words"`
}

type StoreAccountMnemonicReply struct {
	ErrKind string `json:"err_kind,omitempty"`
}

// IsAccountMnemonicStoredRequest/Reply implement
// IsAccountMnemonicStored() → bool (§6).
type IsAccountMnemonicStoredRequest struct{}

type IsAccountMnemonicStoredReply struct {
	Stored bool `json:"stored"`
}

// RemoveAccountMnemonicRequest/Reply implement RemoveAccountMnemonic() →
// bool (§6).
type RemoveAccountMnemonicRequest struct{}

type RemoveAccountMnemonicReply struct {
	WasStored bool   `json:"was_stored"`
	ErrKind   string `json:"err_kind,omitempty"`
}

// GetAccountSummaryRequest/Reply implement GetAccountSummary() →
// AccountStateSummary (§6, §3 AccountState).
type GetAccountSummaryRequest struct{}

type GetAccountSummaryReply struct {
	MnemonicStored bool   `json:"mnemonic_stored"`
	Account        string `json:"account"`
	Subscription   string `json:"subscription"`
	Device         string `json:"device"`
	Synced         bool   `json:"synced"`
	Readiness      string `json:"readiness"`
}

// WaitForAccountReadyToConnectRequest/Reply implement
// WaitForAccountReadyToConnect(timeout_s) (§4.11, §8).
type WaitForAccountReadyToConnectRequest struct {
	TimeoutSeconds float64 `json:"timeout_seconds"`
}

type WaitForAccountReadyToConnectReply struct {
	Readiness string `json:"readiness,omitempty"`
	ErrKind   string `json:"err_kind,omitempty"`
}

// FetchNetworkEnvironmentRequest/Reply implement
// FetchNetworkEnvironment(name) (§6).
type FetchNetworkEnvironmentRequest struct {
	Name string `json:"name"`
}

type FetchNetworkEnvironmentReply struct {
	RawJSON []byte `json:"raw_json,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
}

// FetchSystemMessagesRequest/Reply implement FetchSystemMessages(name)
// (§6).
type FetchSystemMessagesRequest struct {
	Name string `json:"name"`
}

type FetchSystemMessagesReply struct {
	RawJSON []byte `json:"raw_json,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
}

// FetchAccountLinksRequest/Reply implement
// FetchAccountLinks(path, name, locale) (§6).
type FetchAccountLinksRequest struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Locale string `json:"locale"`
}

type FetchAccountLinksReply struct {
	URL     string `json:"url,omitempty"`
	ErrKind string `json:"err_kind,omitempty"`
}

// ListenToStatusRequest has no fields; the reply stream carries one
// StatusUpdateWire per connection-monitor transition (§4.11 streaming
// subscription "ListenToStatus").
type ListenToStatusRequest struct{}

type StatusUpdateWire struct {
	Status string `json:"status"`
}

// ListenToStateChangesRequest has no fields; the reply stream carries one
// StateChangeWire per C9 transition, with no replay of events preceding
// the subscription (§8 scenario 6).
type ListenToStateChangesRequest struct{}

type StateChangeWire struct {
	OldState string    `json:"old_state"`
	NewState string    `json:"new_state"`
	Since    time.Time `json:"since,omitempty"`
	ErrKind  string    `json:"err_kind,omitempty"`
}
