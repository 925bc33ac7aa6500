// Package tunnel implements the tunnel state machine (C9): the sole
// mutator of TunnelState, consuming commands from C11 and driving the
// Connect pipeline across C1, C3, C4/C7, C5, C6 and C8 (§4.9).
package tunnel

import (
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
)

// Phase is one of the five TunnelState variants (§3).
type Phase string

const (
	PhaseDisconnected  Phase = "Disconnected"
	PhaseConnecting    Phase = "Connecting"
	PhaseConnected     Phase = "Connected"
	PhaseDisconnecting Phase = "Disconnecting"
	PhaseError         Phase = "Error"
)

// State is a snapshot of TunnelState (§3). Entry/Exit/TunAddrV4/TunAddrV6/
// Since are only meaningful in PhaseConnected; ErrKind only in PhaseError.
type State struct {
	Phase Phase

	Entry gateway.Gateway
	Exit  gateway.Gateway

	TunAddrV4 string
	TunAddrV6 string
	Since     time.Time

	ErrKind core.Kind
	ErrData map[string]string
}

// Settings mirrors §3's TunnelSettings.
type Settings struct {
	TunnelType      gateway.TunnelKind
	CredentialsMode bool
	Entry           gateway.EntryPoint
	Exit            gateway.ExitPoint
	RequestedIPv4   string
	RequestedIPv6   string
	DNSServers      []string
}
