package wireguard

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/mixnet"
)

// AuthenticateTimeout bounds the whole Initial -> Registered exchange for
// one gateway (§4.7 step 1-2).
const AuthenticateTimeout = 10 * time.Second

type authKind string

const (
	authInitial            authKind = "Initial"
	authPendingRegistration authKind = "PendingRegistration"
	authFinal              authKind = "Final"
	authRegistered         authKind = "Registered"
)

type authMessage struct {
	Kind authKind `json:"kind"`

	// Initial
	ClientPublicKey string `json:"client_public_key,omitempty"`

	// PendingRegistration
	Nonce         uint64 `json:"nonce,omitempty"`
	GatewayPublic string `json:"gateway_public_key,omitempty"`
	GatewayIP     string `json:"gateway_ip,omitempty"`
	WgPort        int    `json:"wg_port,omitempty"`

	// Final
	AssignedIPv4 string `json:"assigned_ipv4,omitempty"`
	AssignedIPv6 string `json:"assigned_ipv6,omitempty"`
	Credential   []byte `json:"credential,omitempty"`

	// Registered (echoes the assignment back so both sides agree)
	PeerPublicKey string `json:"peer_public_key,omitempty"`
}

// Registration is the result of a completed authenticator handshake with
// one gateway: the ephemeral keypair this tunnel hop will use, and what the
// gateway assigned to it.
type Registration struct {
	LocalPrivateKey wgtypes.Key
	LocalPublicKey  wgtypes.Key
	PeerPublicKey   [32]byte
	AssignedIPv4    string
	AssignedIPv6    string
	WgPort          int
}

// Authenticate runs the mixnet-transported authenticator handshake against
// gatewayAddress: Initial{pub_key} -> PendingRegistration{nonce,
// gateway_data} -> (verify) -> Final{GatewayClient, credential} ->
// Registered{assigned_ip, wg_port, peer_public_key} (§4.7 step 1-2).
// credential may be nil when the gateway's authenticator does not require
// bandwidth accounting.
func Authenticate(ctx context.Context, sender mixnet.Sender, recv *mixnet.Receiver, gatewayAddress string, credential []byte) (*Registration, error) {
	priv, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate ephemeral wireguard key: %w", err)
	}
	pub := priv.PublicKey()

	authCtx, cancel := context.WithTimeout(ctx, AuthenticateTimeout)
	defer cancel()

	initial := authMessage{Kind: authInitial, ClientPublicKey: hex.EncodeToString(pub[:])}
	if err := sendAuth(sender, gatewayAddress, initial); err != nil {
		return nil, err
	}

	pending, err := awaitAuth(authCtx, recv, authPendingRegistration)
	if err != nil {
		return nil, err
	}

	gatewayPub, err := hex.DecodeString(pending.GatewayPublic)
	if err != nil || len(gatewayPub) != 32 {
		return nil, core.NewError(core.KindAuthenticationNotPossible).WithData("stage", "authenticator_pending_registration")
	}

	final := authMessage{
		Kind:         authFinal,
		Nonce:        pending.Nonce,
		AssignedIPv4: pending.GatewayIP,
		Credential:   credential,
	}
	if err := sendAuth(sender, gatewayAddress, final); err != nil {
		return nil, err
	}

	registered, err := awaitAuth(authCtx, recv, authRegistered)
	if err != nil {
		return nil, err
	}

	peerPub, err := hex.DecodeString(registered.PeerPublicKey)
	if err != nil || len(peerPub) != 32 {
		return nil, core.NewError(core.KindAuthenticationNotPossible).WithData("stage", "authenticator_registered")
	}

	reg := &Registration{
		LocalPrivateKey: priv,
		LocalPublicKey:  pub,
		AssignedIPv4:    registered.AssignedIPv4,
		AssignedIPv6:    registered.AssignedIPv6,
		WgPort:          registered.WgPort,
	}
	copy(reg.PeerPublicKey[:], peerPub)
	return reg, nil
}

func sendAuth(sender mixnet.Sender, address string, msg authMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal authenticator message: %w", err)
	}
	return sender.SendMessage(address, raw)
}

// awaitAuth drains recv until it sees a message of the expected kind,
// discarding anything else (mirrors the IPR client's per-kind waiter
// pattern, collapsed here since a handshake has exactly one outstanding
// expectation at a time).
func awaitAuth(ctx context.Context, recv *mixnet.Receiver, want authKind) (authMessage, error) {
	for {
		raw, err := recv.Recv(ctx)
		if err != nil {
			return authMessage{}, err
		}
		var msg authMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		if msg.Kind != want {
			continue
		}
		return msg, nil
	}
}
