// Package gateway implements the gateway directory (C1): fetching,
// caching and selecting mixnet/WireGuard gateway descriptors, plus the
// latency-based probing policy (C2) used during RandomLowLatency
// selection.
package gateway

import (
	"fmt"
	"strings"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// Capability is a service a gateway advertises.
type Capability string

const (
	CapMixnetEntry   Capability = "MixnetEntry"
	CapMixnetExit    Capability = "MixnetExit"
	CapWireguard     Capability = "Wireguard"
	CapAuthenticator Capability = "Authenticator"
)

// Location is a gateway's advertised geographic position.
type Location struct {
	TwoLetterISOCountryCode string
	Latitude                float64
	Longitude               float64
}

// EntryProbeOutcome is the as-entry half of a gateway's last probe report.
type EntryProbeOutcome struct {
	CanConnect bool
	CanRoute   bool
}

// ExitProbeOutcome is the as-exit half of a gateway's last probe report.
type ExitProbeOutcome struct {
	CanConnect          bool
	CanRouteV4          bool
	CanRouteExternalV4  bool
	CanRouteV6          bool
	CanRouteExternalV6  bool
}

// ProbeOutcome is the last reachability probe recorded for a gateway.
type ProbeOutcome struct {
	AsEntry EntryProbeOutcome
	AsExit  ExitProbeOutcome
}

// Gateway is a single directory entry (§3).
type Gateway struct {
	// Identity is the gateway's 32-byte Ed25519 public key.
	Identity [32]byte

	Location *Location // nil if undisclosed

	Host string // hostname or literal IP

	WireguardEndpoint  string // host:port, empty if not Wireguard-capable
	WireguardPublicKey [32]byte

	IPPacketRouterAddress *Recipient // nil unless the gateway runs an IPR

	Capabilities map[Capability]struct{}

	MixnetPerformance   uint8 // 0-100
	WireguardPerformance uint8 // 0-100

	Probe *ProbeOutcome // nil if never probed
}

// IdentityBase58 renders the gateway's identity key the way the directory
// wire format and RPC surface both use (base58, see §6).
func (g Gateway) IdentityBase58() string {
	return core.Base58Encode(g.Identity[:])
}

// HasCapability reports whether the gateway advertises the given capability.
func (g Gateway) HasCapability(c Capability) bool {
	_, ok := g.Capabilities[c]
	return ok
}

// ISOCode returns the gateway's country code, or "" if location is unknown.
func (g Gateway) ISOCode() string {
	if g.Location == nil {
		return ""
	}
	return g.Location.TwoLetterISOCountryCode
}

// GatewayList is an ordered set of Gateway keyed by identity (§3 invariant
// (a): identities unique).
type GatewayList struct {
	order []string // identity base58, insertion order
	byID  map[string]*Gateway
}

// NewGatewayList builds a GatewayList from a slice, de-duplicating by
// identity (last write wins, matching a map-backed join).
func NewGatewayList(gateways []Gateway) *GatewayList {
	gl := &GatewayList{byID: make(map[string]*Gateway, len(gateways))}
	for i := range gateways {
		g := gateways[i]
		id := g.IdentityBase58()
		if _, exists := gl.byID[id]; !exists {
			gl.order = append(gl.order, id)
		}
		gl.byID[id] = &g
	}
	return gl
}

// Len returns the number of gateways in the list.
func (gl *GatewayList) Len() int { return len(gl.order) }

// All returns a snapshot copy of every gateway, in insertion order.
func (gl *GatewayList) All() []Gateway {
	out := make([]Gateway, 0, len(gl.order))
	for _, id := range gl.order {
		out = append(out, *gl.byID[id])
	}
	return out
}

// GatewayWithIdentity returns an exact match by identity, or false.
func (gl *GatewayList) GatewayWithIdentity(identityBase58 string) (Gateway, bool) {
	g, ok := gl.byID[identityBase58]
	if !ok {
		return Gateway{}, false
	}
	return *g, true
}

// RandomGatewayLocatedAt returns a uniformly random gateway whose location
// matches the given ISO-2 code, or false if none match (§4.1 invariant b).
func (gl *GatewayList) RandomGatewayLocatedAt(isoCode string, rnd func(n int) int) (Gateway, bool) {
	var matches []Gateway
	for _, id := range gl.order {
		g := gl.byID[id]
		if g.ISOCode() == isoCode {
			matches = append(matches, *g)
		}
	}
	if len(matches) == 0 {
		return Gateway{}, false
	}
	return matches[rnd(len(matches))], true
}

// RandomGateway returns a uniformly random gateway from the whole list.
func (gl *GatewayList) RandomGateway(rnd func(n int) int) (Gateway, bool) {
	if len(gl.order) == 0 {
		return Gateway{}, false
	}
	id := gl.order[rnd(len(gl.order))]
	return *gl.byID[id], true
}

// RemoveGateway returns a new list with the given gateway removed,
// preserving the order of the remaining entries (§3 invariant c).
func (gl *GatewayList) RemoveGateway(identityBase58 string) *GatewayList {
	out := &GatewayList{byID: make(map[string]*Gateway, len(gl.byID))}
	for _, id := range gl.order {
		if id == identityBase58 {
			continue
		}
		g := *gl.byID[id]
		out.order = append(out.order, id)
		out.byID[id] = &g
	}
	return out
}

// AllISOCodes returns the unique country codes present in the list.
func (gl *GatewayList) AllISOCodes() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, id := range gl.order {
		code := gl.byID[id].ISOCode()
		if code == "" {
			continue
		}
		if _, ok := seen[code]; !ok {
			seen[code] = struct{}{}
			out = append(out, code)
		}
	}
	return out
}

// EntryPointKind tags the variant of an EntryPoint/ExitPoint.
type EntryPointKind int

const (
	PointGateway EntryPointKind = iota
	PointLocation
	PointRandomLowLatency
	PointRandom
	PointAddress // exit-only (§4.1: "Address is invalid as an entry")
)

// EntryPoint selects the gateway a tunnel enters through.
type EntryPoint struct {
	Kind     EntryPointKind
	Identity string // PointGateway
	ISOCode  string // PointLocation
}

// ExitPoint selects the gateway (or mixnet address) a tunnel exits
// through. Unlike EntryPoint it additionally supports PointAddress.
type ExitPoint struct {
	Kind      EntryPointKind
	Identity  string    // PointGateway
	ISOCode   string    // PointLocation
	Recipient Recipient // PointAddress
}

// Recipient is a mixnet address: (user_pubkey, user_encryption_key,
// gateway_identity), serialised as base58 with '.' and '@' separators
// (§3). Example: "<pub>.<enc>@<gw>".
type Recipient struct {
	UserPubKey       [32]byte
	UserEncryptionKey [32]byte
	GatewayIdentity  [32]byte
}

// String renders the recipient in its canonical wire form.
func (r Recipient) String() string {
	return fmt.Sprintf("%s.%s@%s",
		core.Base58Encode(r.UserPubKey[:]),
		core.Base58Encode(r.UserEncryptionKey[:]),
		core.Base58Encode(r.GatewayIdentity[:]),
	)
}

// ParseRecipient parses the canonical "<pub>.<enc>@<gw>" triple. Parsing
// fails on malformed input (§3, round-tripped in §8).
func ParseRecipient(s string) (Recipient, error) {
	at := strings.LastIndexByte(s, '@')
	if at < 0 {
		return Recipient{}, fmt.Errorf("recipient %q: missing '@' separator", s)
	}
	head, gwPart := s[:at], s[at+1:]

	dot := strings.IndexByte(head, '.')
	if dot < 0 {
		return Recipient{}, fmt.Errorf("recipient %q: missing '.' separator", s)
	}
	pubPart, encPart := head[:dot], head[dot+1:]

	var r Recipient
	var err error
	if r.UserPubKey, err = decode32(pubPart); err != nil {
		return Recipient{}, fmt.Errorf("recipient %q: user pubkey: %w", s, err)
	}
	if r.UserEncryptionKey, err = decode32(encPart); err != nil {
		return Recipient{}, fmt.Errorf("recipient %q: user encryption key: %w", s, err)
	}
	if r.GatewayIdentity, err = decode32(gwPart); err != nil {
		return Recipient{}, fmt.Errorf("recipient %q: gateway identity: %w", s, err)
	}
	return r, nil
}

func decode32(s string) ([32]byte, error) {
	var out [32]byte
	b := core.Base58Decode(s)
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
