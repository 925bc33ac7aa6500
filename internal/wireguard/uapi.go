// Package wireguard builds the two-hop WireGuard data plane: a netstack
// (userspace) tunnel to the entry gateway, bridged to a kernel-tun-backed
// tunnel to the exit gateway.
package wireguard

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// UAPIPeer is one peer section of a WireGuard UAPI configuration string.
type UAPIPeer struct {
	PublicKey                   [32]byte
	Endpoint                    string
	AllowedIPs                  []string
	PersistentKeepaliveInterval int
}

// UAPIConfig is the subset of the cross-platform userspace-api(7) config
// format this tunnel needs: a single private key, optional listen port,
// and a replace-peers peer list. BuildUAPIConfig/ParseUAPIConfig round-trip
// every field this type carries.
type UAPIConfig struct {
	PrivateKey   [32]byte
	ListenPort   int
	ReplacePeers bool
	Peers        []UAPIPeer
}

// BuildUAPIConfig renders cfg as a device.IpcSet-compatible configuration
// string (generalizes the buildIPC helpers of the reference userspace and
// bridge WireGuard wrappers).
func BuildUAPIConfig(cfg UAPIConfig) string {
	var b strings.Builder
	fmt.Fprintf(&b, "private_key=%s\n", hex.EncodeToString(cfg.PrivateKey[:]))
	if cfg.ListenPort != 0 {
		fmt.Fprintf(&b, "listen_port=%d\n", cfg.ListenPort)
	}
	if cfg.ReplacePeers {
		fmt.Fprintf(&b, "replace_peers=true\n")
	}
	for _, p := range cfg.Peers {
		fmt.Fprintf(&b, "public_key=%s\n", hex.EncodeToString(p.PublicKey[:]))
		if p.Endpoint != "" {
			fmt.Fprintf(&b, "endpoint=%s\n", p.Endpoint)
		}
		for _, a := range p.AllowedIPs {
			fmt.Fprintf(&b, "allowed_ip=%s\n", a)
		}
		if p.PersistentKeepaliveInterval != 0 {
			fmt.Fprintf(&b, "persistent_keepalive_interval=%d\n", p.PersistentKeepaliveInterval)
		}
	}
	return b.String()
}

// ParseUAPIConfig parses a string produced by BuildUAPIConfig (or an
// equivalent UAPI get/set dump) back into a UAPIConfig. A new "public_key="
// line starts a new peer section.
func ParseUAPIConfig(s string) (UAPIConfig, error) {
	var cfg UAPIConfig
	var peer *UAPIPeer

	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			return UAPIConfig{}, fmt.Errorf("malformed uapi line %q", line)
		}

		switch key {
		case "private_key":
			raw, err := hex.DecodeString(value)
			if err != nil || len(raw) != 32 {
				return UAPIConfig{}, fmt.Errorf("invalid private_key: %w", err)
			}
			copy(cfg.PrivateKey[:], raw)
		case "listen_port":
			port, err := strconv.Atoi(value)
			if err != nil {
				return UAPIConfig{}, fmt.Errorf("invalid listen_port: %w", err)
			}
			cfg.ListenPort = port
		case "replace_peers":
			cfg.ReplacePeers = value == "true"
		case "public_key":
			raw, err := hex.DecodeString(value)
			if err != nil || len(raw) != 32 {
				return UAPIConfig{}, fmt.Errorf("invalid public_key: %w", err)
			}
			cfg.Peers = append(cfg.Peers, UAPIPeer{})
			peer = &cfg.Peers[len(cfg.Peers)-1]
			copy(peer.PublicKey[:], raw)
		case "endpoint":
			if peer == nil {
				return UAPIConfig{}, fmt.Errorf("endpoint before public_key")
			}
			peer.Endpoint = value
		case "allowed_ip":
			if peer == nil {
				return UAPIConfig{}, fmt.Errorf("allowed_ip before public_key")
			}
			peer.AllowedIPs = append(peer.AllowedIPs, value)
		case "persistent_keepalive_interval":
			if peer == nil {
				return UAPIConfig{}, fmt.Errorf("persistent_keepalive_interval before public_key")
			}
			n, err := strconv.Atoi(value)
			if err != nil {
				return UAPIConfig{}, fmt.Errorf("invalid persistent_keepalive_interval: %w", err)
			}
			peer.PersistentKeepaliveInterval = n
		default:
			// Unknown keys (e.g. runtime stats lines from a get dump) are
			// tolerated and dropped; they don't round-trip but don't fail.
		}
	}

	return cfg, nil
}
