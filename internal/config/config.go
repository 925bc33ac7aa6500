// Package config loads and persists the daemon's YAML configuration:
// Load/Save/Get plus hot-reload publishing EventConfigReloaded, covering
// daemon-level settings and TunnelSettings (§3).
package config

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
	"github.com/nymtech/nym-vpn-core-go/internal/tunnel"
)

// Daemon holds process-wide settings: where state lives, how much to
// log, and which gateway directory to query.
type Daemon struct {
	DataDir                string         `yaml:"data_dir"`
	Logging                core.LogConfig `yaml:"logging,omitempty"`
	GatewayDirectoryURL     string         `yaml:"gateway_directory_url,omitempty"`
	MinGatewayPerformance   int            `yaml:"min_gateway_performance,omitempty"`
	IdleGracePeriodSeconds  int            `yaml:"idle_grace_period_seconds,omitempty"`
}

// TunnelSettings is the YAML mirror of tunnel.Settings (§3), using the
// same string kind conventions as the wire codec
// (internal/dispatcher/rpc) so a saved config round-trips identically to
// an RPC-submitted Connect request.
type TunnelSettings struct {
	TunnelType      string   `yaml:"tunnel_type,omitempty"` // "mixnet" | "wireguard"
	CredentialsMode bool     `yaml:"credentials_mode,omitempty"`
	EntryKind       string   `yaml:"entry_kind,omitempty"`
	EntryIdentity   string   `yaml:"entry_identity,omitempty"`
	EntryISOCode    string   `yaml:"entry_iso_code,omitempty"`
	ExitKind        string   `yaml:"exit_kind,omitempty"`
	ExitIdentity    string   `yaml:"exit_identity,omitempty"`
	ExitISOCode     string   `yaml:"exit_iso_code,omitempty"`
	ExitRecipient   string   `yaml:"exit_recipient,omitempty"`
	RequestedIPv4   string   `yaml:"requested_ipv4,omitempty"`
	RequestedIPv6   string   `yaml:"requested_ipv6,omitempty"`
	DNSServers      []string `yaml:"dns_servers,omitempty"`
}

// Config is the top-level YAML document.
type Config struct {
	Daemon Daemon         `yaml:"daemon"`
	Tunnel TunnelSettings `yaml:"tunnel,omitempty"`
}

// defaultConfig returns an empty but valid configuration, filled in with
// conservative defaults.
func defaultConfig() Config {
	return Config{
		Daemon: Daemon{
			MinGatewayPerformance:  gateway.DefaultMinPerformance,
			IdleGracePeriodSeconds: 300,
		},
	}
}

// Manager handles loading, saving, and hot-reloading the daemon's
// configuration file, publishing EventConfigReloaded on reload.
type Manager struct {
	mu       sync.RWMutex
	config   Config
	filePath string
	bus      *core.EventBus
}

// NewManager creates a config manager reading from filePath.
func NewManager(filePath string, bus *core.EventBus) *Manager {
	return &Manager{filePath: filePath, bus: bus}
}

// Load reads and parses the configuration from disk, creating one with
// default values if the file does not exist.
func (m *Manager) Load() error {
	data, err := os.ReadFile(m.filePath)
	if err != nil {
		if os.IsNotExist(err) {
			core.Log.Infof("config", "%s not found, creating default config", m.filePath)
			m.mu.Lock()
			m.config = defaultConfig()
			m.mu.Unlock()
			if saveErr := m.Save(); saveErr != nil {
				return fmt.Errorf("create default config: %w", saveErr)
			}
			return nil
		}
		return fmt.Errorf("read config %s: %w", m.filePath, err)
	}

	cfg := defaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(core.Event{Type: core.EventConfigReloaded})
	}

	return nil
}

// Save writes the current configuration to disk.
func (m *Manager) Save() error {
	m.mu.RLock()
	data, err := yaml.Marshal(&m.config)
	m.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(m.filePath, data, 0644); err != nil {
		return fmt.Errorf("write config %s: %w", m.filePath, err)
	}

	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// SetTunnel replaces the persisted default tunnel settings, used when
// the CLI/GUI asks the daemon to remember the last-used Connect
// settings.
func (m *Manager) SetTunnel(t TunnelSettings) {
	m.mu.Lock()
	m.config.Tunnel = t
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(core.Event{Type: core.EventConfigReloaded})
	}
}

// ToSettings converts the persisted TunnelSettings into a tunnel.Settings,
// the same conversion internal/dispatcher/rpc's adapter applies to an
// RPC-submitted SettingsWire.
func (t TunnelSettings) ToSettings() (tunnel.Settings, error) {
	s := tunnel.Settings{
		CredentialsMode: t.CredentialsMode,
		RequestedIPv4:   t.RequestedIPv4,
		RequestedIPv6:   t.RequestedIPv6,
		DNSServers:      t.DNSServers,
	}
	if t.TunnelType == "wireguard" {
		s.TunnelType = gateway.TunnelWireguard
	} else {
		s.TunnelType = gateway.TunnelMixnet
	}

	entry, err := entryPointFromConfig(t.EntryKind, t.EntryIdentity, t.EntryISOCode)
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("entry point: %w", err)
	}
	s.Entry = entry

	exit, err := exitPointFromConfig(t.ExitKind, t.ExitIdentity, t.ExitISOCode, t.ExitRecipient)
	if err != nil {
		return tunnel.Settings{}, fmt.Errorf("exit point: %w", err)
	}
	s.Exit = exit

	return s, nil
}

func entryPointFromConfig(kind, identity, iso string) (gateway.EntryPoint, error) {
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

func exitPointFromConfig(kind, identity, iso, recipient string) (gateway.ExitPoint, error) {
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
