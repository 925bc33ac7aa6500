// Package mixnet implements the mixnet session (C4): constructing a
// mixnet client bound to an entry gateway, exposing a cloneable sender
// and an exclusive-lock receiver, and propagating shutdown.
//
// The Sphinx mixnet SDK itself is the out-of-scope black box (§1); Client
// is the interface that SDK would satisfy, with RawClient standing in for
// its concrete session handle.
package mixnet

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// StartupTimeout bounds total client construction + entry-gateway
// handshake time (§4.4: "Timeout after 30 s total startup").
const StartupTimeout = 30 * time.Second

// DebugOpts are the tunable traffic-shape knobs §4.4 lists; both poisson
// and cover traffic default to enabled.
type DebugOpts struct {
	DisablePoissonRate             bool
	DisableBackgroundCoverTraffic  bool
	MinimumMixnodePerformance      uint8
	MinimumGatewayPerformance      uint8
}

// RawClient is the concrete session handle the mixnet SDK would return
// from a successful connect. SendMessage must be safe for concurrent use
// by multiple Sender clones; Recv is not (hence the exclusive lock()).
type RawClient interface {
	SendMessage(recipient string, payload []byte) error
	Recv(ctx context.Context) ([]byte, error)
	SelfAddress() string
	Close() error
}

// Dialer abstracts mixnet client construction so tests can substitute a
// fake without a real Sphinx client.
type Dialer interface {
	Dial(ctx context.Context, entryIdentity string, opts DebugOpts) (RawClient, error)
}

// Sender is the cloneable send half returned by split_sender().
type Sender struct {
	raw RawClient
}

// SendMessage forwards to the underlying client; safe for concurrent use
// from multiple Sender values sharing the same raw client.
func (s Sender) SendMessage(recipient string, payload []byte) error {
	return s.raw.SendMessage(recipient, payload)
}

// Receiver is the exclusive-access receive half returned by lock().
type Receiver struct {
	raw     RawClient
	release func()
}

// Recv blocks for the next inbound mixnet message.
func (r *Receiver) Recv(ctx context.Context) ([]byte, error) {
	return r.raw.Recv(ctx)
}

// Unlock releases exclusive receive access, allowing a future lock() call
// to succeed.
func (r *Receiver) Unlock() {
	if r.release != nil {
		r.release()
		r.release = nil
	}
}

// SharedMixnetClient wraps a RawClient with the split sender (cloneable,
// concurrency-safe) / exclusive receiver shape (§4.4), mirroring the
// netstack device/tnet pair's sync.RWMutex-guarded ownership split
// elsewhere in this tree.
type SharedMixnetClient struct {
	raw RawClient

	mu       sync.Mutex
	receiverLocked bool
}

// Start constructs a mixnet client and connects to entryIdentity.
// keystorePath, if non-empty, must name an existing mnemonic file — a
// missing keystore surfaces as NoValidCredentials rather than silently
// going ephemeral, per §4.4.
func Start(ctx context.Context, dialer Dialer, entryIdentity, keystorePath string, credentialsMode bool, opts DebugOpts, shutdown <-chan struct{}) (*SharedMixnetClient, error) {
	if keystorePath != "" {
		if _, err := os.Stat(keystorePath); err != nil {
			return nil, core.NewError(core.KindNoValidCredentials).WithData("keystore_path", keystorePath)
		}
	}

	startCtx, cancel := context.WithTimeout(ctx, StartupTimeout)
	defer cancel()

	raw, err := dialer.Dial(startCtx, entryIdentity, opts)
	if err != nil {
		if startCtx.Err() != nil {
			return nil, core.NewError(core.KindTimeout).WithData("stage", "mixnet_start")
		}
		return nil, core.Wrap(core.KindGatewayDirectory, fmt.Errorf("entry gateway %s: %w", entryIdentity, err)).
			WithData("gateway_id", entryIdentity)
	}

	client := &SharedMixnetClient{raw: raw}

	if shutdown != nil {
		go func() {
			<-shutdown
			client.Disconnect()
		}()
	}

	return client, nil
}

// SplitSender returns a cloneable sender handle.
func (c *SharedMixnetClient) SplitSender() Sender {
	return Sender{raw: c.raw}
}

// Lock yields the receiver under exclusive access. The returned Receiver
// must have Unlock called exactly once.
func (c *SharedMixnetClient) Lock() (*Receiver, error) {
	c.mu.Lock()
	if c.receiverLocked {
		c.mu.Unlock()
		return nil, fmt.Errorf("mixnet receiver already locked")
	}
	c.receiverLocked = true
	c.mu.Unlock()

	return &Receiver{
		raw: c.raw,
		release: func() {
			c.mu.Lock()
			c.receiverLocked = false
			c.mu.Unlock()
		},
	}, nil
}

// SelfAddress returns our own mixnet address, used by C5/C6 for self-ping
// identification.
func (c *SharedMixnetClient) SelfAddress() string {
	return c.raw.SelfAddress()
}

// Disconnect drains and terminates the underlying client.
func (c *SharedMixnetClient) Disconnect() error {
	return c.raw.Close()
}
