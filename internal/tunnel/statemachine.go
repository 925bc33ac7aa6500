package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/gateway"
)

// Controller is the sole mutator of tunnel state (C9): a mutex-guarded
// phase plus a pair of cancel/done handles for whichever async pipeline
// run is currently in flight, mirroring the daemon controller's
// idle/activating/active/deactivating shape generalized to the full
// five-phase TunnelState sum type.
type Controller struct {
	mu sync.Mutex

	phase    Phase
	settings Settings
	entry    gateway.Gateway
	exit     gateway.Gateway
	tunV4    string
	tunV6    string
	since    time.Time
	errKind  core.Kind
	errData  map[string]string

	current *ConnectedTunnel

	connectCancel context.CancelFunc
	runDone       chan struct{}

	deps Deps
	bus  *core.EventBus
}

// NewController constructs a Controller in PhaseDisconnected.
func NewController(deps Deps, bus *core.EventBus) *Controller {
	return &Controller{
		phase: PhaseDisconnected,
		deps:  deps,
		bus:   bus,
	}
}

// State returns a snapshot of the current tunnel state (§3).
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return State{
		Phase:     c.phase,
		Entry:     c.entry,
		Exit:      c.exit,
		TunAddrV4: c.tunV4,
		TunAddrV6: c.tunV6,
		Since:     c.since,
		ErrKind:   c.errKind,
		ErrData:   c.errData,
	}
}

// Connect starts the pipeline asynchronously, transitioning Disconnected or
// Error -> Connecting immediately and Connecting -> Connected/Error once
// the pipeline returns (§4.9 states/transitions table). Connect itself
// returns as soon as the transition to Connecting is recorded; callers
// observe the eventual outcome via State() or the event bus.
func (c *Controller) Connect(settings Settings) error {
	c.mu.Lock()
	if c.phase != PhaseDisconnected && c.phase != PhaseError {
		cur := c.phase
		c.mu.Unlock()
		return fmt.Errorf("cannot connect: current state is %s", cur)
	}

	old := c.phase
	c.phase = PhaseConnecting
	c.settings = settings
	c.errKind = ""
	c.errData = nil

	ctx, cancel := context.WithCancel(context.Background())
	c.connectCancel = cancel
	done := make(chan struct{})
	c.runDone = done
	c.mu.Unlock()

	c.publish(old, PhaseConnecting)

	go c.runConnect(ctx, settings, done)

	return nil
}

func (c *Controller) runConnect(ctx context.Context, settings Settings, done chan struct{}) {
	defer close(done)

	ct, err := Connect(ctx, c.deps, settings)

	c.mu.Lock()
	// A Disconnect that arrived mid-connect already moved us out of
	// Connecting; don't clobber its transition with this goroutine's
	// late-arriving outcome (§4.9: "Connecting -> Disconnecting on
	// Disconnect, pipeline abandoned rather than raced").
	if c.phase != PhaseConnecting {
		c.mu.Unlock()
		if ct != nil {
			ct.Close()
		}
		return
	}

	old := c.phase
	if err != nil {
		c.phase = PhaseError
		c.errKind = core.KindOf(err)
		c.errData = dataOf(err)
		c.mu.Unlock()
		c.publish(old, PhaseError)
		return
	}

	c.phase = PhaseConnected
	c.current = ct
	c.entry = ct.Entry
	c.exit = ct.Exit
	c.tunV4 = ct.TunAddrV4
	c.tunV6 = ct.TunAddrV6
	c.since = time.Now()
	c.mu.Unlock()
	c.publish(old, PhaseConnected)

	go c.watchFatal(ct)
}

// watchFatal observes a Connected tunnel's Fatal channel and drives the
// Connected -> Disconnecting -> Disconnected transition on a steady-state
// failure from C4/C5/C7 (§4.9). Close() on an ordinarily-disconnected
// tunnel also closes Fatal, which simply unblocks this goroutine with
// ok == false and no action taken.
func (c *Controller) watchFatal(ct *ConnectedTunnel) {
	cause, ok := <-ct.Fatal
	if !ok {
		return
	}
	c.teardownConnected(ct, cause)
}

// teardownConnected runs the Connected -> Disconnecting -> Disconnected
// sequence, recording cause (if any) as the Disconnecting reason. A nil
// cause is an ordinary Disconnect; a non-nil cause is a fatal error from a
// background component. No-ops if ct is no longer the live tunnel (e.g. an
// ordinary Disconnect already raced ahead of a fatal report).
func (c *Controller) teardownConnected(ct *ConnectedTunnel, cause error) {
	c.mu.Lock()
	if c.phase != PhaseConnected || c.current != ct {
		c.mu.Unlock()
		return
	}
	old := c.phase
	c.phase = PhaseDisconnecting
	c.current = nil
	if cause != nil {
		c.errKind = core.KindOf(cause)
		c.errData = dataOf(cause)
	}
	c.mu.Unlock()
	c.publish(old, PhaseDisconnecting)

	ct.Close()

	c.mu.Lock()
	old = c.phase
	c.phase = PhaseDisconnected
	c.tunV4, c.tunV6 = "", ""
	c.since = time.Time{}
	c.mu.Unlock()
	c.publish(old, PhaseDisconnected)
}

// Disconnect tears the tunnel down, or aborts an in-flight Connect. A call
// while already Disconnected is a no-op and one while Disconnecting returns
// an error; a call while in
// PhaseError clears the error back to Disconnected without tearing
// anything down, since PhaseError implies Connect already unwound every
// acquired resource (§4.9: "Error is terminal until the next Connect/
// explicit clear").
func (c *Controller) Disconnect() error {
	c.mu.Lock()
	switch c.phase {
	case PhaseDisconnected:
		c.mu.Unlock()
		return nil

	case PhaseDisconnecting:
		c.mu.Unlock()
		return fmt.Errorf("already disconnecting")

	case PhaseError:
		old := c.phase
		c.phase = PhaseDisconnected
		c.errKind = ""
		c.errData = nil
		c.mu.Unlock()
		c.publish(old, PhaseDisconnected)
		return nil

	case PhaseConnecting:
		old := c.phase
		c.phase = PhaseDisconnecting
		cancel := c.connectCancel
		done := c.runDone
		c.mu.Unlock()
		c.publish(old, PhaseDisconnecting)

		cancel()
		<-done

		c.mu.Lock()
		old = c.phase
		c.phase = PhaseDisconnected
		c.errKind = ""
		c.errData = nil
		c.since = time.Time{}
		c.mu.Unlock()
		c.publish(old, PhaseDisconnected)
		return nil

	case PhaseConnected:
		ct := c.current
		c.mu.Unlock()
		c.teardownConnected(ct, nil)
		return nil

	default:
		c.mu.Unlock()
		return fmt.Errorf("unknown phase %s", c.phase)
	}
}

func (c *Controller) publish(old, next Phase) {
	if c.bus == nil {
		return
	}
	c.mu.Lock()
	payload := core.TunnelStatePayload{
		OldState: string(old),
		NewState: string(next),
		Since:    c.since,
		ErrKind:  string(c.errKind),
	}
	c.mu.Unlock()
	c.bus.Publish(core.Event{Type: core.EventTunnelStateChanged, Payload: payload})
}

// dataOf extracts the supplementary data map from a typed error, walking
// Unwrap chains the same way core.KindOf does.
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
