package account

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// DeviceKeyStore is the subset of internal/storage's device-key persistence
// the controller needs (kept as an interface to avoid a storage→account
// import cycle; storage.DeviceKeys implements it).
type DeviceKeyStore interface {
	PublicKeyBase58() (string, error)
	ResetKeys() error
}

// MnemonicStore is the subset of internal/storage's mnemonic persistence
// the controller needs.
type MnemonicStore interface {
	Store(words string) error
	Remove() error
	IsStored() bool
	Load() (string, error)
}

// Controller is the single-writer mailbox actor owning the account
// subsystem (§4.3). All state mutation happens on run()'s goroutine; the
// pending-command set needs no lock because only that goroutine touches
// it, mirroring the Rust CommandHandler's per-command Drop-on-completion
// shape via `defer`.
type Controller struct {
	api      *ApiClient
	keys     DeviceKeyStore
	mnemonic MnemonicStore
	state    *SharedAccountState
	bus      *core.EventBus

	mailbox chan *Command
	pending map[uuid.UUID]*Command
}

// NewController constructs an account controller. Call Run in a goroutine
// to start draining the mailbox.
func NewController(api *ApiClient, keys DeviceKeyStore, mnemonic MnemonicStore, bus *core.EventBus) *Controller {
	return &Controller{
		api:      api,
		keys:     keys,
		mnemonic: mnemonic,
		state:    NewSharedAccountState(bus),
		bus:      bus,
		mailbox:  make(chan *Command, 16),
		pending:  make(map[uuid.UUID]*Command),
	}
}

// State returns the shared account state cell for read-only snapshots.
func (c *Controller) State() *SharedAccountState { return c.state }

// Run drains the mailbox until ctx is cancelled. It is the only goroutine
// that ever mutates c.state or c.pending.
func (c *Controller) Run(ctx context.Context) {
	if c.mnemonic != nil && c.mnemonic.IsStored() {
		s := c.state.Get()
		s.Mnemonic = MnemonicStored
		c.state.set(s)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-c.mailbox:
			c.pending[cmd.id] = cmd
			err := c.dispatch(cmd)
			delete(c.pending, cmd.id)
			select {
			case cmd.Reply <- err:
			default:
				core.Log.Warnf("account", "command %s: reply channel dropped", cmd.id)
			}
		}
	}
}

// submit enqueues a command and blocks for its reply.
func (c *Controller) submit(ctx context.Context, cmd *Command) error {
	select {
	case c.mailbox <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-cmd.Reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) dispatch(cmd *Command) error {
	switch cmd.Kind {
	case CmdSyncAccountState:
		return c.syncAccountState()
	case CmdSyncDeviceState:
		return c.syncDeviceState()
	case CmdRegisterDevice:
		return c.registerDevice()
	case CmdUpdateMnemonic:
		return c.updateMnemonic(cmd.Mnemonic)
	case CmdRemoveMnemonic:
		return c.removeMnemonic()
	case CmdResetDeviceIdentity:
		return c.resetDeviceIdentity()
	default:
		return fmt.Errorf("unhandled command kind %d", cmd.Kind)
	}
}

// SyncAccountState is the public entry point; it submits a command and
// waits for the handler to run on the mailbox goroutine (§4.3).
func (c *Controller) SyncAccountState(ctx context.Context) error {
	return c.submit(ctx, newCommand(CmdSyncAccountState))
}

// syncAccountState implements the GET account_summary handler (§4.3): an
// HTTP 403/"not registered" transitions account=NotRegistered and returns
// a typed UpdateAccountEndpointFailure; success updates account,
// subscription and device fields from the response.
func (c *Controller) syncAccountState() error {
	summary, err := c.api.GetAccountSummary()
	if err != nil {
		if fail, ok := err.(*ApiFailure); ok {
			if fail.StatusCode == http.StatusForbidden || fail.StatusCode == http.StatusNotFound {
				s := c.state.Get()
				s.Account = AccountNotRegistered
				s.Synced = true
				c.state.set(s)
			}
			return core.Wrap(core.KindUpdateAccountEndpointFailure, fail).
				WithData("message", fail.Message).
				WithData("message_id", fail.MessageID).
				WithData("code_reference_id", fail.CodeReferenceID)
		}
		// Transient network failure: account state is left unchanged.
		return core.Wrap(core.KindUpdateAccountEndpointFailure, err)
	}

	s := c.state.Get()
	s.Account = parseAccountStatus(summary.AccountStatus)
	s.Subscription = parseSubscriptionStatus(summary.SubscriptionStatus)
	s.Device = parseDeviceStatus(summary.DeviceStatus)
	s.Synced = true
	c.state.set(s)
	return nil
}

// SyncDeviceState is the public entry point for CmdSyncDeviceState.
func (c *Controller) SyncDeviceState(ctx context.Context) error {
	return c.submit(ctx, newCommand(CmdSyncDeviceState))
}

// syncDeviceState implements the paginated GET devices handler (§4.3):
// our device is matched by device_identity_key == base58(device_public_key);
// an absent match transitions device=NotRegistered.
func (c *Controller) syncDeviceState() error {
	pub, err := c.keys.PublicKeyBase58()
	if err != nil {
		return core.Wrap(core.KindInternalError, err)
	}

	entry, err := c.api.FindDevice(pub)
	if err != nil {
		return core.Wrap(core.KindUpdateDeviceEndpointFailure, err)
	}

	s := c.state.Get()
	if entry == nil {
		s.Device = DeviceNotRegistered
	} else {
		s.Device = parseDeviceStatus(entry.Status)
	}
	c.state.set(s)
	return nil
}

// RegisterDevice is the public entry point for CmdRegisterDevice.
func (c *Controller) RegisterDevice(ctx context.Context) error {
	return c.submit(ctx, newCommand(CmdRegisterDevice))
}

func (c *Controller) registerDevice() error {
	pub, err := c.keys.PublicKeyBase58()
	if err != nil {
		return core.Wrap(core.KindInternalError, err)
	}
	if err := c.api.RegisterDevice(pub); err != nil {
		return core.Wrap(core.KindDeviceRegistrationFailed, err)
	}
	s := c.state.Get()
	s.Device = DeviceActive
	c.state.set(s)
	return nil
}

// UpdateMnemonic is the public entry point for CmdUpdateMnemonic.
func (c *Controller) UpdateMnemonic(ctx context.Context, words string) error {
	cmd := newCommand(CmdUpdateMnemonic)
	cmd.Mnemonic = words
	return c.submit(ctx, cmd)
}

func (c *Controller) updateMnemonic(words string) error {
	if err := c.mnemonic.Store(words); err != nil {
		return core.Wrap(core.KindStorageError, err)
	}
	s := c.state.Get()
	s.Mnemonic = MnemonicStored
	s.Synced = false // force a fresh sync before Ready can be reported
	c.state.set(s)
	return nil
}

// RemoveMnemonic is the public entry point for CmdRemoveMnemonic.
func (c *Controller) RemoveMnemonic(ctx context.Context) error {
	return c.submit(ctx, newCommand(CmdRemoveMnemonic))
}

func (c *Controller) removeMnemonic() error {
	if err := c.mnemonic.Remove(); err != nil {
		return core.Wrap(core.KindStorageError, err)
	}
	c.state.set(State{}) // all-red: mnemonic, account, device all reset
	return nil
}

// ResetDeviceIdentity is the public entry point for CmdResetDeviceIdentity.
func (c *Controller) ResetDeviceIdentity(ctx context.Context) error {
	return c.submit(ctx, newCommand(CmdResetDeviceIdentity))
}

func (c *Controller) resetDeviceIdentity() error {
	if err := c.keys.ResetKeys(); err != nil {
		return core.Wrap(core.KindInternalError, err)
	}
	s := c.state.Get()
	s.Device = DeviceNotRegistered
	c.state.set(s)
	return nil
}

func parseAccountStatus(s string) AccountRegistration {
	switch s {
	case "active":
		return AccountActive
	case "inactive":
		return AccountInactive
	default:
		return AccountNotRegistered
	}
}

func parseSubscriptionStatus(s string) SubscriptionState {
	if s == "active" || s == "subscribed" {
		return SubscriptionSubscribed
	}
	return SubscriptionNotSubscribed
}

func parseDeviceStatus(s string) DeviceRegistration {
	switch s {
	case "active":
		return DeviceActive
	case "inactive":
		return DeviceInactive
	default:
		return DeviceNotRegistered
	}
}
