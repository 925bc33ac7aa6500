// Package account implements the Credential/Account Controller (C3): a
// long-running mailbox actor owning device keys, the mnemonic store, and
// a periodically-synced view of remote account/device/subscription state.
package account

import (
	"sync"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// MnemonicState tracks whether a recovery phrase has been stored locally.
type MnemonicState int

const (
	MnemonicNotStored MnemonicState = iota
	MnemonicStored
)

// AccountRegistration is the remote account's registration/activity state.
type AccountRegistration int

const (
	AccountNotRegistered AccountRegistration = iota
	AccountInactive
	AccountActive
)

// SubscriptionState tracks whether the account holds an active subscription.
type SubscriptionState int

const (
	SubscriptionNotSubscribed SubscriptionState = iota
	SubscriptionSubscribed
)

// DeviceRegistration is this device's registration/activity state.
type DeviceRegistration int

const (
	DeviceNotRegistered DeviceRegistration = iota
	DeviceInactive
	DeviceActive
)

// Readiness is the total-function result of IsReadyToConnect (§4.3).
type Readiness string

const (
	Ready                   Readiness = "Ready"
	NoMnemonicStored        Readiness = "NoMnemonicStored"
	AccountNotSyncedReason  Readiness = "AccountNotSynced"
	AccountNotRegisteredR   Readiness = "AccountNotRegistered"
	AccountNotActiveReason  Readiness = "AccountNotActive"
	NoActiveSubscription    Readiness = "NoActiveSubscription"
	DeviceNotRegisteredR    Readiness = "DeviceNotRegistered"
	DeviceNotActiveReason   Readiness = "DeviceNotActive"
)

// State is a snapshot of the account subsystem's four independent state
// machines (§3 AccountState).
type State struct {
	Mnemonic     MnemonicState
	Account      AccountRegistration
	Subscription SubscriptionState
	Device       DeviceRegistration
	Synced       bool // true once at least one successful SyncAccountState has completed
}

// IsReadyToConnect is a side-effect-free predicate: true iff all four
// fields are in their "green" state (§3, §4.3).
func (s State) IsReadyToConnect() Readiness {
	switch {
	case s.Mnemonic != MnemonicStored:
		return NoMnemonicStored
	case !s.Synced:
		return AccountNotSyncedReason
	case s.Account == AccountNotRegistered:
		return AccountNotRegisteredR
	case s.Account != AccountActive:
		return AccountNotActiveReason
	case s.Subscription != SubscriptionSubscribed:
		return NoActiveSubscription
	case s.Device == DeviceNotRegistered:
		return DeviceNotRegisteredR
	case s.Device != DeviceActive:
		return DeviceNotActiveReason
	default:
		return Ready
	}
}

// IsReadyToRegisterDevice requires Stored+Active+NotRegistered (§3).
func (s State) IsReadyToRegisterDevice() bool {
	return s.Mnemonic == MnemonicStored && s.Account == AccountActive && s.Device == DeviceNotRegistered
}

// Summary renders a one-line human-readable description, used for the
// EventAccountStateChanged payload and GetAccountSummary RPC.
func (s State) Summary() string {
	return string(s.IsReadyToConnect())
}

// SharedAccountState wraps State behind a short-critical-section mutex.
// Readers call Get() for a snapshot; the only writer is the Controller's
// command loop (§5: "writers are serialised through C3's command loop —
// no external mutators").
type SharedAccountState struct {
	mu    sync.Mutex
	state State
	bus   *core.EventBus
}

// NewSharedAccountState constructs a state cell in its zero (all-red) state.
func NewSharedAccountState(bus *core.EventBus) *SharedAccountState {
	return &SharedAccountState{bus: bus}
}

// Get returns a snapshot of the current state.
func (s *SharedAccountState) Get() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// set replaces the state and publishes EventAccountStateChanged if it
// actually changed. Only called from the controller's mailbox goroutine.
func (s *SharedAccountState) set(next State) {
	s.mu.Lock()
	changed := s.state != next
	s.state = next
	s.mu.Unlock()

	if changed && s.bus != nil {
		s.bus.Publish(core.Event{
			Type:    core.EventAccountStateChanged,
			Payload: core.AccountStatePayload{Summary: next.Summary()},
		})
	}
}
