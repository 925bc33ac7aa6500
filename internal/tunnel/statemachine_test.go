package tunnel

import (
	"testing"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/account"
)

func waitForPhase(t *testing.T, c *Controller, want Phase) State {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		st := c.State()
		if st.Phase == want {
			return st
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for phase %s, last seen %s", want, c.State().Phase)
	return State{}
}

func TestConnectFailsReadinessGate(t *testing.T) {
	c := NewController(Deps{AccountState: account.NewSharedAccountState(nil)}, nil)

	if err := c.Connect(Settings{CredentialsMode: true}); err != nil {
		t.Fatalf("Connect: %v", err)
	}

	st := waitForPhase(t, c, PhaseError)
	if st.ErrKind != "NoValidCredentials" {
		t.Fatalf("ErrKind = %q, want NoValidCredentials", st.ErrKind)
	}
}

func TestDisconnectFromDisconnectedIsNoop(t *testing.T) {
	c := NewController(Deps{}, nil)
	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if c.State().Phase != PhaseDisconnected {
		t.Fatalf("phase = %s, want Disconnected", c.State().Phase)
	}
}

func TestDisconnectFromErrorClearsState(t *testing.T) {
	c := NewController(Deps{AccountState: account.NewSharedAccountState(nil)}, nil)

	if err := c.Connect(Settings{CredentialsMode: true}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	waitForPhase(t, c, PhaseError)

	if err := c.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	st := c.State()
	if st.Phase != PhaseDisconnected {
		t.Fatalf("phase = %s, want Disconnected", st.Phase)
	}
	if st.ErrKind != "" {
		t.Fatalf("ErrKind = %q, want empty after clearing", st.ErrKind)
	}
}

func TestReconnectFromErrorIsAllowed(t *testing.T) {
	c := NewController(Deps{AccountState: account.NewSharedAccountState(nil)}, nil)

	if err := c.Connect(Settings{CredentialsMode: true}); err != nil {
		t.Fatalf("first Connect: %v", err)
	}
	waitForPhase(t, c, PhaseError)

	if err := c.Connect(Settings{CredentialsMode: true}); err != nil {
		t.Fatalf("reconnect from Error: %v", err)
	}
	waitForPhase(t, c, PhaseError)
}
