package storage

import (
	"testing"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

func openTestDir(t *testing.T) *core.DataDir {
	t.Helper()
	dir, err := core.OpenDataDir(t.TempDir())
	if err != nil {
		t.Fatalf("OpenDataDir: %v", err)
	}
	return dir
}

func TestDeviceKeysInitIsIdempotent(t *testing.T) {
	keys := NewDeviceKeys(openTestDir(t))
	if keys.Exists() {
		t.Fatalf("fresh directory should have no keys yet")
	}

	seed := make([]byte, 32)
	if err := keys.Init(seed); err != nil {
		t.Fatalf("Init: %v", err)
	}
	pub1, err := keys.PublicKeyBase58()
	if err != nil {
		t.Fatalf("PublicKeyBase58: %v", err)
	}

	if err := keys.Init(seed); err != nil {
		t.Fatalf("second Init: %v", err)
	}
	pub2, err := keys.PublicKeyBase58()
	if err != nil {
		t.Fatalf("PublicKeyBase58 after second Init: %v", err)
	}
	if pub1 != pub2 {
		t.Fatalf("Init was not a no-op on an existing keypair: %s != %s", pub1, pub2)
	}
}

func TestDeviceKeysResetChangesIdentity(t *testing.T) {
	keys := NewDeviceKeys(openTestDir(t))
	if err := keys.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	before, _ := keys.PublicKeyBase58()

	if err := keys.ResetKeys(); err != nil {
		t.Fatalf("ResetKeys: %v", err)
	}
	after, _ := keys.PublicKeyBase58()

	if before == after {
		t.Fatalf("ResetKeys should mint a new identity")
	}
}

func TestDeviceKeysRemove(t *testing.T) {
	keys := NewDeviceKeys(openTestDir(t))
	if err := keys.Init(nil); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := keys.RemoveKeys(); err != nil {
		t.Fatalf("RemoveKeys: %v", err)
	}
	if keys.Exists() {
		t.Fatalf("keys should not exist after RemoveKeys")
	}
}
