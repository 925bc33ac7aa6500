package storage

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

func openTestCredentials(t *testing.T) *Credentials {
	t.Helper()
	c, err := OpenCredentials(openTestDir(t))
	if err != nil {
		t.Fatalf("OpenCredentials: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func envelope(t *testing.T, expiry *time.Time) []byte {
	t.Helper()
	raw, err := json.Marshal(CredentialEnvelope{Expiry: expiry, Payload: []byte("opaque-payload")})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func TestImportCredentialSucceeds(t *testing.T) {
	c := openTestCredentials(t)
	future := time.Now().Add(24 * time.Hour)

	expiry, err := c.ImportCredential(envelope(t, &future))
	if err != nil {
		t.Fatalf("ImportCredential: %v", err)
	}
	if expiry == nil || !expiry.Equal(future) {
		t.Fatalf("expiry mismatch: got %v want %v", expiry, future)
	}

	n, err := c.AvailableTickets()
	if err != nil {
		t.Fatalf("AvailableTickets: %v", err)
	}
	if n != 1 {
		t.Fatalf("AvailableTickets: got %d want 1", n)
	}
}

func TestImportCredentialTwiceFails(t *testing.T) {
	c := openTestCredentials(t)
	raw := envelope(t, nil)

	if _, err := c.ImportCredential(raw); err != nil {
		t.Fatalf("first ImportCredential: %v", err)
	}
	_, err := c.ImportCredential(raw)
	if core.KindOf(err) != core.KindCredentialAlreadyImported {
		t.Fatalf("second ImportCredential: got kind %v, want CredentialAlreadyImported", core.KindOf(err))
	}
}

func TestImportExpiredCredentialFails(t *testing.T) {
	c := openTestCredentials(t)
	expired := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	_, err := c.ImportCredential(envelope(t, &expired))
	if core.KindOf(err) != core.KindCredentialExpired {
		t.Fatalf("got kind %v, want CredentialExpired", core.KindOf(err))
	}

	n, err := c.AvailableTickets()
	if err != nil {
		t.Fatalf("AvailableTickets: %v", err)
	}
	if n != 0 {
		t.Fatalf("expired import should not touch the store, got %d tickets", n)
	}
}
