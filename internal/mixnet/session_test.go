package mixnet

import (
	"context"
	"testing"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

type fakeRawClient struct {
	addr   string
	sent   chan []byte
	closed bool
}

func (f *fakeRawClient) SendMessage(recipient string, payload []byte) error {
	f.sent <- payload
	return nil
}

func (f *fakeRawClient) Recv(ctx context.Context) ([]byte, error) {
	select {
	case p := <-f.sent:
		return p, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeRawClient) SelfAddress() string { return f.addr }
func (f *fakeRawClient) Close() error        { f.closed = true; return nil }

type fakeDialer struct{ client *fakeRawClient }

func (d *fakeDialer) Dial(ctx context.Context, entryIdentity string, opts DebugOpts) (RawClient, error) {
	return d.client, nil
}

func TestStartEphemeralSucceeds(t *testing.T) {
	client := &fakeRawClient{addr: "self@gw", sent: make(chan []byte, 4)}
	shared, err := Start(context.Background(), &fakeDialer{client: client}, "gw-id", "", false, DebugOpts{}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if shared.SelfAddress() != "self@gw" {
		t.Fatalf("SelfAddress: got %q", shared.SelfAddress())
	}
}

func TestStartRequiresExistingKeystore(t *testing.T) {
	client := &fakeRawClient{addr: "self@gw", sent: make(chan []byte, 4)}
	_, err := Start(context.Background(), &fakeDialer{client: client}, "gw-id", "/nonexistent/path", true, DebugOpts{}, nil)
	if core.KindOf(err) != core.KindNoValidCredentials {
		t.Fatalf("got kind %v, want NoValidCredentials", core.KindOf(err))
	}
}

func TestSenderReceiverRoundTrip(t *testing.T) {
	client := &fakeRawClient{addr: "self@gw", sent: make(chan []byte, 4)}
	shared, err := Start(context.Background(), &fakeDialer{client: client}, "gw-id", "", false, DebugOpts{}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	sender := shared.SplitSender()
	if err := sender.SendMessage("peer@gw", []byte("hello")); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	recv, err := shared.Lock()
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer recv.Unlock()

	got, err := recv.Recv(context.Background())
	if err != nil {
		t.Fatalf("Recv: %v", err)
	}
	if string(got) != "hello" {
		t.Fatalf("Recv: got %q", got)
	}
}

func TestLockIsExclusive(t *testing.T) {
	client := &fakeRawClient{addr: "self@gw", sent: make(chan []byte, 4)}
	shared, err := Start(context.Background(), &fakeDialer{client: client}, "gw-id", "", false, DebugOpts{}, nil)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	recv, err := shared.Lock()
	if err != nil {
		t.Fatalf("first Lock: %v", err)
	}
	if _, err := shared.Lock(); err == nil {
		t.Fatalf("second Lock should fail while receiver is held")
	}
	recv.Unlock()
	if _, err := shared.Lock(); err != nil {
		t.Fatalf("Lock after Unlock should succeed: %v", err)
	}
}
