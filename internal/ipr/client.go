package ipr

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
	"github.com/nymtech/nym-vpn-core-go/internal/mixnet"
)

// ConnectTimeout bounds how long Connect waits for a StaticConnect or
// DynamicConnect response (§4.5: "awaits response within 5 s").
const ConnectTimeout = 5 * time.Second

// FlushInterval is the bundler's flush timeout (§4.5: "≤ 50 ms").
const FlushInterval = 50 * time.Millisecond

// ProtocolVersion is the envelope version this client puts on every
// request. Connect does not compare it with the version on the exit's
// reply, so a version mismatch is not reported as an error.
const ProtocolVersion = 7

type requestKind string

const (
	reqStaticConnect  requestKind = "StaticConnect"
	reqDynamicConnect requestKind = "DynamicConnect"
	reqData           requestKind = "Data"
	reqPing           requestKind = "Ping"
)

type request struct {
	Kind            requestKind `json:"kind"`
	ProtocolVersion int         `json:"protocol_version"`
	ReplyTo         string      `json:"reply_to,omitempty"`
	RequestedIPv4   string      `json:"requested_ipv4,omitempty"`
	RequestedIPv6   string      `json:"requested_ipv6,omitempty"`
	IPPacket        []byte      `json:"ip_packet,omitempty"`
}

type responseKind string

const (
	respStaticConnect        responseKind = "StaticConnect"
	respDynamicConnect       responseKind = "DynamicConnect"
	respData                 responseKind = "Data"
	respDisconnect            responseKind = "Disconnect"
	respUnrequestedDisconnect responseKind = "UnrequestedDisconnect"
	respInfo                  responseKind = "Info"
)

type response struct {
	Kind            responseKind `json:"kind"`
	ProtocolVersion int          `json:"protocol_version"`
	AssignedIPv4    string       `json:"assigned_ipv4,omitempty"`
	AssignedIPv6    string       `json:"assigned_ipv6,omitempty"`
	IPPacket        []byte       `json:"ip_packet,omitempty"`
	Level           string       `json:"level,omitempty"` // "info" | "warn" | "error"
	Reply           string       `json:"reply,omitempty"`
	DeniedReason    string       `json:"denied_reason,omitempty"`
}

// AssignedAddresses is the (IPv4, IPv6) pair handed back on a successful
// connect (§4.5 step 1).
type AssignedAddresses struct {
	IPv4 string
	IPv6 string
}

// Client is the IP-Packet-Router client bound to one mixnet session.
type Client struct {
	sender      mixnet.Sender
	recv        *mixnet.Receiver
	exitAddress string
	selfAddress string
	bus         *core.EventBus

	tunSink  chan<- []byte
	selfPing chan<- struct{}

	mu      sync.Mutex
	waiters map[requestKind]chan response

	decoder BundleDecoder
}

// NewClient constructs an IPR client. tunSink receives decoded inbound IP
// datagrams; selfPing is signalled on a self-ping echo (consumed by C6).
func NewClient(shared *mixnet.SharedMixnetClient, exitAddress string, bus *core.EventBus, tunSink chan<- []byte, selfPing chan<- struct{}) (*Client, error) {
	recv, err := shared.Lock()
	if err != nil {
		return nil, fmt.Errorf("acquire mixnet receiver: %w", err)
	}
	return &Client{
		sender:      shared.SplitSender(),
		recv:        recv,
		exitAddress: exitAddress,
		selfAddress: shared.SelfAddress(),
		bus:         bus,
		tunSink:     tunSink,
		selfPing:    selfPing,
		waiters:     make(map[requestKind]chan response),
	}, nil
}

// Connect sends a DynamicConnect (if requestedIPv4/6 are both empty) or
// StaticConnect request and waits for the matching response (§4.5 step 1).
func (c *Client) Connect(ctx context.Context, requestedIPv4, requestedIPv6 string) (*AssignedAddresses, error) {
	kind := reqDynamicConnect
	wantKind := respDynamicConnect
	if requestedIPv4 != "" || requestedIPv6 != "" {
		kind = reqStaticConnect
		wantKind = respStaticConnect
	}

	wait := c.registerWaiter(wantKind)
	defer c.unregisterWaiter(wantKind)

	req := request{
		Kind:            kind,
		ProtocolVersion: ProtocolVersion,
		ReplyTo:         c.selfAddress,
		RequestedIPv4:   requestedIPv4,
		RequestedIPv6:   requestedIPv6,
	}
	if err := c.send(req); err != nil {
		return nil, err
	}

	connectCtx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	select {
	case resp := <-wait:
		return &AssignedAddresses{IPv4: resp.AssignedIPv4, IPv6: resp.AssignedIPv6}, nil
	case <-connectCtx.Done():
		return nil, core.NewError(core.KindTimeout).WithData("stage", "ipr_connect")
	}
}

// SendPacket bundles a single outbound IP datagram for the exit. Callers
// own flush cadence (FlushInterval or buffer-full) via BundleEncoder
// directly; SendPacket wraps one datagram per Data request for callers
// that don't need manual bundling control.
func (c *Client) SendPacket(packet []byte) error {
	return c.send(request{Kind: reqData, ProtocolVersion: ProtocolVersion, IPPacket: appendLengthPrefixed(nil, packet)})
}

// SendBundle transmits a pre-assembled multi-packet bundle as a single
// Data request (§4.5 step 2).
func (c *Client) SendBundle(bundle []byte) error {
	return c.send(request{Kind: reqData, ProtocolVersion: ProtocolVersion, IPPacket: bundle})
}

func (c *Client) send(req request) error {
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal ipr request: %w", err)
	}
	return c.sender.SendMessage(c.exitAddress, raw)
}

// Run drains inbound mixnet messages until ctx is cancelled, dispatching
// per §4.5 step 3: Data is unbundled to tunSink, connect responses
// received post-connection are dropped, Info is published as an event,
// Disconnect/UnrequestedDisconnect are logged, and a Ping request
// addressed to us is a self-ping echo.
func (c *Client) Run(ctx context.Context) error {
	for {
		raw, err := c.recv.Recv(ctx)
		if err != nil {
			return err
		}
		c.handleInbound(raw)
	}
}

func (c *Client) handleInbound(raw []byte) {
	var resp response
	if err := json.Unmarshal(raw, &resp); err == nil && resp.Kind != "" {
		c.dispatchResponse(resp)
		return
	}

	var req request
	if err := json.Unmarshal(raw, &req); err == nil && req.Kind == reqPing && req.ReplyTo == c.selfAddress {
		select {
		case c.selfPing <- struct{}{}:
		default:
		}
		return
	}

	core.Log.Warnf("ipr", "failed to decode inbound mixnet message (%d bytes)", len(raw))
}

func (c *Client) dispatchResponse(resp response) {
	switch resp.Kind {
	case respStaticConnect, respDynamicConnect:
		if ch := c.waiterFor(resp.Kind); ch != nil {
			select {
			case ch <- resp:
			default:
			}
			return
		}
		core.Log.Infof("ipr", "received %s response when already connected - ignoring", resp.Kind)
	case respData:
		packets, err := DecodeAll(resp.IPPacket)
		if err != nil {
			core.Log.Warnf("ipr", "decode data response: %v", err)
			return
		}
		for _, p := range packets {
			select {
			case c.tunSink <- p:
			default:
				core.Log.Warnf("ipr", "tun sink full, dropping inbound packet")
			}
		}
	case respDisconnect:
		core.Log.Infof("ipr", "received disconnect response, ignoring for now")
	case respUnrequestedDisconnect:
		core.Log.Warnf("ipr", "received unrequested disconnect response")
	case respInfo:
		if c.bus != nil {
			c.bus.Publish(core.Event{Type: core.EventInfoMessage, Payload: core.InfoPayload{Level: resp.Level, Reply: resp.Reply}})
		}
	default:
		core.Log.Warnf("ipr", "received unrecognised response kind %q, ignoring", resp.Kind)
	}
}

func (c *Client) registerWaiter(kind responseKind) chan response {
	ch := make(chan response, 1)
	c.mu.Lock()
	c.waiters[requestKind(kind)] = ch
	c.mu.Unlock()
	return ch
}

func (c *Client) unregisterWaiter(kind responseKind) {
	c.mu.Lock()
	delete(c.waiters, requestKind(kind))
	c.mu.Unlock()
}

func (c *Client) waiterFor(kind responseKind) chan response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiters[requestKind(kind)]
}

// Close releases the exclusive mixnet receiver lock.
func (c *Client) Close() {
	c.recv.Unlock()
}
