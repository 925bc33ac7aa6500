package rpc

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"google.golang.org/grpc"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// ConnTracker tracks active gRPC calls (unary + streaming) against the
// daemon and fires onIdle once every client has been gone for a full
// grace period.
type ConnTracker struct {
	active      atomic.Int64
	gracePeriod time.Duration
	onIdle      func()

	mu         sync.Mutex
	graceTimer *time.Timer
}

// NewConnTracker creates a ConnTracker with the given grace period. onIdle
// runs in its own goroutine once active calls stay at zero for the full
// grace period.
func NewConnTracker(gracePeriod time.Duration, onIdle func()) *ConnTracker {
	return &ConnTracker{gracePeriod: gracePeriod, onIdle: onIdle}
}

// ActiveCount returns the current number of in-flight RPCs.
func (ct *ConnTracker) ActiveCount() int64 { return ct.active.Load() }

// CancelGrace cancels any pending grace timer, used during an explicit
// daemon shutdown so the idle callback never fires after the fact.
func (ct *ConnTracker) CancelGrace() {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.graceTimer != nil {
		ct.graceTimer.Stop()
		ct.graceTimer = nil
	}
}

func (ct *ConnTracker) inc() {
	if ct.active.Add(1) == 1 {
		ct.mu.Lock()
		if ct.graceTimer != nil {
			ct.graceTimer.Stop()
			ct.graceTimer = nil
			core.Log.Infof("rpc", "client reconnected, grace timer cancelled")
		}
		ct.mu.Unlock()
	}
}

func (ct *ConnTracker) dec() {
	if ct.active.Add(-1) != 0 {
		return
	}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.graceTimer != nil {
		ct.graceTimer.Stop()
	}
	core.Log.Infof("rpc", "all clients disconnected, starting %s grace timer", ct.gracePeriod)
	ct.graceTimer = time.AfterFunc(ct.gracePeriod, func() {
		ct.mu.Lock()
		ct.graceTimer = nil
		ct.mu.Unlock()
		if ct.onIdle != nil {
			ct.onIdle()
		}
	})
}

// UnaryInterceptor tracks active unary RPCs.
func (ct *ConnTracker) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		ct.inc()
		defer ct.dec()
		return handler(ctx, req)
	}
}

// StreamInterceptor tracks active streaming RPCs.
func (ct *ConnTracker) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ct.inc()
		defer ct.dec()
		return handler(srv, ss)
	}
}
