package rpc

import (
	"net"
	"time"

	"google.golang.org/grpc"

	"github.com/nymtech/nym-vpn-core-go/internal/core"
)

// IdleGracePeriod is how long the daemon waits with zero connected
// clients before invoking its idle-shutdown callback.
const IdleGracePeriod = 5 * time.Minute

// Server binds C11's Handlers implementation to a grpc.Server listening
// on the platform transport (Unix Domain Socket on darwin/linux, a Named
// Pipe on windows), tracking client connections so the daemon can shut
// itself down once idle.
type Server struct {
	grpcSrv *grpc.Server
	tracker *ConnTracker
}

// NewServer constructs a Server around handlers. onIdle, if non-nil, is
// invoked once every RPC client has been disconnected for
// IdleGracePeriod; a nil onIdle disables idle-shutdown (e.g. for a
// foreground/dev run).
func NewServer(handlers Handlers, onIdle func()) *Server {
	tracker := NewConnTracker(IdleGracePeriod, onIdle)
	grpcSrv := grpc.NewServer(
		grpc.UnaryInterceptor(tracker.UnaryInterceptor()),
		grpc.StreamInterceptor(tracker.StreamInterceptor()),
	)
	grpcSrv.RegisterService(&ServiceDesc, handlers)
	return &Server{grpcSrv: grpcSrv, tracker: tracker}
}

// Serve binds the platform transport listener and blocks serving RPCs
// until Stop is called or the listener fails.
func (s *Server) Serve() error {
	lis, err := Listen()
	if err != nil {
		return err
	}
	return s.ServeListener(lis)
}

// ServeListener blocks serving RPCs over an already-bound listener, used
// on darwin when launchd hands the daemon a socket-activated fd instead
// of binding one directly (see internal/platform/darwin.InheritLaunchdSocket).
func (s *Server) ServeListener(lis net.Listener) error {
	core.Log.Infof("rpc", "listening for daemon clients")
	return s.grpcSrv.Serve(lis)
}

// ActiveClients returns the number of in-flight RPCs, for diagnostics.
func (s *Server) ActiveClients() int64 { return s.tracker.ActiveCount() }

// Stop cancels any pending idle-shutdown timer and gracefully stops the
// gRPC server, waiting for in-flight RPCs to finish.
func (s *Server) Stop() {
	s.tracker.CancelGrace()
	s.grpcSrv.GracefulStop()
}
