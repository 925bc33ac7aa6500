package rpc

import (
	"context"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// DialTimeout bounds how long DialDaemon waits for the platform transport
// (Unix Domain Socket / Named Pipe) to accept a connection.
const DialTimeout = 5 * time.Second

// DialDaemon connects to the daemon over the platform transport (see
// transport_*.go) and returns a ready-to-use typed Client. The transport
// is local-machine-only (a socket file / named pipe), so credentials are
// always insecure.NewCredentials() rather than TLS.
func DialDaemon(ctx context.Context) (*Client, *grpc.ClientConn, error) {
	cc, err := grpc.NewClient("passthrough:///nym-vpnd",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(_ context.Context, _ string) (net.Conn, error) {
			return Dial(DialTimeout)
		}),
	)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(cc), cc, nil
}
