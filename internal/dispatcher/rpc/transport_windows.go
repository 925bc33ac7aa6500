//go:build windows

package rpc

import (
	"net"
	"time"

	"github.com/Microsoft/go-winio"
)

// PipeName is the Named Pipe path the daemon listens on; the GUI/CLI
// client dials the same path (§6: IPC transport between the elevated
// service and the user-level frontend).
const PipeName = `\\.\pipe\nym-vpnd`

// Listen opens the daemon's Named Pipe listener, allowing any
// authenticated user to connect (SDDL grant) since the frontend runs
// unprivileged.
func Listen() (net.Listener, error) {
	cfg := &winio.PipeConfig{
		SecurityDescriptor: "D:P(A;;GA;;;AU)",
		MessageMode:        false,
		InputBufferSize:    64 * 1024,
		OutputBufferSize:   64 * 1024,
	}
	return winio.ListenPipe(PipeName, cfg)
}

// Dial connects to the daemon's Named Pipe.
func Dial(timeout time.Duration) (net.Conn, error) {
	return winio.DialPipe(PipeName, &timeout)
}
