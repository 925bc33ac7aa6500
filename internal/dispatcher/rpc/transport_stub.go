//go:build !windows && !darwin && !linux

package rpc

import (
	"fmt"
	"net"
	"time"
)

// Listen is unsupported on this platform.
func Listen() (net.Listener, error) {
	return nil, fmt.Errorf("rpc: unsupported platform")
}

// Dial is unsupported on this platform.
func Dial(timeout time.Duration) (net.Conn, error) {
	return nil, fmt.Errorf("rpc: unsupported platform")
}
