package mqttier

import (
	"context"
	"net"
)

// UnixDialer connects to brokers over Unix domain sockets.
type UnixDialer struct{}

// NewUnixDialer creates a Unix socket dialer.
func NewUnixDialer() *UnixDialer {
	return &UnixDialer{}
}

// Dial connects to the socket file at address, e.g. "/var/run/mqtt.sock".
func (d *UnixDialer) Dial(ctx context.Context, address string) (Conn, error) {
	var dialer net.Dialer
	return dialer.DialContext(ctx, "unix", address)
}
