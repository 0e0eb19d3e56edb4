package passthrough

import (
	"context"
	"net"
	"strings"
	"time"
)

// UnixPrefix marks a backend address as a Unix domain socket path.
const UnixPrefix = "unix:"

// DefaultDialTimeout is the time allowed to connect to a backend.
const DefaultDialTimeout = 10 * time.Second

// Dialer connects to backend addresses.
type Dialer struct {
	// Timeout overrides DefaultDialTimeout.
	Timeout time.Duration
}

// Dial connects to address. Addresses prefixed with "unix:" are dialed as
// Unix domain sockets, anything else as TCP.
func (d *Dialer) Dial(ctx context.Context, address string) (net.Conn, error) {
	timeout := DefaultDialTimeout
	if d != nil && d.Timeout > 0 {
		timeout = d.Timeout
	}

	dialer := &net.Dialer{Timeout: timeout}
	network, address := splitAddress(address)

	return dialer.DialContext(ctx, network, address)
}

func splitAddress(address string) (network, addr string) {
	if strings.HasPrefix(address, UnixPrefix) {
		return "unix", strings.TrimPrefix(address, UnixPrefix)
	}
	return "tcp", address
}
