package passthrough

import (
	"io"
	"net"

	"go.uber.org/multierr"
)

// pipe copies data in both directions until both sides have finished. When one
// direction reaches EOF its destination is half-closed, so the peer sees the
// end of stream while the other direction keeps flowing.
func pipe(client, backend net.Conn) (in, out int64, err error) {
	results := make(chan error, 2)

	go func() {
		var err error
		in, err = io.Copy(backend, client)
		closeWrite(backend)
		results <- err
	}()

	go func() {
		var err error
		out, err = io.Copy(client, backend)
		closeWrite(client)
		results <- err
	}()

	err = multierr.Append(<-results, <-results)
	return in, out, err
}

func closeWrite(c net.Conn) {
	if cw, ok := c.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
		return
	}
	c.Close()
}
