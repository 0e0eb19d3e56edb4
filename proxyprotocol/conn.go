package proxyprotocol

import (
	"bufio"
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// Conn is a net.Conn that has consumed a PROXY protocol header from the start
// of its stream. LocalAddr and RemoteAddr report the addresses carried by the
// header rather than those of the underlying connection.
type Conn struct {
	net.Conn

	rd     *bufio.Reader
	header *proxyproto.Header
	local  net.Addr
	remote net.Addr
}

// Accept reads a PROXY protocol header from the start of nc.
//
// If the stream does not begin with a PROXY header, the connection is
// returned unchanged apart from buffering, and Header returns nil. If timeout
// is non-zero, the header must arrive within it.
func Accept(nc net.Conn, timeout time.Duration) (*Conn, error) {
	c := &Conn{
		Conn: nc,
		rd:   bufio.NewReader(nc),
	}

	if timeout > 0 {
		if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
	}

	header, err := proxyproto.Read(c.rd)
	switch err {
	case nil:
		c.header = header
		c.local = addrFromHeader(header.TransportProtocol, header.DestinationAddress, header.DestinationPort)
		c.remote = addrFromHeader(header.TransportProtocol, header.SourceAddress, header.SourcePort)
	case proxyproto.ErrNoProxyProtocol, proxyproto.ErrInvalidLength:
		// not a PROXY protocol connection
	default:
		return nil, err
	}

	if timeout > 0 {
		if err := nc.SetReadDeadline(time.Time{}); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Header returns the PROXY protocol header, or nil if the connection did not
// start with one.
func (c *Conn) Header() *proxyproto.Header {
	return c.header
}

// Read reads data following the PROXY protocol header.
func (c *Conn) Read(b []byte) (int, error) {
	return c.rd.Read(b)
}

// LocalAddr returns the destination address from the PROXY header, if any.
func (c *Conn) LocalAddr() net.Addr {
	if c.local == nil {
		return c.Conn.LocalAddr()
	}
	return c.local
}

// RemoteAddr returns the source address from the PROXY header, if any.
func (c *Conn) RemoteAddr() net.Addr {
	if c.remote == nil {
		return c.Conn.RemoteAddr()
	}
	return c.remote
}

// CloseWrite shuts down the writing side of the underlying connection, if it
// supports half-close. Otherwise the connection is closed.
func (c *Conn) CloseWrite() error {
	if cw, ok := c.Conn.(interface{ CloseWrite() error }); ok {
		return cw.CloseWrite()
	}
	return c.Conn.Close()
}
