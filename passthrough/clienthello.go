package passthrough

import (
	"bytes"
	"crypto/tls"
	"errors"
	"io"
	"net"
	"time"
)

// ClientHello is the part of a TLS handshake that has been read from a client
// connection before it is routed.
type ClientHello struct {
	// ServerName is the SNI hostname, or empty if the client did not send one.
	ServerName string

	// Raw holds every byte consumed from the connection. It must be replayed
	// to the backend before the rest of the stream.
	Raw []byte
}

var errHelloCaptured = errors.New("client hello captured")

// ReadClientHello reads a TLS ClientHello from r without completing (or
// answering) the handshake.
//
// If the stream is not a TLS handshake, the returned error is non-nil and Raw
// still holds the bytes that were consumed.
func ReadClientHello(r io.Reader) (ClientHello, error) {
	var (
		hello    ClientHello
		captured bool
		buf      bytes.Buffer
	)

	conn := tls.Server(
		readOnlyConn{io.TeeReader(r, &buf)},
		&tls.Config{
			GetConfigForClient: func(info *tls.ClientHelloInfo) (*tls.Config, error) {
				hello.ServerName = info.ServerName
				captured = true
				return nil, errHelloCaptured
			},
		},
	)

	err := conn.Handshake()
	hello.Raw = buf.Bytes()

	if captured {
		return hello, nil
	}

	return hello, err
}

// readOnlyConn feeds a TLS server from a reader, discarding anything the
// server attempts to send.
type readOnlyConn struct {
	r io.Reader
}

func (c readOnlyConn) Read(p []byte) (int, error)         { return c.r.Read(p) }
func (c readOnlyConn) Write(p []byte) (int, error)        { return 0, io.ErrClosedPipe }
func (c readOnlyConn) Close() error                       { return nil }
func (c readOnlyConn) LocalAddr() net.Addr                { return nil }
func (c readOnlyConn) RemoteAddr() net.Addr               { return nil }
func (c readOnlyConn) SetDeadline(t time.Time) error      { return nil }
func (c readOnlyConn) SetReadDeadline(t time.Time) error  { return nil }
func (c readOnlyConn) SetWriteDeadline(t time.Time) error { return nil }
