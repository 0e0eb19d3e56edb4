package passthrough

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/icecave/sniroute/metrics"
	"github.com/icecave/sniroute/proxyprotocol"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/netutil"
)

// DefaultHandshakeTimeout is the time allowed for a client to send its
// ClientHello (and PROXY header, if expected).
const DefaultHandshakeTimeout = 10 * time.Second

// Server accepts TLS connections, routes them by SNI hostname and relays the
// raw byte stream to the chosen backend. TLS is never terminated.
type Server struct {
	// Name identifies the listener in logs and metrics.
	Name string

	Route   RouteFunc
	Dialer  *Dialer
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	// AcceptProxyProtocol reads a PROXY protocol header from each client
	// connection before the ClientHello.
	AcceptProxyProtocol bool

	// ProxyProtocolVersion is the version of the PROXY header written to every
	// backend, or zero to write none.
	ProxyProtocolVersion byte

	// RelayAddress is the address of the proxy-protocol relay. Connections
	// routed to it are always prefixed with a version 1 PROXY header.
	RelayAddress string

	// HandshakeTimeout overrides DefaultHandshakeTimeout.
	HandshakeTimeout time.Duration

	// MaxConnections limits the number of simultaneous client connections.
	// Zero means no limit.
	MaxConnections int
}

// Serve accepts connections on listener until ctx is canceled or the listener
// fails. It waits for open connections to finish before returning.
func (svr *Server) Serve(ctx context.Context, listener net.Listener) error {
	if svr.MaxConnections > 0 {
		listener = netutil.LimitListener(listener, svr.MaxConnections)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	svr.Logger.WithField("address", listener.Addr().String()).Infof("%s: listening", svr.Name)

	var (
		group sync.WaitGroup
		delay time.Duration
	)
	defer group.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Temporary() {
				delay = backoff(delay)
				svr.Logger.WithError(err).Warnf("%s: accept failed, retrying in %s", svr.Name, delay)
				time.Sleep(delay)
				continue
			}

			return err
		}

		delay = 0
		group.Add(1)

		go func() {
			defer group.Done()
			svr.handle(ctx, conn)
		}()
	}
}

func (svr *Server) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	svr.Metrics.ConnectionOpened(svr.Name)

	s := &session{
		Remote:    remoteName(conn.RemoteAddr()),
		StartedAt: time.Now(),
	}

	err := svr.forward(ctx, conn, s)
	s.log(svr.Logger, err)

	svr.Metrics.ConnectionClosed(svr.Name, s.BytesIn, s.BytesOut)
}

func (svr *Server) forward(ctx context.Context, conn net.Conn, s *session) error {
	if err := conn.SetReadDeadline(time.Now().Add(svr.handshakeTimeout())); err != nil {
		return err
	}

	if svr.AcceptProxyProtocol {
		pc, err := proxyprotocol.Accept(conn, 0)
		if err != nil {
			svr.Metrics.Connection(svr.Name, "rejected")
			return err
		}
		conn = pc
		s.Remote = remoteName(conn.RemoteAddr())
	}

	hello, err := ReadClientHello(conn)
	if len(hello.Raw) == 0 {
		svr.Metrics.Connection(svr.Name, "rejected")
		return err
	} else if err != nil {
		svr.Logger.WithFields(s.fields()).WithError(err).Debugf("%s: client did not send a TLS handshake", svr.Name)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		return err
	}

	s.Hostname = hello.ServerName

	endpoint, err := svr.Route(ctx, hello.ServerName)
	if err != nil {
		svr.Metrics.Connection(svr.Name, "denied")
		svr.Logger.WithFields(s.fields()).WithError(err).Infof("%s: connection denied", svr.Name)
		return err
	}

	s.Endpoint = endpoint

	backend, err := svr.Dialer.Dial(ctx, endpoint)
	if err != nil {
		svr.Metrics.Connection(svr.Name, "unreachable")
		svr.Logger.WithFields(s.fields()).WithError(err).Warnf("%s: could not connect to backend", svr.Name)
		return err
	}
	defer backend.Close()

	stop := context.AfterFunc(ctx, func() { backend.Close() })
	defer stop()

	if version := svr.headerVersion(endpoint); version != 0 {
		if err := proxyprotocol.WriteHeader(backend, version, conn.RemoteAddr(), conn.LocalAddr()); err != nil {
			svr.Metrics.Connection(svr.Name, "unreachable")
			return err
		}
	}

	n, err := backend.Write(hello.Raw)
	s.BytesIn += int64(n)
	if err != nil {
		svr.Metrics.Connection(svr.Name, "unreachable")
		return err
	}

	svr.Metrics.Connection(svr.Name, "ok")

	in, out, err := pipe(conn, backend)
	s.BytesIn += in
	s.BytesOut += out

	return err
}

func (svr *Server) headerVersion(endpoint string) byte {
	if svr.RelayAddress != "" && endpoint == svr.RelayAddress {
		return 1
	}
	return svr.ProxyProtocolVersion
}

func (svr *Server) handshakeTimeout() time.Duration {
	if svr.HandshakeTimeout > 0 {
		return svr.HandshakeTimeout
	}
	return DefaultHandshakeTimeout
}

func backoff(delay time.Duration) time.Duration {
	const max = time.Second

	if delay == 0 {
		return 5 * time.Millisecond
	}

	delay *= 2
	if delay > max {
		return max
	}

	return delay
}
