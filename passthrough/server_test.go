package passthrough_test

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/passthrough"
	"github.com/icecave/sniroute/proxyprotocol"
	"github.com/icecave/sniroute/registry"
	"github.com/icecave/sniroute/resolver"
	proxyproto "github.com/pires/go-proxyproto"
	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/ginkgo/extensions/table"
	. "github.com/onsi/gomega"
)

// received is what a fake backend saw at the start of a connection.
type received struct {
	Header *proxyproto.Header
	Hello  passthrough.ClientHello
}

// fakeBackend accepts connections, reads the start of each stream, and closes
// it.
type fakeBackend struct {
	listener    net.Listener
	readHeaders bool
	received    chan received
}

func newFakeBackend(readHeaders bool) *fakeBackend {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ShouldNot(HaveOccurred())

	b := &fakeBackend{
		listener:    l,
		readHeaders: readHeaders,
		received:    make(chan received, 10),
	}

	go b.run()

	return b
}

func (b *fakeBackend) Addr() string {
	return b.listener.Addr().String()
}

func (b *fakeBackend) Close() {
	b.listener.Close()
}

func (b *fakeBackend) run() {
	for {
		conn, err := b.listener.Accept()
		if err != nil {
			return
		}

		go func() {
			defer conn.Close()
			conn.SetReadDeadline(time.Now().Add(5 * time.Second))

			var r received
			rd := bufio.NewReader(conn)

			if b.readHeaders {
				header, err := proxyproto.Read(rd)
				if err != nil {
					return
				}
				r.Header = header
			}

			r.Hello, _ = passthrough.ReadClientHello(rd)
			b.received <- r
		}()
	}
}

// dialTLS connects to addr and starts a TLS handshake that never completes.
func dialTLS(addr, serverName string, header *proxyproto.Header) net.Conn {
	conn, err := net.Dial("tcp", addr)
	Expect(err).ShouldNot(HaveOccurred())

	if header != nil {
		_, err := header.WriteTo(conn)
		Expect(err).ShouldNot(HaveOccurred())
	}

	go tls.Client(conn, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
	}).Handshake()

	return conn
}

// captureClientHello returns the exact bytes of a ClientHello that a TLS
// client sends for serverName.
func captureClientHello(serverName string) []byte {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go tls.Client(client, &tls.Config{
		ServerName:         serverName,
		InsecureSkipVerify: true,
	}).Handshake()

	server.SetReadDeadline(time.Now().Add(5 * time.Second))
	hello, err := passthrough.ReadClientHello(server)
	Expect(err).ShouldNot(HaveOccurred())

	return hello.Raw
}

// recordFirst accepts one connection on l and delivers its first n bytes.
func recordFirst(l net.Listener, n int) <-chan []byte {
	ch := make(chan []byte, 1)

	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		buf := make([]byte, n)
		if _, err := io.ReadFull(conn, buf); err != nil {
			return
		}
		ch <- buf
	}()

	return ch
}

// serve starts svr on a new loopback listener and returns its address.
func serve(ctx context.Context, svr *passthrough.Server) string {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).ShouldNot(HaveOccurred())

	go svr.Serve(ctx, l)

	return l.Addr().String()
}

// isClosed returns true once the server has closed the connection.
func isClosed(conn net.Conn) func() bool {
	return func() bool {
		conn.SetReadDeadline(time.Now().Add(50 * time.Millisecond))
		_, err := ioutil.ReadAll(conn)
		if err == nil {
			return true
		}
		ne, ok := err.(net.Error)
		return !ok || !ne.Timeout()
	}
}

var _ = Describe("Server", func() {
	var (
		ctx      context.Context
		cancel   context.CancelFunc
		logger   *logrus.Logger
		mem      *registry.Memory
		res      *resolver.Resolver
		backend  *fakeBackend
		fallback *fakeBackend
	)

	configure := func(doc string, args ...interface{}) {
		ingestor := &ingest.Ingestor{
			Writer: registry.NewWriter(mem),
			Logger: logger,
		}
		Expect(ingestor.Apply(ctx, []byte(fmt.Sprintf(doc, args...)))).To(Equal(ingest.StatusOK))
	}

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())

		logger = logrus.New()
		logger.Out = ioutil.Discard

		backend = newFakeBackend(false)
		fallback = newFakeBackend(false)

		mem = &registry.Memory{}
		res = &resolver.Resolver{
			Registry:        mem,
			Selector:        &resolver.Selector{Registry: mem},
			Logger:          logger,
			FallbackAddress: fallback.Addr(),
		}
	})

	AfterEach(func() {
		cancel()
		backend.Close()
		fallback.Close()
	})

	Context("in backend mode", func() {
		var addr string

		BeforeEach(func() {
			addr = serve(ctx, &passthrough.Server{
				Name:   "passthrough",
				Route:  passthrough.Route(res, passthrough.ModeBackend),
				Logger: logger,
			})
		})

		It("delivers the client hello to the configured endpoint", func() {
			configure(`{"example.com": {"endpoint": "%s", "use_proxy": false}}`, backend.Addr())

			conn := dialTLS(addr, "example.com", nil)
			defer conn.Close()

			var r received
			Eventually(backend.received, "2s").Should(Receive(&r))
			Expect(r.Hello.ServerName).To(Equal("example.com"))
			Expect(r.Hello.Raw[0]).To(Equal(byte(0x16)))
		})

		It("sends unknown hosts to the fallback address", func() {
			configure(`{"example.com": {"endpoint": "%s"}}`, backend.Addr())

			conn := dialTLS(addr, "unknown.example.org", nil)
			defer conn.Close()

			var r received
			Eventually(fallback.received, "2s").Should(Receive(&r))
			Expect(r.Hello.ServerName).To(Equal("unknown.example.org"))
			Consistently(backend.received, "100ms").ShouldNot(Receive())
		})

		It("sends clients without a server name to the fallback address", func() {
			configure(`{"example.com": {"endpoint": "%s"}}`, backend.Addr())

			conn := dialTLS(addr, "", nil)
			defer conn.Close()

			Eventually(fallback.received, "2s").Should(Receive())
		})

		It("closes connections that never send a handshake", func() {
			svrAddr := serve(ctx, &passthrough.Server{
				Name:             "passthrough",
				Route:            passthrough.Route(res, passthrough.ModeBackend),
				Logger:           logger,
				HandshakeTimeout: 50 * time.Millisecond,
			})

			conn, err := net.Dial("tcp", svrAddr)
			Expect(err).ShouldNot(HaveOccurred())
			defer conn.Close()

			Eventually(isClosed(conn), "2s").Should(BeTrue())
		})
	})

	Context("in upstream mode", func() {
		var addr string

		BeforeEach(func() {
			addr = serve(ctx, &passthrough.Server{
				Name:   "passthrough",
				Route:  passthrough.Route(res, passthrough.ModeUpstream),
				Logger: logger,
			})
		})

		It("delivers the client hello to an endpoint from the host's list", func() {
			Expect(mem.Set(ctx, registry.HostKey("example.com"), fmt.Sprintf(`{"endpoints": ["%s"]}`, backend.Addr()))).To(Succeed())

			conn := dialTLS(addr, "example.com", nil)
			defer conn.Close()

			var r received
			Eventually(backend.received, "2s").Should(Receive(&r))
			Expect(r.Hello.ServerName).To(Equal("example.com"))
		})

		It("closes the connection when the host has no endpoint list", func() {
			conn := dialTLS(addr, "example.com", nil)
			defer conn.Close()

			Eventually(isClosed(conn), "2s").Should(BeTrue())
			Expect(backend.received).NotTo(Receive())
			Expect(fallback.received).NotTo(Receive())
		})
	})

	Context("with a proxy-protocol relay", func() {
		var (
			addr      string
			relayAddr string
			proxied   *fakeBackend
		)

		BeforeEach(func() {
			proxied = newFakeBackend(true)

			relayAddr = serve(ctx, &passthrough.Server{
				Name:                 "relay",
				Route:                passthrough.ProxiedRoute(res),
				Logger:               logger,
				AcceptProxyProtocol:  true,
				ProxyProtocolVersion: 2,
			})

			res.RelayAddress = relayAddr

			addr = serve(ctx, &passthrough.Server{
				Name:         "passthrough",
				Route:        passthrough.Route(res, passthrough.ModeBackend),
				Logger:       logger,
				RelayAddress: relayAddr,
			})
		})

		AfterEach(func() {
			proxied.Close()
		})

		It("forwards use_proxy hosts through the relay with the client address", func() {
			configure(`{"example.com": {"endpoint": "%s", "use_proxy": true}}`, proxied.Addr())

			conn := dialTLS(addr, "example.com", nil)
			defer conn.Close()

			var r received
			Eventually(proxied.received, "2s").Should(Receive(&r))
			Expect(r.Hello.ServerName).To(Equal("example.com"))

			client := conn.LocalAddr().(*net.TCPAddr)
			Expect(r.Header.Version).To(Equal(byte(2)))
			Expect(r.Header.SourceAddress.Equal(client.IP)).To(BeTrue())
			Expect(int(r.Header.SourcePort)).To(Equal(client.Port))
		})

		It("writes the addresses from the incoming PROXY header", func() {
			configure(`{"example.com": {"endpoint": "%s", "use_proxy": true}}`, proxied.Addr())

			var buf bytes.Buffer
			Expect(proxyprotocol.WriteHeader(
				&buf,
				1,
				&net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 50000},
				&net.TCPAddr{IP: net.ParseIP("198.51.100.1"), Port: 443},
			)).To(Succeed())

			header, err := proxyproto.Read(bufio.NewReader(&buf))
			Expect(err).ShouldNot(HaveOccurred())

			conn := dialTLS(relayAddr, "example.com", header)
			defer conn.Close()

			var r received
			Eventually(proxied.received, "2s").Should(Receive(&r))
			Expect(r.Header.SourceAddress.String()).To(Equal("192.0.2.10"))
			Expect(r.Header.SourcePort).To(BeNumerically("==", 50000))
			Expect(r.Header.DestinationAddress.String()).To(Equal("198.51.100.1"))
			Expect(r.Header.DestinationPort).To(BeNumerically("==", 443))
		})

		It("denies hosts that are not configured", func() {
			configure(`{"example.com": {"endpoint": "%s", "use_proxy": true}}`, proxied.Addr())

			conn := dialTLS(relayAddr, "unknown.example.org", nil)
			defer conn.Close()

			Eventually(isClosed(conn), "2s").Should(BeTrue())
			Expect(proxied.received).NotTo(Receive())
			Expect(fallback.received).NotTo(Receive())
		})
	})
	Context("with a relay listening on a unix socket", func() {
		var (
			dir      string
			socket   string
			recorder net.Listener
		)

		BeforeEach(func() {
			var err error
			dir, err = ioutil.TempDir("", "sniroute")
			Expect(err).ShouldNot(HaveOccurred())
			socket = filepath.Join(dir, "relay.sock")

			recorder, err = net.Listen("tcp", "127.0.0.1:0")
			Expect(err).ShouldNot(HaveOccurred())

			configure(`{"example.com": {"endpoint": "%s", "use_proxy": true}}`, recorder.Addr().String())
		})

		AfterEach(func() {
			recorder.Close()
			os.RemoveAll(dir)
		})

		DescribeTable(
			"forwards connections without a PROXY header behind an address-less header",
			func(version int, header string) {
				l, err := net.Listen("unix", socket)
				Expect(err).ShouldNot(HaveOccurred())

				go (&passthrough.Server{
					Name:                 "relay",
					Route:                passthrough.ProxiedRoute(res),
					Logger:               logger,
					AcceptProxyProtocol:  true,
					ProxyProtocolVersion: byte(version),
				}).Serve(ctx, l)

				hello := captureClientHello("example.com")
				received := recordFirst(recorder, len(header)+len(hello))

				conn, err := net.Dial("unix", socket)
				Expect(err).ShouldNot(HaveOccurred())
				defer conn.Close()

				_, err = conn.Write(hello)
				Expect(err).ShouldNot(HaveOccurred())

				var data []byte
				Eventually(received, "2s").Should(Receive(&data))
				Expect(string(data[:len(header)])).To(Equal(header))
				Expect(data[len(header):]).To(Equal(hello))
			},
			Entry("version 1", 1, "PROXY UNKNOWN\r\n"),
			Entry("version 2", 2, "\r\n\r\n\x00\r\nQUIT\n\x20\x00\x00\x00"),
		)
	})
})
