package control_test

import (
	"context"
	"io"
	"io/ioutil"
	"net"

	"github.com/icecave/sniroute/control"
	"github.com/icecave/sniroute/ingest"
	"github.com/icecave/sniroute/registry"
	"github.com/sirupsen/logrus"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("StreamServer", func() {
	var (
		cancel   context.CancelFunc
		mem      *registry.Memory
		ingestor *ingest.Ingestor
		addr     string
	)

	BeforeEach(func() {
		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())

		logger := logrus.New()
		logger.Out = ioutil.Discard

		mem = &registry.Memory{}
		ingestor = &ingest.Ingestor{
			Writer:  registry.NewWriter(mem),
			Logger:  logger,
			MaxSize: 64,
		}

		l, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).ShouldNot(HaveOccurred())
		addr = l.Addr().String()

		svr := &control.StreamServer{
			Ingestor: ingestor,
			Logger:   logger,
		}
		go svr.Serve(ctx, l)
	})

	AfterEach(func() {
		cancel()
	})

	upload := func(chunks ...string) string {
		conn, err := net.Dial("tcp", addr)
		Expect(err).ShouldNot(HaveOccurred())
		defer conn.Close()

		for _, c := range chunks {
			_, err := io.WriteString(conn, c)
			Expect(err).ShouldNot(HaveOccurred())
		}

		Expect(conn.(*net.TCPConn).CloseWrite()).To(Succeed())

		reply, err := ioutil.ReadAll(conn)
		Expect(err).ShouldNot(HaveOccurred())

		return string(reply)
	}

	It("applies a document sent in several chunks", func() {
		reply := upload(`{"a.com": `, `{"endpoint": `, `"10.0.0.1:443"}}`)

		Expect(reply).To(Equal("OK"))
		Expect(ingestor.Status()).To(Equal(ingest.StatusOK))
		Expect(mem.Len(registry.Bulk)).To(Equal(1))
	})

	It("replies NOK for an invalid document", func() {
		Expect(upload(`"just a string"`)).To(Equal("NOK"))
	})

	It("leaves the registry untouched when the client disconnects early", func() {
		conn, err := net.Dial("tcp", addr)
		Expect(err).ShouldNot(HaveOccurred())

		io.WriteString(conn, `{"a.com": {"endpoint": `)
		conn.(*net.TCPConn).SetLinger(0)
		conn.Close()

		Consistently(mem.Generation, "100ms").Should(BeNumerically("==", 0))
		Expect(ingestor.Status()).To(Equal(ingest.Status("")))
	})

	It("closes the connection without a reply when the document is too large", func() {
		conn, err := net.Dial("tcp", addr)
		Expect(err).ShouldNot(HaveOccurred())
		defer conn.Close()

		io.WriteString(conn, `{"a.com": {"endpoint": "10.0.0.1:443"}, "b.com": {"endpoint": "10.0.0.2:443"}}`)
		conn.(*net.TCPConn).CloseWrite()

		reply, _ := ioutil.ReadAll(conn)
		Expect(reply).To(BeEmpty())
		Expect(mem.Generation()).To(BeNumerically("==", 0))
		Expect(ingestor.Status()).To(Equal(ingest.Status("")))
	})
})
