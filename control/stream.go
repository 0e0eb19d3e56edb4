package control

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/icecave/sniroute/ingest"
	"github.com/sirupsen/logrus"
)

// StreamServer accepts bulk configuration documents over raw stream
// connections. Everything a client sends before half-closing its connection
// is one upload; the server replies with the resulting status and closes the
// connection. Nothing is written back for abandoned uploads.
type StreamServer struct {
	Ingestor *ingest.Ingestor
	Logger   logrus.FieldLogger
}

// Serve accepts connections on listener until ctx is canceled or the listener
// fails.
func (svr *StreamServer) Serve(ctx context.Context, listener net.Listener) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	svr.Logger.WithField("address", listener.Addr().String()).Info("configuration stream: listening")

	var group sync.WaitGroup
	defer group.Wait()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		group.Add(1)
		go func() {
			defer group.Done()
			svr.handle(ctx, conn)
		}()
	}
}

func (svr *StreamServer) handle(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	logger := svr.Logger.WithField("remote", conn.RemoteAddr().String())

	status, err := svr.Ingestor.Consume(ctx, conn)
	if err != nil {
		logger.WithError(err).Debug("configuration stream closed without a document")
		return
	}

	if _, err := io.WriteString(conn, string(status)); err != nil {
		logger.WithError(err).Warn("could not send configuration status")
	}
}
