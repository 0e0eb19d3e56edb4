package passthrough

import (
	"net"
	"time"

	humanize "github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
)

// session records what happened to a single client connection.
type session struct {
	Remote   string
	Hostname string
	Endpoint string

	// BytesIn is the number of bytes sent by the client, including the
	// replayed handshake.
	BytesIn int64

	// BytesOut is the number of bytes sent by the backend.
	BytesOut int64

	StartedAt time.Time
}

func (s *session) fields() logrus.Fields {
	f := logrus.Fields{
		"remote": s.Remote,
		"host":   s.Hostname,
	}

	if s.Endpoint != "" {
		f["endpoint"] = s.Endpoint
	}

	return f
}

// log writes the connection summary once the connection is closed.
func (s *session) log(logger logrus.FieldLogger, err error) {
	entry := logger.WithFields(s.fields()).WithFields(logrus.Fields{
		"duration": time.Since(s.StartedAt).Round(time.Millisecond).String(),
		"in":       humanize.Bytes(uint64(s.BytesIn)),
		"out":      humanize.Bytes(uint64(s.BytesOut)),
	})

	if err != nil {
		entry.WithError(err).Debug("connection closed")
		return
	}

	entry.Debug("connection closed")
}

// remoteName formats a peer address for logs. Unix socket peers are often
// unnamed.
func remoteName(addr net.Addr) string {
	if addr == nil || addr.String() == "" {
		return "local"
	}
	return addr.String()
}
