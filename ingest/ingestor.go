package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/icecave/sniroute/backend"
	"github.com/icecave/sniroute/metrics"
	"github.com/icecave/sniroute/registry"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout is the default time allowed for a chunked upload to complete.
const DefaultTimeout = 30 * time.Second

// DefaultMaxSize is the default limit on the size of an uploaded document.
const DefaultMaxSize = 16 << 20

// chunkSize is the size of the buffer used by Consume.
const chunkSize = 32 * 1024

var (
	// ErrAbandoned is returned when an upload ends without its last chunk.
	ErrAbandoned = errors.New("configuration upload abandoned")

	// ErrTooLarge is returned when an upload exceeds the size limit.
	ErrTooLarge = errors.New("configuration document too large")
)

// Ingestor replaces the bulk configuration with uploaded documents.
type Ingestor struct {
	Writer  *registry.Writer
	Logger  logrus.FieldLogger
	Metrics *metrics.Metrics

	// Timeout bounds the time taken by Consume. If it is zero, DefaultTimeout
	// is used.
	Timeout time.Duration

	// MaxSize limits the size of an uploaded document in bytes. If it is zero,
	// DefaultMaxSize is used.
	MaxSize int64

	status atomic.Value // Status
}

// Status returns the status of the most recently completed reconfiguration,
// or an empty status if none has completed.
func (in *Ingestor) Status() Status {
	s, _ := in.status.Load().(Status)
	return s
}

// Begin starts a new chunked upload.
func (in *Ingestor) Begin() *Upload {
	return &Upload{ingestor: in, limit: in.maxSize()}
}

// UploadTimeout returns the time allowed for a chunked upload to complete.
func (in *Ingestor) UploadTimeout() time.Duration {
	if in.Timeout > 0 {
		return in.Timeout
	}
	return DefaultTimeout
}

func (in *Ingestor) maxSize() int64 {
	if in.MaxSize > 0 {
		return in.MaxSize
	}
	return DefaultMaxSize
}

// Consume reads an entire document from r as a chunked upload. Reaching EOF
// is the last-chunk signal.
//
// If reading fails, the document exceeds the size limit, or ctx is done or the
// ingestor's timeout elapses before EOF, the upload is abandoned: the registry and status are left untouched and
// an error wrapping ErrAbandoned is returned.
func (in *Ingestor) Consume(ctx context.Context, r io.Reader) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, in.UploadTimeout())
	defer cancel()

	if d, ok := r.(readDeadliner); ok {
		deadline, _ := ctx.Deadline()
		if err := d.SetReadDeadline(deadline); err != nil {
			return "", in.abandon(err)
		}
	}

	upload := in.Begin()
	buf := make([]byte, chunkSize)

	for {
		if err := ctx.Err(); err != nil {
			return "", in.abandon(err)
		}

		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := upload.Write(buf[:n]); werr != nil {
				return "", in.abandon(werr)
			}
		}

		if err == io.EOF {
			return upload.Finish(ctx)
		} else if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			return "", in.abandon(err)
		}
	}
}

// Apply parses doc and, if its top level is valid, publishes the accepted
// entries as the new bulk configuration. Invalid entries are logged and
// dropped. The returned status is also retained for Status().
func (in *Ingestor) Apply(ctx context.Context, doc []byte) Status {
	status := in.apply(ctx, doc)

	in.status.Store(status)
	in.Metrics.Reconfiguration(string(status))
	in.Logger.WithField("status", status).Info("configuration finished")

	return status
}

func (in *Ingestor) apply(ctx context.Context, doc []byte) Status {
	parsed, dropped, err := backend.ParseDocument(doc)
	if err != nil {
		in.Logger.WithError(err).Error("failed configuring data")
		return StatusNOK
	}

	for _, e := range dropped {
		in.Logger.WithField("host", e.Hostname).Warn(e.Error())
	}

	data, err := parsed.Marshal()
	if err != nil {
		in.Logger.WithError(err).Error("failed serializing configuration")
		return StatusNOK
	}

	if err := in.Writer.Set(ctx, registry.BulkKey, string(data)); err != nil {
		in.Logger.WithError(err).Error("failed storing configuration")
		return StatusNOK
	}

	in.Logger.WithFields(logrus.Fields{
		"hosts":   len(parsed),
		"dropped": len(dropped),
	}).Info("configuration applied")

	return StatusOK
}

func (in *Ingestor) abandon(cause error) error {
	in.Logger.WithError(cause).Warn("configuration upload abandoned, registry unchanged")
	return fmt.Errorf("%w: %w", ErrAbandoned, cause)
}

type readDeadliner interface {
	SetReadDeadline(time.Time) error
}
