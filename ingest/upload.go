package ingest

import (
	"bytes"
	"context"
	"errors"
)

// ErrUploadFinished is returned when writing to, or finishing, an upload that
// has already been finished.
var ErrUploadFinished = errors.New("configuration upload already finished")

// Upload accumulates the chunks of a configuration document. Nothing is parsed
// until Finish is called.
//
// An Upload is not safe for concurrent use.
type Upload struct {
	ingestor *Ingestor
	buf      bytes.Buffer
	limit    int64
	finished bool
}

// Write appends a chunk to the document. A chunk that would take the document
// over the ingestor's size limit is rejected with ErrTooLarge.
func (u *Upload) Write(chunk []byte) (int, error) {
	if u.finished {
		return 0, ErrUploadFinished
	}

	if u.limit > 0 && int64(u.buf.Len()+len(chunk)) > u.limit {
		return 0, ErrTooLarge
	}

	return u.buf.Write(chunk)
}

// Len returns the number of bytes received so far.
func (u *Upload) Len() int {
	return u.buf.Len()
}

// Finish signals that the last chunk has been received, and applies the
// document.
func (u *Upload) Finish(ctx context.Context) (Status, error) {
	if u.finished {
		return "", ErrUploadFinished
	}
	u.finished = true

	status := u.ingestor.Apply(ctx, u.buf.Bytes())
	u.buf.Reset()

	return status, nil
}
