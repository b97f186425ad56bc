package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Reader is the pull side of a Bridge. It is not safe for concurrent use.
type Reader struct {
	b   *Bridge
	ctx context.Context
	buf []byte
}

// Ensure Reader implements io.ReadCloser.
var _ io.ReadCloser = (*Reader)(nil)

// Next returns the next chunk as emitted by the producer (envelope bytes are
// chunks of their own). It returns io.EOF after a clean end, ErrCancelled
// after cancellation, and a *PreCommitError or *PostCommitError on failure.
func (r *Reader) Next(ctx context.Context) ([]byte, error) {
	if len(r.buf) > 0 {
		chunk := r.buf
		r.buf = nil
		return chunk, nil
	}
	return r.b.next(ctx)
}

// Read implements io.Reader using the context given to Open.
func (r *Reader) Read(p []byte) (int, error) {
	for len(r.buf) == 0 {
		chunk, err := r.b.next(r.ctx)
		if err != nil {
			return 0, err
		}
		r.buf = chunk
	}
	n := copy(p, r.buf)
	r.buf = r.buf[n:]
	return n, nil
}

// Close cancels the stream from the consumer side.
func (r *Reader) Close() error {
	r.buf = nil
	r.b.Cancel()
	return nil
}

// Bridge returns the bridge this reader pulls from.
func (r *Reader) Bridge() *Bridge { return r.b }

// Collect runs p to completion and returns everything it produced. Nothing
// reaches a transport before Collect returns, so every failure comes back as
// a *PreCommitError and partial output is discarded.
func Collect(ctx context.Context, p Producer, opts ...Option) ([]byte, error) {
	b := New(opts...)
	rd, err := b.Open(ctx, p)
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	var out bytes.Buffer
	for {
		chunk, err := rd.Next(ctx)
		switch {
		case err == nil:
			out.Write(chunk)
		case err == io.EOF:
			return out.Bytes(), nil
		case errors.Is(err, ErrCancelled):
			return nil, err
		default:
			return nil, &PreCommitError{Err: Cause(err)}
		}
	}
}
