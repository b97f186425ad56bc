package stream

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned to a producer that pushes after the bridge reached a terminal state.
	ErrClosed = errors.New("stream: closed")
	// ErrCancelled is observed by both sides once the consumer cancelled the stream.
	ErrCancelled = errors.New("stream: cancelled")
	// ErrAlreadyOpen is returned when Open is called more than once.
	ErrAlreadyOpen = errors.New("stream: already open")
	// ErrNotOpen is returned to a producer that pushes a chunk before Open.
	ErrNotOpen = errors.New("stream: not open")
	// ErrNilProducer is returned by Open when no producer is supplied.
	ErrNilProducer = errors.New("stream: nil producer")
)

// PreCommitError reports a producer failure observed before any byte was
// released to the consumer. The response can still be replaced wholesale.
type PreCommitError struct {
	Err error
}

func (e *PreCommitError) Error() string {
	return fmt.Sprintf("stream: failed before first byte: %v", e.Err)
}

func (e *PreCommitError) Unwrap() error { return e.Err }

// PostCommitError reports a producer failure observed after bytes were
// released. Status and headers are already on the wire.
type PostCommitError struct {
	Err      error
	Released int64
}

func (e *PostCommitError) Error() string {
	return fmt.Sprintf("stream: failed after %d bytes: %v", e.Released, e.Err)
}

func (e *PostCommitError) Unwrap() error { return e.Err }

// IsCommitted reports whether err is a failure that happened after commitment.
func IsCommitted(err error) bool {
	var pce *PostCommitError
	return errors.As(err, &pce)
}

// Cause strips the commit classification and returns the producer's error.
func Cause(err error) error {
	var pre *PreCommitError
	if errors.As(err, &pre) {
		return pre.Err
	}
	var post *PostCommitError
	if errors.As(err, &post) {
		return post.Err
	}
	return err
}
