package pipeline

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/tokligence/boltstream/internal/envelope"
	"github.com/tokligence/boltstream/internal/stream"
)

// Action is what the transport does about a stream that did not end cleanly.
type Action int

const (
	// RespondServerError replaces the response with a bare 500.
	RespondServerError Action = iota
	// AbortStream tears down a response whose status is already on the wire.
	AbortStream
	// Quiet stops writing; the client is gone.
	Quiet
)

func (a Action) String() string {
	switch a {
	case AbortStream:
		return "abort"
	case Quiet:
		return "quiet"
	default:
		return "server_error"
	}
}

// FailureTranslator maps producer failures to transport outcomes.
type FailureTranslator struct {
	Logger *log.Logger
	// Marker, when set, is written in-band before a committed stream is torn
	// down. HTML responses get it as a comment.
	Marker string
}

// Translate classifies err. Cancellation wins over commitment: once the
// client is gone there is nobody to report to.
func (t FailureTranslator) Translate(err error) Action {
	switch {
	case err == nil:
		return Quiet
	case errors.Is(err, stream.ErrCancelled), errors.Is(err, context.Canceled):
		return Quiet
	case stream.IsCommitted(err):
		return AbortStream
	default:
		return RespondServerError
	}
}

// RespondServerError writes the pre-commit failure response: status 500 and
// an empty body.
func (t FailureTranslator) RespondServerError(w http.ResponseWriter, id, endpoint string, err error) {
	t.logf("stream %s (%s): failed before first byte: %v", id, endpoint, stream.Cause(err))
	w.Header().Set("Content-Length", "0")
	w.WriteHeader(http.StatusInternalServerError)
}

// MarkerBytes returns the in-band failure marker for kind, or nil when none
// is configured.
func (t FailureTranslator) MarkerBytes(kind envelope.Kind) []byte {
	if t.Marker == "" {
		return nil
	}
	if kind == envelope.KindHTML {
		return []byte("<!--" + t.Marker + "-->")
	}
	return []byte(t.Marker)
}

// LogAbort records a committed failure before the connection is dropped.
func (t FailureTranslator) LogAbort(id, endpoint string, err error) {
	var pce *stream.PostCommitError
	if errors.As(err, &pce) {
		t.logf("stream %s (%s): failed after %d bytes, aborting response: %v", id, endpoint, pce.Released, pce.Err)
		return
	}
	t.logf("stream %s (%s): aborting response: %v", id, endpoint, err)
}

func (t FailureTranslator) logf(format string, args ...any) {
	if t.Logger != nil {
		t.Logger.Printf(format, args...)
	}
}
