package stream

import "context"

// Sink receives pushed content. The Bridge is the only implementation the
// pipeline uses; producers see it through this interface.
type Sink interface {
	// Chunk relays data in emission order. The slice is copied, so callers
	// may reuse it. A non-nil error means the stream is closed or cancelled
	// and the producer should stop.
	Chunk(data []byte) error
	// End signals a clean end of content.
	End()
	// Fail signals that the producer gave up.
	Fail(err error)
}

// Producer pushes content into a Sink at its own pace.
//
// Start may block until production is over or return early and keep pushing
// from elsewhere; either way it must eventually call End or Fail, or return a
// non-nil error (treated as Fail). ctx is cancelled when the consumer goes away.
type Producer interface {
	Start(ctx context.Context, sink Sink) error
}

// ProducerFunc adapts a function to the Producer interface.
type ProducerFunc func(ctx context.Context, sink Sink) error

// Start calls f(ctx, sink).
func (f ProducerFunc) Start(ctx context.Context, sink Sink) error { return f(ctx, sink) }

// Emitter pushes one fragment. It is Sink.Chunk seen from a blocking producer.
type Emitter func(data []byte) error

// Blocking adapts a run-to-completion function into a Producer: every emit is
// relayed as a chunk, a nil return ends the stream, a non-nil return fails it.
func Blocking(fn func(ctx context.Context, emit Emitter) error) Producer {
	return ProducerFunc(func(ctx context.Context, sink Sink) error {
		if err := fn(ctx, sink.Chunk); err != nil {
			return err
		}
		sink.End()
		return nil
	})
}

// Envelope holds structural bytes wrapped around producer output.
// A zero Envelope is a passthrough.
type Envelope struct {
	Open  []byte
	Close []byte
}
