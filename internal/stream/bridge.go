// Package stream adapts push-style content producers to pull-style consumers.
//
// A Bridge owns one request's stream. The producer runs on its own goroutine
// and pushes chunks whenever it likes; the consumer (usually the HTTP writer)
// pulls them when the transport is ready. Between the two sits an unbounded
// FIFO relay queue guarded by a small state machine, so the consumer observes
// chunks and the single terminal event in exactly the order they were emitted.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
)

// Ensure Bridge implements Sink.
var _ Sink = (*Bridge)(nil)

// Bridge relays chunks from one Producer to one consumer.
// It is safe for concurrent use by the producer and a single consumer.
type Bridge struct {
	envelope    Envelope
	logger      *log.Logger
	onFirstByte func()
	id          string

	mu        sync.Mutex
	state     State
	queue     [][]byte
	opened    bool  // envelope open queued
	done      bool  // terminal event queued behind the chunks
	term      error // nil on clean end
	cancelled bool
	released  int64
	stop      context.CancelFunc
	ctx       context.Context // given to Open
	unwatch   func() bool
	notify    chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithEnvelope wraps producer output in env. Open bytes are released right
// before the first chunk; Close bytes only after a clean end.
func WithEnvelope(env Envelope) Option {
	return func(b *Bridge) { b.envelope = env }
}

// WithLogger sets the logger used for producer panics.
func WithLogger(logger *log.Logger) Option {
	return func(b *Bridge) { b.logger = logger }
}

// WithOnFirstByte registers a hook invoked once, on the consumer goroutine,
// when the first bytes are released (the commit point).
func WithOnFirstByte(fn func()) Option {
	return func(b *Bridge) { b.onFirstByte = fn }
}

// WithID tags the bridge for log lines.
func WithID(id string) Option {
	return func(b *Bridge) { b.id = id }
}

// New creates a pending Bridge.
func New(opts ...Option) *Bridge {
	b := &Bridge{notify: make(chan struct{}, 1)}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Open moves the bridge to producing, starts p on its own goroutine and
// returns the pull handle immediately, before any content exists.
func (b *Bridge) Open(ctx context.Context, p Producer) (*Reader, error) {
	if p == nil {
		return nil, ErrNilProducer
	}
	b.mu.Lock()
	if b.state != StatePending {
		state := b.state
		b.mu.Unlock()
		if state.IsTerminal() {
			return nil, ErrClosed
		}
		return nil, ErrAlreadyOpen
	}
	pctx, cancel := context.WithCancel(ctx)
	b.stop = cancel
	b.ctx = ctx
	b.state = StateProducing
	b.unwatch = context.AfterFunc(ctx, func() { b.abandon(ctx.Err()) })
	b.mu.Unlock()

	go b.run(pctx, p)
	return &Reader{b: b, ctx: ctx}, nil
}

func (b *Bridge) run(ctx context.Context, p Producer) {
	defer func() {
		if r := recover(); r != nil {
			if b.logger != nil {
				b.logger.Printf("stream %s: producer panic: %v", b.id, r)
			}
			b.Fail(fmt.Errorf("stream: producer panic: %v", r))
		}
	}()
	if err := p.Start(ctx, b); err != nil {
		b.Fail(err)
	}
}

// Chunk queues data for the consumer. It never waits for the consumer.
// Empty chunks carry nothing and are skipped.
func (b *Bridge) Chunk(data []byte) error {
	b.mu.Lock()
	if b.ctx != nil && b.ctx.Err() != nil && !b.state.IsTerminal() {
		b.mu.Unlock()
		b.abandon(b.ctx.Err())
		b.mu.Lock()
	}
	defer b.mu.Unlock()
	switch {
	case b.cancelled:
		return ErrCancelled
	case b.state == StatePending:
		return ErrNotOpen
	case b.state != StateProducing:
		return ErrClosed
	}
	if len(data) == 0 {
		return nil
	}
	b.openEnvelopeLocked()
	b.queue = append(b.queue, clone(data))
	b.signalLocked()
	return nil
}

// End completes the stream. Only the first terminal signal counts.
func (b *Bridge) End() {
	b.mu.Lock()
	if b.state != StateProducing {
		b.mu.Unlock()
		return
	}
	b.openEnvelopeLocked()
	if len(b.envelope.Close) > 0 {
		b.queue = append(b.queue, clone(b.envelope.Close))
	}
	b.state = StateCompleted
	b.done = true
	b.term = nil
	b.signalLocked()
	b.mu.Unlock()
	b.release()
}

// Fail moves the bridge to errored. When nothing has been released yet any
// queued output is discarded, so the consumer can still answer with a clean
// error response.
func (b *Bridge) Fail(err error) {
	if err == nil {
		err = errors.New("stream: producer failed")
	}
	b.mu.Lock()
	if b.state.IsTerminal() {
		b.mu.Unlock()
		return
	}
	b.state = StateErrored
	if b.released == 0 {
		b.queue = nil
	}
	b.done = true
	b.term = err
	b.signalLocked()
	b.mu.Unlock()
	b.release()
}

// Cancel is the consumer-side stop. It cancels the producer's context before
// returning, refuses further chunks and drops anything not yet released.
// Safe to call at any time and more than once.
func (b *Bridge) Cancel() {
	b.mu.Lock()
	if b.cancelled {
		b.mu.Unlock()
		return
	}
	b.cancelled = true
	b.queue = nil
	if !b.state.IsTerminal() {
		b.state = StateErrored
	}
	b.signalLocked()
	b.mu.Unlock()
	b.release()
}

// abandon reacts to the end of the Open context: a deadline fails the
// stream, anything else cancels it.
func (b *Bridge) abandon(err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		b.Fail(fmt.Errorf("stream: %w", err))
		return
	}
	b.Cancel()
}

// release stops the producer context and the Open context watch.
func (b *Bridge) release() {
	b.mu.Lock()
	stop, unwatch := b.stop, b.unwatch
	b.mu.Unlock()
	if stop != nil {
		stop()
	}
	if unwatch != nil {
		unwatch()
	}
}

// State returns the current lifecycle state.
func (b *Bridge) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Committed reports whether any byte has been released to the consumer.
func (b *Bridge) Committed() bool {
	return b.BytesReleased() > 0
}

// BytesReleased returns the number of bytes handed to the consumer so far.
func (b *Bridge) BytesReleased() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.released
}

// ID returns the tag set with WithID.
func (b *Bridge) ID() string { return b.id }

func (b *Bridge) openEnvelopeLocked() {
	if b.opened {
		return
	}
	b.opened = true
	if len(b.envelope.Open) > 0 {
		b.queue = append(b.queue, clone(b.envelope.Open))
	}
}

func (b *Bridge) signalLocked() {
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// next pops the next chunk, blocking until one is available, the stream
// terminates or ctx is done. A deadline on ctx counts as a producer failure;
// any other ctx end is a cancellation.
func (b *Bridge) next(ctx context.Context) ([]byte, error) {
	for {
		for _, c := range []context.Context{b.ctx, ctx} {
			if c == nil || c.Err() == nil {
				continue
			}
			b.abandon(c.Err())
		}
		b.mu.Lock()
		if b.cancelled {
			b.mu.Unlock()
			return nil, ErrCancelled
		}
		if len(b.queue) > 0 {
			chunk := b.queue[0]
			b.queue[0] = nil
			b.queue = b.queue[1:]
			first := b.released == 0
			b.released += int64(len(chunk))
			b.mu.Unlock()
			if first && b.onFirstByte != nil {
				b.onFirstByte()
			}
			return chunk, nil
		}
		if b.done {
			term, released := b.term, b.released
			b.mu.Unlock()
			switch {
			case term == nil:
				return nil, io.EOF
			case released == 0:
				return nil, &PreCommitError{Err: term}
			default:
				return nil, &PostCommitError{Err: term, Released: released}
			}
		}
		b.mu.Unlock()

		select {
		case <-b.notify:
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				b.Fail(fmt.Errorf("stream: %w", ctx.Err()))
				continue
			}
			b.Cancel()
			return nil, ErrCancelled
		}
	}
}

func clone(p []byte) []byte {
	out := make([]byte, len(p))
	copy(out, p)
	return out
}
