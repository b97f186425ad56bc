package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testEnvelope = Envelope{Open: []byte("<open>"), Close: []byte("<close>")}

// drain pulls until a terminal error and returns the chunks seen.
func drain(t *testing.T, rd *Reader) ([]string, error) {
	t.Helper()
	var got []string
	for {
		chunk, err := rd.Next(context.Background())
		if err != nil {
			return got, err
		}
		got = append(got, string(chunk))
	}
}

// pushAll emits every chunk and then ends the stream.
func pushAll(chunks ...string) Producer {
	return ProducerFunc(func(ctx context.Context, sink Sink) error {
		for _, c := range chunks {
			if err := sink.Chunk([]byte(c)); err != nil {
				return err
			}
		}
		sink.End()
		return nil
	})
}

func TestBridgeRelaysChunksInOrderInsideEnvelope(t *testing.T) {
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), pushAll("a", "b", "c"))
	require.NoError(t, err)

	got, err := drain(t, rd)
	require.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"<open>", "a", "b", "c", "<close>"}, got)
	assert.Equal(t, StateCompleted, b.State())
	assert.Equal(t, int64(len("<open>abc<close>")), b.BytesReleased())
}

func TestBridgeQueuesWhileConsumerIsSlow(t *testing.T) {
	const n = 2000
	produced := make(chan struct{})
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		for i := 0; i < n; i++ {
			assert.NoError(t, sink.Chunk([]byte(fmt.Sprintf("%d,", i))))
		}
		sink.End()
		close(produced)
		return nil
	}))
	require.NoError(t, err)

	// The producer must finish without a single pull from the consumer.
	select {
	case <-produced:
	case <-time.After(5 * time.Second):
		t.Fatal("producer blocked on a consumer that never pulled")
	}

	got, err := drain(t, rd)
	require.Equal(t, io.EOF, err)
	require.Len(t, got, n)
	for i, c := range got {
		require.Equal(t, fmt.Sprintf("%d,", i), c)
	}
}

func TestBridgeCopiesChunkData(t *testing.T) {
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		buf := []byte("one")
		_ = sink.Chunk(buf)
		copy(buf, "two")
		_ = sink.Chunk(buf)
		sink.End()
		return nil
	}))
	require.NoError(t, err)

	got, err := drain(t, rd)
	require.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"one", "two"}, got)
}

func TestBridgeForwardsAtMostOneTerminalSignal(t *testing.T) {
	var lateChunk error
	finished := make(chan struct{})
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		defer close(finished)
		_ = sink.Chunk([]byte("x"))
		sink.End()
		sink.End()
		sink.Fail(errors.New("late failure"))
		lateChunk = sink.Chunk([]byte("late"))
		return errors.New("late return error")
	}))
	require.NoError(t, err)

	got, err := drain(t, rd)
	require.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"<open>", "x", "<close>"}, got)
	<-finished
	assert.ErrorIs(t, lateChunk, ErrClosed)
	assert.Equal(t, StateCompleted, b.State())

	// Further pulls keep reporting the same terminal event.
	_, err = rd.Next(context.Background())
	assert.Equal(t, io.EOF, err)
}

func TestBridgeFailureBeforeFirstByteIsPreCommit(t *testing.T) {
	boom := errors.New("render exploded")
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		return boom
	}))
	require.NoError(t, err)

	got, err := drain(t, rd)
	assert.Empty(t, got, "no envelope bytes may leak before a failure")
	var pre *PreCommitError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, boom)
	assert.False(t, IsCommitted(err))
	assert.False(t, b.Committed())
	assert.Equal(t, StateErrored, b.State())
}

func TestBridgeFailureDiscardsUnreleasedChunks(t *testing.T) {
	boom := errors.New("upstream reset")
	finished := make(chan struct{})
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		defer close(finished)
		_ = sink.Chunk([]byte("partial"))
		sink.Fail(boom)
		return nil
	}))
	require.NoError(t, err)
	<-finished

	got, err := drain(t, rd)
	assert.Empty(t, got)
	var pre *PreCommitError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, boom)
}

func TestBridgeFailureAfterFirstByteIsPostCommit(t *testing.T) {
	boom := errors.New("render exploded mid-way")
	proceed := make(chan struct{})
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		_ = sink.Chunk([]byte("<p>"))
		<-proceed
		sink.Fail(boom)
		return nil
	}))
	require.NoError(t, err)

	chunk, err := rd.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<open>", string(chunk))
	chunk, err = rd.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "<p>", string(chunk))
	close(proceed)

	got, err := drain(t, rd)
	assert.Empty(t, got, "close envelope must not follow a failure")
	var post *PostCommitError
	require.ErrorAs(t, err, &post)
	assert.Equal(t, int64(len("<open><p>")), post.Released)
	assert.True(t, IsCommitted(err))
	assert.ErrorIs(t, Cause(err), boom)
}

func TestBridgeCancelStopsProducerBeforeFirstChunk(t *testing.T) {
	stopped := make(chan error, 1)
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		<-ctx.Done()
		stopped <- sink.Chunk([]byte("too late"))
		return ctx.Err()
	}))
	require.NoError(t, err)

	b.Cancel()
	b.Cancel()

	select {
	case err := <-stopped:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(5 * time.Second):
		t.Fatal("producer context was not cancelled")
	}
	got, err := drain(t, rd)
	assert.Empty(t, got)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, StateErrored, b.State())
	assert.False(t, b.Committed())
}

func TestBridgeCancelDropsQueuedChunks(t *testing.T) {
	queued := make(chan struct{})
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		_ = sink.Chunk([]byte("first"))
		_ = sink.Chunk([]byte("second"))
		close(queued)
		<-ctx.Done()
		return nil
	}))
	require.NoError(t, err)

	chunk, err := rd.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", string(chunk))
	<-queued

	require.NoError(t, rd.Close())
	_, err = rd.Next(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
}

func TestBridgeConsumerContextCancellation(t *testing.T) {
	producerCtx := make(chan context.Context, 1)
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		producerCtx <- ctx
		<-ctx.Done()
		return ctx.Err()
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	pctx := <-producerCtx
	cancel()
	_, err = rd.Next(ctx)
	assert.ErrorIs(t, err, ErrCancelled)
	select {
	case <-pctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("producer context still live after consumer cancellation")
	}
}

func TestBridgeRefusesChunksAfterOpenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	emitted := make(chan error, 1)
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(ctx, ProducerFunc(func(pctx context.Context, sink Sink) error {
		<-pctx.Done()
		emitted <- sink.Chunk([]byte("after-cancel"))
		return nil
	}))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-emitted:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("producer never saw cancellation")
	}

	chunk, err := rd.Next(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Nil(t, chunk)
	assert.Zero(t, b.BytesReleased())
	assert.Equal(t, StateErrored, b.State())
}

func TestBridgeDropsQueuedChunksWhenOpenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	queued := make(chan struct{})
	b := New()
	rd, err := b.Open(ctx, ProducerFunc(func(pctx context.Context, sink Sink) error {
		_ = sink.Chunk([]byte("queued"))
		close(queued)
		<-pctx.Done()
		return nil
	}))
	require.NoError(t, err)
	<-queued

	cancel()
	_, err = rd.Next(context.Background())
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Zero(t, b.BytesReleased())
}

func TestBridgeDeadlineIsAFailure(t *testing.T) {
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		<-ctx.Done()
		return nil
	}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = rd.Next(ctx)
	var pre *PreCommitError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBridgeRecoversProducerPanic(t *testing.T) {
	b := New()
	rd, err := b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		panic("renderer bug")
	}))
	require.NoError(t, err)

	_, err = rd.Next(context.Background())
	var pre *PreCommitError
	require.ErrorAs(t, err, &pre)
	assert.Contains(t, err.Error(), "renderer bug")
}

func TestBridgeOpenGuards(t *testing.T) {
	b := New()
	_, err := b.Open(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNilProducer)

	_, err = b.Open(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		<-ctx.Done()
		return nil
	}))
	require.NoError(t, err)
	_, err = b.Open(context.Background(), pushAll("x"))
	assert.ErrorIs(t, err, ErrAlreadyOpen)
	b.Cancel()
	_, err = b.Open(context.Background(), pushAll("x"))
	assert.ErrorIs(t, err, ErrClosed)

	pending := New()
	assert.ErrorIs(t, pending.Chunk([]byte("x")), ErrNotOpen)
	pending.Fail(errors.New("never started"))
	assert.Equal(t, StateErrored, pending.State())
}

func TestBridgeOnFirstByteFiresOnce(t *testing.T) {
	var calls atomic.Int32
	b := New(WithEnvelope(testEnvelope), WithOnFirstByte(func() { calls.Add(1) }))
	rd, err := b.Open(context.Background(), pushAll("a", "b"))
	require.NoError(t, err)
	_, err = drain(t, rd)
	require.Equal(t, io.EOF, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestBridgeEmptyProducerStillEmitsEnvelope(t *testing.T) {
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), pushAll())
	require.NoError(t, err)
	got, err := drain(t, rd)
	require.Equal(t, io.EOF, err)
	assert.Equal(t, []string{"<open>", "<close>"}, got)
}

func TestReaderImplementsIOReader(t *testing.T) {
	b := New(WithEnvelope(testEnvelope))
	rd, err := b.Open(context.Background(), pushAll("Hi", " there"))
	require.NoError(t, err)

	data, err := io.ReadAll(io.LimitReader(rd, 1<<20))
	require.NoError(t, err)
	assert.Equal(t, "<open>Hi there<close>", string(data))
}

func TestCollect(t *testing.T) {
	out, err := Collect(context.Background(), pushAll("<div>", "hello", "</div>"))
	require.NoError(t, err)
	assert.Equal(t, "<div>hello</div>", string(out))

	boom := errors.New("half rendered")
	out, err = Collect(context.Background(), ProducerFunc(func(ctx context.Context, sink Sink) error {
		_ = sink.Chunk([]byte("<div>"))
		return boom
	}))
	assert.Nil(t, out)
	var pre *PreCommitError
	require.ErrorAs(t, err, &pre)
	assert.ErrorIs(t, err, boom)
}

func TestBlockingProducer(t *testing.T) {
	p := Blocking(func(ctx context.Context, emit Emitter) error {
		for _, s := range []string{"a", "b"} {
			if err := emit([]byte(s)); err != nil {
				return err
			}
		}
		return nil
	})
	out, err := Collect(context.Background(), p)
	require.NoError(t, err)
	assert.Equal(t, "ab", string(out))
}
