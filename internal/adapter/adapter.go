package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/metrics"
	"github.com/tokligence/boltstream/internal/stream"
)

// Generator streams model output for a conversation. Each emit carries one
// text delta; returning nil means the model finished normally.
type Generator interface {
	Name() string
	Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error
}

// Producer runs g for req as a stream producer.
func Producer(g Generator, req llm.Request) stream.Producer {
	return stream.Blocking(func(ctx context.Context, emit stream.Emitter) error {
		return g.Stream(ctx, req, emit)
	})
}

// Instrument records call counts, errors and latency of g.
func Instrument(g Generator, m *metrics.Collector) Generator {
	if m == nil {
		return g
	}
	return &instrumented{Generator: g, metrics: m}
}

type instrumented struct {
	Generator
	metrics *metrics.Collector
}

func (i *instrumented) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	start := time.Now()
	err := i.Generator.Stream(ctx, req, emit)
	recorded := err
	if errors.Is(err, context.Canceled) || errors.Is(err, stream.ErrCancelled) {
		recorded = nil
	}
	i.metrics.RecordGeneratorRequest(i.Name(), time.Since(start), recorded)
	return err
}
