package loopback

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/stream"
)

// Ensure Generator implements adapter.Generator.
var _ adapter.Generator = (*Generator)(nil)

// Generator echoes the last user message back, one word per chunk.
type Generator struct {
	// Delay is slept between chunks.
	Delay time.Duration
}

// New creates a loopback Generator.
func New() *Generator {
	return &Generator{}
}

// Name implements adapter.Generator.
func (g *Generator) Name() string { return "loopback" }

// Stream fabricates a deterministic reply for exercising the pipeline offline.
func (g *Generator) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	message, ok := llm.LastUserMessage(req.Messages)
	if !ok {
		return errors.New("loopback: no messages provided")
	}
	reply := "[loopback] " + strings.TrimSpace(message.Content)

	for _, word := range strings.SplitAfter(reply, " ") {
		if word == "" {
			continue
		}
		if g.Delay > 0 {
			timer := time.NewTimer(g.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		} else if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit([]byte(word)); err != nil {
			return err
		}
	}
	return nil
}
