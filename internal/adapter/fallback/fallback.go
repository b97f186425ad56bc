package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/stream"
)

// Ensure Generator implements adapter.Generator.
var _ adapter.Generator = (*Generator)(nil)

// Generator tries several generators in order. A failed attempt is retried
// only while it has emitted nothing; once text has been relayed the error is
// final, since the client may already have it.
type Generator struct {
	generators []adapter.Generator
	retryCount int
	retryDelay time.Duration
}

// Config holds configuration for the fallback Generator.
type Config struct {
	Generators []adapter.Generator
	RetryCount int           // retries per generator (default: 0)
	RetryDelay time.Duration // delay between retries (default: 500ms)
}

// New creates a fallback Generator.
func New(cfg Config) (*Generator, error) {
	if len(cfg.Generators) == 0 {
		return nil, errors.New("fallback: at least one generator required")
	}
	retryCount := cfg.RetryCount
	if retryCount < 0 {
		retryCount = 0
	}
	retryDelay := cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}
	return &Generator{
		generators: cfg.Generators,
		retryCount: retryCount,
		retryDelay: retryDelay,
	}, nil
}

// Name implements adapter.Generator.
func (f *Generator) Name() string { return f.generators[0].Name() }

// Stream implements adapter.Generator.
func (f *Generator) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	var lastErr error
	attempts := 0

	for idx, g := range f.generators {
		for attempt := 0; attempt <= f.retryCount; attempt++ {
			if err := ctx.Err(); err != nil {
				return err
			}

			emitted := false
			attempts++
			err := g.Stream(ctx, req, func(p []byte) error {
				emitted = true
				return emit(p)
			})
			if err == nil {
				return nil
			}
			if emitted || ctx.Err() != nil {
				return err
			}
			lastErr = fmt.Errorf("generator[%d] %s attempt[%d]: %w", idx, g.Name(), attempt, err)

			if !isRetryableError(err) {
				break
			}
			if attempt < f.retryCount {
				timer := time.NewTimer(f.retryDelay)
				select {
				case <-ctx.Done():
					timer.Stop()
					return ctx.Err()
				case <-timer.C:
				}
			}
		}
	}
	return fmt.Errorf("fallback: all generators failed: %w (attempts: %d)", lastErr, attempts)
}

// isRetryableError reports whether err looks transient: network trouble,
// rate limiting or an upstream 5xx/overload.
func isRetryableError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{
		"timeout",
		"connection refused",
		"connection reset",
		"no such host",
		"temporary failure",
		"rate limit",
		"http 429",
		"too many requests",
		"http 500",
		"http 502",
		"http 503",
		"http 504",
		"http 529",
		"overloaded",
		"service unavailable",
	} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
