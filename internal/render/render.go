// Package render produces page markup for the document root container.
package render

import (
	"context"
	"html"
	"strings"

	"github.com/tokligence/boltstream/internal/stream"
)

// Renderer emits the markup for one page, fragment by fragment. Render
// returns once the page is complete or ctx is done; a non-nil error means the
// page is unusable.
type Renderer interface {
	Render(ctx context.Context, url string, emit stream.Emitter) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(ctx context.Context, url string, emit stream.Emitter) error

// Render calls f(ctx, url, emit).
func (f RendererFunc) Render(ctx context.Context, url string, emit stream.Emitter) error {
	return f(ctx, url, emit)
}

// Producer runs r for url as a stream producer.
func Producer(r Renderer, url string) stream.Producer {
	return stream.Blocking(func(ctx context.Context, emit stream.Emitter) error {
		return r.Render(ctx, url, emit)
	})
}

// RenderToString renders the whole page before returning it.
func RenderToString(ctx context.Context, r Renderer, url string) (string, error) {
	out, err := stream.Collect(ctx, Producer(r, url))
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Head returns the markup placed inside <head>.
func Head(title string) string {
	var b strings.Builder
	b.WriteString(`<meta charset="utf-8">`)
	b.WriteString(`<meta name="viewport" content="width=device-width,initial-scale=1">`)
	b.WriteString(`<title>`)
	b.WriteString(html.EscapeString(title))
	b.WriteString(`</title>`)
	b.WriteString(`<link rel="icon" href="/favicon.svg" type="image/svg+xml">`)
	b.WriteString(`<link rel="stylesheet" href="/assets/app.css">`)
	return b.String()
}
