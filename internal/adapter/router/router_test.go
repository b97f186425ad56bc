package router

import (
	"context"
	"testing"

	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/stream"
)

type named string

func (n named) Name() string { return string(n) }

func (n named) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	return emit([]byte(string(n)))
}

func newRouter(t *testing.T) *Router {
	t.Helper()
	r := New()
	for _, name := range []string{"anthropic", "loopback", "haiku"} {
		if err := r.Register(name, named(name)); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	mustRoute := func(pattern, name string) {
		if err := r.Route(pattern, name); err != nil {
			t.Fatalf("Route(%q): %v", pattern, err)
		}
	}
	mustRoute("claude-*", "anthropic")
	mustRoute("claude-haiku-*", "haiku")
	mustRoute("loopback", "loopback")
	return r
}

func TestSelect(t *testing.T) {
	r := newRouter(t)
	if err := r.SetFallback("loopback"); err != nil {
		t.Fatalf("SetFallback: %v", err)
	}

	tests := []struct {
		model string
		want  string
	}{
		{"claude-sonnet-4-5", "anthropic"},
		{"Claude-Haiku-4-5-20251001", "haiku"},
		{"loopback", "loopback"},
		{"", "loopback"},
		{"gpt-4o", "loopback"},
	}
	for _, tt := range tests {
		g, err := r.Select(tt.model)
		if err != nil {
			t.Fatalf("Select(%q): %v", tt.model, err)
		}
		if g.Name() != tt.want {
			t.Errorf("Select(%q) = %s, want %s", tt.model, g.Name(), tt.want)
		}
	}
}

func TestSelectWithoutFallback(t *testing.T) {
	r := newRouter(t)
	if _, err := r.Select("gpt-4o"); err == nil {
		t.Fatalf("expected error for unrouted model")
	}
}

func TestStreamForwards(t *testing.T) {
	r := newRouter(t)
	var got string
	err := r.Stream(context.Background(), llm.Request{Model: "claude-opus-4"}, func(p []byte) error {
		got += string(p)
		return nil
	})
	if err != nil || got != "anthropic" {
		t.Fatalf("got %q err=%v", got, err)
	}
}

func TestRegistrationErrors(t *testing.T) {
	r := New()
	if err := r.Register("", named("x")); err == nil {
		t.Errorf("expected error for empty name")
	}
	if err := r.Register("x", nil); err == nil {
		t.Errorf("expected error for nil generator")
	}
	if err := r.Route("claude-*", "missing"); err == nil {
		t.Errorf("expected error for unknown generator")
	}
	if err := r.SetFallback("missing"); err == nil {
		t.Errorf("expected error for unknown fallback")
	}
}

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		model, pattern string
		want           bool
	}{
		{"claude-3", "claude-3", true},
		{"claude-3", "claude-*", true},
		{"claude-3-haiku", "*-haiku", true},
		{"claude-3-haiku", "*3-h*", true},
		{"gpt-4", "claude-*", false},
		{"gpt-4", "gpt", false},
	}
	for _, tt := range tests {
		if got := matchPattern(tt.model, tt.pattern); got != tt.want {
			t.Errorf("matchPattern(%q, %q) = %v, want %v", tt.model, tt.pattern, got, tt.want)
		}
	}
}
