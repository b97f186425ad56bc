package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/stream"
)

// Ensure Router implements adapter.Generator.
var _ adapter.Generator = (*Router)(nil)

// Router picks a generator by model name.
type Router struct {
	mu         sync.RWMutex
	generators map[string]adapter.Generator
	routes     map[string]string // model pattern -> generator name
	fallback   string
}

// New creates a new Router instance.
func New() *Router {
	return &Router{
		generators: make(map[string]adapter.Generator),
		routes:     make(map[string]string),
	}
}

// Name implements adapter.Generator.
func (r *Router) Name() string { return "router" }

// Register adds a generator under name.
func (r *Router) Register(name string, g adapter.Generator) error {
	if name == "" {
		return errors.New("router: generator name cannot be empty")
	}
	if g == nil {
		return errors.New("router: generator cannot be nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.generators[name] = g
	return nil
}

// Route maps a model pattern to a registered generator.
// Patterns support exact names, "prefix-*", "*-suffix" and "*contains*".
func (r *Router) Route(modelPattern, name string) error {
	if modelPattern == "" {
		return errors.New("router: model pattern cannot be empty")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; !ok {
		return fmt.Errorf("router: generator %q not registered", name)
	}
	r.routes[strings.ToLower(modelPattern)] = name
	return nil
}

// SetFallback names the generator used for unmatched or empty models.
func (r *Router) SetFallback(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.generators[name]; !ok {
		return fmt.Errorf("router: generator %q not registered", name)
	}
	r.fallback = name
	return nil
}

// Stream forwards to the generator selected for req.Model.
func (r *Router) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	g, err := r.Select(req.Model)
	if err != nil {
		return err
	}
	return g.Stream(ctx, req, emit)
}

// Select returns the generator serving model.
func (r *Router) Select(model string) (adapter.Generator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	model = strings.ToLower(strings.TrimSpace(model))
	if model != "" {
		if name, ok := r.routes[model]; ok {
			return r.generators[name], nil
		}
		// Longest pattern first so specific routes beat broad ones.
		patterns := make([]string, 0, len(r.routes))
		for p := range r.routes {
			patterns = append(patterns, p)
		}
		sort.Slice(patterns, func(i, j int) bool { return len(patterns[i]) > len(patterns[j]) })
		for _, p := range patterns {
			if matchPattern(model, p) {
				return r.generators[r.routes[p]], nil
			}
		}
	}
	if r.fallback != "" {
		return r.generators[r.fallback], nil
	}
	return nil, fmt.Errorf("router: no generator for model %q", model)
}

func matchPattern(model, pattern string) bool {
	if model == pattern {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	switch {
	case strings.HasPrefix(pattern, "*") && strings.HasSuffix(pattern, "*"):
		return strings.Contains(model, strings.Trim(pattern, "*"))
	case strings.HasSuffix(pattern, "*"):
		return strings.HasPrefix(model, strings.TrimSuffix(pattern, "*"))
	case strings.HasPrefix(pattern, "*"):
		return strings.HasSuffix(model, strings.TrimPrefix(pattern, "*"))
	}
	return false
}

// Routes returns a copy of the registered routes.
func (r *Router) Routes() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	routes := make(map[string]string, len(r.routes))
	for pattern, name := range r.routes {
		routes[pattern] = name
	}
	return routes
}
