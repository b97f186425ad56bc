// Package modelmeta knows per-model output limits so requests never ask a
// model for more tokens than it can produce.
package modelmeta

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Entry describes basic limits for a model. Model may end in "*" to cover a
// family.
type Entry struct {
	Model            string `yaml:"model" json:"model"`
	ContextTokens    int    `yaml:"context_tokens,omitempty" json:"context_tokens,omitempty"`
	MaxCompletionCap int    `yaml:"max_completion_cap,omitempty" json:"max_completion_cap,omitempty"`
}

// Defaults are the limits known without a metadata file.
var Defaults = []Entry{
	{Model: "claude-haiku-4-5*", ContextTokens: 200000, MaxCompletionCap: 64000},
	{Model: "claude-sonnet-4*", ContextTokens: 200000, MaxCompletionCap: 64000},
	{Model: "claude-opus-4*", ContextTokens: 200000, MaxCompletionCap: 32000},
	{Model: "claude-3-5-haiku*", ContextTokens: 200000, MaxCompletionCap: 8192},
	{Model: "claude-3-haiku*", ContextTokens: 200000, MaxCompletionCap: 4096},
}

// Store holds loaded metadata with simple lookups.
type Store struct {
	mu       sync.RWMutex
	exact    map[string]Entry
	prefixes []Entry // longest prefix first
	source   string
}

// NewStore returns a store seeded with entries.
func NewStore(entries ...Entry) *Store {
	s := &Store{}
	s.apply(entries, "builtin")
	return s
}

// MaxCompletionCap returns (cap, true) if known; otherwise (0, false).
func (s *Store) MaxCompletionCap(model string) (int, bool) {
	if s == nil {
		return 0, false
	}
	model = strings.ToLower(strings.TrimSpace(model))
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.exact[model]
	if !ok {
		for _, p := range s.prefixes {
			if strings.HasPrefix(model, strings.TrimSuffix(p.Model, "*")) {
				e, ok = p, true
				break
			}
		}
	}
	if !ok || e.MaxCompletionCap <= 0 {
		return 0, false
	}
	return e.MaxCompletionCap, true
}

// Clamp lowers requested to the model's completion cap when one is known.
func (s *Store) Clamp(model string, requested int) int {
	if limit, ok := s.MaxCompletionCap(model); ok && (requested <= 0 || requested > limit) {
		return limit
	}
	return requested
}

// Source names where the current entries came from.
func (s *Store) Source() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.source
}

// Load replaces the entries with those in the YAML (or JSON) list at path;
// returns number of entries loaded.
func (s *Store) Load(path string) (int, error) {
	if strings.TrimSpace(path) == "" {
		return 0, errors.New("modelmeta: empty path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var entries []Entry
	if err := yaml.Unmarshal(b, &entries); err != nil {
		return 0, fmt.Errorf("modelmeta: parse %s: %w", path, err)
	}
	s.apply(entries, path)
	return len(entries), nil
}

// apply replaces current entries.
func (s *Store) apply(entries []Entry, src string) {
	exact := make(map[string]Entry)
	var prefixes []Entry
	for _, e := range entries {
		e.Model = strings.ToLower(strings.TrimSpace(e.Model))
		if e.Model == "" {
			continue
		}
		if strings.HasSuffix(e.Model, "*") {
			prefixes = append(prefixes, e)
			continue
		}
		exact[e.Model] = e
	}
	sort.SliceStable(prefixes, func(i, j int) bool { return len(prefixes[i].Model) > len(prefixes[j].Model) })
	s.mu.Lock()
	s.exact = exact
	s.prefixes = prefixes
	s.source = src
	s.mu.Unlock()
}
