// Package theme holds the UI color scheme stamped onto rendered documents.
package theme

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

const (
	Light = "light"
	Dark  = "dark"
)

// Valid reports whether name is a known theme.
func Valid(name string) bool {
	return name == Light || name == Dark
}

// Store holds the current theme. Reads are lock-free; the value is only
// replaced wholesale.
type Store struct {
	current atomic.Value // string
	path    string
	logger  *log.Logger
}

// NewStore returns a store fixed at initial (Light when invalid).
func NewStore(initial string) *Store {
	s := &Store{}
	if !Valid(initial) {
		initial = Light
	}
	s.current.Store(initial)
	return s
}

// Load creates a store backed by the file at path, falling back to def when
// the file is absent. An empty path yields a fixed store.
func Load(path, def string, logger *log.Logger) (*Store, error) {
	s := NewStore(def)
	s.path = strings.TrimSpace(path)
	s.logger = logger
	if s.path == "" {
		return s, nil
	}
	if err := s.reload(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return s, nil
}

// Current returns the theme to use for the next response.
func (s *Store) Current() string {
	if s == nil {
		return Light
	}
	return s.current.Load().(string)
}

// Set replaces the current theme.
func (s *Store) Set(name string) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if !Valid(name) {
		return fmt.Errorf("theme: unknown theme %q", name)
	}
	s.current.Store(name)
	return nil
}

func (s *Store) reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	return s.Set(string(data))
}

// Watch refreshes the theme whenever the backing file changes, until ctx is
// done. The parent directory is watched so editors that replace the file are
// seen too.
func (s *Store) Watch(ctx context.Context) error {
	if s.path == "" {
		return nil
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("theme: watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("theme: watch %s: %w", s.path, err)
	}

	go func() {
		defer watcher.Close()
		target := filepath.Clean(s.path)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if err := s.reload(); err != nil {
					s.logf("theme: reload %s: %v", s.path, err)
					continue
				}
				s.logf("theme: now %s", s.Current())
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.logf("theme: watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (s *Store) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}
