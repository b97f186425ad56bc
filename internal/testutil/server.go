// Package testutil holds helpers shared by HTTP streaming tests.
package testutil

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
)

// Server is an HTTP server bound to the IPv4 loopback interface.
type Server struct {
	URL       string
	listener  net.Listener
	server    *http.Server
	transport *http.Transport
	client    *http.Client
}

// NewServer starts handler on 127.0.0.1 and closes it when the test ends.
// Tests are skipped where tcp4 loopback is unavailable.
func NewServer(t *testing.T, handler http.Handler) *Server {
	t.Helper()
	if handler == nil {
		handler = http.NewServeMux()
	}
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test: tcp4 loopback unavailable (%v)", err)
	}
	transport := &http.Transport{DisableCompression: true}
	s := &Server{
		URL:       "http://" + l.Addr().String(),
		listener:  l,
		server:    &http.Server{Handler: handler},
		transport: transport,
		client:    &http.Client{Transport: transport},
	}
	go func() {
		if err := s.server.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("testutil server: %v", err)
		}
	}()
	t.Cleanup(s.Close)
	return s
}

// Client returns an HTTP client for the server. It has no timeout, so
// streaming responses are read at the test's pace.
func (s *Server) Client() *http.Client {
	return s.client
}

// Close stops the server without waiting for in-flight streams.
func (s *Server) Close() {
	_ = s.server.Close()
	s.transport.CloseIdleConnections()
}

// SSE writes server-sent events and flushes after each one.
type SSE struct {
	w http.ResponseWriter
	f http.Flusher
}

// NewSSE sets the event-stream headers and status 200.
func NewSSE(w http.ResponseWriter) *SSE {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	f, _ := w.(http.Flusher)
	return &SSE{w: w, f: f}
}

// Event writes one named event with a single data line.
func (s *SSE) Event(name, data string) {
	if name != "" {
		fmt.Fprintf(s.w, "event: %s\n", name)
	}
	fmt.Fprintf(s.w, "data: %s\n\n", data)
	if s.f != nil {
		s.f.Flush()
	}
}

// Raw writes p unmodified and flushes.
func (s *SSE) Raw(p string) {
	fmt.Fprint(s.w, p)
	if s.f != nil {
		s.f.Flush()
	}
}
