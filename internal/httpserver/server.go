package httpserver

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/health"
	"github.com/tokligence/boltstream/internal/httpserver/protocol"
	"github.com/tokligence/boltstream/internal/ledger"
	"github.com/tokligence/boltstream/internal/metrics"
	"github.com/tokligence/boltstream/internal/modelmeta"
	"github.com/tokligence/boltstream/internal/pipeline"
	"github.com/tokligence/boltstream/internal/ratelimit"
	"github.com/tokligence/boltstream/internal/render"
	"github.com/tokligence/boltstream/internal/theme"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

var defaultEndpointKeys = []string{"chat", "usage", "health", "metrics", "page"}

// Options wires the server's collaborators. Pipeline, Generator and Renderer
// are required.
type Options struct {
	Pipeline  *pipeline.Pipeline
	Generator adapter.Generator
	Renderer  render.Renderer
	Theme     *theme.Store
	Metrics   *metrics.Collector
	// Ledger backs the usage endpoint; nil disables it.
	Ledger  ledger.Store
	Limiter *ratelimit.Limiter
	// Health probes backing stores for /health; nil reports ok.
	Health *health.Checker
	// ModelMeta caps max tokens per model; nil sends MaxTokens as is.
	ModelMeta *modelmeta.Store

	Title     string
	Model     string
	MaxTokens int
	Version   string
	// Endpoints selects route groups by key; empty mounts all of them.
	Endpoints []string
}

// Server exposes the chat, enhancer and page endpoints.
type Server struct {
	pipeline  *pipeline.Pipeline
	generator adapter.Generator
	renderer  render.Renderer
	theme     *theme.Store
	metrics   *metrics.Collector
	ledger    ledger.Store
	limiter   *ratelimit.Limiter
	health    *health.Checker
	modelMeta *modelmeta.Store

	title        string
	model        string
	maxTokens    int
	version      string
	endpointKeys []string
	startedAt    time.Time

	logger   *log.Logger
	logLevel string
}

// New constructs a Server.
func New(opts Options) *Server {
	keys := opts.Endpoints
	if len(keys) == 0 {
		keys = defaultEndpointKeys
	}
	title := opts.Title
	if title == "" {
		title = "Bolt"
	}
	return &Server{
		pipeline:     opts.Pipeline,
		generator:    opts.Generator,
		renderer:     opts.Renderer,
		theme:        opts.Theme,
		metrics:      opts.Metrics,
		ledger:       opts.Ledger,
		limiter:      opts.Limiter,
		health:       opts.Health,
		modelMeta:    opts.ModelMeta,
		title:        title,
		model:        opts.Model,
		maxTokens:    opts.MaxTokens,
		version:      opts.Version,
		endpointKeys: keys,
		startedAt:    time.Now(),
		logger:       log.New(io.Discard, "", 0),
	}
}

// SetLogger configures server-level logger and verbosity ("debug", "info", ...).
func (s *Server) SetLogger(level string, logger *log.Logger) {
	s.logLevel = strings.ToLower(strings.TrimSpace(level))
	if logger != nil {
		s.logger = logger
	}
}

func (s *Server) isDebug() bool { return s.logLevel == "debug" }
func (s *Server) debugf(format string, args ...any) {
	if s.logger != nil && s.isDebug() {
		s.logger.Printf("DEBUG "+format, args...)
	}
}

// Router returns a configured chi router for embedding in HTTP servers.
func (s *Server) Router() http.Handler {
	r := s.newBaseRouter()
	s.registerEndpointKeys(r, s.endpointKeys...)
	return r
}

func (s *Server) newBaseRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(echoRequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	return r
}

// echoRequestID returns the request id to the client.
func echoRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(middleware.RequestIDHeader, pipeline.RequestID(r))
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerEndpoints(r chi.Router, endpoints ...protocol.Endpoint) {
	var limited []protocol.Endpoint
	for _, ep := range endpoints {
		if ep == nil {
			continue
		}
		if ep.RateLimited() && s.limiter != nil {
			limited = append(limited, ep)
			continue
		}
		s.mount(r, ep)
	}
	if len(limited) == 0 {
		return
	}
	r.Group(func(g chi.Router) {
		g.Use(s.limiter.Middleware(func(key string) {
			s.metrics.RecordRateLimitHit(key)
			s.debugf("rate limited client %s", key)
		}))
		for _, ep := range limited {
			s.mount(g, ep)
		}
	})
}

func (s *Server) mount(r chi.Router, ep protocol.Endpoint) {
	s.debugf("registering endpoint %s", ep.Name())
	for _, route := range ep.Routes() {
		r.Method(route.Method, route.Path, route.Handler)
	}
}

func (s *Server) registerEndpointKeys(r chi.Router, keys ...string) int {
	var endpoints []protocol.Endpoint
	seen := make(map[string]struct{}, len(keys))
	for _, key := range keys {
		key = strings.ToLower(strings.TrimSpace(key))
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if ep := s.endpointByKey(key); ep != nil {
			endpoints = append(endpoints, ep)
		} else {
			s.debugf("endpoint %s unavailable, skipping registration", key)
		}
	}
	s.registerEndpoints(r, endpoints...)
	return len(endpoints)
}

func (s *Server) endpointByKey(key string) protocol.Endpoint {
	switch key {
	case "chat", "api":
		return newChatEndpoint(s)
	case "usage":
		if s.ledger == nil {
			return nil
		}
		return newUsageEndpoint(s)
	case "health", "status":
		return newHealthEndpoint(s)
	case "metrics":
		if s.metrics == nil {
			return nil
		}
		return newMetricsEndpoint(s)
	case "page", "ui":
		return newPageEndpoint(s)
	default:
		return nil
	}
}

// decodeJSON reads a bounded JSON body into dst.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errors.New("empty request body")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	if payload == nil {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, err error) {
	if err == nil {
		err = errors.New("unknown error")
	}
	s.respondJSON(w, status, map[string]any{"error": err.Error()})
}
