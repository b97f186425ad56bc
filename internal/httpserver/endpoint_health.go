package httpserver

import (
	"net/http"
	"time"

	"github.com/tokligence/boltstream/internal/health"
	"github.com/tokligence/boltstream/internal/httpserver/protocol"
)

type healthEndpoint struct {
	server *Server
}

func newHealthEndpoint(server *Server) protocol.Endpoint {
	return &healthEndpoint{server: server}
}

func (e *healthEndpoint) Name() string      { return "health" }
func (e *healthEndpoint) RateLimited() bool { return false }

func (e *healthEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/health", Handler: http.HandlerFunc(e.server.HandleHealth)},
	}
}

// HandleHealth probes registered components; an unhealthy database turns
// the response into a 503.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.health.Check(r.Context())
	status := "ok"
	code := http.StatusOK
	if st.Status != health.StatusHealthy {
		status = string(st.Status)
	}
	if st.Status == health.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	payload := map[string]any{
		"status":    status,
		"time":      time.Now().UTC().Format(time.RFC3339),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"version":   s.version,
		"model":     s.model,
		"generator": s.generator.Name(),
		"theme":     s.theme.Current(),
	}
	if lr, ok := s.generator.(interface{ Routes() map[string]string }); ok {
		payload["routes"] = lr.Routes()
	}
	if len(st.Components) > 0 {
		payload["components"] = st.Components
	}
	s.respondJSON(w, code, payload)
}
