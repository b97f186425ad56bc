package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/tokligence/boltstream/internal/httpserver/protocol"
)

const (
	defaultUsageLimit = 50
	maxUsageLimit     = 500
)

type usageEndpoint struct {
	server *Server
}

func newUsageEndpoint(server *Server) protocol.Endpoint {
	return &usageEndpoint{server: server}
}

func (e *usageEndpoint) Name() string      { return "usage" }
func (e *usageEndpoint) RateLimited() bool { return true }

func (e *usageEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/api/usage/summary", Handler: http.HandlerFunc(e.server.handleUsageSummary)},
		{Method: http.MethodGet, Path: "/api/usage/logs", Handler: http.HandlerFunc(e.server.handleUsageLogs)},
	}
}

// handleUsageSummary aggregates the ledger, optionally for one endpoint.
func (s *Server) handleUsageSummary(w http.ResponseWriter, r *http.Request) {
	endpoint := strings.TrimSpace(r.URL.Query().Get("endpoint"))
	summary, err := s.ledger.Summary(r.Context(), endpoint)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"endpoint": endpoint, "summary": summary})
}

func (s *Server) handleUsageLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultUsageLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.respondError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = min(n, maxUsageLimit)
	}
	entries, err := s.ledger.ListRecent(r.Context(), limit)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
