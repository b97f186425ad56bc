package httpserver

import (
	"net/http"

	"github.com/tokligence/boltstream/internal/envelope"
	"github.com/tokligence/boltstream/internal/httpserver/protocol"
	"github.com/tokligence/boltstream/internal/pipeline"
	"github.com/tokligence/boltstream/internal/render"
)

type pageEndpoint struct {
	server *Server
}

func newPageEndpoint(server *Server) protocol.Endpoint {
	return &pageEndpoint{server: server}
}

func (e *pageEndpoint) Name() string      { return "page" }
func (e *pageEndpoint) RateLimited() bool { return false }

func (e *pageEndpoint) Routes() []protocol.EndpointRoute {
	h := http.HandlerFunc(e.server.handlePage)
	return []protocol.EndpointRoute{
		{Method: http.MethodGet, Path: "/", Handler: h},
		{Method: http.MethodGet, Path: "/*", Handler: h},
		{Method: http.MethodHead, Path: "/", Handler: h},
		{Method: http.MethodHead, Path: "/*", Handler: h},
	}
}

// handlePage renders the UI shell for any path. The theme is read here, once
// per response. HEAD requests are buffered so Content-Length is known.
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	doc := envelope.Document{
		Lang:  "en",
		Theme: s.theme.Current(),
		Head:  render.Head(s.title),
	}
	s.pipeline.Serve(w, r, pipeline.Job{
		Endpoint:  "page",
		Kind:      envelope.KindHTML,
		Producer:  render.Producer(s.renderer, r.URL.RequestURI()),
		Document:  doc,
		ForceSync: r.Method == http.MethodHead,
	})
}
