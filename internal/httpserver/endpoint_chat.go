package httpserver

import (
	"net/http"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/envelope"
	"github.com/tokligence/boltstream/internal/httpserver/protocol"
	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/pipeline"
)

type chatEndpoint struct {
	server *Server
}

func newChatEndpoint(server *Server) protocol.Endpoint {
	return &chatEndpoint{server: server}
}

func (e *chatEndpoint) Name() string      { return "chat" }
func (e *chatEndpoint) RateLimited() bool { return true }

func (e *chatEndpoint) Routes() []protocol.EndpointRoute {
	return []protocol.EndpointRoute{
		{Method: http.MethodPost, Path: "/api/chat", Handler: http.HandlerFunc(e.server.handleChat)},
		{Method: http.MethodPost, Path: "/api/enhancer", Handler: http.HandlerFunc(e.server.handleEnhancer)},
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req llm.ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.generate(w, r, "chat", req.Messages)
}

func (s *Server) handleEnhancer(w http.ResponseWriter, r *http.Request) {
	var req llm.EnhanceRequest
	if err := decodeJSON(r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, err)
		return
	}
	s.generate(w, r, "enhancer", llm.EnhanceMessages(req.Message))
}

// generate streams the model's answer to msgs as plain text.
func (s *Server) generate(w http.ResponseWriter, r *http.Request, endpoint string, msgs []llm.Message) {
	req := llm.Request{
		Model:     s.model,
		Messages:  msgs,
		MaxTokens: s.modelMeta.Clamp(s.model, s.maxTokens),
	}
	s.debugf("%s: %d messages for model %s via %s", endpoint, len(msgs), req.Model, s.generator.Name())
	s.pipeline.Serve(w, r, pipeline.Job{
		Endpoint:    endpoint,
		Kind:        envelope.KindText,
		Producer:    adapter.Producer(s.generator, req),
		Model:       req.Model,
		PromptChars: req.PromptChars(),
	})
}
