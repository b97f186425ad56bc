package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/testutil"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "valid config with all fields", cfg: Config{APIKey: "sk-ant-test123", BaseURL: "https://api.anthropic.com/", Version: "2023-06-01", Model: "claude-sonnet-4-5", MaxTokens: 1024}},
		{name: "valid config with minimal fields", cfg: Config{APIKey: "sk-ant-test123"}},
		{name: "missing api key", cfg: Config{BaseURL: "https://api.anthropic.com"}, wantErr: true},
		{name: "blank api key", cfg: Config{APIKey: "   "}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil || !strings.Contains(err.Error(), "api key required") {
					t.Errorf("New() error = %v, want api key error", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() unexpected error = %v", err)
			}
			if strings.HasSuffix(g.baseURL, "/") {
				t.Errorf("baseURL not trimmed: %q", g.baseURL)
			}
			if g.model == "" || g.maxTokens == 0 {
				t.Errorf("defaults not applied: %+v", g)
			}
		})
	}
}

func TestNewDefaults(t *testing.T) {
	g, err := New(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if g.Model() != DefaultModel {
		t.Errorf("model = %q, want %q", g.Model(), DefaultModel)
	}
	if g.maxTokens != DefaultMaxTokens {
		t.Errorf("maxTokens = %d", g.maxTokens)
	}
	if g.version != "2023-06-01" {
		t.Errorf("version = %q", g.version)
	}
}

func streamText(t *testing.T, g *Generator, req llm.Request) (string, error) {
	t.Helper()
	var sb strings.Builder
	err := g.Stream(context.Background(), req, func(p []byte) error {
		sb.Write(p)
		return nil
	})
	return sb.String(), err
}

func TestStreamRelaysTextDeltas(t *testing.T) {
	var got messagesRequest
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if key := r.Header.Get("x-api-key"); key != "sk-test" {
			t.Errorf("x-api-key = %q", key)
		}
		if v := r.Header.Get("anthropic-version"); v != "2023-06-01" {
			t.Errorf("anthropic-version = %q", v)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}

		sse := testutil.NewSSE(w)
		sse.Event("message_start", `{"type":"message_start","message":{"id":"msg_1"}}`)
		sse.Event("content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`)
		sse.Raw(": keepalive\n\n")
		sse.Event("ping", `{"type":"ping"}`)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hi"}}`)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`)
		sse.Event("content_block_stop", `{"type":"content_block_stop","index":0}`)
		sse.Event("message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"}}`)
		sse.Event("message_stop", `{"type":"message_stop"}`)
	}))

	g, err := New(Config{APIKey: "sk-test", BaseURL: server.URL, HTTPClient: server.Client()})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := streamText(t, g, llm.Request{Messages: []llm.Message{
		{Role: "system", Content: "be brief"},
		{Role: "user", Content: "hello"},
	}})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text != "Hi there" {
		t.Fatalf("text = %q, want %q", text, "Hi there")
	}
	if !got.Stream || got.Model != DefaultModel || got.MaxTokens != DefaultMaxTokens {
		t.Errorf("unexpected request %+v", got)
	}
	if got.System != "be brief" || len(got.Messages) != 1 || got.Messages[0].Role != "user" {
		t.Errorf("system prompt not lifted: %+v", got)
	}
}

func TestStreamHTTPErrorBeforeAnyOutput(t *testing.T) {
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`))
	}))

	g, _ := New(Config{APIKey: "bad", BaseURL: server.URL, HTTPClient: server.Client()})
	text, err := streamText(t, g, llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "invalid x-api-key") {
		t.Fatalf("expected auth error, got %v", err)
	}
	if text != "" {
		t.Fatalf("unexpected output %q", text)
	}
}

func TestStreamErrorEventAfterOutput(t *testing.T) {
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse := testutil.NewSSE(w)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"par"}}`)
		sse.Event("error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`)
	}))

	g, _ := New(Config{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})
	text, err := streamText(t, g, llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if err == nil || !strings.Contains(err.Error(), "overloaded_error") {
		t.Fatalf("expected overloaded error, got %v", err)
	}
	if text != "par" {
		t.Fatalf("text = %q", text)
	}
}

func TestStreamTruncatedUpstream(t *testing.T) {
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse := testutil.NewSSE(w)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"x"}}`)
	}))

	g, _ := New(Config{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})
	_, err := streamText(t, g, llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}})
	if !errors.Is(err, ErrIncompleteStream) {
		t.Fatalf("expected ErrIncompleteStream, got %v", err)
	}
}

func TestStreamStopsWhenEmitFails(t *testing.T) {
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sse := testutil.NewSSE(w)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"a"}}`)
		sse.Event("content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"b"}}`)
		sse.Event("message_stop", `{"type":"message_stop"}`)
	}))

	g, _ := New(Config{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client()})
	stop := errors.New("consumer gone")
	calls := 0
	err := g.Stream(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "hi"}}}, func(p []byte) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Fatalf("err=%v calls=%d", err, calls)
	}
}

func TestStreamRequestModelOverride(t *testing.T) {
	var got messagesRequest
	server := testutil.NewServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		testutil.NewSSE(w).Event("message_stop", `{"type":"message_stop"}`)
	}))

	g, _ := New(Config{APIKey: "k", BaseURL: server.URL, HTTPClient: server.Client(), Model: "claude-a"})
	if _, err := streamText(t, g, llm.Request{Model: "claude-b", MaxTokens: 10, Messages: []llm.Message{{Role: "user", Content: "hi"}}}); err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if got.Model != "claude-b" || got.MaxTokens != 10 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestConvertMessages(t *testing.T) {
	tests := []struct {
		name       string
		in         []llm.Message
		wantSystem string
		wantRoles  []string
		wantErr    bool
	}{
		{
			name:       "multiple system messages are joined",
			in:         []llm.Message{{Role: "system", Content: "a"}, {Role: "System", Content: "b"}, {Role: "user", Content: "q"}},
			wantSystem: "a\n\nb",
			wantRoles:  []string{"user"},
		},
		{
			name:      "unknown roles become user",
			in:        []llm.Message{{Role: "tool", Content: "x"}, {Role: "assistant", Content: "y"}},
			wantRoles: []string{"user", "assistant"},
		},
		{
			name:    "only system",
			in:      []llm.Message{{Role: "system", Content: "a"}},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, system, err := convertMessages(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("convertMessages: %v", err)
			}
			if system != tt.wantSystem {
				t.Errorf("system = %q, want %q", system, tt.wantSystem)
			}
			if len(msgs) != len(tt.wantRoles) {
				t.Fatalf("got %d messages, want %d", len(msgs), len(tt.wantRoles))
			}
			for i, role := range tt.wantRoles {
				if msgs[i].Role != role {
					t.Errorf("message %d role = %q, want %q", i, msgs[i].Role, role)
				}
			}
		})
	}
}
