package anthropic

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tokligence/boltstream/internal/adapter"
	"github.com/tokligence/boltstream/internal/llm"
	"github.com/tokligence/boltstream/internal/stream"
)

// Ensure Generator implements adapter.Generator.
var _ adapter.Generator = (*Generator)(nil)

// DefaultModel is used when neither the request nor the config names one.
const DefaultModel = "claude-haiku-4-5-20251001"

// DefaultMaxTokens bounds a single completion.
const DefaultMaxTokens = 8192

// ErrIncompleteStream is returned when the event stream ends without message_stop.
var ErrIncompleteStream = errors.New("anthropic: stream ended before message_stop")

// Generator streams completions from the Anthropic Messages API.
type Generator struct {
	apiKey     string
	baseURL    string
	version    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

// Config holds configuration for the Anthropic generator.
type Config struct {
	APIKey    string
	BaseURL   string // optional, defaults to https://api.anthropic.com
	Version   string // optional, defaults to 2023-06-01
	Model     string // optional, defaults to DefaultModel
	MaxTokens int    // optional, defaults to DefaultMaxTokens
	// HeaderTimeout bounds the wait for response headers. The body is not
	// bounded; streams last as long as the model keeps talking.
	HeaderTimeout time.Duration
	HTTPClient    *http.Client
}

// New creates a Generator instance.
func New(cfg Config) (*Generator, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("anthropic: api key required")
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")

	version := strings.TrimSpace(cfg.Version)
	if version == "" {
		version = "2023-06-01"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.HeaderTimeout
		if timeout == 0 {
			timeout = 60 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = timeout
		client = &http.Client{Transport: transport}
	}

	return &Generator{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		version:    version,
		model:      model,
		maxTokens:  maxTokens,
		httpClient: client,
	}, nil
}

// Name implements adapter.Generator.
func (g *Generator) Name() string { return "anthropic" }

// Model returns the configured default model.
func (g *Generator) Model() string { return g.model }

// Stream sends a streaming request and relays every text delta to emit.
// Failures before the response headers arrive are returned without emitting
// anything.
func (g *Generator) Stream(ctx context.Context, req llm.Request, emit stream.Emitter) error {
	messages, systemPrompt, err := convertMessages(req.Messages)
	if err != nil {
		return fmt.Errorf("anthropic: convert messages: %w", err)
	}

	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = g.model
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = g.maxTokens
	}

	payload := messagesRequest{
		Model:     model,
		Messages:  messages,
		System:    systemPrompt,
		MaxTokens: maxTokens,
		Stream:    true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("anthropic: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("anthropic: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", g.apiKey)
	httpReq.Header.Set("anthropic-version", g.version)
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("anthropic: send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return decodeError(resp.StatusCode, data)
	}

	return relay(ctx, resp.Body, emit)
}

// relay parses the event stream and forwards text deltas until message_stop.
func relay(ctx context.Context, body io.Reader, emit stream.Emitter) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	var eventType string
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		switch {
		case line == "":
			eventType = ""
			continue
		case strings.HasPrefix(line, ":"):
			continue
		case strings.HasPrefix(line, "event:"):
			eventType = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
			continue
		case !strings.HasPrefix(line, "data:"):
			continue
		}

		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" || payload == "{}" || payload == "[DONE]" {
			continue
		}
		var evt streamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			return fmt.Errorf("anthropic: parse stream: %w", err)
		}
		if evt.Type == "" {
			evt.Type = eventType
		}

		switch evt.Type {
		case "content_block_delta":
			if evt.Delta.Type != "text_delta" || evt.Delta.Text == "" {
				continue
			}
			if err := emit([]byte(evt.Delta.Text)); err != nil {
				return err
			}
		case "error":
			return fmt.Errorf("anthropic: stream error: %s (type=%s)", evt.Error.Message, evt.Error.Type)
		case "message_stop":
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("anthropic: read stream: %w", err)
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return ErrIncompleteStream
}

func decodeError(status int, body []byte) error {
	var errResp struct {
		Type  string `json:"type"`
		Error struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Errorf("anthropic: http %d: %s (type=%s)", status, errResp.Error.Message, errResp.Error.Type)
	}
	return fmt.Errorf("anthropic: http %d: %s", status, strings.TrimSpace(string(body)))
}

type messagesRequest struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	System    string    `json:"system,omitempty"`
	MaxTokens int       `json:"max_tokens"`
	Stream    bool      `json:"stream"`
}

type message struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// streamEvent is the subset of the streaming schema the generator reads.
type streamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text,omitempty"`
	} `json:"delta,omitempty"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// convertMessages lifts system turns into the system prompt and maps every
// other role onto user or assistant.
func convertMessages(in []llm.Message) ([]message, string, error) {
	var messages []message
	var systemPrompt string

	for _, msg := range in {
		role := strings.ToLower(strings.TrimSpace(msg.Role))
		if role == llm.RoleSystem {
			if systemPrompt != "" {
				systemPrompt += "\n\n"
			}
			systemPrompt += msg.Content
			continue
		}
		if role != llm.RoleAssistant {
			role = llm.RoleUser
		}
		messages = append(messages, message{
			Role:    role,
			Content: []contentBlock{{Type: "text", Text: msg.Content}},
		})
	}

	if len(messages) == 0 {
		return nil, "", errors.New("no user/assistant messages after filtering system messages")
	}
	return messages, systemPrompt, nil
}
