package llm

import (
	"errors"
	"fmt"
	"strings"
)

// Roles accepted from the browser.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message follows the role/content schema used by the chat UI.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of the chat endpoint.
type ChatRequest struct {
	Messages []Message `json:"messages"`
}

// EnhanceRequest is the body of the prompt-enhancement endpoint.
type EnhanceRequest struct {
	Message string `json:"message"`
}

// Request is what a generator receives.
type Request struct {
	Model     string
	Messages  []Message
	MaxTokens int
}

// Validate checks that the conversation can be forwarded.
func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return errors.New("llm: no messages provided")
	}
	for i, m := range r.Messages {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("llm: message %d: unsupported role %q", i, m.Role)
		}
	}
	return nil
}

// PromptChars is the total content length, used for usage accounting.
func (r Request) PromptChars() int {
	total := 0
	for _, m := range r.Messages {
		total += len(m.Content)
	}
	return total
}

// LastUserMessage returns the most recent user turn, or the final message when
// the conversation has none.
func LastUserMessage(msgs []Message) (Message, bool) {
	if len(msgs) == 0 {
		return Message{}, false
	}
	for i := len(msgs) - 1; i >= 0; i-- {
		if strings.EqualFold(msgs[i].Role, RoleUser) {
			return msgs[i], true
		}
	}
	return msgs[len(msgs)-1], true
}
