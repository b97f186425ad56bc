package llm

import (
	"strings"
	"testing"
)

func TestEnhancePromptSubstitutesVerbatim(t *testing.T) {
	got := EnhancePrompt("write code")
	want := "I want you to improve the user prompt that is wrapped in `<original_prompt>` tags.\n" +
		"\n" +
		"IMPORTANT: Only respond with the improved prompt and nothing else!\n" +
		"\n" +
		"<original_prompt>\n" +
		"write code\n" +
		"</original_prompt>"
	if got != want {
		t.Fatalf("unexpected prompt:\n%q\nwant\n%q", got, want)
	}
}

func TestEnhancePromptKeepsMessageIndentation(t *testing.T) {
	msg := "build a form\n    with two fields %MESSAGE%"
	got := EnhancePrompt(msg)
	if !strings.Contains(got, "<original_prompt>\n"+msg+"\n</original_prompt>") {
		t.Fatalf("message altered: %q", got)
	}
}

func TestEnhanceMessages(t *testing.T) {
	msgs := EnhanceMessages("hi")
	if len(msgs) != 1 || msgs[0].Role != RoleUser {
		t.Fatalf("expected a single user turn, got %+v", msgs)
	}
}

func TestStripIndents(t *testing.T) {
	if got := StripIndents("\n   a\n\t b \n"); got != "a\nb" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestChatRequestValidate(t *testing.T) {
	if err := (ChatRequest{}).Validate(); err == nil {
		t.Fatalf("expected error for empty conversation")
	}
	if err := (ChatRequest{Messages: []Message{{Role: "robot", Content: "x"}}}).Validate(); err == nil {
		t.Fatalf("expected error for unknown role")
	}
	ok := ChatRequest{Messages: []Message{{Role: "system", Content: "s"}, {Role: "User", Content: "hello"}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestLastUserMessage(t *testing.T) {
	msgs := []Message{{Role: "user", Content: "first"}, {Role: "assistant", Content: "reply"}}
	m, ok := LastUserMessage(msgs)
	if !ok || m.Content != "first" {
		t.Fatalf("unexpected %+v", m)
	}
	if _, ok := LastUserMessage(nil); ok {
		t.Fatalf("expected no message")
	}
}

func TestPromptChars(t *testing.T) {
	r := Request{Messages: []Message{{Content: "abc"}, {Content: "de"}}}
	if r.PromptChars() != 5 {
		t.Fatalf("unexpected %d", r.PromptChars())
	}
}
