// Package llm holds the chat message schema and the fixed prompts the server
// sends to the language model.
package llm

import "strings"

const enhancerTemplate = `
	I want you to improve the user prompt that is wrapped in ` + "`<original_prompt>`" + ` tags.

	IMPORTANT: Only respond with the improved prompt and nothing else!

	<original_prompt>
	%MESSAGE%
	</original_prompt>
`

// EnhancePrompt wraps message in the enhancement instructions. The template is
// de-indented line by line; message itself is inserted verbatim.
func EnhancePrompt(message string) string {
	tmpl := StripIndents(enhancerTemplate)
	return strings.Replace(tmpl, "%MESSAGE%", message, 1)
}

// EnhanceMessages is the single user turn forwarded for an enhancement request.
func EnhanceMessages(message string) []Message {
	return []Message{{Role: RoleUser, Content: EnhancePrompt(message)}}
}

// StripIndents trims every line, drops leading blank space and a single
// trailing line break.
func StripIndents(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	out := strings.TrimLeft(strings.Join(lines, "\n"), " \t\r\n")
	if strings.HasSuffix(out, "\n") || strings.HasSuffix(out, "\r") {
		out = out[:len(out)-1]
	}
	return out
}
