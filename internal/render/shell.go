package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/tokligence/boltstream/internal/stream"
)

// ShellRenderer renders the chat application shell. Each section is emitted
// as its own fragment so interactive clients can paint the header while the
// rest is still being produced.
type ShellRenderer struct {
	Title string
	// Sections defaults to the header, chat surface, prompt box and scripts.
	Sections []string
	tmpl     *template.Template
}

const shellTemplates = `
{{define "header"}}<header class="flex items-center px-4 h-[var(--header-height)] border-b border-bolt-elements-borderColor"><a href="/" class="text-2xl font-semibold text-accent">{{.Title}}</a></header>{{end}}
{{define "chat"}}<main class="flex flex-col h-full w-full" data-path="{{.Path}}"><div id="messages" class="flex flex-col w-full flex-1 max-w-chat mx-auto px-4 pb-6" aria-live="polite">{{if .Chat}}<input type="hidden" name="chat-id" value="{{.Chat}}">{{end}}</div>{{end}}
{{define "prompt"}}<div class="relative w-full max-w-chat mx-auto z-prompt"><form id="prompt" method="post" action="/api/chat" class="shadow-sm border border-bolt-elements-borderColor bg-bolt-elements-prompt-background rounded-lg"><button type="button" id="plus" class="absolute flex justify-center items-center top-[18px] left-[22px] p-1 rounded-md w-[34px] h-[34px]" aria-haspopup="menu" aria-label="More actions"><div class="i-ph:plus"></div></button><div id="plus-menu" role="menu" hidden><button type="button" role="menuitem" data-action="enhance" data-endpoint="/api/enhancer"><div class="i-bolt:stars"></div><span>Enhance Prompt</span></button><button type="button" role="menuitem" data-action="attach"><div class="i-ph:paperclip"></div><span>Attach File</span></button></div><textarea name="input" class="w-full pl-16 pt-4 pr-16 focus:outline-none resize-none bg-transparent" placeholder="How can Bolt help you today?" rows="3"></textarea><button type="submit" class="absolute top-[18px] right-[22px]" aria-label="Send">Send</button></form></div></main>{{end}}
{{define "scripts"}}<script type="module" src="/assets/entry.client.js"></script>{{end}}
`

// DefaultSections is the shell layout.
var DefaultSections = []string{"header", "chat", "prompt", "scripts"}

// NewShellRenderer parses the shell templates.
func NewShellRenderer(title string) (*ShellRenderer, error) {
	tmpl, err := template.New("shell").Parse(shellTemplates)
	if err != nil {
		return nil, fmt.Errorf("render: parse shell: %w", err)
	}
	return &ShellRenderer{Title: title, tmpl: tmpl}, nil
}

type shellData struct {
	Title string
	Path  string
	Chat  string
}

// Render implements Renderer.
func (s *ShellRenderer) Render(ctx context.Context, rawURL string, emit stream.Emitter) error {
	if s == nil || s.tmpl == nil {
		return fmt.Errorf("render: shell renderer not initialised")
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("render: bad url %q: %w", rawURL, err)
	}
	data := shellData{Title: s.Title, Path: u.Path}
	if rest, ok := strings.CutPrefix(u.Path, "/chat/"); ok {
		data.Chat = rest
	}

	sections := s.Sections
	if len(sections) == 0 {
		sections = DefaultSections
	}
	var buf bytes.Buffer
	for _, name := range sections {
		if err := ctx.Err(); err != nil {
			return err
		}
		buf.Reset()
		if err := s.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
			return fmt.Errorf("render: section %s: %w", name, err)
		}
		if err := emit(buf.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
