// Package envelope assembles responses around producer output: the HTML
// document scaffolding for page renders and the transport headers every
// response carries. Plain-text token streams get no envelope.
package envelope

import (
	"bytes"
	"html"
	"net/http"

	"github.com/tokligence/boltstream/internal/stream"
)

// Kind is the payload kind of a response.
type Kind int

const (
	// KindHTML is a rendered page.
	KindHTML Kind = iota
	// KindText is a raw generated text stream.
	KindText
)

func (k Kind) String() string {
	if k == KindText {
		return "text"
	}
	return "html"
}

// ContentType returns the Content-Type header value for k.
func (k Kind) ContentType() string {
	if k == KindText {
		return "text/plain; charset=utf-8"
	}
	return "text/html"
}

// Document describes the page scaffolding. Theme is resolved by the caller at
// response construction time; Head is trusted markup.
type Document struct {
	Lang  string
	Theme string
	Head  string
}

// Open returns everything up to and including the root container's start tag.
func (d Document) Open() []byte {
	lang := d.Lang
	if lang == "" {
		lang = "en"
	}
	var b bytes.Buffer
	b.WriteString(`<!DOCTYPE html><html lang="`)
	b.WriteString(html.EscapeString(lang))
	b.WriteString(`" data-theme="`)
	b.WriteString(html.EscapeString(d.Theme))
	b.WriteString(`"><head>`)
	b.WriteString(d.Head)
	b.WriteString(`</head><body><div id="root" class="w-full h-full">`)
	return b.Bytes()
}

// Close returns the bytes that close the root container and the document.
func (d Document) Close() []byte {
	return []byte(`</div></body></html>`)
}

// Wrap builds a complete document around fully rendered markup.
func Wrap(d Document, markup []byte) []byte {
	open, closing := d.Open(), d.Close()
	out := make([]byte, 0, len(open)+len(markup)+len(closing))
	out = append(out, open...)
	out = append(out, markup...)
	return append(out, closing...)
}

// For returns the incremental envelope for a payload kind. Text streams are
// passed through untouched.
func For(kind Kind, d Document) stream.Envelope {
	if kind == KindText {
		return stream.Envelope{}
	}
	return stream.Envelope{Open: d.Open(), Close: d.Close()}
}

// SetHeaders sets the content type and isolation headers for kind. Incremental
// responses also opt out of caching and proxy buffering.
func SetHeaders(h http.Header, kind Kind, incremental bool) {
	h.Set("Content-Type", kind.ContentType())
	h.Set("Cross-Origin-Embedder-Policy", "require-corp")
	h.Set("Cross-Origin-Opener-Policy", "same-origin")
	h.Set("X-Content-Type-Options", "nosniff")
	if incremental {
		h.Set("Cache-Control", "no-cache")
		h.Set("X-Accel-Buffering", "no")
	}
}
