package envelope

import (
	"net/http"
	"strings"
	"testing"
)

func TestDocumentScaffolding(t *testing.T) {
	doc := Document{Theme: "dark", Head: "<title>Bolt</title>"}
	want := `<!DOCTYPE html><html lang="en" data-theme="dark"><head><title>Bolt</title></head><body><div id="root" class="w-full h-full">`
	if got := string(doc.Open()); got != want {
		t.Fatalf("unexpected open:\n got %s\nwant %s", got, want)
	}
	if got := string(doc.Close()); got != `</div></body></html>` {
		t.Fatalf("unexpected close %q", got)
	}
}

func TestDocumentEscapesTheme(t *testing.T) {
	doc := Document{Theme: `dark" onload="x`}
	if strings.Contains(string(doc.Open()), `onload="x"`) {
		t.Fatalf("theme attribute not escaped: %s", doc.Open())
	}
}

func TestWrap(t *testing.T) {
	doc := Document{Theme: "light"}
	got := string(Wrap(doc, []byte("<main>hi</main>")))
	if !strings.HasPrefix(got, "<!DOCTYPE html>") || !strings.HasSuffix(got, "<main>hi</main></div></body></html>") {
		t.Fatalf("unexpected document %s", got)
	}
	if !strings.Contains(got, `data-theme="light"`) {
		t.Fatalf("theme missing from %s", got)
	}
}

func TestForTextIsPassthrough(t *testing.T) {
	env := For(KindText, Document{Theme: "dark"})
	if len(env.Open) != 0 || len(env.Close) != 0 {
		t.Fatalf("text streams must not be wrapped, got %+v", env)
	}
	html := For(KindHTML, Document{Theme: "dark"})
	if len(html.Open) == 0 || len(html.Close) == 0 {
		t.Fatalf("html streams need an envelope")
	}
}

func TestSetHeaders(t *testing.T) {
	cases := []struct {
		kind        Kind
		incremental bool
		contentType string
	}{
		{KindHTML, false, "text/html"},
		{KindHTML, true, "text/html"},
		{KindText, true, "text/plain; charset=utf-8"},
	}
	for _, tc := range cases {
		h := http.Header{}
		SetHeaders(h, tc.kind, tc.incremental)
		if got := h.Get("Content-Type"); got != tc.contentType {
			t.Fatalf("%s: content type %q", tc.kind, got)
		}
		if h.Get("Cross-Origin-Embedder-Policy") != "require-corp" {
			t.Fatalf("%s: missing COEP", tc.kind)
		}
		if h.Get("Cross-Origin-Opener-Policy") != "same-origin" {
			t.Fatalf("%s: missing COOP", tc.kind)
		}
		if tc.incremental && h.Get("Cache-Control") != "no-cache" {
			t.Fatalf("%s: incremental responses must not be cached", tc.kind)
		}
		if !tc.incremental && h.Get("Cache-Control") != "" {
			t.Fatalf("%s: unexpected cache header", tc.kind)
		}
	}
}
