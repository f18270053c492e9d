package web

import (
	"bytes"
	"html/template"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"
)

// Renderer converts stored chapter HTML and AI Markdown responses into
// sanitized template HTML.
type Renderer struct {
	md       goldmark.Markdown
	sanitize *bluemonday.Policy
}

// NewRenderer builds a renderer with a GFM Markdown engine and a UGC
// sanitation policy. The policy permits relative URLs so rewritten chapter
// image references ("images/...") survive.
func NewRenderer() *Renderer {
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(
				gmhtml.WithHardWraps(),
			),
		),
		sanitize: bluemonday.UGCPolicy(),
	}
}

// Chapter sanitizes a stored chapter body for direct template output.
func (r *Renderer) Chapter(body string) template.HTML {
	return template.HTML(r.sanitize.Sanitize(body))
}

// Markdown renders an AI response or comment to sanitized HTML. Responses
// that fail to convert fall back to an escaped <pre> block.
func (r *Renderer) Markdown(src string) template.HTML {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return template.HTML("<pre>" + template.HTMLEscapeString(src) + "</pre>")
	}
	return template.HTML(r.sanitize.SanitizeBytes(buf.Bytes()))
}
