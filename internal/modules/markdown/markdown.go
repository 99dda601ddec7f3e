// Package markdown renders post bodies to HTML. Rendering happens exactly
// once per content change; the result is cached on the post row (body_html)
// and never recomputed on the read path.
package markdown

import (
	"bytes"
	"html/template"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	htmlrenderer "github.com/yuin/goldmark/renderer/html"
)

var engine = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		extension.Table,
		extension.Strikethrough,
		extension.TaskList,
		extension.Linkify,
	),
	goldmark.WithRendererOptions(
		htmlrenderer.WithHardWraps(),
		htmlrenderer.WithXHTML(),
	),
)

// Render converts markdown source to HTML. On converter failure the source
// is returned HTML-escaped rather than dropped.
func Render(source string) string {
	if source == "" {
		return ""
	}
	var out bytes.Buffer
	if err := engine.Convert([]byte(source), &out); err != nil {
		return template.HTMLEscapeString(source)
	}
	return out.String()
}
