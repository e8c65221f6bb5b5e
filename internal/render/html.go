// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"bytes"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// HTMLRenderer renders messages as HTML fragments. Assistant markdown goes
// through goldmark with GitHub extensions and is then decorated; user text
// is escaped verbatim.
type HTMLRenderer struct {
	md goldmark.Markdown
}

// NewHTMLRenderer creates an HTML renderer.
func NewHTMLRenderer() *HTMLRenderer {
	return &HTMLRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
		),
	}
}

// Markdown converts markdown to HTML without decoration.
func (r *HTMLRenderer) Markdown(src string) (string, error) {
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(src), &buf); err != nil {
		return "", fmt.Errorf("convert markdown: %w", err)
	}
	return buf.String(), nil
}

// RenderMessage implements Renderer.
func (r *HTMLRenderer) RenderMessage(msg model.Message) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, `<div class="message %s" data-id="%s">`, msg.Role, html.EscapeString(msg.ID))

	if len(msg.Files) > 0 {
		b.WriteString(`<ul class="attachments">`)
		for _, f := range msg.Files {
			fmt.Fprintf(&b, `<li class="attachment %s">%s</li>`, attachmentState(f), html.EscapeString(f.Name))
		}
		b.WriteString(`</ul>`)
	}

	b.WriteString(`<div class="content">`)
	if msg.Role == model.RoleUser {
		b.WriteString(strings.ReplaceAll(html.EscapeString(msg.OriginalContent), "\n", "<br>"))
	} else {
		body, err := r.assistantBody(msg)
		if err != nil {
			return "", err
		}
		b.WriteString(body)
	}
	b.WriteString(`</div></div>`)
	return b.String(), nil
}

func (r *HTMLRenderer) assistantBody(msg model.Message) (string, error) {
	text, marker := msg.SplitMarker()
	out, err := r.Markdown(text)
	if err != nil {
		return "", err
	}
	out, err = Decorate(out)
	if err != nil {
		return "", err
	}

	switch {
	case msg.IsStreaming():
		out += `<span class="cursor">` + StreamingCursor + `</span>`
	case msg.Status == model.StatusCancelled && marker != "":
		out += `<p class="marker cancelled">` + html.EscapeString(markerText(msg, marker)) + `</p>`
	case msg.Status == model.StatusFailed:
		out += `<p class="marker error">` + html.EscapeString(markerText(msg, marker)) + `</p>`
	}
	return out, nil
}
