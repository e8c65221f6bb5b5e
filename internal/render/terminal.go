// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package render

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/ui/styles"
)

// TerminalRenderer renders messages for a terminal: a role header, the
// attachment list, and the body as glamour markdown.
type TerminalRenderer struct {
	theme    *styles.Theme
	userName string
	width    int

	mu sync.Mutex
	md *glamour.TermRenderer
}

// NewTerminalRenderer creates a renderer wrapping at width columns. userName
// labels user messages; empty means "You".
func NewTerminalRenderer(theme *styles.Theme, userName string, width int) (*TerminalRenderer, error) {
	if width <= 0 {
		width = 80
	}
	md, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(theme.GlamourStyle),
		glamour.WithColorProfile(theme.ColorProfile),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, fmt.Errorf("create markdown renderer: %w", err)
	}
	return &TerminalRenderer{theme: theme, userName: userName, width: width, md: md}, nil
}

// Width returns the wrap width.
func (r *TerminalRenderer) Width() int { return r.width }

// RenderMessage implements Renderer.
func (r *TerminalRenderer) RenderMessage(msg model.Message) (string, error) {
	var b strings.Builder
	b.WriteString(r.header(msg))

	if files := r.attachments(msg.Files); files != "" {
		b.WriteString("\n")
		b.WriteString(files)
	}

	body, err := r.body(msg)
	if err != nil {
		return "", err
	}
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
	}
	return b.String(), nil
}

func (r *TerminalRenderer) header(msg model.Message) string {
	var label string
	var style lipgloss.Style
	switch msg.Role {
	case model.RoleUser:
		label, style = msg.Role.DisplayName(), r.theme.UserLabel
		if r.userName != "" {
			label = r.userName
		}
	case model.RoleAssistant:
		label, style = msg.Role.DisplayName(), r.theme.AssistantLabel
		if msg.Model != "" {
			label += " · " + msg.Model
		}
	default:
		label, style = msg.Role.DisplayName(), r.theme.SystemLabel
	}
	h := style.Render(label)
	if !msg.CreatedAt.IsZero() {
		h += " " + r.theme.Timestamp.Render(msg.CreatedAt.Format("15:04"))
	}
	return h
}

func (r *TerminalRenderer) attachments(files []model.Attachment) string {
	if len(files) == 0 {
		return ""
	}
	lines := make([]string, 0, len(files))
	for _, f := range files {
		style := r.theme.AttachmentReady
		switch f.LoadState {
		case model.LoadPending:
			style = r.theme.AttachmentPending
		case model.LoadError:
			style = r.theme.AttachmentError
		}
		lines = append(lines, style.Render(fmt.Sprintf("  + %s (%s)", f.Name, attachmentState(f))))
	}
	return strings.Join(lines, "\n")
}

func (r *TerminalRenderer) body(msg model.Message) (string, error) {
	if msg.Role == model.RoleUser {
		return lipgloss.NewStyle().Width(r.width).Render(msg.OriginalContent), nil
	}

	text, marker := msg.SplitMarker()
	var out string
	if strings.TrimSpace(text) != "" {
		r.mu.Lock()
		rendered, err := r.md.Render(text)
		r.mu.Unlock()
		if err != nil {
			// Partial markdown mid-stream can fail; show it raw.
			rendered = text
		}
		out = strings.Trim(rendered, "\n")
	}

	switch {
	case msg.IsStreaming():
		out += r.theme.Cursor.Render(StreamingCursor)
	case marker != "" && msg.Status == model.StatusCancelled:
		out = joinLines(out, r.theme.CancelledText.Render(markerText(msg, marker)))
	case msg.Status == model.StatusFailed:
		out = joinLines(out, r.theme.ErrorText.Render(markerText(msg, marker)))
	}
	return out, nil
}

func joinLines(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n" + b
}
