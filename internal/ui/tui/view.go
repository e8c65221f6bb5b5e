// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/render"
	"github.com/jeranaias/freechat-tui/internal/util"
)

// =============================================================================
// LAYOUT
// =============================================================================

func (m *Model) resize(width, height int) {
	m.width, m.height = width, height
	m.ready = true

	vpHeight := height - chromeHeight
	if m.help.ShowAll {
		vpHeight -= 3
	}
	if vpHeight < 3 {
		vpHeight = 3
	}
	m.viewport.Width = width
	m.viewport.Height = vpHeight
	m.picker.Height = vpHeight
	m.composer.SetWidth(width - 2)
	m.help.Width = width

	if m.renderer == nil || m.renderer.Width() != width-2 {
		r, err := render.NewTerminalRenderer(m.theme, m.app.Settings().DisplayName(), width-2)
		if err == nil {
			m.renderer = r
			m.cache = make(map[string]cachedRender)
		}
	}
}

// refresh re-reads the store snapshot and rebuilds the transcript. Finished
// messages are rendered once and cached; the pending one is rendered on
// every refresh.
func (m *Model) refresh() {
	atBottom := m.viewport.AtBottom() || m.snap.Generating
	m.snap = m.app.Store().Snapshot()
	if m.snap.EditingID == "" && m.editingID != "" && !m.snap.Generating {
		// The edit was closed elsewhere, e.g. by loading another chat.
		// Staging was cleared with it, so the draft files are gone too.
		m.editingID = ""
		m.composer.SetValue(m.draft)
		m.draft, m.draftFiles = "", nil
	}

	if len(m.snap.Messages) == 0 {
		m.viewport.SetContent(m.emptyState())
		return
	}

	parts := make([]string, 0, len(m.snap.Messages))
	for _, msg := range m.snap.Messages {
		parts = append(parts, m.renderMessage(msg))
	}
	m.viewport.SetContent(strings.Join(parts, "\n\n"))
	if atBottom {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderMessage(msg model.Message) string {
	editing := msg.ID == m.editingID
	key := fmt.Sprintf("%s|%d|%t", msg.Status, len(msg.Content)+len(msg.OriginalContent), editing)

	if !msg.IsStreaming() {
		if c, ok := m.cache[msg.ID]; ok && c.key == key {
			return c.out
		}
	}

	out, err := m.renderer.RenderMessage(msg)
	if err != nil {
		out = msg.Text()
	}
	if editing {
		out = m.theme.Editing.Render(out) + "\n" + m.theme.Muted.Render("  editing: enter saves, esc discards")
	}
	if !msg.IsStreaming() {
		m.cache[msg.ID] = cachedRender{key: key, out: out}
	}
	return out
}

func (m *Model) emptyState() string {
	desc := m.modelName()
	return m.theme.Muted.Render(fmt.Sprintf("\n  New chat with %s. Type a message and press enter.", desc))
}

func (m *Model) modelName() string {
	for _, d := range m.app.Models() {
		if d.ID == m.snap.Model {
			return d.DisplayName
		}
	}
	return m.snap.Model
}

// =============================================================================
// VIEW
// =============================================================================

// View renders the screen.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	body := m.viewport.View()
	if m.picking {
		body = m.picker.View()
	}
	sections := []string{
		m.headerView(),
		body,
		m.attachmentsView(),
		m.composer.View(),
		m.statusView(),
		m.help.View(m.keys),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m Model) headerView() string {
	title := m.snap.Title
	if title == "" {
		title = model.DefaultChatTitle
	}
	right := m.theme.Muted.Render(m.modelName())
	left := m.theme.HeaderTitle.Render(util.TruncateWidth(title, m.width-lipgloss.Width(right)-4))
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return m.theme.Header.Width(m.width).Render(left + strings.Repeat(" ", gap) + right)
}

func (m Model) attachmentsView() string {
	files := m.app.Attachments().Staged()
	if len(files) == 0 {
		return ""
	}
	names := make([]string, 0, len(files))
	for _, f := range files {
		style := m.theme.AttachmentReady
		switch f.LoadState {
		case model.LoadPending:
			style = m.theme.AttachmentPending
		case model.LoadError:
			style = m.theme.AttachmentError
		}
		names = append(names, style.Render("+ "+f.Name))
	}
	return strings.Join(names, "  ")
}

func (m Model) statusView() string {
	switch {
	case m.err != nil:
		return m.theme.ErrorText.Render(app.Describe(m.err))
	case m.snap.Generating:
		return m.spinner.View() + m.theme.Muted.Render(" generating (C-s to stop)")
	case m.status != "":
		return m.theme.Muted.Render(m.status)
	}
	return m.theme.StatusBar.Render(fmt.Sprintf("%d chats", len(m.app.Store().Chats())))
}
