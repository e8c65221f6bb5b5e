// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/filepicker"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/render"
	"github.com/jeranaias/freechat-tui/internal/ui/styles"
)

const (
	composerHeight = 3
	chromeHeight   = composerHeight + 5 // header, attachment bar, status, help, borders
)

// =============================================================================
// MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen. Conversation state lives
// in the store; the model keeps only presentation state and re-reads a
// snapshot whenever the store reports a change.
type Model struct {
	ctx   context.Context
	app   *app.App
	theme *styles.Theme

	width  int
	height int
	ready  bool

	viewport viewport.Model
	composer textarea.Model
	spinner  spinner.Model
	help     help.Model
	keys     KeyMap
	picker   filepicker.Model
	picking  bool

	renderer *render.TerminalRenderer
	cache    map[string]cachedRender

	snap conversation.Snapshot

	// editingID is the user message being edited inline. While it is set
	// the attachment manager holds the edit's working copy of files; draft
	// and draftFiles hold the composer text and staged files it displaced.
	editingID  string
	draft      string
	draftFiles []model.Attachment

	status string
	err    error
}

type cachedRender struct {
	key string
	out string
}

// New creates the chat screen for a. ctx bounds every generation started
// from it.
func New(ctx context.Context, a *app.App) Model {
	theme := styles.NewTheme(a.Settings())

	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.ShowLineNumbers = false
	ta.CharLimit = 0
	ta.SetHeight(composerHeight)
	ta.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("alt+enter", "ctrl+j"))
	ta.Focus()

	fp := filepicker.New()
	fp.AutoHeight = false
	fp.KeyMap.Back = key.NewBinding(key.WithKeys("h", "backspace", "left"), key.WithHelp("h", "back"))
	if wd, err := os.Getwd(); err == nil {
		fp.CurrentDirectory = wd
	}

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = theme.AssistantLabel

	m := Model{
		ctx:      ctx,
		app:      a,
		theme:    theme,
		width:    80,
		height:   24,
		viewport: viewport.New(80, 24-chromeHeight),
		composer: ta,
		spinner:  sp,
		help:     help.New(),
		keys:     DefaultKeyMap(),
		picker:   fp,
		cache:    make(map[string]cachedRender),
	}
	m.renderer, _ = render.NewTerminalRenderer(theme, a.Settings().DisplayName(), m.width-2)
	m.snap = a.Store().Snapshot()
	m.editingID = m.snap.EditingID
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init starts the cursor blink and spinner.
func (m Model) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.spinner.Tick)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.refresh()
		return m, nil

	case tea.KeyMsg:
		if cmd, handled := m.handleKey(msg); handled {
			return m, cmd
		}

	case StoreEventMsg:
		m.refresh()
		if msg.Event.Kind == conversation.EventGenerationStarted {
			m.status, m.err = "", nil
		}
		return m, nil

	case AttachmentMsg:
		if msg.Attachment.LoadState == model.LoadError {
			m.status = fmt.Sprintf("%s: %s", msg.Attachment.Name, msg.Attachment.Error)
		}
		return m, nil

	case generationDoneMsg:
		m.refresh()
		m.handleResult(msg.Reply, msg.Err)
		return m, nil

	case restoreMsg:
		if m.composer.Value() == "" {
			m.composer.SetValue(msg.text)
		}
		m.err = msg.err
		return m, nil

	case editDoneMsg:
		m.refresh()
		switch {
		case msg.Err != nil:
			m.err = msg.Err
			if m.app.Forks().Editing() == msg.ID && m.editingID == "" {
				m.draft = m.composer.Value()
				m.draftFiles = m.app.Attachments().Staged()
				m.editingID = msg.ID
				m.composer.SetValue(msg.Text)
				m.app.Attachments().Replace(msg.Files)
			}
		case !msg.Result.Changed:
			m.status = "No changes"
		default:
			m.handleResult(msg.Result.Reply, nil)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	if m.picking {
		return m, m.updatePicker(msg)
	}

	var cmd tea.Cmd
	m.composer, cmd = m.composer.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// handleKey processes the screen's own bindings. Unhandled keys go to the
// composer.
func (m *Model) handleKey(msg tea.KeyMsg) (tea.Cmd, bool) {
	if key.Matches(msg, m.keys.Quit) {
		m.app.Stop()
		return tea.Quit, true
	}
	if m.picking {
		return m.updatePicker(msg), true
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize(m.width, m.height)
		m.refresh()
		return nil, true

	case key.Matches(msg, m.keys.Stop):
		if !m.app.Stop() {
			m.status = "Nothing to stop"
		}
		return nil, true

	case key.Matches(msg, m.keys.Send):
		if m.editingID != "" {
			return m.saveEdit(), true
		}
		return m.send(), true

	case key.Matches(msg, m.keys.Discard):
		if m.editingID != "" {
			m.discardEdit()
			return nil, true
		}
		return nil, false

	case key.Matches(msg, m.keys.Edit):
		m.beginEdit()
		return nil, true

	case key.Matches(msg, m.keys.Attach):
		return m.attach(), true

	case key.Matches(msg, m.keys.Detach):
		m.detach()
		return nil, true

	case key.Matches(msg, m.keys.NewChat):
		m.clearStatus()
		if err := m.app.NewChat(); err != nil {
			m.err = err
		}
		m.refresh()
		return nil, true

	case key.Matches(msg, m.keys.PrevChat):
		m.switchChat(+1)
		return nil, true

	case key.Matches(msg, m.keys.NextChat):
		m.switchChat(-1)
		return nil, true

	case key.Matches(msg, m.keys.Regen):
		m.clearStatus()
		a, ctx := m.app, m.ctx
		return func() tea.Msg {
			reply, err := a.Regenerate(ctx)
			return generationDoneMsg{Reply: reply, Err: err}
		}, true

	case key.Matches(msg, m.keys.Summarize):
		return m.modify(fork.Summarize), true

	case key.Matches(msg, m.keys.Elaborate):
		return m.modify(fork.Elaborate), true

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return nil, true

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return nil, true
	}
	return nil, false
}

// =============================================================================
// ACTIONS
// =============================================================================

func (m *Model) send() tea.Cmd {
	text := m.composer.Value()
	if strings.TrimSpace(text) == "" && m.app.Attachments().Count() == 0 {
		return nil
	}
	if m.app.Store().IsGenerating() {
		m.status = "Still generating; press C-s to stop"
		return nil
	}
	m.clearStatus()
	m.composer.Reset()

	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		reply, err := a.Send(ctx, text)
		if err != nil && reply.ID == "" {
			return restoreMsg{text: text, err: err}
		}
		return generationDoneMsg{Reply: reply, Err: err}
	}
}

func (m *Model) modify(kind fork.Modification) tea.Cmd {
	m.clearStatus()
	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		reply, err := a.Modify(ctx, kind)
		return generationDoneMsg{Reply: reply, Err: err}
	}
}

// beginEdit opens the latest user message for editing, or the one before
// the message already being edited.
func (m *Model) beginEdit() {
	m.clearStatus()
	target := previousUserMessage(m.snap.Messages, m.editingID)
	if target == nil {
		m.status = "No message to edit"
		return
	}
	if m.editingID == "" && m.app.Attachments().Pending() {
		m.status = "Wait for attachments to finish loading"
		return
	}
	if _, err := m.app.Forks().EnterEdit(target.ID); err != nil {
		m.err = err
		return
	}
	if m.editingID == "" {
		m.draft = m.composer.Value()
		m.draftFiles = m.app.Attachments().Staged()
	}
	m.editingID = target.ID
	m.app.Attachments().Replace(target.Files)
	m.composer.SetValue(target.OriginalContent)
	m.composer.CursorEnd()
	m.refresh()
}

// saveEdit submits the composer text and the working copy of files. The
// displaced draft files are staged again once the working copy is read.
func (m *Model) saveEdit() tea.Cmd {
	id, text := m.editingID, m.composer.Value()
	if _, ok := m.app.Store().Message(id); !ok {
		m.discardEdit()
		m.err = conversation.ErrMessageNotFound
		return nil
	}
	m.clearStatus()
	draftFiles := m.draftFiles
	m.editingID = ""
	m.composer.SetValue(m.draft)
	m.draft, m.draftFiles = "", nil

	a, ctx := m.app, m.ctx
	return func() tea.Msg {
		files, err := a.Attachments().Resolved(ctx)
		if err != nil {
			files = a.Attachments().Staged()
		}
		a.Attachments().Replace(draftFiles)
		if err != nil {
			return editDoneMsg{ID: id, Text: text, Files: files, Err: err}
		}
		res, err := a.Forks().SaveEdit(ctx, text, files)
		return editDoneMsg{ID: id, Text: text, Files: files, Result: res, Err: err}
	}
}

func (m *Model) discardEdit() {
	m.app.Forks().ExitEdit()
	m.app.Attachments().Replace(m.draftFiles)
	m.editingID = ""
	m.composer.SetValue(m.draft)
	m.draft, m.draftFiles = "", nil
	m.refresh()
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// attach stages the file whose path fills the composer. Otherwise it opens
// the file picker, in the typed directory if there is one.
func (m *Model) attach() tea.Cmd {
	m.clearStatus()
	path := composerPath(m.composer.Value())
	if path != "" {
		info, err := os.Stat(path)
		switch {
		case err == nil && !info.IsDir():
			if m.stage(path) {
				m.composer.Reset()
			}
			return nil
		case err == nil:
			m.picker.CurrentDirectory = path
		}
	}
	m.picking = true
	m.status = "Choose a file: enter attaches, esc closes"
	return m.picker.Init()
}

func (m *Model) updatePicker(msg tea.Msg) tea.Cmd {
	if k, ok := msg.(tea.KeyMsg); ok && key.Matches(k, m.keys.Discard) {
		m.picking = false
		m.clearStatus()
		return nil
	}
	var cmd tea.Cmd
	m.picker, cmd = m.picker.Update(msg)
	if ok, path := m.picker.DidSelectFile(msg); ok {
		m.picking = false
		m.clearStatus()
		m.stage(path)
	}
	return cmd
}

func (m *Model) stage(path string) bool {
	if _, err := m.app.Attachments().Stage(m.ctx, attach.FileSource(path)); err != nil {
		m.err = err
		return false
	}
	m.status = "Attached " + filepath.Base(path)
	return true
}

// detach unstages the most recently staged file.
func (m *Model) detach() {
	m.clearStatus()
	files := m.app.Attachments().Staged()
	if len(files) == 0 {
		m.status = "No files attached"
		return
	}
	last := files[len(files)-1]
	m.app.Attachments().Remove(last.ID)
	m.status = "Removed " + last.Name
}

// composerPath reads the composer as a single path, ~ expanded and
// surrounding quotes dropped. Multi-line text is not a path.
func composerPath(text string) string {
	text = strings.TrimSpace(text)
	if text == "" || strings.ContainsRune(text, '\n') {
		return ""
	}
	text = strings.Trim(text, `"'`)
	if rest, ok := strings.CutPrefix(text, "~/"); ok {
		if home, err := os.UserHomeDir(); err == nil {
			text = filepath.Join(home, rest)
		}
	}
	return text
}

func (m *Model) switchChat(delta int) {
	m.clearStatus()
	chats := m.app.Store().Chats()
	if len(chats) == 0 {
		return
	}
	idx := -1
	current := m.app.Store().CurrentChatID()
	for i, c := range chats {
		if c.ID == current {
			idx = i
			break
		}
	}
	next := idx + delta
	if idx == -1 {
		next = 0
	}
	if next < 0 || next >= len(chats) {
		return
	}
	if err := m.app.LoadChat(chats[next].ID); err != nil {
		m.err = err
	}
	m.refresh()
}

func (m *Model) handleResult(reply model.Message, err error) {
	switch {
	case err != nil:
		m.err = err
	case reply.Status == model.StatusCancelled:
		m.status = "Generation stopped"
	case reply.Status == model.StatusFailed:
		m.err = errors.New(reply.Error)
	}
}

func (m *Model) clearStatus() {
	m.status, m.err = "", nil
}

// restoreMsg puts rejected composer text back.
type restoreMsg struct {
	text string
	err  error
}

// previousUserMessage returns the visible user message before the one with
// id, wrapping to the latest. An empty id means the latest.
func previousUserMessage(msgs []model.Message, id string) *model.Message {
	start := len(msgs) - 1
	if id != "" {
		for i := range msgs {
			if msgs[i].ID == id {
				start = i - 1
				break
			}
		}
	}
	for i := start; i >= 0; i-- {
		if msgs[i].Role == model.RoleUser && !msgs[i].IsHidden {
			return &msgs[i]
		}
	}
	if id == "" {
		return nil
	}
	return previousUserMessage(msgs, "")
}
