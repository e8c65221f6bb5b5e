// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/app"
	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/config"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
	"github.com/jeranaias/freechat-tui/internal/storage"
)

// echoServer streams "echo: <last message content>".
func echoServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var body struct {
			Stream   bool `json:"stream"`
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		_ = json.Unmarshal(raw, &body)
		last := ""
		if n := len(body.Messages); n > 0 {
			last = body.Messages[n-1].Content
		}
		if !body.Stream {
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"id":"t","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"Test Title"}}]}`)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		data, _ := json.Marshal(map[string]any{
			"id":      "c",
			"object":  "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": "echo: " + last}}},
		})
		fmt.Fprintf(w, "data: %s\n\ndata: [DONE]\n\n", data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestModel(t *testing.T) (Model, *app.App) {
	t.Helper()
	srv := echoServer(t)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = storage.BackendMemory
	a, err := app.New(context.Background(), app.Options{Config: cfg, KV: storage.NewMemoryKV(), HTTPClient: srv.Client()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	custom, err := a.AddCustomModel(context.Background(), "echo", srv.URL+"/v1/chat/completions", "sk-test", false)
	require.NoError(t, err)
	require.NoError(t, a.SelectModel(custom.ID))

	m := New(context.Background(), a)
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	return updated.(Model), a
}

// press feeds one key and runs any returned command synchronously,
// feeding its message back.
func press(t *testing.T, m Model, k tea.KeyMsg) Model {
	t.Helper()
	updated, cmd := m.Update(k)
	m = updated.(Model)
	if cmd == nil {
		return m
	}
	if msg := cmd(); msg != nil {
		if _, isQuit := msg.(tea.QuitMsg); !isQuit {
			updated, _ = m.Update(msg)
			m = updated.(Model)
		}
	}
	return m
}

var (
	keyEnter  = tea.KeyMsg{Type: tea.KeyEnter}
	keyEsc    = tea.KeyMsg{Type: tea.KeyEsc}
	keyEdit   = tea.KeyMsg{Type: tea.KeyCtrlE}
	keyNew    = tea.KeyMsg{Type: tea.KeyCtrlN}
	keyAttach = tea.KeyMsg{Type: tea.KeyCtrlT}
	keyDetach = tea.KeyMsg{Type: tea.KeyCtrlX}
)

func waitStaged(t *testing.T, a *app.App) []model.Attachment {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	files, err := a.Attachments().Resolved(ctx)
	require.NoError(t, err)
	return files
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestSendShowsReply(t *testing.T) {
	m, a := newTestModel(t)

	m.composer.SetValue("hi")
	m = press(t, m, keyEnter)

	assert.Empty(t, m.composer.Value())
	require.Len(t, m.snap.Messages, 2)
	assert.Equal(t, "echo: hi", m.snap.Messages[1].Content)
	assert.Contains(t, m.View(), "echo: hi")
	assert.Nil(t, m.err)
	assert.Len(t, a.Store().Chats(), 1)
}

func TestEmptyEnterDoesNothing(t *testing.T) {
	m, a := newTestModel(t)
	_, cmd := m.Update(keyEnter)
	assert.Nil(t, cmd)
	assert.Empty(t, a.Store().History())
}

func TestMissingCredentialRestoresComposer(t *testing.T) {
	m, a := newTestModel(t)
	require.NoError(t, a.SelectModel(registry.DefaultModelID))

	m.composer.SetValue("hello")
	m = press(t, m, keyEnter)

	assert.Equal(t, "hello", m.composer.Value())
	assert.ErrorIs(t, m.err, registry.ErrMissingCredential)
	assert.Contains(t, m.View(), "api_keys.chatgpt")
	assert.Empty(t, a.Store().History())
}

func TestInlineEditDiscard(t *testing.T) {
	m, a := newTestModel(t)

	m = press(t, m, keyEdit)
	assert.Equal(t, "No message to edit", m.status)

	m.composer.SetValue("first")
	m = press(t, m, keyEnter)
	m.composer.SetValue("draft text")

	m = press(t, m, keyEdit)
	assert.NotEmpty(t, m.editingID)
	assert.Equal(t, "first", m.composer.Value())
	assert.Equal(t, m.editingID, a.Store().Editing())

	m = press(t, m, keyEsc)
	assert.Empty(t, m.editingID)
	assert.Empty(t, a.Store().Editing())
	assert.Equal(t, "draft text", m.composer.Value())
}

func TestInlineEditSaveRegenerates(t *testing.T) {
	m, a := newTestModel(t)

	m.composer.SetValue("first")
	m = press(t, m, keyEnter)

	m = press(t, m, keyEdit)
	m.composer.SetValue("second")
	m = press(t, m, keyEnter)

	history := a.Store().History()
	require.Len(t, history, 2)
	assert.Equal(t, "second", history[0].OriginalContent)
	assert.Equal(t, "echo: second", history[1].Content)
	assert.Empty(t, m.editingID)
	assert.Empty(t, a.Store().Editing())
}

func TestInlineEditUnchanged(t *testing.T) {
	m, _ := newTestModel(t)

	m.composer.SetValue("same")
	m = press(t, m, keyEnter)
	m = press(t, m, keyEdit)
	m = press(t, m, keyEnter)

	assert.Equal(t, "No changes", m.status)
}

func TestNewChat(t *testing.T) {
	m, a := newTestModel(t)

	m.composer.SetValue("hi")
	m = press(t, m, keyEnter)
	first := a.Store().CurrentChatID()

	m = press(t, m, keyNew)
	assert.Empty(t, m.snap.Messages)
	assert.NotEqual(t, first, a.Store().CurrentChatID())
	assert.Contains(t, m.View(), "New chat with echo")
}

func TestQuitStopsGeneration(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestAttachTypedPath(t *testing.T) {
	m, a := newTestModel(t)
	path := writeFile(t, t.TempDir(), "notes.txt", "buy milk")

	m.composer.SetValue(path)
	m = press(t, m, keyAttach)
	assert.Empty(t, m.composer.Value())
	assert.Equal(t, "Attached notes.txt", m.status)

	files := waitStaged(t, a)
	require.Len(t, files, 1)
	assert.Equal(t, model.LoadReady, files[0].LoadState)
	assert.Contains(t, m.View(), "+ notes.txt")

	m.composer.SetValue("what is on my list?")
	m = press(t, m, keyEnter)
	history := a.Store().History()
	require.Len(t, history, 2)
	require.Len(t, history[0].Files, 1)
	assert.Equal(t, "notes.txt", history[0].Files[0].Name)
	assert.Zero(t, a.Attachments().Count())
}

func TestAttachWithPicker(t *testing.T) {
	m, a := newTestModel(t)
	dir := t.TempDir()
	writeFile(t, dir, "picked.txt", "from the picker")

	m.composer.SetValue(dir)
	m = press(t, m, keyAttach)
	require.True(t, m.picking)
	assert.Equal(t, dir, m.composer.Value(), "a directory path is not consumed")

	m = press(t, m, keyEnter)
	assert.False(t, m.picking)
	files := waitStaged(t, a)
	require.Len(t, files, 1)
	assert.Equal(t, "picked.txt", files[0].Name)

	m.composer.Reset()
	m = press(t, m, keyAttach)
	require.True(t, m.picking)
	m = press(t, m, keyEsc)
	assert.False(t, m.picking)
	assert.Equal(t, 1, a.Attachments().Count())
}

func TestDetachRemovesLastFile(t *testing.T) {
	m, a := newTestModel(t)

	m = press(t, m, keyDetach)
	assert.Equal(t, "No files attached", m.status)

	_, err := a.Attachments().Stage(context.Background(), attach.Snippet("one", "1"), attach.Snippet("two", "2"))
	require.NoError(t, err)
	waitStaged(t, a)

	m = press(t, m, keyDetach)
	assert.Equal(t, "Removed two.txt", m.status)
	files := a.Attachments().Staged()
	require.Len(t, files, 1)
	assert.Equal(t, "one.txt", files[0].Name)
}

func TestInlineEditCyclesToEarlierMessages(t *testing.T) {
	m, a := newTestModel(t)

	m.composer.SetValue("first")
	m = press(t, m, keyEnter)
	m.composer.SetValue("second")
	m = press(t, m, keyEnter)

	m = press(t, m, keyEdit)
	assert.Equal(t, "second", m.composer.Value())
	m = press(t, m, keyEdit)
	assert.Equal(t, "first", m.composer.Value())
	assert.Equal(t, m.editingID, a.Store().Editing())
	m = press(t, m, keyEdit)
	assert.Equal(t, "second", m.composer.Value(), "wraps around to the latest")

	m = press(t, m, keyEdit)
	m.composer.SetValue("first, again")
	m = press(t, m, keyEnter)

	history := a.Store().History()
	require.Len(t, history, 2, "later messages are discarded")
	assert.Equal(t, "first, again", history[0].OriginalContent)
	assert.Equal(t, "echo: first, again", history[1].Content)
}

func TestInlineEditFilesAreWorkingCopy(t *testing.T) {
	m, a := newTestModel(t)
	ctx := context.Background()

	_, err := a.Attachments().Stage(ctx, attach.Snippet("report", "numbers"))
	require.NoError(t, err)
	waitStaged(t, a)
	m.composer.SetValue("read this")
	m = press(t, m, keyEnter)
	require.Len(t, a.Store().History()[0].Files, 1)

	_, err = a.Attachments().Stage(ctx, attach.Snippet("draft", "unsent"))
	require.NoError(t, err)
	waitStaged(t, a)
	m.composer.SetValue("draft text")

	m = press(t, m, keyEdit)
	staged := a.Attachments().Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, "report.txt", staged[0].Name, "the edited message's files are staged")

	// Dropping the only file with the text unchanged is still an edit.
	m = press(t, m, keyDetach)
	m = press(t, m, keyEnter)
	assert.NotEqual(t, "No changes", m.status)

	history := a.Store().History()
	require.Len(t, history, 2)
	assert.Equal(t, "read this", history[0].OriginalContent)
	assert.Empty(t, history[0].Files)
	assert.Equal(t, "echo: read this", history[1].Content)

	assert.Equal(t, "draft text", m.composer.Value())
	staged = a.Attachments().Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, "draft.txt", staged[0].Name, "draft files come back after the edit")
}

func TestInlineEditDiscardRestoresDraftFiles(t *testing.T) {
	m, a := newTestModel(t)

	m.composer.SetValue("hello")
	m = press(t, m, keyEnter)

	_, err := a.Attachments().Stage(context.Background(), attach.Snippet("draft", "unsent"))
	require.NoError(t, err)
	waitStaged(t, a)

	m = press(t, m, keyEdit)
	assert.Zero(t, a.Attachments().Count())

	m = press(t, m, keyEsc)
	staged := a.Attachments().Staged()
	require.Len(t, staged, 1)
	assert.Equal(t, "draft.txt", staged[0].Name)
}
