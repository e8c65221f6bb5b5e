// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/config"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
	"github.com/jeranaias/freechat-tui/internal/storage"
)

// fakeProvider answers streaming requests with "echo: <last user text>" and
// title requests with a fixed title.
type fakeProvider struct {
	mu      sync.Mutex
	bodies  []map[string]any
	streams int
}

func (p *fakeProvider) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	raw, _ := io.ReadAll(r.Body)
	var body map[string]any
	_ = json.Unmarshal(raw, &body)
	p.mu.Lock()
	p.bodies = append(p.bodies, body)
	p.mu.Unlock()

	if stream, _ := body["stream"].(bool); !stream {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"t","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"\"Echo Test Chat\""}}]}`)
		return
	}

	p.mu.Lock()
	p.streams++
	p.mu.Unlock()
	msgs, _ := body["messages"].([]any)
	last := ""
	if len(msgs) > 0 {
		m, _ := msgs[len(msgs)-1].(map[string]any)
		last, _ = m["content"].(string)
	}
	w.Header().Set("Content-Type", "text/event-stream")
	for _, part := range []string{"echo: ", last} {
		data, _ := json.Marshal(map[string]any{
			"id":      "c",
			"object":  "chat.completion.chunk",
			"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": part}}},
		})
		fmt.Fprintf(w, "data: %s\n\n", data)
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
}

func newTestApp(t *testing.T, kv storage.KV) (*App, *fakeProvider, string) {
	t.Helper()
	provider := &fakeProvider{}
	srv := httptest.NewServer(provider)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Backend = storage.BackendMemory
	if kv == nil {
		kv = storage.NewMemoryKV()
	}
	a, err := New(context.Background(), Options{Config: cfg, KV: kv, HTTPClient: srv.Client()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	m, err := a.AddCustomModel(context.Background(), "echo-model", srv.URL+"/v1/chat/completions", "sk-echo", false)
	require.NoError(t, err)
	require.NoError(t, a.SelectModel(m.ID))
	return a, provider, m.ID
}

func TestSendHello(t *testing.T) {
	a, provider, _ := newTestApp(t, nil)
	ctx := context.Background()

	reply, err := a.Send(ctx, "Hello")
	require.NoError(t, err)
	a.engine.Wait()

	assert.Equal(t, "echo: Hello", reply.Content)
	assert.Equal(t, model.StatusComplete, reply.Status)
	assert.False(t, a.Store().IsGenerating())

	chats := a.Store().Chats()
	require.Len(t, chats, 1)
	assert.Len(t, chats[0].Messages, 2)
	assert.Equal(t, "Echo Test Chat", chats[0].Title)
	assert.Equal(t, 1, provider.streams)
}

func TestSendValidation(t *testing.T) {
	a, provider, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Send(ctx, "   ")
	assert.ErrorIs(t, err, conversation.ErrEmptyMessage)

	require.NoError(t, a.SelectModel(registry.DefaultModelID))
	_, err = a.Send(ctx, "Hello")
	assert.ErrorIs(t, err, registry.ErrMissingCredential)

	assert.Empty(t, a.Store().History())
	assert.Empty(t, a.Store().Chats())
	assert.Zero(t, provider.streams)
}

func TestSendIncludesStagedFiles(t *testing.T) {
	a, provider, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Attachments().Stage(ctx, attach.Snippet("notes", "remember the milk"))
	require.NoError(t, err)

	_, err = a.Send(ctx, "summarize my notes")
	require.NoError(t, err)
	a.engine.Wait()

	assert.Zero(t, a.Attachments().Count(), "staging is cleared after send")
	hist := a.Store().History()
	require.Len(t, hist[0].Files, 1)
	assert.Equal(t, model.LoadReady, hist[0].Files[0].LoadState)

	provider.mu.Lock()
	body := provider.bodies[0]
	provider.mu.Unlock()
	msgs := body["messages"].([]any)
	user := msgs[len(msgs)-1].(map[string]any)
	assert.Contains(t, user["content"], "--- Context from file notes.txt ---\nremember the milk")
}

func TestPersistAndReopen(t *testing.T) {
	kv := storage.NewMemoryKV()
	a, _, modelID := newTestApp(t, kv)
	ctx := context.Background()

	_, err := a.Send(ctx, "first")
	require.NoError(t, err)
	a.engine.Wait()
	require.NoError(t, a.UpdateSettings(ctx, func(s *model.Settings) error {
		s.UserName = "Sam"
		return nil
	}))
	chatID := a.Store().CurrentChatID()

	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	b, err := New(ctx, Options{Config: cfg, KV: kv, DisableTitles: true})
	require.NoError(t, err)
	defer b.engine.Wait()

	assert.Equal(t, chatID, b.Store().CurrentChatID(), "most recent chat opens on start")
	assert.Len(t, b.Store().History(), 2)
	assert.Equal(t, modelID, b.Store().Model())
	assert.Equal(t, "Sam", b.Settings().UserName)
	assert.True(t, b.Registry().Exists(modelID))
}

func TestRemoveCustomModelFallsBack(t *testing.T) {
	a, _, modelID := newTestApp(t, nil)
	ctx := context.Background()

	require.NoError(t, a.RemoveCustomModel(ctx, modelID))
	assert.Equal(t, registry.DefaultModelID, a.Store().Model())
	assert.ErrorIs(t, a.RemoveCustomModel(ctx, registry.DefaultModelID), registry.ErrBuiltInModel)
	assert.ErrorIs(t, a.SelectModel("nope"), registry.ErrUnknownModel)
}

func TestComposerEditFlow(t *testing.T) {
	a, provider, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Send(ctx, "one")
	require.NoError(t, err)
	_, err = a.Send(ctx, "two")
	require.NoError(t, err)
	a.engine.Wait()
	first := a.Store().History()[0]

	msg, err := a.BeginComposerEdit(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "one", msg.OriginalContent)

	res, err := a.SaveComposerEdit(ctx, "one, rewritten")
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, "echo: one, rewritten", res.Reply.Content)

	hist := a.Store().History()
	require.Len(t, hist, 2)
	assert.Empty(t, a.Forks().Editing())
	assert.Equal(t, 3, provider.streams)
}

func TestModifyAndRegenerate(t *testing.T) {
	a, provider, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Send(ctx, "explain")
	require.NoError(t, err)
	a.engine.Wait()

	reply, err := a.Modify(ctx, fork.Elaborate)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply.Content, "echo: Make your previous answer"))

	hist := a.Store().History()
	require.Len(t, hist, 2)
	for _, m := range hist {
		assert.False(t, m.IsHidden)
	}

	_, err = a.Regenerate(ctx)
	require.NoError(t, err)
	assert.Len(t, a.Store().History(), 2)
	assert.Equal(t, 3, provider.streams)
}

func TestNewChatAndDelete(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Send(ctx, "one")
	require.NoError(t, err)
	a.engine.Wait()
	id := a.Store().CurrentChatID()

	require.NoError(t, a.NewChat())
	assert.Zero(t, a.Store().CurrentChatID())
	assert.Len(t, a.Store().Chats(), 1)

	require.NoError(t, a.RenameChat(ctx, id, "Renamed"))
	require.NoError(t, a.LoadChat(id))
	assert.Equal(t, id, a.Store().CurrentChatID())
	require.NoError(t, a.DeleteChat(ctx, id))
	assert.Zero(t, a.Store().CurrentChatID())
}

func TestWatchUnsupportedOnMemory(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	assert.ErrorIs(t, a.Watch(context.Background()), ErrWatchUnsupported)
}

func TestUpdateSettingsRejected(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	ctx := context.Background()
	before := a.Settings()

	errBad := errors.New("bad value")
	err := a.UpdateSettings(ctx, func(s *model.Settings) error {
		s.UserName = "Changed"
		return errBad
	})
	assert.ErrorIs(t, err, errBad)
	assert.Equal(t, before.UserName, a.Settings().UserName)
}

func TestSendKeepsFilesStagedAfterSnapshot(t *testing.T) {
	a, _, _ := newTestApp(t, nil)
	ctx := context.Background()

	_, err := a.Attachments().Stage(ctx, attach.Snippet("first", "one"))
	require.NoError(t, err)

	// Stage a second file as soon as the user message reaches the store,
	// after Send has read the staged set.
	var once sync.Once
	unsubscribe := a.Store().Subscribe(func(ev conversation.Event) {
		if ev.Kind != conversation.EventMessageAppended {
			return
		}
		once.Do(func() {
			_, err := a.Attachments().Stage(ctx, attach.Snippet("second", "two"))
			assert.NoError(t, err)
		})
	})
	defer unsubscribe()

	_, err = a.Send(ctx, "with files")
	require.NoError(t, err)
	a.engine.Wait()

	hist := a.Store().History()
	require.Len(t, hist[0].Files, 1)
	assert.Equal(t, "first.txt", hist[0].Files[0].Name)

	left := a.Attachments().Staged()
	require.Len(t, left, 1)
	assert.Equal(t, "second.txt", left[0].Name)
}
