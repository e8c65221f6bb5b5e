// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/freechat-tui/internal/model"
)

// =============================================================================
// BACKEND CONFORMANCE
// =============================================================================

func backends(t *testing.T) map[string]KV {
	t.Helper()
	fileKV, err := OpenFileKV(filepath.Join(t.TempDir(), "store"))
	require.NoError(t, err)
	sqliteKV, err := OpenSQLite(filepath.Join(t.TempDir(), "freechat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqliteKV.Close() })

	return map[string]KV{
		"memory": NewMemoryKV(),
		"file":   fileKV,
		"sqlite": sqliteKV,
	}
}

func TestKV_Conformance(t *testing.T) {
	ctx := context.Background()
	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := kv.Get(ctx, "chats")
			require.True(t, errors.Is(err, ErrNotFound), "got %v", err)

			require.NoError(t, kv.Put(ctx, "chats", []byte(`[1]`)))
			require.NoError(t, kv.Put(ctx, "chats", []byte(`[1,2]`)))
			require.NoError(t, kv.Put(ctx, "appSettings", []byte(`{}`)))

			got, err := kv.Get(ctx, "chats")
			require.NoError(t, err)
			assert.Equal(t, `[1,2]`, string(got))

			keys, err := kv.Keys(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"appSettings", "chats"}, keys)

			assert.True(t, errors.Is(kv.Put(ctx, "../escape", nil), ErrInvalidKey))
		})
	}
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{BackendFile, BackendSQLite, BackendMemory} {
		kv, err := OpenBackend(name, dir)
		require.NoError(t, err, name)
		require.NoError(t, kv.Close())
	}
	_, err := OpenBackend("redis", dir)
	assert.Error(t, err)
}

// =============================================================================
// GATEWAY TESTS
// =============================================================================

func TestGateway_MissingBlobsLoadDefaults(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(NewMemoryKV())

	chats, err := gw.LoadChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)

	s, err := gw.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.DefaultSettings(), s)

	models, err := gw.LoadCustomModels(ctx)
	require.NoError(t, err)
	assert.Empty(t, models)
}

func TestGateway_ChatsRoundTripWithoutHidden(t *testing.T) {
	ctx := context.Background()
	gw := NewGateway(NewMemoryKV())

	older := model.NewChat(1000, "gpt-oss")
	newer := model.NewChat(2000, "qwen")
	newer.Messages = []model.Message{
		model.NewUserMessage("hi", []model.Attachment{{ID: "f1", Name: "a.txt", FileType: model.FileText, Content: "x", LoadState: model.LoadReady}}),
		model.NewHiddenUserMessage("steer"),
	}

	require.NoError(t, gw.SaveChats(ctx, []model.Chat{older, newer}))

	chats, err := gw.LoadChats(ctx)
	require.NoError(t, err)
	require.Len(t, chats, 2)
	assert.Equal(t, int64(2000), chats[0].ID, "most recent first")
	require.Len(t, chats[0].Messages, 1)
	assert.Equal(t, "hi", chats[0].Messages[0].OriginalContent)
	assert.Equal(t, "a.txt", chats[0].Messages[0].Files[0].Name)
}

func TestGateway_CorruptBlobIsBackedUp(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, KeyChats, []byte(`{not json`)))

	gw := NewGateway(kv)
	chats, err := gw.LoadChats(ctx)
	require.NoError(t, err)
	assert.Empty(t, chats)

	keys, err := kv.Keys(ctx)
	require.NoError(t, err)
	var backup string
	for _, k := range keys {
		if strings.HasPrefix(k, KeyChats+".corrupt-") {
			backup = k
		}
	}
	require.NotEmpty(t, backup)
	data, err := kv.Get(ctx, backup)
	require.NoError(t, err)
	assert.Equal(t, `{not json`, string(data))
}

func TestGateway_SettingsNormalized(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	require.NoError(t, kv.Put(ctx, KeySettings, []byte(`{"system_prompt":"be brief","api_keys":{"qwen":"k"}}`)))

	s, err := NewGateway(kv).LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "be brief", s.SystemPrompt)
	assert.Equal(t, model.DefaultUserName, s.UserName)
	assert.Equal(t, "k", s.APIKeys[model.SlotQwen])
	assert.Contains(t, s.APIKeys, model.SlotChatGPT)
}

func TestGateway_SealedCredentials(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()
	sealer, err := LoadOrCreateSealer(filepath.Join(t.TempDir(), "secret.key"))
	require.NoError(t, err)
	gw := NewGateway(kv, WithSealer(sealer))

	s := model.DefaultSettings()
	s.APIKeys[model.SlotChatGPT] = "sk-or-secret"
	require.NoError(t, gw.SaveSettings(ctx, s))
	require.NoError(t, gw.SaveCustomModels(ctx, []model.CustomModel{{ID: "custom-1", Name: "m", APIKey: "sk-custom"}}))

	raw, err := kv.Get(ctx, KeySettings)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-or-secret")
	raw, err = kv.Get(ctx, KeyCustomModels)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-custom")

	loaded, err := gw.LoadSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-or-secret", loaded.APIKeys[model.SlotChatGPT])
	models, err := gw.LoadCustomModels(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sk-custom", models[0].APIKey)

	// Without the key the sealed value is dropped, never passed through.
	plain, err := NewGateway(kv).LoadSettings(ctx)
	require.NoError(t, err)
	assert.Empty(t, plain.APIKeys[model.SlotChatGPT])
}

// =============================================================================
// SEALER TESTS
// =============================================================================

func TestSealer_RoundTripAndMigration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.key")
	s1, err := LoadOrCreateSealer(path)
	require.NoError(t, err)

	sealed, err := s1.Seal("token")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))

	// Reloading the same key file opens the value.
	s2, err := LoadOrCreateSealer(path)
	require.NoError(t, err)
	plain, err := s2.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "token", plain)

	// Plaintext passes through.
	plain, err = s2.Open("legacy")
	require.NoError(t, err)
	assert.Equal(t, "legacy", plain)

	empty, err := s1.Seal("")
	require.NoError(t, err)
	assert.Empty(t, empty)

	other, err := NewSealer(make([]byte, 32))
	require.NoError(t, err)
	_, err = other.Open(sealed)
	assert.True(t, errors.Is(err, ErrBadSealedValue))
}

func TestLoadOrCreateSealer_RejectsShortKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secret.key")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0600))
	_, err := LoadOrCreateSealer(path)
	assert.Error(t, err)
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestFileKV_WatchReportsExternalWrites(t *testing.T) {
	kv, err := OpenFileKV(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changed := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- kv.Watch(ctx, 50*time.Millisecond, func(key string) { changed <- key })
	}()
	time.Sleep(100 * time.Millisecond)

	// Our own write is ignored.
	require.NoError(t, kv.Put(ctx, KeyChats, []byte(`[]`)))
	// An external write is reported.
	require.NoError(t, os.WriteFile(filepath.Join(kv.Dir(), KeySettings+".json"), []byte(`{}`), 0600))

	select {
	case key := <-changed:
		assert.Equal(t, KeySettings, key)
	case <-time.After(3 * time.Second):
		t.Fatal("no change reported")
	}

	select {
	case key := <-changed:
		t.Fatalf("unexpected second change %q", key)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}
