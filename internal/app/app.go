// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app wires configuration, storage, the model registry, attachments
// and the generation engines into the object every surface drives.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/freechat-tui/internal/attach"
	"github.com/jeranaias/freechat-tui/internal/cloud"
	"github.com/jeranaias/freechat-tui/internal/config"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/fork"
	"github.com/jeranaias/freechat-tui/internal/generate"
	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
	"github.com/jeranaias/freechat-tui/internal/storage"
)

// Options configures New. Zero values select the defaults from Config.
type Options struct {
	Config *config.Config
	Logger *slog.Logger

	// KV replaces the configured storage backend.
	KV storage.KV

	// HTTPClient replaces the shared pooled transport.
	HTTPClient *http.Client

	// DisableTitles turns off background title generation.
	DisableTitles bool
}

// App is the assembled chat client.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	kv       storage.KV
	gateway  *storage.Gateway
	registry *registry.Registry
	store    *conversation.Store
	files    *attach.Manager
	engine   *generate.Engine
	forks    *fork.Engine

	mu       sync.RWMutex
	settings model.Settings
}

// New opens storage, loads the persisted blobs and opens the most recent
// chat, or an empty session when there is none.
func New(ctx context.Context, opts Options) (*App, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	logger := logging.OrDiscard(opts.Logger)

	dataDir, err := cfg.ResolvedDataDir()
	if err != nil {
		return nil, err
	}

	kv := opts.KV
	if kv == nil {
		kv, err = storage.OpenBackend(cfg.Storage.Backend, dataDir)
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
	}

	gwOpts := []storage.GatewayOption{storage.WithLogger(logger)}
	if cfg.Storage.EncryptCredentials {
		sealer, err := storage.LoadOrCreateSealer(storage.KeyFilePath(dataDir))
		if err != nil {
			kv.Close()
			return nil, fmt.Errorf("load credential key: %w", err)
		}
		gwOpts = append(gwOpts, storage.WithSealer(sealer))
	}
	gateway := storage.NewGateway(kv, gwOpts...)

	chats, err := gateway.LoadChats(ctx)
	if err != nil {
		logger.Warn("chats_unavailable", "error", err)
	}
	settings, err := gateway.LoadSettings(ctx)
	if err != nil {
		logger.Warn("settings_unavailable", "error", err)
	}
	custom, err := gateway.LoadCustomModels(ctx)
	if err != nil {
		logger.Warn("custom_models_unavailable", "error", err)
	}

	reg := registry.New(custom)
	defaultModel := cfg.DefaultModel
	if !reg.Exists(defaultModel) {
		defaultModel = registry.DefaultModelID
	}

	store := conversation.NewStore(chats,
		conversation.WithPersister(gateway),
		conversation.WithLogger(logger),
		conversation.WithModel(defaultModel))

	client := cloud.New(
		cloud.WithHTTPClient(opts.HTTPClient),
		cloud.WithAppHeaders(cfg.Network.Referer, cfg.Network.AppTitle),
		cloud.WithRequestsPerMinute(cfg.Network.RequestsPerMinute),
		cloud.WithLogger(logger))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		kv:       kv,
		gateway:  gateway,
		registry: reg,
		store:    store,
		files: attach.NewManager(attach.Limits{
			MaxFiles:          cfg.Attachments.MaxFiles,
			MaxFileBytes:      cfg.Attachments.MaxFileBytes,
			MaxImageDimension: cfg.Attachments.MaxImageDimension,
		}, attach.WithLogger(logger)),
		settings: settings,
	}

	engOpts := []generate.Option{
		generate.WithLogger(logger),
		generate.WithTitleTimeout(time.Duration(cfg.Network.TitleTimeoutSecs) * time.Second),
	}
	if opts.DisableTitles {
		engOpts = append(engOpts, generate.WithoutTitles())
	}
	a.engine = generate.New(store, reg, client, a.Settings, engOpts...)
	a.forks = fork.New(store, a.engine, fork.WithLogger(logger))

	if len(chats) > 0 {
		if err := a.LoadChat(chats[0].ID); err != nil {
			logger.Warn("recent_chat_unavailable", "chat_id", chats[0].ID, "error", err)
		}
	}
	logger.Info("app_started",
		"chats", len(chats),
		"custom_models", len(custom),
		"model", store.Model(),
		"backend", cfg.Storage.Backend)
	return a, nil
}

// Close waits for background work and closes storage.
func (a *App) Close() error {
	a.store.Cancel()
	a.engine.Wait()
	a.files.Wait()
	return a.gateway.Close()
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Config returns the configuration the app was built with.
func (a *App) Config() *config.Config { return a.cfg }

// Store returns the conversation store.
func (a *App) Store() *conversation.Store { return a.store }

// Attachments returns the staging manager for the next message.
func (a *App) Attachments() *attach.Manager { return a.files }

// Forks returns the edit/regenerate engine.
func (a *App) Forks() *fork.Engine { return a.forks }

// Registry returns the model registry.
func (a *App) Registry() *registry.Registry { return a.registry }

// =============================================================================
// SENDING
// =============================================================================

// Send appends a user message built from text and the staged attachments and
// runs one generation cycle. Validation failures return before anything
// changes. Staged attachments still loading are awaited; ctx bounds that wait
// and the cycle.
func (a *App) Send(ctx context.Context, text string) (model.Message, error) {
	if a.store.IsGenerating() {
		return model.Message{}, conversation.ErrGenerating
	}
	if strings.TrimSpace(text) == "" && a.files.Count() == 0 {
		return model.Message{}, conversation.ErrEmptyMessage
	}
	desc, err := a.engine.Ready()
	if err != nil {
		return model.Message{}, err
	}
	files, err := a.files.Resolved(ctx)
	if err != nil {
		return model.Message{}, err
	}

	cycle, err := a.store.BeginCycle(ctx)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := cycle.AppendUserMessage(text, files); err != nil {
		cycle.Finish()
		return model.Message{}, err
	}
	a.files.Discard(files)
	if err := a.store.Reconcile(ctx); err != nil {
		a.logger.Error("persist_user_message_failed", "error", err)
	}
	return a.engine.Run(cycle, desc), nil
}

// Stop cancels the running generation. Reports whether one was running.
func (a *App) Stop() bool {
	return a.store.Cancel()
}

// Regenerate replaces the last reply.
func (a *App) Regenerate(ctx context.Context) (model.Message, error) {
	return a.forks.RegenerateLast(ctx)
}

// Modify asks for an elaborated or summarized version of the last reply.
func (a *App) Modify(ctx context.Context, kind fork.Modification) (model.Message, error) {
	return a.forks.ModifyLast(ctx, kind)
}

// BeginComposerEdit loads message id into the composer: its attachments are
// staged and its text is returned for prefilling.
func (a *App) BeginComposerEdit(id string) (model.Message, error) {
	msg, err := a.forks.EnterEdit(id)
	if err != nil {
		return model.Message{}, err
	}
	a.files.Replace(msg.Files)
	return msg, nil
}

// SaveComposerEdit submits the composer contents as the edit of the message
// loaded by BeginComposerEdit.
func (a *App) SaveComposerEdit(ctx context.Context, text string) (fork.Result, error) {
	files, err := a.files.Resolved(ctx)
	if err != nil {
		return fork.Result{}, err
	}
	res, err := a.forks.SaveEdit(ctx, text, files)
	if err != nil {
		return res, err
	}
	a.files.Discard(files)
	return res, nil
}

// CancelComposerEdit leaves composer edit mode and unstages its attachments.
func (a *App) CancelComposerEdit() {
	if a.forks.ExitEdit() {
		a.files.Clear()
	}
}

// =============================================================================
// CHATS
// =============================================================================

// NewChat switches to an empty session. The chat is created on first send.
func (a *App) NewChat() error {
	if err := a.store.StartNewSession(); err != nil {
		return err
	}
	a.files.Clear()
	return nil
}

// LoadChat opens chat id. A chat whose model no longer exists falls back to
// the default model.
func (a *App) LoadChat(id int64) error {
	if err := a.store.LoadSession(id); err != nil {
		return err
	}
	a.files.Clear()
	if current := a.store.Model(); !a.registry.Exists(current) {
		a.logger.Info("chat_model_missing", "model", current)
		a.store.SelectModel(registry.DefaultModelID)
	}
	return nil
}

// DeleteChat removes chat id.
func (a *App) DeleteChat(ctx context.Context, id int64) error {
	return a.store.DeleteChat(ctx, id)
}

// RenameChat sets chat id's title.
func (a *App) RenameChat(ctx context.Context, id int64, title string) error {
	return a.store.RenameChat(ctx, id, title)
}

// =============================================================================
// MODELS
// =============================================================================

// Models lists every model with credentials resolved.
func (a *App) Models() []model.ModelDescriptor {
	return a.registry.List(a.Settings())
}

// SelectModel switches the model used by the next cycle.
func (a *App) SelectModel(id string) error {
	if !a.registry.Exists(id) {
		return fmt.Errorf("%w: %q", registry.ErrUnknownModel, id)
	}
	a.store.SelectModel(id)
	return nil
}

// AddCustomModel registers and persists a user-defined model.
func (a *App) AddCustomModel(ctx context.Context, name, baseURL, apiKey string, vision bool) (model.CustomModel, error) {
	m, err := a.registry.AddCustom(name, baseURL, apiKey, vision)
	if err != nil {
		return model.CustomModel{}, err
	}
	if err := a.gateway.SaveCustomModels(ctx, a.registry.Custom()); err != nil {
		return m, fmt.Errorf("save custom models: %w", err)
	}
	a.logger.Info("custom_model_added", "id", m.ID, "name", m.Name, "key", registry.Fingerprint(m.APIKey))
	return m, nil
}

// RemoveCustomModel deletes a custom model. If it was selected, the default
// model takes over; chats that used it switch to the default when opened.
func (a *App) RemoveCustomModel(ctx context.Context, id string) error {
	if err := a.registry.RemoveCustom(id); err != nil {
		return err
	}
	if err := a.gateway.SaveCustomModels(ctx, a.registry.Custom()); err != nil {
		return fmt.Errorf("save custom models: %w", err)
	}
	if a.store.Model() == id {
		a.store.SelectModel(registry.DefaultModelID)
	}
	return nil
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns a copy of the current settings.
func (a *App) Settings() model.Settings {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.settings.Clone()
}

// UpdateSettings applies fn to a copy of the settings and persists the
// result. Nothing changes if fn or saving fails.
func (a *App) UpdateSettings(ctx context.Context, fn func(*model.Settings) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	next := a.settings.Clone()
	if err := fn(&next); err != nil {
		return err
	}
	next = next.Normalize()
	if err := a.gateway.SaveSettings(ctx, next); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	a.settings = next
	return nil
}

// =============================================================================
// EXTERNAL CHANGES
// =============================================================================

// ErrWatchUnsupported is returned by Watch for backends without change
// notification.
var ErrWatchUnsupported = errors.New("storage backend does not support watching")

// Watch reloads blobs written by another process until ctx is done. Only the
// file backend supports it.
func (a *App) Watch(ctx context.Context) error {
	fkv, ok := a.kv.(*storage.FileKV)
	if !ok {
		return ErrWatchUnsupported
	}
	return fkv.Watch(ctx, 0, func(key string) {
		a.reload(ctx, key)
	})
}

func (a *App) reload(ctx context.Context, key string) {
	a.logger.Debug("external_change", "key", key)
	switch key {
	case storage.KeyChats:
		chats, err := a.gateway.LoadChats(ctx)
		if err != nil {
			a.logger.Warn("reload_chats_failed", "error", err)
			return
		}
		a.store.ReplaceChats(chats)
	case storage.KeySettings:
		s, err := a.gateway.LoadSettings(ctx)
		if err != nil {
			a.logger.Warn("reload_settings_failed", "error", err)
			return
		}
		a.mu.Lock()
		a.settings = s
		a.mu.Unlock()
	case storage.KeyCustomModels:
		custom, err := a.gateway.LoadCustomModels(ctx)
		if err != nil {
			a.logger.Warn("reload_custom_models_failed", "error", err)
			return
		}
		a.registry.ReplaceCustom(custom)
	}
}
