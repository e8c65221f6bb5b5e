// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// Blob keys.
const (
	KeyChats        = "chats"
	KeySettings     = "appSettings"
	KeyCustomModels = "customModels"
)

// =============================================================================
// GATEWAY
// =============================================================================

// Gateway loads and saves the three application blobs.
//
// Missing blobs load as defaults. Blobs that fail to decode are copied to a
// "<key>.corrupt-<unix>" key and also load as defaults, so the next save
// cannot destroy the only copy.
type Gateway struct {
	kv     KV
	sealer *Sealer
	logger *slog.Logger
}

// GatewayOption configures a Gateway.
type GatewayOption func(*Gateway)

// WithSealer seals credentials in the settings and custom model blobs.
func WithSealer(s *Sealer) GatewayOption {
	return func(g *Gateway) { g.sealer = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) GatewayOption {
	return func(g *Gateway) { g.logger = l }
}

// NewGateway creates a gateway over kv.
func NewGateway(kv KV, opts ...GatewayOption) *Gateway {
	g := &Gateway{kv: kv}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.OrDiscard(g.logger)
	return g
}

// Close closes the backend.
func (g *Gateway) Close() error {
	return g.kv.Close()
}

// -----------------------------------------------------------------------------
// Chats
// -----------------------------------------------------------------------------

// LoadChats returns the stored chats, most recent first.
func (g *Gateway) LoadChats(ctx context.Context) ([]model.Chat, error) {
	var chats []model.Chat
	ok, err := g.load(ctx, KeyChats, &chats)
	if err != nil || !ok {
		return nil, err
	}
	for i := range chats {
		chats[i].Messages = model.VisibleMessages(chats[i].Messages)
		if chats[i].Title == "" {
			chats[i].Title = model.DefaultChatTitle
		}
	}
	sort.SliceStable(chats, func(i, j int) bool { return chats[i].ID > chats[j].ID })
	return chats, nil
}

// SaveChats replaces the stored chat list. Hidden messages never reach disk.
func (g *Gateway) SaveChats(ctx context.Context, chats []model.Chat) error {
	out := make([]model.Chat, len(chats))
	for i, c := range chats {
		c.Messages = model.VisibleMessages(c.Messages)
		out[i] = c
	}
	return g.save(ctx, KeyChats, out)
}

// -----------------------------------------------------------------------------
// Settings
// -----------------------------------------------------------------------------

// LoadSettings returns the stored settings merged over the defaults.
func (g *Gateway) LoadSettings(ctx context.Context) (model.Settings, error) {
	var s model.Settings
	ok, err := g.load(ctx, KeySettings, &s)
	if err != nil {
		return model.DefaultSettings(), err
	}
	if !ok {
		return model.DefaultSettings(), nil
	}
	for slot, v := range s.APIKeys {
		s.APIKeys[slot] = g.open(v, "settings", slot)
	}
	return s.Normalize(), nil
}

// SaveSettings replaces the stored settings.
func (g *Gateway) SaveSettings(ctx context.Context, s model.Settings) error {
	s = s.Clone()
	for slot, v := range s.APIKeys {
		sealed, err := g.seal(v)
		if err != nil {
			return err
		}
		s.APIKeys[slot] = sealed
	}
	return g.save(ctx, KeySettings, s)
}

// -----------------------------------------------------------------------------
// Custom models
// -----------------------------------------------------------------------------

// LoadCustomModels returns the user-defined models in insertion order.
func (g *Gateway) LoadCustomModels(ctx context.Context) ([]model.CustomModel, error) {
	var models []model.CustomModel
	ok, err := g.load(ctx, KeyCustomModels, &models)
	if err != nil || !ok {
		return nil, err
	}
	for i := range models {
		models[i].APIKey = g.open(models[i].APIKey, "custom_model", models[i].ID)
	}
	return models, nil
}

// SaveCustomModels replaces the stored custom model list.
func (g *Gateway) SaveCustomModels(ctx context.Context, models []model.CustomModel) error {
	out := make([]model.CustomModel, len(models))
	for i, m := range models {
		sealed, err := g.seal(m.APIKey)
		if err != nil {
			return err
		}
		m.APIKey = sealed
		out[i] = m
	}
	return g.save(ctx, KeyCustomModels, out)
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (g *Gateway) load(ctx context.Context, key string, v any) (bool, error) {
	data, err := g.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		backup := key + ".corrupt-" + strconv.FormatInt(time.Now().Unix(), 10)
		g.logger.Warn("blob_corrupt", "key", key, "backup", backup, "error", err)
		if perr := g.kv.Put(ctx, backup, data); perr != nil {
			g.logger.Error("blob_backup_failed", "key", key, "error", perr)
		}
		return false, nil
	}
	return true, nil
}

func (g *Gateway) save(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", key, err)
	}
	if err := g.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("failed to save %s: %w", key, err)
	}
	g.logger.Debug("blob_saved", "key", key, "bytes", len(data))
	return nil
}

func (g *Gateway) seal(v string) (string, error) {
	if g.sealer == nil {
		return v, nil
	}
	sealed, err := g.sealer.Seal(v)
	if err != nil {
		return "", fmt.Errorf("failed to seal credential: %w", err)
	}
	return sealed, nil
}

// open returns the plaintext credential. A value that no longer opens is
// dropped (the user must re-enter it) rather than sent upstream sealed.
func (g *Gateway) open(v, owner, id string) string {
	if !IsSealed(v) {
		return v
	}
	if g.sealer == nil {
		g.logger.Warn("credential_sealed_without_key", "owner", owner, "id", id)
		return ""
	}
	plain, err := g.sealer.Open(v)
	if err != nil {
		g.logger.Warn("credential_unseal_failed", "owner", owner, "id", id, "error", err)
		return ""
	}
	return plain
}
