// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package generate

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jeranaias/freechat-tui/internal/cloud"
	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
	"github.com/jeranaias/freechat-tui/internal/registry"
)

// Markers appended to an assistant message that did not complete.
const CancelMarker = model.CancelMarker

// ErrorMarker returns the inline marker for a failed cycle.
func ErrorMarker(msg string) string {
	return model.ErrorMarker(msg)
}

// DefaultTitleTimeout bounds the background title request.
const DefaultTitleTimeout = 15 * time.Second

// Models resolves model ids. registry.Registry implements it.
type Models interface {
	Resolve(id string, settings model.Settings) (model.ModelDescriptor, error)
}

// Client sends completion requests. cloud.Client implements it.
type Client interface {
	Stream(ctx context.Context, req cloud.Request) (<-chan string, <-chan error)
	Complete(ctx context.Context, req cloud.Request) (string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithTitleTimeout sets the title request timeout.
func WithTitleTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.titleTimeout = d
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDiscard(l) }
}

// WithoutTitles disables background title generation.
func WithoutTitles() Option {
	return func(e *Engine) { e.titles = false }
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine drives generation cycles for one store.
type Engine struct {
	store        *conversation.Store
	models       Models
	client       Client
	settings     func() model.Settings
	titleTimeout time.Duration
	titles       bool
	logger       *slog.Logger

	wg sync.WaitGroup
}

// New creates an engine. settings is read at the start of every cycle.
func New(store *conversation.Store, models Models, client Client, settings func() model.Settings, opts ...Option) *Engine {
	e := &Engine{
		store:        store,
		models:       models,
		client:       client,
		settings:     settings,
		titleTimeout: DefaultTitleTimeout,
		titles:       true,
		logger:       logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Ready resolves the selected model and checks it has a credential. Callers
// run it before mutating history so validation failures change nothing.
func (e *Engine) Ready() (model.ModelDescriptor, error) {
	desc, err := e.models.Resolve(e.store.Model(), e.settings())
	if err != nil {
		return model.ModelDescriptor{}, err
	}
	if err := registry.RequireCredential(desc); err != nil {
		return model.ModelDescriptor{}, err
	}
	return desc, nil
}

// Generate reserves a cycle and runs it to completion. It returns the
// committed assistant message; an error means no cycle ran.
func (e *Engine) Generate(ctx context.Context) (model.Message, error) {
	desc, err := e.Ready()
	if err != nil {
		return model.Message{}, err
	}
	cycle, err := e.store.BeginCycle(ctx)
	if err != nil {
		return model.Message{}, err
	}
	return e.Run(cycle, desc), nil
}

// Run streams one reply for the current history and finishes cycle. Exactly
// one assistant message is committed, carrying whatever was received plus a
// marker when the cycle was cancelled or failed.
func (e *Engine) Run(cycle *conversation.Cycle, desc model.ModelDescriptor) model.Message {
	defer cycle.Finish()
	ctx := cycle.Context()
	settings := e.settings()

	req := cloud.Request{
		Endpoint:   desc.Endpoint,
		Credential: desc.Credential,
		Model:      desc.ModelIdentifier,
		Messages:   WithSystemPrompt(SystemPrompt(settings), Project(e.store.History(), desc)),
	}

	if _, err := cycle.StartPending(desc.ID); err != nil {
		e.logger.Error("start_pending_failed", "error", err)
	}
	start := time.Now()
	e.logger.Info("generation_started",
		"model", desc.ID,
		"messages", len(req.Messages),
		"key", registry.Fingerprint(desc.Credential))

	tokens, errc := e.client.Stream(ctx, req)
	for tok := range tokens {
		_ = cycle.AppendPending(tok)
	}
	streamErr := <-errc

	msg, ok := cycle.TakePending()
	if !ok {
		msg = model.NewAssistantMessage(desc.ID)
	}
	switch {
	case streamErr == nil:
		msg.Status = model.StatusComplete
	case errors.Is(streamErr, context.Canceled) || cycle.Cancelled():
		msg.Content += CancelMarker
		msg.Status = model.StatusCancelled
	default:
		msg.Content += ErrorMarker(streamErr.Error())
		msg.Status = model.StatusFailed
		msg.Error = streamErr.Error()
	}

	if err := cycle.CommitAssistantMessage(msg); err != nil {
		e.logger.Error("commit_failed", "error", err)
	}
	e.store.StripHidden()

	persistCtx := context.WithoutCancel(ctx)
	if err := e.store.Reconcile(persistCtx); err != nil {
		e.logger.Error("persist_failed", "error", err)
	}

	e.logger.Info("generation_finished",
		"model", desc.ID,
		"status", statusName(msg.Status),
		"chars", len(msg.Content),
		"duration", time.Since(start).Round(time.Millisecond))
	if streamErr != nil && msg.Status == model.StatusFailed {
		e.logger.Warn("generation_failed", "model", desc.ID, "error", streamErr)
	}

	e.maybeTitle(persistCtx, desc)
	return msg
}

func statusName(s model.MessageStatus) string {
	if s == model.StatusComplete {
		return "complete"
	}
	return string(s)
}

// Wait blocks until background title requests have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}
