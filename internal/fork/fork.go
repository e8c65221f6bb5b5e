// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package fork implements editing with history forking, regeneration of the
// last reply, and elaborate/summarize requests.
//
// Every surface that edits a message, inline or through a dialog, routes
// through EditAndRegenerate so truncation happens in one place.
package fork

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jeranaias/freechat-tui/internal/conversation"
	"github.com/jeranaias/freechat-tui/internal/logging"
	"github.com/jeranaias/freechat-tui/internal/model"
)

// Errors re-exported from the store so callers need only this package.
var (
	ErrNotEditable     = conversation.ErrNotEditable
	ErrMessageNotFound = conversation.ErrMessageNotFound
	ErrEmptyMessage    = conversation.ErrEmptyMessage
	ErrGenerating      = conversation.ErrGenerating
	ErrNoExchange      = conversation.ErrNoExchange
)

// ErrNotEditing is returned by SaveEdit when no edit is active.
var ErrNotEditing = errors.New("no message is being edited")

// Modification selects what ModifyLast asks of the model.
type Modification string

const (
	Elaborate Modification = "elaborate"
	Summarize Modification = "summarize"
)

// Instruction returns the hidden prompt sent for m.
func (m Modification) Instruction() (string, error) {
	switch m {
	case Elaborate:
		return "Make your previous answer more detailed and expanded.", nil
	case Summarize:
		return "Shorten your previous answer, make it more concise and to the point.", nil
	}
	return "", fmt.Errorf("unknown modification %q", string(m))
}

// ParseModification accepts "elaborate" or "summarize", case-insensitively.
func ParseModification(s string) (Modification, error) {
	m := Modification(strings.ToLower(strings.TrimSpace(s)))
	if _, err := m.Instruction(); err != nil {
		return "", err
	}
	return m, nil
}

// Generator runs a reserved cycle. generate.Engine implements it.
type Generator interface {
	Ready() (model.ModelDescriptor, error)
	Run(cycle *conversation.Cycle, desc model.ModelDescriptor) model.Message
}

// Result reports what a fork operation did.
type Result struct {
	// Changed is false when an edit matched the stored message.
	Changed bool
	// Reply is the committed assistant message of the new cycle.
	Reply model.Message
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine performs history forks against one store.
type Engine struct {
	store  *conversation.Store
	gen    Generator
	logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = logging.OrDiscard(l) }
}

// New creates a fork engine.
func New(store *conversation.Store, gen Generator, opts ...Option) *Engine {
	e := &Engine{store: store, gen: gen, logger: logging.Discard()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EnterEdit puts message id into edit state. Any edit already in progress is
// exited without saving.
func (e *Engine) EnterEdit(id string) (model.Message, error) {
	msg, ok := e.store.Message(id)
	if !ok {
		return model.Message{}, ErrMessageNotFound
	}
	prev, err := e.store.BeginEdit(id)
	if err != nil {
		return model.Message{}, err
	}
	if prev != "" && prev != id {
		e.logger.Debug("edit_discarded", "message_id", prev)
	}
	return msg, nil
}

// ExitEdit leaves edit state, discarding unsaved changes.
func (e *Engine) ExitEdit() bool {
	return e.store.EndEdit()
}

// Editing returns the id of the message in edit state, or "".
func (e *Engine) Editing() string {
	return e.store.Editing()
}

// SaveEdit applies the active edit through EditAndRegenerate and leaves edit
// state on success or when nothing changed.
func (e *Engine) SaveEdit(ctx context.Context, text string, files []model.Attachment) (Result, error) {
	id := e.store.Editing()
	if id == "" {
		return Result{}, ErrNotEditing
	}
	res, err := e.EditAndRegenerate(ctx, id, text, files)
	if err != nil {
		return res, err
	}
	e.store.EndEdit()
	return res, nil
}

// EditAndRegenerate replaces message id's text and attachments, discards
// every later message and runs one generation cycle. Nothing happens when
// the trimmed text and the attachment id sequence both match the stored
// message.
func (e *Engine) EditAndRegenerate(ctx context.Context, id, text string, files []model.Attachment) (Result, error) {
	current, ok := e.store.Message(id)
	if !ok {
		return Result{}, ErrMessageNotFound
	}
	if current.Role != model.RoleUser || current.IsHidden {
		return Result{}, ErrNotEditable
	}
	text = strings.TrimSpace(text)
	if strings.TrimSpace(current.OriginalContent) == text && model.SameAttachmentSet(current.Files, files) {
		return Result{}, nil
	}
	if text == "" && len(files) == 0 {
		return Result{}, ErrEmptyMessage
	}

	desc, err := e.gen.Ready()
	if err != nil {
		return Result{}, err
	}
	cycle, err := e.store.BeginCycle(ctx)
	if err != nil {
		return Result{}, err
	}
	if _, err := cycle.ForkAt(id, text, files); err != nil {
		cycle.Finish()
		return Result{}, err
	}
	e.logger.Info("history_forked", "message_id", id)
	return Result{Changed: true, Reply: e.gen.Run(cycle, desc)}, nil
}

// RegenerateLast drops the latest assistant reply and generates a new one
// from the remaining history.
func (e *Engine) RegenerateLast(ctx context.Context) (model.Message, error) {
	desc, err := e.gen.Ready()
	if err != nil {
		return model.Message{}, err
	}
	cycle, err := e.store.BeginCycle(ctx)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := cycle.RemoveLastAssistant(); err != nil {
		cycle.Finish()
		return model.Message{}, err
	}
	return e.gen.Run(cycle, desc), nil
}

// ModifyLast replaces the latest assistant reply with an elaborated or
// summarized one. The steering instruction is sent as a hidden message and
// leaves no trace in the history.
func (e *Engine) ModifyLast(ctx context.Context, kind Modification) (model.Message, error) {
	instruction, err := kind.Instruction()
	if err != nil {
		return model.Message{}, err
	}
	desc, err := e.gen.Ready()
	if err != nil {
		return model.Message{}, err
	}
	cycle, err := e.store.BeginCycle(ctx)
	if err != nil {
		return model.Message{}, err
	}
	if _, err := cycle.RemoveLastAssistant(); err != nil {
		cycle.Finish()
		return model.Message{}, err
	}
	if _, err := cycle.PushHidden(instruction); err != nil {
		cycle.Finish()
		return model.Message{}, err
	}
	reply := e.gen.Run(cycle, desc)
	e.store.StripHidden()
	return reply, nil
}
